package mathutil

import "math"

// LogZero stands in for log(0). Unscorable states and unknown words score it.
const LogZero = -1e30

// logAddCutoff is the gap beyond which exp(-gap) vanishes against 1 in float64.
const logAddCutoff = 36.0

// LogAdd returns log(exp(a) + exp(b)) without leaving the log domain.
func LogAdd(a, b float64) float64 {
	hi, lo := a, b
	if lo > hi {
		hi, lo = lo, hi
	}
	if lo == LogZero || hi-lo > logAddCutoff {
		return hi
	}
	return hi + math.Log1p(math.Exp(lo-hi))
}
