package feature

import "math"

// PreEmphasize applies y[n] = x[n] - alpha*x[n-1]; the first sample passes through.
func PreEmphasize(samples []float64, alpha float64) []float64 {
	out := make([]float64, len(samples))
	prev := 0.0
	for i, x := range samples {
		if i == 0 {
			out[i] = x
		} else {
			out[i] = x - alpha*prev
		}
		prev = x
	}
	return out
}

// Frame splits samples into overlapping frames of frameLen every frameShift samples.
// A trailing partial frame is dropped.
func Frame(samples []float64, frameLen, frameShift int) [][]float64 {
	n := len(samples)
	if n < frameLen {
		return nil
	}
	frames := make([][]float64, 1+(n-frameLen)/frameShift)
	for i := range frames {
		start := i * frameShift
		frames[i] = append([]float64(nil), samples[start:start+frameLen]...)
	}
	return frames
}

func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// HammingWindow applies a Hamming window in place.
func HammingWindow(frame []float64) {
	for i, w := range hammingWindow(len(frame)) {
		frame[i] *= w
	}
}
