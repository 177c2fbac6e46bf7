package feature

// deltaAt writes the regression delta of frame t into dst, clamping indices to [0, n-1]:
// d[t] = sum_{k=1..N} k*(c[t+k]-c[t-k]) / (2*sum_{k=1..N} k^2)
func deltaAt(dst []float64, get func(int) []float64, n, t, window int) {
	denom := 0.0
	for k := 1; k <= window; k++ {
		denom += float64(k * k)
	}
	denom *= 2
	clear(dst)
	for k := 1; k <= window; k++ {
		next := get(min(t+k, n-1))
		prev := get(max(t-k, 0))
		for d := range dst {
			dst[d] += float64(k) * (next[d] - prev[d])
		}
	}
	for d := range dst {
		dst[d] /= denom
	}
}

// Delta computes regression deltas over a window of N frames on each side.
func Delta(features [][]float64, n int) [][]float64 {
	if len(features) == 0 {
		return nil
	}
	get := func(i int) []float64 { return features[i] }
	out := make([][]float64, len(features))
	for t := range features {
		out[t] = make([]float64, len(features[t]))
		deltaAt(out[t], get, len(features), t, n)
	}
	return out
}

// AppendDeltas returns [static | delta | delta-delta] rows using a window of 2.
func AppendDeltas(features [][]float64) [][]float64 {
	if len(features) == 0 {
		return nil
	}
	d1 := Delta(features, 2)
	d2 := Delta(d1, 2)
	out := make([][]float64, len(features))
	for t := range features {
		out[t] = concat(features[t], d1[t], d2[t])
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float64, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
