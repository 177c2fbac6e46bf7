package audio

// Resample converts samples from one rate to another with linear
// interpolation. It returns samples unchanged when the rates match.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 {
		return samples
	}
	if from <= 0 || to <= 0 {
		return nil
	}
	step := float64(from) / float64(to)
	n := int(float64(len(samples)) / step)
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := float32(pos - float64(idx))
		switch {
		case idx+1 < len(samples):
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		case idx < len(samples):
			out[i] = samples[idx]
		}
	}
	return out
}
