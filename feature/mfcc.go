package feature

import "fmt"

// Extract computes features for a whole utterance with the online pipeline.
// It returns [numFrames][FeatureDim].
func Extract(samples []float64, cfg Config) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty samples")
	}
	buf := make([]float32, len(samples))
	for i, s := range samples {
		buf[i] = float32(s)
	}
	o := NewOnline(cfg, nil)
	if err := o.AcceptWaveform(cfg.SampleRate, buf); err != nil {
		return nil, err
	}
	o.InputFinished()
	if o.NumFramesReady() == 0 {
		return nil, fmt.Errorf("audio too short for a single frame")
	}
	out := make([][]float64, o.NumFramesReady())
	for t := range out {
		out[t] = o.Frame(t)
	}
	return out, nil
}
