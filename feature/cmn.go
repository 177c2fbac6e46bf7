package feature

// CMNState is the per-utterance adaptation state for online Cepstral Mean
// Normalization. Subtracting the running mean removes channel and
// speaker-dependent spectral bias without waiting for the utterance to end.
// Only past frames contribute, so early frames see a noisier estimate.
type CMNState struct {
	window int
	sum    []float64
	ring   [][]float64
	next   int
	count  int
}

// NewCMNState returns empty statistics over a window of frames; window 0 keeps all frames.
func NewCMNState(window int) *CMNState {
	return &CMNState{window: window}
}

// NumFrames returns how many frames currently contribute to the mean.
func (s *CMNState) NumFrames() int { return s.count }

// Apply adds frame to the statistics and subtracts the updated mean in place.
func (s *CMNState) Apply(frame []float64) {
	if s.sum == nil {
		s.sum = make([]float64, len(frame))
	}
	if s.window > 0 {
		if len(s.ring) < s.window {
			s.ring = append(s.ring, append([]float64(nil), frame...))
			s.count++
		} else {
			old := s.ring[s.next]
			for d, v := range old {
				s.sum[d] -= v
			}
			copy(old, frame)
			s.next = (s.next + 1) % s.window
		}
	} else {
		s.count++
	}
	for d, v := range frame {
		s.sum[d] += v
	}
	inv := 1 / float64(s.count)
	for d := range frame {
		frame[d] -= s.sum[d] * inv
	}
}
