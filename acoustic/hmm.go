package acoustic

import (
	"math"

	"github.com/ieee0824/onlineasr-go/internal/mathutil"
)

// HMM is a left-to-right phone model.
// States: [0]=entry (non-emitting), [1..3]=emitting, [4]=exit (non-emitting).
type HMM struct {
	// Phoneme is the center phone; triphone HMMs share it with their monophone.
	Phoneme  Phoneme
	States   []*GMM
	TransLog [][]float64 // [NumStatesPerPhoneme][NumStatesPerPhoneme]
}

// NewHMM creates a phone HMM with randomly initialised emission GMMs and
// 0.5/0.5 self-loop/forward transitions.
func NewHMM(phoneme Phoneme, featureDim, numMix int) *HMM {
	h := &HMM{
		Phoneme:  phoneme,
		States:   make([]*GMM, NumStatesPerPhoneme),
		TransLog: mathutil.NewMatFill(NumStatesPerPhoneme, NumStatesPerPhoneme, mathutil.LogZero),
	}
	for i := 1; i <= NumEmittingStates; i++ {
		h.States[i] = NewGMM(numMix, featureDim)
	}

	h.TransLog[0][1] = 0
	logHalf := math.Log(0.5)
	for i := 1; i <= NumEmittingStates; i++ {
		h.TransLog[i][i] = logHalf
		h.TransLog[i][i+1] = logHalf
	}
	return h
}

// LogLikelihood returns log P(obs | state) for an emitting state.
func (h *HMM) LogLikelihood(state int, obs []float64) float64 {
	if !IsEmitting(state) || h.States[state] == nil {
		return mathutil.LogZero
	}
	return h.States[state].LogProb(obs)
}

// SelfLoop returns the log self-loop probability of an emitting state.
func (h *HMM) SelfLoop(state int) float64 { return h.TransLog[state][state] }

// Forward returns the log probability of leaving state for state+1.
// The exit transition is floored at log(0.5) when it was never estimated.
func (h *HMM) Forward(state int) float64 {
	lp := h.TransLog[state][state+1]
	if state == NumEmittingStates && lp <= mathutil.LogZero+1 {
		return math.Log(0.5)
	}
	return lp
}

// IsEmitting reports whether the state index is an emitting state.
func IsEmitting(state int) bool {
	return state >= 1 && state <= NumEmittingStates
}
