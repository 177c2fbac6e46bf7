package onlineasr

import "errors"

var (
	// ErrEmptyLattice is returned by Decode when finalizing an utterance
	// leaves no hypothesis, e.g. when no audio frame was decoded.
	ErrEmptyLattice = errors.New("onlineasr: empty lattice")

	// ErrNoResult is returned when a finalized result is required but none is stored.
	ErrNoResult = errors.New("onlineasr: no finalized result")

	// ErrAlignmentFailed is returned when the best path does not agree with
	// the alignment lexicon or aligns to no words.
	ErrAlignmentFailed = errors.New("onlineasr: word alignment failed")

	// ErrNoAlignLexicon is returned by WordAlignment when the model was built
	// without an alignment lexicon.
	ErrNoAlignLexicon = errors.New("onlineasr: model has no alignment lexicon")
)
