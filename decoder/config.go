package decoder

import (
	"errors"
	"fmt"
)

// Config holds beam search parameters. Costs are negated log probabilities,
// so every beam is a cost difference from the best active hypothesis.
type Config struct {
	Beam        float64 `yaml:"beam"`         // cost beam for active tokens
	MaxActive   int     `yaml:"max_active"`   // hard cap on active tokens per frame
	MinActive   int     `yaml:"min_active"`   // tokens kept even outside the beam
	LatticeBeam float64 `yaml:"lattice_beam"` // cost beam for lattice hypotheses
	// AcousticScale multiplies acoustic log-likelihoods before they enter the search.
	AcousticScale float64 `yaml:"acoustic_scale"`
	LMWeight      float64 `yaml:"lm_weight"`
	// WordInsertionPenalty is added to the log score of every real word;
	// negative values discourage insertions.
	WordInsertionPenalty float64 `yaml:"word_insertion_penalty"`
}

// DefaultConfig returns reasonable default parameters.
func DefaultConfig() Config {
	return Config{
		Beam:                 200.0,
		MaxActive:            1000,
		MinActive:            20,
		LatticeBeam:          50.0,
		AcousticScale:        1.0,
		LMWeight:             10.0,
		WordInsertionPenalty: 0.0,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Beam <= 0 {
		errs = append(errs, fmt.Errorf("beam must be positive, got %g", c.Beam))
	}
	if c.MaxActive <= 0 {
		errs = append(errs, fmt.Errorf("max_active must be positive, got %d", c.MaxActive))
	}
	if c.MinActive < 0 || c.MinActive > c.MaxActive {
		errs = append(errs, fmt.Errorf("min_active must be in [0, max_active], got %d", c.MinActive))
	}
	if c.LatticeBeam < 0 {
		errs = append(errs, fmt.Errorf("lattice_beam must not be negative, got %g", c.LatticeBeam))
	}
	if c.AcousticScale <= 0 {
		errs = append(errs, fmt.Errorf("acoustic_scale must be positive, got %g", c.AcousticScale))
	}
	if c.LMWeight < 0 {
		errs = append(errs, fmt.Errorf("lm_weight must not be negative, got %g", c.LMWeight))
	}
	return errors.Join(errs...)
}
