package decoder

import "math"

// EndpointRule fires when every condition holds. Durations are in seconds.
type EndpointRule struct {
	MustContainNonsilence bool    `yaml:"must_contain_nonsilence"`
	MinTrailingSilence    float64 `yaml:"min_trailing_silence"`
	// MaxRelativeCost bounds how much worse the best word-final hypothesis
	// may be than the best overall one; +Inf disables the check.
	MaxRelativeCost    float64 `yaml:"max_relative_cost"`
	MinUtteranceLength float64 `yaml:"min_utterance_length"`
}

// EndpointConfig lists the rules; any firing rule ends the utterance.
type EndpointConfig struct {
	Rules []EndpointRule `yaml:"rules"`
}

// DefaultEndpointConfig returns the usual five rules: long silence with no
// speech, shorter silences after speech depending on how final the best
// hypothesis looks, and a hard utterance length limit.
func DefaultEndpointConfig() EndpointConfig {
	inf := math.Inf(1)
	return EndpointConfig{Rules: []EndpointRule{
		{MustContainNonsilence: false, MinTrailingSilence: 5.0, MaxRelativeCost: inf},
		{MustContainNonsilence: true, MinTrailingSilence: 0.5, MaxRelativeCost: 2.0},
		{MustContainNonsilence: true, MinTrailingSilence: 1.0, MaxRelativeCost: 8.0},
		{MustContainNonsilence: true, MinTrailingSilence: 2.0, MaxRelativeCost: inf},
		{MustContainNonsilence: false, MaxRelativeCost: inf, MinUtteranceLength: 20.0},
	}}
}

func (r EndpointRule) fires(containsNonsilence bool, trailingSilence, relativeCost, utteranceLength float64) bool {
	if r.MustContainNonsilence && !containsNonsilence {
		return false
	}
	return trailingSilence >= r.MinTrailingSilence &&
		relativeCost <= r.MaxRelativeCost &&
		utteranceLength >= r.MinUtteranceLength
}

// EndpointDetected reports whether the utterance should be ended now.
// frameShift is the duration of one decoded frame in seconds.
func (o *Online) EndpointDetected(cfg EndpointConfig, frameShift float64) bool {
	if o.decoded == 0 {
		return false
	}
	best, ok := o.BestPath(false)
	if !ok {
		return false
	}
	containsNonsilence := len(best.WordIDs) > 0
	trailing := 0
	for i := len(best.Segments) - 1; i >= 0 && best.Segments[i].Silence(); i-- {
		trailing = best.NumFrames - best.Segments[i].Start
	}
	relative := o.relativeCost()
	utterance := float64(o.decoded) * frameShift
	for _, r := range cfg.Rules {
		if r.fires(containsNonsilence, float64(trailing)*frameShift, relative, utterance) {
			return true
		}
	}
	return false
}

// relativeCost is the gap between the best word-final hypothesis, end of
// sentence included, and the best hypothesis overall.
func (o *Online) relativeCost() float64 {
	bestAll, bestFinal := math.Inf(1), math.Inf(1)
	for _, tok := range o.active {
		c := tok.cost()
		bestAll = min(bestAll, c)
		if extra, ok := o.finalCost(tok); ok {
			bestFinal = min(bestFinal, c+extra)
		}
	}
	if math.IsInf(bestFinal, 1) {
		return math.Inf(1)
	}
	return bestFinal - bestAll
}
