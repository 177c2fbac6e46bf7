package feature

import (
	"errors"
	"fmt"
)

// Config holds the MFCC pipeline parameters.
type Config struct {
	SampleRate    int     `yaml:"sample_rate"`
	FrameLenMs    float64 `yaml:"frame_length_ms"`
	FrameShiftMs  float64 `yaml:"frame_shift_ms"`
	PreEmphCoeff  float64 `yaml:"preemphasis"`
	NumMelFilters int     `yaml:"num_mel_bins"`
	NumCepstra    int     `yaml:"num_ceps"`
	LowFreq       float64 `yaml:"low_freq"`
	// HighFreq <= 0 is an offset from the Nyquist frequency.
	HighFreq      float64 `yaml:"high_freq"`
	FFTSize       int     `yaml:"fft_size"`
	CepLifter     int     `yaml:"cepstral_lifter"`
	UseDelta      bool    `yaml:"delta"`
	UseDeltaDelta bool    `yaml:"delta_delta"`
	DeltaWindow   int     `yaml:"delta_window"`
	UseCMN        bool    `yaml:"cmn"`
	// CMNWindow is the number of past frames in the running mean; 0 means unbounded.
	CMNWindow int `yaml:"cmn_window"`
}

// DefaultConfig returns 13 MFCCs with deltas and delta-deltas at 16kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		FrameLenMs:    25,
		FrameShiftMs:  10,
		PreEmphCoeff:  0.97,
		NumMelFilters: 26,
		NumCepstra:    13,
		LowFreq:       20,
		HighFreq:      0,
		FFTSize:       512,
		CepLifter:     22,
		UseDelta:      true,
		UseDeltaDelta: true,
		DeltaWindow:   2,
		UseCMN:        true,
		CMNWindow:     600,
	}
}

// FeatureDim returns the output vector dimension.
func (c Config) FeatureDim() int {
	d := c.NumCepstra
	if c.UseDelta {
		d += c.NumCepstra
		if c.UseDeltaDelta {
			d += c.NumCepstra
		}
	}
	return d
}

// FrameLen returns the frame length in samples.
func (c Config) FrameLen() int { return int(c.FrameLenMs * float64(c.SampleRate) / 1000) }

// FrameShift returns the frame shift in samples.
func (c Config) FrameShift() int { return int(c.FrameShiftMs * float64(c.SampleRate) / 1000) }

// DeltaLag is how many frames output trails the static features while input is open.
func (c Config) DeltaLag() int {
	switch {
	case c.UseDelta && c.UseDeltaDelta:
		return 2 * c.DeltaWindow
	case c.UseDelta:
		return c.DeltaWindow
	}
	return 0
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameShift() <= 0 || c.FrameLen() < c.FrameShift() {
		errs = append(errs, fmt.Errorf("frame_length_ms %.1f / frame_shift_ms %.1f give no usable frames", c.FrameLenMs, c.FrameShiftMs))
	}
	if c.FFTSize < c.FrameLen() {
		errs = append(errs, fmt.Errorf("fft_size %d is shorter than the frame (%d samples)", c.FFTSize, c.FrameLen()))
	}
	if c.NumMelFilters <= 0 {
		errs = append(errs, fmt.Errorf("num_mel_bins must be positive, got %d", c.NumMelFilters))
	}
	if c.NumCepstra <= 0 || c.NumCepstra > c.NumMelFilters {
		errs = append(errs, fmt.Errorf("num_ceps must be in [1, %d], got %d", c.NumMelFilters, c.NumCepstra))
	}
	if c.UseDelta && c.DeltaWindow <= 0 {
		errs = append(errs, fmt.Errorf("delta_window must be positive, got %d", c.DeltaWindow))
	}
	if c.CMNWindow < 0 {
		errs = append(errs, fmt.Errorf("cmn_window must not be negative, got %d", c.CMNWindow))
	}
	return errors.Join(errs...)
}
