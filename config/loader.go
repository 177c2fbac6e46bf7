package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. Fields absent from the document keep their default values;
// unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if err := cfg.Feature.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("feature: %w", err))
	}
	if err := cfg.Decoder.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("decoder: %w", err))
	}
	for i, r := range cfg.Endpoint.Rules {
		if r.MinTrailingSilence < 0 || r.MinUtteranceLength < 0 {
			errs = append(errs, fmt.Errorf("endpoint.rules[%d]: durations must not be negative", i))
		}
		if r.MaxRelativeCost < 0 {
			errs = append(errs, fmt.Errorf("endpoint.rules[%d]: max_relative_cost must not be negative", i))
		}
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("server.session_ttl must not be negative, got %s", cfg.Server.SessionTTL))
	}

	return errors.Join(errs...)
}
