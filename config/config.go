// Package config loads the YAML file that tunes feature extraction, search,
// endpointing and the server.
package config

import (
	"log/slog"
	"time"

	"github.com/ieee0824/onlineasr-go/decoder"
	"github.com/ieee0824/onlineasr-go/feature"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level; unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root of the YAML file.
type Config struct {
	Feature  feature.Config         `yaml:"feature"`
	Decoder  decoder.Config         `yaml:"decoder"`
	Endpoint decoder.EndpointConfig `yaml:"endpoint"`
	Server   ServerConfig           `yaml:"server"`
}

// ServerConfig configures the HTTP decoding server.
type ServerConfig struct {
	// ListenAddr is the TCP address to listen on, e.g. ":8301".
	ListenAddr string `yaml:"listen_addr"`

	// SessionTTL is how long an idle session survives before it is dropped.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// RecordDir receives WAV recordings when clients ask for them.
	// Empty disables recording.
	RecordDir string `yaml:"record_dir"`

	// Endpointing finalizes streaming utterances when an endpoint rule fires.
	Endpointing bool `yaml:"endpointing"`

	LogLevel LogLevel `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Feature:  feature.DefaultConfig(),
		Decoder:  decoder.DefaultConfig(),
		Endpoint: decoder.DefaultEndpointConfig(),
		Server: ServerConfig{
			ListenAddr:  ":8301",
			SessionTTL:  5 * time.Minute,
			Endpointing: true,
			LogLevel:    LogInfo,
		},
	}
}
