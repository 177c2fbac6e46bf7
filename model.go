// Package onlineasr is a streaming speech decoder. A [Model] bundles the
// read-only resources (acoustic model, decoding graph, symbol table,
// configuration and an optional alignment lexicon); a [Decoder] runs one
// utterance at a time against it, accepting audio in chunks and producing
// partial and final transcripts.
package onlineasr

import (
	"fmt"
	"log/slog"

	"github.com/ieee0824/onlineasr-go/acoustic"
	"github.com/ieee0824/onlineasr-go/config"
	"github.com/ieee0824/onlineasr-go/decoder"
	"github.com/ieee0824/onlineasr-go/graph"
	"github.com/ieee0824/onlineasr-go/internal/observe"
	"github.com/ieee0824/onlineasr-go/lexicon"
)

// Backend names an acoustic scoring backend.
type Backend string

const (
	BackendGMM    Backend = "gmm"
	BackendNeural Backend = "nnet"
)

// ModelConfig lists the files and search knobs a Model is built from.
// Numeric fields override the configuration file when non-zero.
type ModelConfig struct {
	Beam          float64
	MaxActive     int
	MinActive     int
	LatticeBeam   float64
	AcousticScale float64

	Backend           Backend // defaults to BackendGMM
	AcousticModelPath string
	NeuralNetPath     string // required for BackendNeural
	LanguageModelPath string
	LexiconPath       string
	WordSymbolsPath   string // optional; derived from the lexicon when empty
	ConfigPath        string // optional YAML file, see package config
	AlignLexiconPath  string // optional; required for WordAlignment
}

// Model holds everything shared by the decoders of a session. It is
// immutable after construction and safe for concurrent use.
type Model struct {
	cfg     *config.Config
	backend acoustic.Backend
	graph   *graph.Graph
	net     *decoder.Network
	align   *lexicon.AlignLexicon

	logger  *slog.Logger
	metrics *observe.Metrics
}

// NewModel loads every resource named by cfg. Any unreadable or
// unparseable file is an error.
func NewModel(cfg ModelConfig, opts ...Option) (*Model, error) {
	c := config.Default()
	if cfg.ConfigPath != "" {
		var err error
		if c, err = config.Load(cfg.ConfigPath); err != nil {
			return nil, err
		}
	}
	applyOverrides(&c.Decoder, cfg)
	if err := c.Decoder.Validate(); err != nil {
		return nil, fmt.Errorf("decoder config: %w", err)
	}

	am, err := acoustic.LoadFile(cfg.AcousticModelPath)
	if err != nil {
		return nil, fmt.Errorf("load acoustic model: %w", err)
	}

	var backend acoustic.Backend
	switch cfg.Backend {
	case "", BackendGMM:
		backend = acoustic.NewGMMBackend(am)
	case BackendNeural:
		net, err := acoustic.LoadDNNFile(cfg.NeuralNetPath)
		if err != nil {
			return nil, fmt.Errorf("load neural net: %w", err)
		}
		if backend, err = acoustic.NewNeuralBackend(am, net); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	g, err := graph.Load(cfg.LexiconPath, cfg.LanguageModelPath, cfg.WordSymbolsPath)
	if err != nil {
		return nil, fmt.Errorf("load decoding graph: %w", err)
	}

	var align *lexicon.AlignLexicon
	if cfg.AlignLexiconPath != "" {
		if align, err = lexicon.LoadAlignLexiconFile(cfg.AlignLexiconPath, g.Symbols); err != nil {
			return nil, fmt.Errorf("load alignment lexicon: %w", err)
		}
	}

	return NewModelFromComponents(c, backend, g, align, opts...)
}

func applyOverrides(d *decoder.Config, cfg ModelConfig) {
	if cfg.Beam != 0 {
		d.Beam = cfg.Beam
	}
	if cfg.MaxActive != 0 {
		d.MaxActive = cfg.MaxActive
	}
	if cfg.MinActive != 0 {
		d.MinActive = cfg.MinActive
	}
	if cfg.LatticeBeam != 0 {
		d.LatticeBeam = cfg.LatticeBeam
	}
	if cfg.AcousticScale != 0 {
		d.AcousticScale = cfg.AcousticScale
	}
}

// NewModelFromComponents builds a Model from loaded parts. align may be nil.
func NewModelFromComponents(c *config.Config, backend acoustic.Backend, g *graph.Graph, align *lexicon.AlignLexicon, opts ...Option) (*Model, error) {
	o, metrics, err := buildOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if err := config.Validate(c); err != nil {
		return nil, err
	}
	if dim := backend.Model().FeatureDim; dim != c.Feature.FeatureDim() {
		return nil, fmt.Errorf("acoustic model expects %d-dim features, feature config produces %d", dim, c.Feature.FeatureDim())
	}
	net, err := decoder.NewNetwork(g, backend.Model())
	if err != nil {
		return nil, fmt.Errorf("compile search network: %w", err)
	}

	m := &Model{
		cfg:     c,
		backend: backend,
		graph:   g,
		net:     net,
		align:   align,
		logger:  o.logger,
		metrics: metrics,
	}
	o.logger.Info("model loaded",
		"backend", backend.Name(),
		"words", len(g.Words),
		"pronunciations", net.NumPronunciations(),
		"unreachable_words", len(g.Unreachable),
		"align_lexicon", align != nil,
	)
	if len(g.Unreachable) > 0 {
		o.logger.Debug("dictionary words without language model probability", "words", g.Unreachable)
	}
	return m, nil
}

// Config returns the resolved configuration. Callers must not modify it.
func (m *Model) Config() *config.Config { return m.cfg }

// Backend returns the name of the acoustic scoring backend.
func (m *Model) Backend() string { return m.backend.Name() }

// Symbols returns the word symbol table.
func (m *Model) Symbols() *graph.SymbolTable { return m.graph.Symbols }

// SampleRate returns the sample rate audio must be supplied at.
func (m *Model) SampleRate() int { return m.cfg.Feature.SampleRate }

// FrameShift returns the duration of one feature frame in seconds.
func (m *Model) FrameShift() float64 {
	return float64(m.cfg.Feature.FrameShift()) / float64(m.cfg.Feature.SampleRate)
}

// HasAlignLexicon reports whether WordAlignment is available.
func (m *Model) HasAlignLexicon() bool { return m.align != nil }
