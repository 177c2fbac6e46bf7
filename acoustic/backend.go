package acoustic

import (
	"fmt"

	"github.com/ieee0824/onlineasr-go/internal/mathutil"
)

// FeatureSource is an incrementally growing sequence of feature frames.
type FeatureSource interface {
	Dim() int
	NumFramesReady() int
	IsLastFrame(t int) bool
	Frame(t int) []float64
}

// Decodable scores HMM states against frames of one utterance.
// LogLikelihood is already multiplied by the acoustic scale.
type Decodable interface {
	NumFramesReady() int
	IsLastFrame(t int) bool
	LogLikelihood(t int, h *HMM, state int) float64
}

// Backend is the acoustic scoring strategy shared by all sessions of a model.
// Implementations must be safe for concurrent NewDecodable calls.
type Backend interface {
	Name() string
	Model() *Model
	NewDecodable(src FeatureSource, acousticScale float64) Decodable
}

// GMMBackend scores states with the model's own emission GMMs.
type GMMBackend struct {
	am *Model
}

// NewGMMBackend wraps am.
func NewGMMBackend(am *Model) *GMMBackend { return &GMMBackend{am: am} }

// Name returns "gmm".
func (b *GMMBackend) Name() string { return "gmm" }

// Model returns the wrapped acoustic model.
func (b *GMMBackend) Model() *Model { return b.am }

// NewDecodable returns a scorer over src with a per-frame GMM cache.
// The cache is private to the decodable, so sessions never share it.
func (b *GMMBackend) NewDecodable(src FeatureSource, acousticScale float64) Decodable {
	return &gmmDecodable{src: src, scale: acousticScale, frame: -1, cache: make(map[*GMM]float64)}
}

// gmmDecodable caches GMM scores for the frame currently being searched.
type gmmDecodable struct {
	src   FeatureSource
	scale float64
	frame int
	cache map[*GMM]float64
}

func (d *gmmDecodable) NumFramesReady() int    { return d.src.NumFramesReady() }
func (d *gmmDecodable) IsLastFrame(t int) bool { return d.src.IsLastFrame(t) }

func (d *gmmDecodable) LogLikelihood(t int, h *HMM, state int) float64 {
	g := h.States[state]
	if g == nil {
		return mathutil.LogZero
	}
	if t != d.frame {
		clear(d.cache)
		d.frame = t
	}
	if v, ok := d.cache[g]; ok {
		return v
	}
	v := d.scale * g.LogProb(d.src.Frame(t))
	d.cache[g] = v
	return v
}

// NeuralBackend scores states with a DNN and uses the model only for topology.
type NeuralBackend struct {
	am  *Model
	net *DNN
	// classes caches DNN output classes per phone, indexed by state-1.
	classes map[Phoneme][NumEmittingStates]int
}

// NewNeuralBackend checks that every phone of am has DNN output classes.
func NewNeuralBackend(am *Model, net *DNN) (*NeuralBackend, error) {
	if am.FeatureDim > 0 && net.InputDim != (2*net.ContextLen+1)*am.FeatureDim {
		return nil, fmt.Errorf("dnn input dim %d does not match feature dim %d with context %d",
			net.InputDim, am.FeatureDim, net.ContextLen)
	}
	b := &NeuralBackend{am: am, net: net, classes: make(map[Phoneme][NumEmittingStates]int, len(am.Phonemes))}
	for p := range am.Phonemes {
		var idx [NumEmittingStates]int
		for s := 1; s <= NumEmittingStates; s++ {
			c := net.StateClassIndex(p, s)
			if c < 0 || c >= net.OutputDim {
				return nil, fmt.Errorf("phoneme %q has no dnn output class", p)
			}
			idx[s-1] = c
		}
		b.classes[p] = idx
	}
	return b, nil
}

// Name returns "nnet".
func (b *NeuralBackend) Name() string { return "nnet" }

// Model returns the topology source.
func (b *NeuralBackend) Model() *Model { return b.am }

// NewDecodable starts DNN scoring over src. Network outputs are computed
// lazily as frames become ready.
func (b *NeuralBackend) NewDecodable(src FeatureSource, acousticScale float64) Decodable {
	return &neuralDecodable{b: b, src: src, scale: acousticScale}
}

// neuralDecodable runs the network on frames as soon as their right context is available.
type neuralDecodable struct {
	b     *NeuralBackend
	src   FeatureSource
	scale float64
	rows  [][]float64
}

// NumFramesReady holds back ContextLen frames until the input is finished.
func (d *neuralDecodable) NumFramesReady() int {
	n := d.src.NumFramesReady()
	ready := n
	if n == 0 || !d.src.IsLastFrame(n-1) {
		ready = max(0, n-d.b.net.ContextLen)
	}
	d.compute(ready, n)
	return len(d.rows)
}

func (d *neuralDecodable) IsLastFrame(t int) bool { return d.src.IsLastFrame(t) }

func (d *neuralDecodable) compute(ready, n int) {
	done := len(d.rows)
	if ready <= done {
		return
	}
	net := d.b.net
	batch := ready - done
	input := make([]float64, batch*net.InputDim)
	for i := 0; i < batch; i++ {
		net.SpliceFrames(input[i*net.InputDim:(i+1)*net.InputDim], d.src.Frame, n, done+i)
	}
	for _, row := range net.forwardBatch(input, batch) {
		net.SubtractPrior(row)
		d.rows = append(d.rows, row)
	}
}

func (d *neuralDecodable) LogLikelihood(t int, h *HMM, state int) float64 {
	if t >= len(d.rows) {
		d.NumFramesReady()
		if t >= len(d.rows) {
			return mathutil.LogZero
		}
	}
	idx, ok := d.b.classes[h.Phoneme]
	if !ok || !IsEmitting(state) {
		return mathutil.LogZero
	}
	return d.scale * d.rows[t][idx[state-1]]
}
