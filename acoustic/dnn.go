package acoustic

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// DNNLayer is one fully connected layer. W is [OutDim x InDim] row-major.
type DNNLayer struct {
	W      []float64
	B      []float64
	InDim  int
	OutDim int
}

// BatchNormParams holds inference-time batch normalisation statistics.
type BatchNormParams struct {
	Gamma       []float64
	Beta        []float64
	RunningMean []float64
	RunningVar  []float64
	Dim         int
}

// DNN is a feed-forward state classifier for hybrid DNN-HMM scoring.
// Hidden layers use ReLU (optionally batch-normalised); the last layer is log-softmax.
// Output class i*NumEmittingStates+(s-1) is emitting state s of PhonemeList[i].
type DNN struct {
	Layers     []DNNLayer
	InputDim   int
	OutputDim  int
	ContextLen int // frames of context on each side

	UseBatchNorm bool
	BN           []BatchNormParams // one per hidden layer

	LogPrior    []float64 // [OutputDim] log state priors
	PhonemeList []Phoneme
}

// NewDNN creates a randomly initialised network over the full phone inventory.
func NewDNN(featureDim, hiddenDim, contextLen, numHidden int, useBatchNorm bool) *DNN {
	phonemes := AllPhonemes()
	outputDim := len(phonemes) * NumEmittingStates
	inputDim := (2*contextLen + 1) * featureDim

	d := &DNN{
		Layers:       make([]DNNLayer, numHidden+1),
		InputDim:     inputDim,
		OutputDim:    outputDim,
		ContextLen:   contextLen,
		UseBatchNorm: useBatchNorm,
		LogPrior:     make([]float64, outputDim),
		PhonemeList:  phonemes,
	}
	prev := inputDim
	for i := 0; i <= numHidden; i++ {
		out := hiddenDim
		if i == numHidden {
			out = outputDim
		}
		d.Layers[i] = DNNLayer{W: make([]float64, out*prev), B: make([]float64, out), InDim: prev, OutDim: out}
		scale := math.Sqrt(2 / float64(prev+out))
		if useBatchNorm && i < numHidden {
			scale = math.Sqrt(2 / float64(prev))
		}
		for j := range d.Layers[i].W {
			d.Layers[i].W[j] = rand.NormFloat64() * scale
		}
		prev = out
	}
	if useBatchNorm {
		d.BN = make([]BatchNormParams, numHidden)
		for i := range d.BN {
			bn := BatchNormParams{
				Gamma:       make([]float64, hiddenDim),
				Beta:        make([]float64, hiddenDim),
				RunningMean: make([]float64, hiddenDim),
				RunningVar:  make([]float64, hiddenDim),
				Dim:         hiddenDim,
			}
			for j := 0; j < hiddenDim; j++ {
				bn.Gamma[j] = 1
				bn.RunningVar[j] = 1
			}
			d.BN[i] = bn
		}
	}
	return d
}

// StateClassIndex maps a phone and emitting state (1-based) to an output class.
// It returns -1 for an unknown phone or a non-emitting state.
func (d *DNN) StateClassIndex(ph Phoneme, state int) int {
	if !IsEmitting(state) {
		return -1
	}
	for i, p := range d.PhonemeList {
		if p == ph {
			return i*NumEmittingStates + (state - 1)
		}
	}
	return -1
}

const batchNormEps = 1e-5

// Forward computes log-softmax outputs for batchSize row-major inputs.
// activations holds one [batchSize x OutDim] buffer per hidden layer.
func (d *DNN) Forward(input []float64, batchSize int, activations [][]float64, output []float64) {
	last := len(d.Layers) - 1
	a := blas64.General{Rows: batchSize, Cols: d.InputDim, Stride: d.InputDim, Data: input}
	for i := range d.Layers {
		l := &d.Layers[i]
		dst := output
		if i < last {
			dst = activations[i]
		}
		w := blas64.General{Rows: l.OutDim, Cols: l.InDim, Stride: l.InDim, Data: l.W}
		c := blas64.General{Rows: batchSize, Cols: l.OutDim, Stride: l.OutDim, Data: dst[:batchSize*l.OutDim]}
		blas64.Gemm(blas.NoTrans, blas.Trans, 1, a, w, 0, c)

		switch {
		case i == last:
			biasLogSoftmax(c.Data, l.B, batchSize, l.OutDim)
		case d.UseBatchNorm:
			biasBatchNormReLU(c.Data, l.B, &d.BN[i], batchSize, l.OutDim)
		default:
			biasReLU(c.Data, l.B, batchSize, l.OutDim)
		}
		a = c
	}
}

func biasReLU(z, bias []float64, rows, cols int) {
	for r := 0; r < rows; r++ {
		row := z[r*cols : (r+1)*cols]
		for j := range row {
			row[j] = math.Max(0, row[j]+bias[j])
		}
	}
}

// biasBatchNormReLU folds bias and running statistics into one affine map before ReLU.
func biasBatchNormReLU(z, bias []float64, bn *BatchNormParams, rows, cols int) {
	scale := make([]float64, cols)
	shift := make([]float64, cols)
	for j := 0; j < cols; j++ {
		inv := 1 / math.Sqrt(bn.RunningVar[j]+batchNormEps)
		scale[j] = bn.Gamma[j] * inv
		shift[j] = bn.Beta[j] - scale[j]*(bn.RunningMean[j]-bias[j])
	}
	for r := 0; r < rows; r++ {
		row := z[r*cols : (r+1)*cols]
		for j := range row {
			row[j] = math.Max(0, row[j]*scale[j]+shift[j])
		}
	}
}

func biasLogSoftmax(z, bias []float64, rows, cols int) {
	for r := 0; r < rows; r++ {
		row := z[r*cols : (r+1)*cols]
		maxVal := math.Inf(-1)
		for j := range row {
			row[j] += bias[j]
			maxVal = math.Max(maxVal, row[j])
		}
		sum := 0.0
		for _, v := range row {
			sum += math.Exp(v - maxVal)
		}
		norm := maxVal + math.Log(sum)
		for j := range row {
			row[j] -= norm
		}
	}
}

// SpliceFrames builds the context window for frame t of frames[0:n],
// replicating the edge frames.
func (d *DNN) SpliceFrames(dst []float64, frames func(int) []float64, n, t int) {
	for w := -d.ContextLen; w <= d.ContextLen; w++ {
		src := min(max(t+w, 0), n-1)
		f := frames(src)
		off := (w + d.ContextLen) * len(f)
		copy(dst[off:off+len(f)], f)
	}
}

// forwardBatch runs n spliced input rows through the network and returns one
// log-posterior row per input.
func (d *DNN) forwardBatch(input []float64, n int) [][]float64 {
	acts := make([][]float64, len(d.Layers)-1)
	for i := range acts {
		acts[i] = make([]float64, n*d.Layers[i].OutDim)
	}
	out := make([]float64, n*d.OutputDim)
	d.Forward(input, n, acts, out)
	rows := make([][]float64, n)
	for t := range rows {
		rows[t] = out[t*d.OutputDim : (t+1)*d.OutputDim]
	}
	return rows
}

// SubtractPrior turns log posteriors into scaled log likelihoods in place.
func (d *DNN) SubtractPrior(logPost []float64) {
	for i, lp := range d.LogPrior {
		logPost[i] -= lp
	}
}

type serializedDNNLayer struct {
	W      []float64
	B      []float64
	InDim  int
	OutDim int
}

type serializedBN struct {
	Gamma       []float64
	Beta        []float64
	RunningMean []float64
	RunningVar  []float64
	Dim         int
}

// serializedDNNv3 is the current format. Version 2 is the same without BN.
type serializedDNNv3 struct {
	Version     int
	ContextLen  int
	DropoutRate float64
	Layers      []serializedDNNLayer
	BN          []serializedBN
	LogPrior    []float64
	PhonemeList []string
}

// serializedDNNv1 is the legacy fixed three-layer format.
type serializedDNNv1 struct {
	InputDim    int
	HiddenDim   int
	OutputDim   int
	ContextLen  int
	W1, B1      []float64
	W2, B2      []float64
	W3, B3      []float64
	LogPrior    []float64
	PhonemeList []string
}

// Save writes the network in gob encoding (version 3 with BN, version 2 otherwise).
func (d *DNN) Save(w io.Writer) error {
	sd := serializedDNNv3{Version: 2, ContextLen: d.ContextLen, LogPrior: d.LogPrior}
	for _, p := range d.PhonemeList {
		sd.PhonemeList = append(sd.PhonemeList, string(p))
	}
	for _, l := range d.Layers {
		sd.Layers = append(sd.Layers, serializedDNNLayer(l))
	}
	if d.UseBatchNorm {
		sd.Version = 3
		for _, bn := range d.BN {
			sd.BN = append(sd.BN, serializedBN(bn))
		}
	}
	return gob.NewEncoder(w).Encode(sd)
}

// LoadDNN reads a network in any of the gob formats (v1, v2, v3).
func LoadDNN(r io.Reader) (*DNN, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dnn: %w", err)
	}

	var sd serializedDNNv3
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sd); err == nil && (sd.Version == 2 || sd.Version == 3) && len(sd.Layers) > 0 {
		return dnnFromLayers(sd), nil
	}

	var v1 serializedDNNv1
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v1); err != nil {
		return nil, fmt.Errorf("decode dnn: %w", err)
	}
	if v1.InputDim == 0 || v1.OutputDim == 0 {
		return nil, fmt.Errorf("decode dnn: unrecognised format")
	}
	return dnnFromLayers(serializedDNNv3{
		Version:    1,
		ContextLen: v1.ContextLen,
		Layers: []serializedDNNLayer{
			{W: v1.W1, B: v1.B1, InDim: v1.InputDim, OutDim: v1.HiddenDim},
			{W: v1.W2, B: v1.B2, InDim: v1.HiddenDim, OutDim: v1.HiddenDim},
			{W: v1.W3, B: v1.B3, InDim: v1.HiddenDim, OutDim: v1.OutputDim},
		},
		LogPrior:    v1.LogPrior,
		PhonemeList: v1.PhonemeList,
	}), nil
}

// LoadDNNFile opens path and calls LoadDNN.
func LoadDNNFile(path string) (*DNN, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dnn: %w", err)
	}
	defer f.Close()
	return LoadDNN(f)
}

func dnnFromLayers(sd serializedDNNv3) *DNN {
	d := &DNN{
		ContextLen:   sd.ContextLen,
		UseBatchNorm: sd.Version == 3,
		LogPrior:     sd.LogPrior,
	}
	for _, l := range sd.Layers {
		d.Layers = append(d.Layers, DNNLayer(l))
	}
	d.InputDim = d.Layers[0].InDim
	d.OutputDim = d.Layers[len(d.Layers)-1].OutDim
	if d.UseBatchNorm {
		for _, bn := range sd.BN {
			d.BN = append(d.BN, BatchNormParams(bn))
		}
	}
	if len(d.LogPrior) == 0 {
		d.LogPrior = make([]float64, d.OutputDim)
	}
	for _, p := range sd.PhonemeList {
		d.PhonemeList = append(d.PhonemeList, Phoneme(p))
	}
	return d
}
