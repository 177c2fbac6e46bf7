package feature

import (
	"errors"
	"fmt"
)

var (
	// ErrSampleRateMismatch is returned when audio arrives at a rate other than the configured one.
	ErrSampleRateMismatch = errors.New("feature: sample rate mismatch")
	// ErrInputFinished is returned when audio arrives after InputFinished.
	ErrInputFinished = errors.New("feature: input already finished")
)

// Online is an incremental MFCC pipeline for one utterance.
// Frames become ready as audio arrives; the same audio split into different
// chunks yields identical frames. It is not safe for concurrent use.
type Online struct {
	cfg        Config
	cmn        *CMNState
	spec       *spectrum
	mel        *MelFilterbank
	dct        dctTable
	lift       []float64
	frameLen   int
	frameShift int

	pending  []float64 // pre-emphasised samples not yet consumed by a frame
	prev     float64
	started  bool
	finished bool

	melBuf []float64
	static [][]float64
	d1     [][]float64
	frames [][]float64
}

// NewOnline creates a pipeline; cmn may be nil when CMN is disabled.
func NewOnline(cfg Config, cmn *CMNState) *Online {
	if cfg.UseCMN && cmn == nil {
		cmn = NewCMNState(cfg.CMNWindow)
	}
	frameLen := cfg.FrameLen()
	return &Online{
		cfg:        cfg,
		cmn:        cmn,
		spec:       newSpectrum(cfg.FFTSize, frameLen),
		mel:        NewMelFilterbank(cfg.NumMelFilters, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
		dct:        newDCTTable(cfg.NumCepstra, cfg.NumMelFilters),
		lift:       lifter(cfg.NumCepstra, cfg.CepLifter),
		frameLen:   frameLen,
		frameShift: cfg.FrameShift(),
		melBuf:     make([]float64, cfg.NumMelFilters),
	}
}

// Dim returns the output feature dimension.
func (o *Online) Dim() int { return o.cfg.FeatureDim() }

// AcceptWaveform appends samples recorded at sampleRate.
func (o *Online) AcceptWaveform(sampleRate int, samples []float32) error {
	if sampleRate != o.cfg.SampleRate {
		return fmt.Errorf("%w: got %d Hz, want %d Hz", ErrSampleRateMismatch, sampleRate, o.cfg.SampleRate)
	}
	if o.finished {
		return ErrInputFinished
	}
	for _, s := range samples {
		x := float64(s)
		if o.started {
			o.pending = append(o.pending, x-o.cfg.PreEmphCoeff*o.prev)
		} else {
			o.pending = append(o.pending, x)
			o.started = true
		}
		o.prev = x
	}

	off := 0
	for len(o.pending)-off >= o.frameLen {
		o.computeStatic(o.pending[off : off+o.frameLen])
		off += o.frameShift
	}
	if off > 0 {
		n := copy(o.pending, o.pending[min(off, len(o.pending)):])
		o.pending = o.pending[:n]
	}
	o.advance()
	return nil
}

// InputFinished flushes the frames held back for delta context.
func (o *Online) InputFinished() {
	if o.finished {
		return
	}
	o.finished = true
	o.advance()
}

// NumFramesReady returns how many output frames are available.
func (o *Online) NumFramesReady() int { return len(o.frames) }

// IsLastFrame reports whether t is the final frame of a finished utterance.
func (o *Online) IsLastFrame(t int) bool { return o.finished && t == len(o.frames)-1 }

// Frame returns output frame t. The slice must not be modified.
func (o *Online) Frame(t int) []float64 { return o.frames[t] }

func (o *Online) computeStatic(frame []float64) {
	power := o.spec.compute(frame)
	o.mel.applyInto(power, o.melBuf)
	cep := make([]float64, o.cfg.NumCepstra)
	o.dct.applyInto(o.melBuf, cep)
	for i, w := range o.lift {
		cep[i] *= w
	}
	if o.cmn != nil && o.cfg.UseCMN {
		o.cmn.Apply(cep)
	}
	o.static = append(o.static, cep)
}

// advance emits every frame whose delta context is complete.
func (o *Online) advance() {
	if !o.cfg.UseDelta {
		o.frames = o.static
		return
	}
	w := o.cfg.DeltaWindow
	n := len(o.static)
	getStatic := func(i int) []float64 { return o.static[i] }
	for k := len(o.d1); k < n && (o.finished || k+w < n); k++ {
		d := make([]float64, o.cfg.NumCepstra)
		deltaAt(d, getStatic, n, k, w)
		o.d1 = append(o.d1, d)
	}

	m := len(o.d1)
	if !o.cfg.UseDeltaDelta {
		for t := len(o.frames); t < m; t++ {
			o.frames = append(o.frames, concat(o.static[t], o.d1[t]))
		}
		return
	}
	getD1 := func(i int) []float64 { return o.d1[i] }
	for t := len(o.frames); t < m && (o.finished || t+w < m); t++ {
		d2 := make([]float64, o.cfg.NumCepstra)
		deltaAt(d2, getD1, m, t, w)
		o.frames = append(o.frames, concat(o.static[t], o.d1[t], d2))
	}
}
