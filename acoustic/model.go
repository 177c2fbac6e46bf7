package acoustic

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// Model holds the phone HMMs: one monophone per phoneme and optional triphones.
// It is read-only once loaded and may be shared between decoders.
type Model struct {
	Phonemes   map[Phoneme]*HMM
	Triphones  map[Triphone]*HMM
	FeatureDim int
	NumMix     int
}

// NewModel creates a monophone model over the full phone inventory.
func NewModel(featureDim, numMix int) *Model {
	am := &Model{
		Phonemes:   make(map[Phoneme]*HMM),
		FeatureDim: featureDim,
		NumMix:     numMix,
	}
	for _, p := range AllPhonemes() {
		am.Phonemes[p] = NewHMM(p, featureDim, numMix)
	}
	return am
}

// HasTriphones reports whether context-dependent models are present.
func (am *Model) HasTriphones() bool { return len(am.Triphones) > 0 }

// ResolveHMM returns the triphone HMM for the context when one exists and
// falls back to the monophone otherwise. It returns nil for an unknown phone.
func (am *Model) ResolveHMM(left, center, right Phoneme) *HMM {
	if am.HasTriphones() {
		if h, ok := am.Triphones[MakeTriphone(string(left), string(center), string(right))]; ok {
			return h
		}
	}
	return am.Phonemes[center]
}

type serializedModel struct {
	FeatureDim int
	NumMix     int
	HMMs       map[string]serializedHMM
	Triphones  map[string]serializedHMM
}

type serializedHMM struct {
	Phoneme  string
	TransLog [][]float64
	States   []serializedGMM // emitting states only
}

type serializedGMM struct {
	Components []serializedGaussian
	Dim        int
}

type serializedGaussian struct {
	Mean      []float64
	Variance  []float64
	LogWeight float64
}

func encodeHMM(h *HMM) serializedHMM {
	sh := serializedHMM{Phoneme: string(h.Phoneme), TransLog: h.TransLog}
	for i := 1; i <= NumEmittingStates; i++ {
		g := h.States[i]
		sg := serializedGMM{Dim: g.Dim}
		for _, c := range g.Components {
			sg.Components = append(sg.Components, serializedGaussian{
				Mean: c.Mean, Variance: c.Variance, LogWeight: c.LogWeight,
			})
		}
		sh.States = append(sh.States, sg)
	}
	return sh
}

func decodeHMM(name string, sh serializedHMM) (*HMM, error) {
	if len(sh.States) != NumEmittingStates {
		return nil, fmt.Errorf("hmm %q: %d emitting states, want %d", name, len(sh.States), NumEmittingStates)
	}
	if len(sh.TransLog) != NumStatesPerPhoneme {
		return nil, fmt.Errorf("hmm %q: transition matrix has %d rows", name, len(sh.TransLog))
	}
	h := &HMM{
		Phoneme:  Phoneme(sh.Phoneme),
		States:   make([]*GMM, NumStatesPerPhoneme),
		TransLog: sh.TransLog,
	}
	for i, sg := range sh.States {
		g := &GMM{Dim: sg.Dim}
		for _, sc := range sg.Components {
			g.Components = append(g.Components, Gaussian{
				Mean: sc.Mean, Variance: sc.Variance, LogWeight: sc.LogWeight,
			})
		}
		g.Pack()
		h.States[i+1] = g
	}
	return h, nil
}

// Save writes the model in gob encoding.
func (am *Model) Save(w io.Writer) error {
	sm := serializedModel{
		FeatureDim: am.FeatureDim,
		NumMix:     am.NumMix,
		HMMs:       make(map[string]serializedHMM, len(am.Phonemes)),
	}
	for p, h := range am.Phonemes {
		sm.HMMs[string(p)] = encodeHMM(h)
	}
	if am.HasTriphones() {
		sm.Triphones = make(map[string]serializedHMM, len(am.Triphones))
		for t, h := range am.Triphones {
			sm.Triphones[string(t)] = encodeHMM(h)
		}
	}
	return gob.NewEncoder(w).Encode(sm)
}

// Load reads a gob-encoded model.
func Load(r io.Reader) (*Model, error) {
	var sm serializedModel
	if err := gob.NewDecoder(r).Decode(&sm); err != nil {
		return nil, fmt.Errorf("decode acoustic model: %w", err)
	}
	if len(sm.HMMs) == 0 {
		return nil, fmt.Errorf("acoustic model has no phone HMMs")
	}

	am := &Model{
		Phonemes:   make(map[Phoneme]*HMM, len(sm.HMMs)),
		FeatureDim: sm.FeatureDim,
		NumMix:     sm.NumMix,
	}
	for name, sh := range sm.HMMs {
		h, err := decodeHMM(name, sh)
		if err != nil {
			return nil, err
		}
		am.Phonemes[Phoneme(name)] = h
	}
	if len(sm.Triphones) > 0 {
		am.Triphones = make(map[Triphone]*HMM, len(sm.Triphones))
		for name, sh := range sm.Triphones {
			// The search falls back to the center monophone for unseen
			// contexts, so every triphone needs one.
			if c := Triphone(name).CenterPhoneme(); am.Phonemes[c] == nil {
				return nil, fmt.Errorf("triphone %q: center phone %q has no monophone model", name, c)
			}
			h, err := decodeHMM(name, sh)
			if err != nil {
				return nil, err
			}
			am.Triphones[Triphone(name)] = h
		}
	}
	return am, nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open acoustic model: %w", err)
	}
	defer f.Close()
	return Load(f)
}
