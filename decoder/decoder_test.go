package decoder

import (
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/ieee0824/onlineasr-go/acoustic"
	"github.com/ieee0824/onlineasr-go/graph"
	"github.com/ieee0824/onlineasr-go/language"
	"github.com/ieee0824/onlineasr-go/lexicon"
)

const bigramARPA = `\data\
ngram 1=4
ngram 2=4

\1-grams:
-1.0	</s>
-1.0	<s>	0.0
-0.5	あ	0.0
-0.5	い	0.0

\2-grams:
-0.3	<s>	あ
-0.3	<s>	い
-0.3	あ	い
-0.3	い	あ

\end\
`

const trigramARPA = `\data\
ngram 1=4
ngram 2=4
ngram 3=2

\1-grams:
-1.0	</s>
-1.0	<s>	0.0
-0.5	あ	0.0
-0.5	い	0.0

\2-grams:
-0.3	<s>	あ	0.0
-0.3	<s>	い	0.0
-0.3	あ	い	0.0
-0.3	い	あ	0.0

\3-grams:
-0.1	<s>	あ	い
-0.8	<s>	い	あ

\end\
`

// buildTinyNetwork creates a minimal network for testing:
// vocabulary "あ" [a] and "い" [i] plus silence [sil], each phone a 1-D
// Gaussian with a distinct mean (a=0, i=5, sil=-5).
func buildTinyNetwork(t *testing.T, arpa string) (*Network, *acoustic.Model) {
	t.Helper()
	am := acoustic.NewModel(1, 1)
	setHMMGMM(am.Phonemes[acoustic.PhonA], 0.0)
	setHMMGMM(am.Phonemes[acoustic.PhonI], 5.0)
	setHMMGMM(am.Phonemes[acoustic.PhonSil], -5.0)

	lm, err := language.LoadARPA(strings.NewReader(arpa))
	if err != nil {
		t.Fatal(err)
	}
	dict := lexicon.NewDictionary()
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})
	dict.Add("い", "イ", []acoustic.Phoneme{acoustic.PhonI})
	dict.Add(graph.SilenceWord, "", []acoustic.Phoneme{acoustic.PhonSil})

	g, err := graph.New(dict, lm, nil)
	if err != nil {
		t.Fatal(err)
	}
	net, err := NewNetwork(g, am)
	if err != nil {
		t.Fatal(err)
	}
	return net, am
}

func setHMMGMM(h *acoustic.HMM, mean float64) {
	for i := 1; i <= acoustic.NumEmittingStates; i++ {
		h.States[i] = acoustic.NewGMMWithParams(
			[][]float64{{mean}},
			[][]float64{{0.5}},
			[]float64{0.0}, // log(1.0)
		)
	}
}

// growingSource is a feature source that frames are pushed into.
type growingSource struct {
	frames   [][]float64
	finished bool
}

func (s *growingSource) Dim() int               { return 1 }
func (s *growingSource) NumFramesReady() int    { return len(s.frames) }
func (s *growingSource) IsLastFrame(t int) bool { return s.finished && t == len(s.frames)-1 }
func (s *growingSource) Frame(t int) []float64  { return s.frames[t] }

// frames builds a feature sequence from (value, count) runs.
func frames(runs ...float64) [][]float64 {
	var out [][]float64
	for i := 0; i+1 < len(runs); i += 2 {
		for range int(runs[i+1]) {
			out = append(out, []float64{runs[i]})
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Beam:                 300.0,
		MaxActive:            500,
		LatticeBeam:          100.0,
		AcousticScale:        1.0,
		LMWeight:             1.0,
		WordInsertionPenalty: -2.0,
	}
}

// decodeAll runs a whole utterance through a fresh search.
func decodeAll(t *testing.T, net *Network, am *acoustic.Model, feats [][]float64, cfg Config) *Online {
	t.Helper()
	src := &growingSource{frames: feats, finished: true}
	o := NewOnline(net, acoustic.NewGMMBackend(am).NewDecodable(src, cfg.AcousticScale), cfg)
	o.FinalizeDecoding()
	return o
}

func TestDecode_SingleWord(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	o := decodeAll(t, net, am, frames(0.1, 6), testConfig())

	p, ok := o.BestPath(true)
	if !ok {
		t.Fatal("no best path")
	}
	if !slices.Equal(p.Words, []string{"あ"}) {
		t.Errorf("words = %v, want [あ]", p.Words)
	}
	if id, _ := net.Symbols().ID("あ"); !slices.Equal(p.WordIDs, []int{id}) {
		t.Errorf("word ids = %v, want [%d]", p.WordIDs, id)
	}
	if p.NumFrames != 6 || o.NumFramesDecoded() != 6 {
		t.Errorf("frames = %d/%d, want 6", p.NumFrames, o.NumFramesDecoded())
	}
}

func TestDecode_TwoWords(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	o := decodeAll(t, net, am, frames(0.1, 6, 4.9, 6), testConfig())

	p, _ := o.BestPath(true)
	if p.Text() != "あ い" {
		t.Fatalf("text = %q, want %q", p.Text(), "あ い")
	}
	if len(p.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(p.Segments))
	}
	if p.Segments[0].Start != 0 || p.Segments[0].End != 6 || p.Segments[1].Start != 6 || p.Segments[1].End != 12 {
		t.Errorf("segment bounds = %+v", p.Segments)
	}
	for _, seg := range p.Segments {
		if len(seg.Phones) != 1 || seg.Phones[0].Start != seg.Start || seg.Phones[0].End != seg.End {
			t.Errorf("phones of %q = %+v", seg.Word, seg.Phones)
		}
	}
}

func TestDecode_SilenceExcluded(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	o := decodeAll(t, net, am, frames(-5, 4, 0.1, 6, -5, 4), testConfig())

	p, _ := o.BestPath(true)
	if !slices.Equal(p.Words, []string{"あ"}) {
		t.Fatalf("words = %v, want [あ]", p.Words)
	}
	if len(p.Segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(p.Segments))
	}
	if !p.Segments[0].Silence() || p.Segments[1].Silence() || !p.Segments[2].Silence() {
		t.Errorf("silence flags wrong: %+v", p.Segments)
	}
	if got := p.Segments[1].PhoneSymbols(); !slices.Equal(got, []acoustic.Phoneme{acoustic.PhonA}) {
		t.Errorf("phones = %v", got)
	}
}

func TestDecode_EmptyInput(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	o := decodeAll(t, net, am, nil, testConfig())
	if _, ok := o.BestPath(true); ok {
		t.Error("expected no path without frames")
	}
	if lat := o.Lattice(); !lat.Empty() {
		t.Errorf("expected empty lattice, got %d paths", lat.NumPaths())
	}
}

func TestDecode_WeightFinite(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	o := decodeAll(t, net, am, frames(0.0, 6), testConfig())
	p, _ := o.BestPath(true)
	for _, v := range []float64{p.Weight.Graph, p.Weight.Acoustic, p.Weight.Cost()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("weight %+v not finite", p.Weight)
		}
	}
	if p.Weight.Graph <= 0 {
		t.Errorf("graph cost %f should include positive transition and LM costs", p.Weight.Graph)
	}
}

func TestDecode_IncrementalMatchesBatch(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	cfg := testConfig()
	feats := frames(-5, 3, 0.1, 6, 4.9, 6, -5, 3)

	batch := decodeAll(t, net, am, feats, cfg)
	want, _ := batch.BestPath(true)

	src := &growingSource{}
	o := NewOnline(net, acoustic.NewGMMBackend(am).NewDecodable(src, cfg.AcousticScale), cfg)
	for _, f := range feats {
		src.frames = append(src.frames, f)
		o.AdvanceDecoding()
		if o.NumFramesDecoded() != len(src.frames) {
			t.Fatalf("decoded %d, ready %d", o.NumFramesDecoded(), len(src.frames))
		}
	}
	src.finished = true
	o.FinalizeDecoding()
	got, _ := o.BestPath(true)

	if got.Text() != want.Text() {
		t.Errorf("incremental %q, batch %q", got.Text(), want.Text())
	}
	if math.Abs(got.Weight.Cost()-want.Weight.Cost()) > 1e-9 {
		t.Errorf("incremental cost %f, batch %f", got.Weight.Cost(), want.Weight.Cost())
	}
}

func TestDecode_PartialIncludesCurrentWord(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	cfg := testConfig()
	src := &growingSource{frames: frames(0.1, 6, 4.9, 2)}
	o := NewOnline(net, acoustic.NewGMMBackend(am).NewDecodable(src, cfg.AcousticScale), cfg)
	o.AdvanceDecoding()

	p, ok := o.BestPath(false)
	if !ok {
		t.Fatal("no partial path")
	}
	if p.Text() != "あ い" {
		t.Errorf("partial = %q, want %q", p.Text(), "あ い")
	}
	if p.NumFrames != 8 {
		t.Errorf("partial frames = %d, want 8", p.NumFrames)
	}
}

func TestDecode_FinalizedIgnoresNewFrames(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	cfg := testConfig()
	src := &growingSource{frames: frames(0.1, 6), finished: true}
	o := NewOnline(net, acoustic.NewGMMBackend(am).NewDecodable(src, cfg.AcousticScale), cfg)
	o.FinalizeDecoding()
	src.frames = append(src.frames, frames(4.9, 6)...)
	o.AdvanceDecoding()
	if !o.Finalized() || o.NumFramesDecoded() != 6 {
		t.Errorf("finalized=%v decoded=%d", o.Finalized(), o.NumFramesDecoded())
	}
}

func TestDecode_MaxActiveLimiting(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	feats := frames(0.1, 6, 4.9, 6)

	limited := testConfig()
	limited.MaxActive = 2
	r1 := decodeAll(t, net, am, feats, limited)
	if r1.NumActive() > 2 {
		t.Errorf("active = %d, want <= 2", r1.NumActive())
	}
	p1, ok := r1.BestPath(true)
	if !ok || len(p1.Words) == 0 {
		t.Fatal("limited search produced no words")
	}
	if math.IsNaN(p1.Weight.Cost()) || math.IsInf(p1.Weight.Cost(), 0) {
		t.Errorf("limited cost not finite: %f", p1.Weight.Cost())
	}
}

func TestDecode_MinActiveFloor(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	cfg := testConfig()
	cfg.Beam = 1e-6
	cfg.MinActive = 3
	o := decodeAll(t, net, am, frames(0.1, 6), cfg)
	if o.NumActive() < 3 {
		t.Errorf("active = %d, want >= 3", o.NumActive())
	}
}

func TestDecode_Trigram(t *testing.T) {
	net, am := buildTinyNetwork(t, trigramARPA)
	cfg := testConfig()
	cfg.LMWeight = 5.0
	o := decodeAll(t, net, am, frames(0.1, 6, 4.9, 6), cfg)

	p, _ := o.BestPath(true)
	if p.Text() != "あ い" {
		t.Errorf("text = %q, want %q", p.Text(), "あ い")
	}
}

func TestLattice(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	o := decodeAll(t, net, am, frames(0.1, 6, 4.9, 6), testConfig())

	lat := o.Lattice()
	if lat.Empty() {
		t.Fatal("lattice is empty")
	}
	best, _ := lat.ShortestPath()
	want, _ := o.BestPath(true)
	if best.Text() != want.Text() || math.Abs(best.Weight.Cost()-want.Weight.Cost()) > 1e-9 {
		t.Errorf("shortest path %q (%f), best path %q (%f)",
			best.Text(), best.Weight.Cost(), want.Text(), want.Weight.Cost())
	}
	seen := map[string]bool{}
	for i, p := range lat.Paths {
		if seen[p.Text()] {
			t.Errorf("duplicate word sequence %q", p.Text())
		}
		seen[p.Text()] = true
		if i > 0 && p.Weight.Cost() < lat.Paths[i-1].Weight.Cost() {
			t.Error("lattice paths not sorted by cost")
		}
		if p.Weight.Cost() > best.Weight.Cost()+testConfig().LatticeBeam {
			t.Errorf("path %q outside lattice beam", p.Text())
		}
	}
}

func TestLatticeBeamZeroKeepsBest(t *testing.T) {
	net, am := buildTinyNetwork(t, bigramARPA)
	cfg := testConfig()
	cfg.LatticeBeam = 0
	o := decodeAll(t, net, am, frames(0.1, 6), cfg)
	if n := o.Lattice().NumPaths(); n != 1 {
		t.Errorf("paths = %d, want 1", n)
	}
	var nilLattice *Lattice
	if !nilLattice.Empty() || nilLattice.NumPaths() != 0 {
		t.Error("nil lattice should be empty")
	}
}

func TestNewNetwork_MissingPhone(t *testing.T) {
	am := acoustic.NewModel(1, 1)
	delete(am.Phonemes, acoustic.PhonI)
	lm, _ := language.LoadARPA(strings.NewReader(bigramARPA))
	dict := lexicon.NewDictionary()
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})
	dict.Add("い", "イ", []acoustic.Phoneme{acoustic.PhonI})
	g, err := graph.New(dict, lm, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewNetwork(g, am); err == nil {
		t.Fatal("expected error for word with unmodelled phone")
	}
}

func TestNewNetwork_SilenceOptional(t *testing.T) {
	am := acoustic.NewModel(1, 1)
	delete(am.Phonemes, acoustic.PhonSil)
	lm, _ := language.LoadARPA(strings.NewReader(bigramARPA))
	dict := lexicon.NewDictionary()
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})
	dict.Add("い", "イ", []acoustic.Phoneme{acoustic.PhonI, acoustic.PhonA})
	g, err := graph.New(dict, lm, nil)
	if err != nil {
		t.Fatal(err)
	}
	net, err := NewNetwork(g, am)
	if err != nil {
		t.Fatal(err)
	}
	if net.NumPronunciations() != 2 {
		t.Errorf("pronunciations = %d, want 2", net.NumPronunciations())
	}
}

func TestNewNetwork_Triphones(t *testing.T) {
	am := acoustic.NewModel(1, 1)
	tri := acoustic.NewHMM(acoustic.PhonA, 1, 1)
	am.Triphones = map[acoustic.Triphone]*acoustic.HMM{
		acoustic.MakeTriphone("i", "a", acoustic.WordBoundary): tri,
	}
	lm, _ := language.LoadARPA(strings.NewReader(bigramARPA))
	dict := lexicon.NewDictionary()
	dict.Add("い", "イア", []acoustic.Phoneme{acoustic.PhonI, acoustic.PhonA})
	dict.Add("あ", "ア", []acoustic.Phoneme{acoustic.PhonA})
	g, _ := graph.New(dict, lm, nil)
	net, err := NewNetwork(g, am)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range net.words {
		switch w.text {
		case "い":
			if w.hmms[1] != tri || w.hmms[0] != am.Phonemes[acoustic.PhonI] {
				t.Error("い should use the triphone for its final phone")
			}
		case "あ":
			if w.hmms[0] != am.Phonemes[acoustic.PhonA] {
				t.Error("あ should fall back to the monophone")
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := Config{Beam: -1, MaxActive: 0, MinActive: 5, LatticeBeam: -1, AcousticScale: 0, LMWeight: -1}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"beam", "max_active", "min_active", "lattice_beam", "acoustic_scale", "lm_weight"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error does not mention %s: %v", field, err)
		}
	}
}
