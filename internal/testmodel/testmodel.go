// Package testmodel builds a tiny two-word recognizer and matching audio for
// tests. The acoustic model is fitted to synthetic signals: あ is a 500 Hz
// tone, い a 2 kHz tone and silence is low-level noise.
package testmodel

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	onlineasr "github.com/ieee0824/onlineasr-go"
	"github.com/ieee0824/onlineasr-go/acoustic"
	"github.com/ieee0824/onlineasr-go/audio"
	"github.com/ieee0824/onlineasr-go/config"
	"github.com/ieee0824/onlineasr-go/feature"
	"github.com/ieee0824/onlineasr-go/graph"
	"github.com/ieee0824/onlineasr-go/language"
	"github.com/ieee0824/onlineasr-go/lexicon"
)

// SampleRate is the rate of every generated signal.
const SampleRate = 16000

// ARPA is a bigram model over あ and い.
const ARPA = `\data\
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

// Lexicon is the pronunciation dictionary in TSV form.
const Lexicon = "あ\tア\ta\nい\tイ\ti\n<sil>\t\tsil\n"

// Tone returns seconds of a sine at freq Hz.
func Tone(freq, seconds float64) []float32 {
	out := make([]float32, int(seconds*SampleRate))
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*freq*float64(i)/SampleRate))
	}
	return out
}

// Quiet returns seconds of low-level noise.
func Quiet(seconds float64) []float32 {
	r := rand.New(rand.NewPCG(1, 2))
	out := make([]float32, int(seconds*SampleRate))
	for i := range out {
		out[i] = float32(0.001 * r.NormFloat64())
	}
	return out
}

// Concat joins signals.
func Concat(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Utterance is silence, あ (500 Hz), い (2 kHz), silence.
func Utterance() []float32 {
	return Concat(Quiet(0.2), Tone(500, 0.3), Tone(2000, 0.3), Quiet(0.2))
}

// Config is the default configuration without mean normalisation.
func Config() *config.Config {
	cfg := config.Default()
	cfg.Feature.UseCMN = false
	return cfg
}

// fitGMM fits a single diagonal Gaussian to frames, with the variance
// widened by one so unseen frames stay scorable.
func fitGMM(frames [][]float64) *acoustic.GMM {
	dim := len(frames[0])
	mean := make([]float64, dim)
	variance := make([]float64, dim)
	for _, f := range frames {
		for d, v := range f {
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= float64(len(frames))
	}
	for _, f := range frames {
		for d, v := range f {
			variance[d] += (v - mean[d]) * (v - mean[d])
		}
	}
	for d := range variance {
		variance[d] = variance[d]/float64(len(frames)) + 1
	}
	return acoustic.NewGMMWithParams([][]float64{mean}, [][]float64{variance}, []float64{0})
}

// TrainAcoustic builds an acoustic model whose a, i and sil phones are
// Gaussians fitted to a 500 Hz tone, a 2 kHz tone and quiet noise.
func TrainAcoustic(t testing.TB, fc feature.Config) *acoustic.Model {
	t.Helper()
	am := acoustic.NewModel(fc.FeatureDim(), 1)
	for ph, sig := range map[acoustic.Phoneme][]float32{
		acoustic.PhonA:   Tone(500, 0.5),
		acoustic.PhonI:   Tone(2000, 0.5),
		acoustic.PhonSil: Quiet(0.5),
	} {
		feats, err := feature.Extract(audio.Float64s(sig), fc)
		if err != nil {
			t.Fatal(err)
		}
		g := fitGMM(feats)
		for s := 1; s <= acoustic.NumEmittingStates; s++ {
			am.Phonemes[ph].States[s] = g
		}
	}
	return am
}

// Options adjusts [Build].
type Options struct {
	// Mutate may change the configuration before the model is built.
	Mutate func(*config.Config)
	// AlignLexicon replaces the alignment lexicon derived from [Lexicon]
	// with one parsed from this text.
	AlignLexicon string
	// NoAlign builds the model without an alignment lexicon.
	NoAlign bool
	// ModelOptions are passed to [onlineasr.NewModelFromComponents].
	ModelOptions []onlineasr.Option
}

// Build assembles a GMM model in memory.
func Build(t testing.TB, o Options) *onlineasr.Model {
	t.Helper()
	cfg := Config()
	if o.Mutate != nil {
		o.Mutate(cfg)
	}
	am := TrainAcoustic(t, cfg.Feature)

	dict, err := lexicon.Load(strings.NewReader(Lexicon))
	if err != nil {
		t.Fatal(err)
	}
	lm, err := language.LoadARPA(strings.NewReader(ARPA))
	if err != nil {
		t.Fatal(err)
	}
	g, err := graph.New(dict, lm, nil)
	if err != nil {
		t.Fatal(err)
	}

	var align *lexicon.AlignLexicon
	switch {
	case o.NoAlign:
	case o.AlignLexicon != "":
		if align, err = lexicon.LoadAlignLexicon(strings.NewReader(o.AlignLexicon), g.Symbols); err != nil {
			t.Fatal(err)
		}
	default:
		align = lexicon.AlignLexiconFromDictionary(dict, g.Symbols)
	}

	m, err := onlineasr.NewModelFromComponents(cfg, acoustic.NewGMMBackend(am), g, align, o.ModelOptions...)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// Files writes a complete model directory and returns its config.
func Files(t testing.TB) onlineasr.ModelConfig {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	cfg := Config()
	am := TrainAcoustic(t, cfg.Feature)
	amPath := filepath.Join(dir, "final.mdl")
	f, err := os.Create(amPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := am.Save(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	return onlineasr.ModelConfig{
		AcousticModelPath: amPath,
		LanguageModelPath: write("lm.arpa", ARPA),
		LexiconPath:       write("lexicon.tsv", Lexicon),
		WordSymbolsPath:   write("words.txt", "<eps> 0\nあ 1\nい 2\n"),
		ConfigPath:        write("online.yaml", "feature:\n  cmn: false\n"),
		AlignLexiconPath:  write("align_lexicon.txt", "あ あ a_S\nい い i_S\n"),
	}
}
