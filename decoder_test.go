package onlineasr_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	onlineasr "github.com/ieee0824/onlineasr-go"
	"github.com/ieee0824/onlineasr-go/acoustic"
	"github.com/ieee0824/onlineasr-go/config"
	"github.com/ieee0824/onlineasr-go/decoder"
	"github.com/ieee0824/onlineasr-go/feature"
	"github.com/ieee0824/onlineasr-go/internal/testmodel"
)

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func TestDecoder_Initial(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	if d.State() != onlineasr.StateIdle {
		t.Errorf("state = %v, want idle", d.State())
	}
	if s, l := d.DecodedString(); s != "" || l != 0 {
		t.Errorf("DecodedString = %q, %f", s, l)
	}
	if _, ok := d.Result(); ok {
		t.Error("fresh decoder has a result")
	}
	if _, err := d.WordAlignment(); !errors.Is(err, onlineasr.ErrNoResult) {
		t.Errorf("WordAlignment err = %v, want ErrNoResult", err)
	}
	if d.EndpointDetected() {
		t.Error("endpoint on idle decoder")
	}
}

func TestDecoder_Finalize(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	samples := testmodel.Utterance()
	if err := d.Decode(testmodel.SampleRate, samples, true); err != nil {
		t.Fatal(err)
	}
	if d.State() != onlineasr.StateFinalized {
		t.Errorf("state = %v, want finalized", d.State())
	}
	res, ok := d.Result()
	if !ok {
		t.Fatal("no result")
	}
	if res.Text != "あ い" {
		t.Errorf("text = %q, want %q", res.Text, "あ い")
	}
	if !finite(res.Likelihood) {
		t.Errorf("likelihood %f not finite", res.Likelihood)
	}
	if want := -res.Weight.Cost() / float64(res.NumFrames); res.Likelihood != want {
		t.Errorf("likelihood = %f, want %f", res.Likelihood, want)
	}
	if s, l := d.DecodedString(); s != res.Text || l != res.Likelihood || d.Likelihood() != l {
		t.Errorf("DecodedString = %q, %f", s, l)
	}
	st := d.Stats()
	if st.LastUtteranceSamples != int64(len(samples)) || st.Utterances != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDecoder_ChunkedMatchesWhole(t *testing.T) {
	m := testmodel.Build(t, testmodel.Options{})
	samples := testmodel.Utterance()

	whole := onlineasr.NewDecoder(m)
	if err := whole.Decode(testmodel.SampleRate, samples, true); err != nil {
		t.Fatal(err)
	}
	want, _ := whole.Result()

	for _, size := range []int{160, 777, 4000} {
		d := onlineasr.NewDecoder(m)
		for off := 0; off < len(samples); off += size {
			end := min(off+size, len(samples))
			if err := d.Decode(testmodel.SampleRate, samples[off:end], end == len(samples)); err != nil {
				t.Fatalf("chunk %d: %v", size, err)
			}
			if end < len(samples) && d.State() != onlineasr.StateDecoding {
				t.Fatalf("chunk %d: state = %v mid-utterance", size, d.State())
			}
		}
		got, _ := d.Result()
		if got.Text != want.Text || math.Abs(got.Likelihood-want.Likelihood) > 1e-9 {
			t.Errorf("chunk %d: got %q (%f), want %q (%f)", size, got.Text, got.Likelihood, want.Text, want.Likelihood)
		}
	}
}

func TestDecoder_PartialNeverLeaksPreviousResult(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
		t.Fatal(err)
	}

	chunk := testmodel.Quiet(0.3)
	if err := d.Decode(testmodel.SampleRate, chunk, false); err != nil {
		t.Fatal(err)
	}
	if d.State() != onlineasr.StateDecoding {
		t.Errorf("state = %v, want decoding", d.State())
	}
	if _, ok := d.Result(); ok {
		t.Error("non-final decode kept the previous result")
	}
	if s, _ := d.DecodedString(); s != "" {
		t.Errorf("partial over silence = %q, want empty", s)
	}
	st := d.Stats()
	if st.SamplesDecoded != int64(len(chunk)) {
		t.Errorf("SamplesDecoded = %d, want %d", st.SamplesDecoded, len(chunk))
	}
	if st.LastUtteranceSamples != int64(len(testmodel.Utterance())) {
		t.Errorf("LastUtteranceSamples = %d", st.LastUtteranceSamples)
	}
	if st.FramesDecoded == 0 {
		t.Error("no frames decoded in partial session")
	}
}

func TestDecoder_PartialResult(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	if err := d.Decode(testmodel.SampleRate, testmodel.Concat(testmodel.Quiet(0.2), testmodel.Tone(500, 0.3)), false); err != nil {
		t.Fatal(err)
	}
	s, l := d.DecodedString()
	if s != "あ" {
		t.Errorf("partial = %q, want あ", s)
	}
	if !finite(l) {
		t.Errorf("partial likelihood %f", l)
	}
	if _, ok := d.Result(); ok {
		t.Error("partial decode stored a result")
	}
}

func TestDecoder_EmptyAudio(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	if err := d.Decode(testmodel.SampleRate, nil, false); err != nil {
		t.Fatal(err)
	}
	err := d.Decode(testmodel.SampleRate, nil, true)
	if !errors.Is(err, onlineasr.ErrEmptyLattice) {
		t.Fatalf("err = %v, want ErrEmptyLattice", err)
	}
	if d.State() != onlineasr.StateIdle {
		t.Errorf("state = %v, want idle", d.State())
	}
	if s, l := d.DecodedString(); s != "" || l != 0 {
		t.Errorf("DecodedString = %q, %f", s, l)
	}
	if _, err := d.WordAlignment(); !errors.Is(err, onlineasr.ErrNoResult) {
		t.Errorf("WordAlignment err = %v, want ErrNoResult", err)
	}
}

func TestDecoder_EmptyLatticeDropsPreviousResult(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
		t.Fatal(err)
	}
	if err := d.Decode(testmodel.SampleRate, testmodel.Quiet(0.01), true); !errors.Is(err, onlineasr.ErrEmptyLattice) {
		t.Fatalf("err = %v, want ErrEmptyLattice", err)
	}
	if _, ok := d.Result(); ok {
		t.Error("result of the previous utterance retained")
	}
	if _, err := d.WordAlignment(); !errors.Is(err, onlineasr.ErrNoResult) {
		t.Errorf("WordAlignment err = %v, want ErrNoResult", err)
	}
}

func TestDecoder_SampleRateMismatch(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	err := d.Decode(8000, testmodel.Tone(500, 0.1), false)
	if !errors.Is(err, feature.ErrSampleRateMismatch) {
		t.Fatalf("err = %v, want ErrSampleRateMismatch", err)
	}
	if d.State() != onlineasr.StateIdle {
		t.Errorf("state = %v, want idle after failed chunk", d.State())
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	if err := d.Decode(testmodel.SampleRate, testmodel.Tone(500, 0.3), false); err != nil {
		t.Fatal(err)
	}
	d.Reset()
	if d.State() != onlineasr.StateIdle || d.Stats().SamplesDecoded != 0 {
		t.Errorf("after Reset: state %v, stats %+v", d.State(), d.Stats())
	}
}

func TestDecoder_ParallelDeterminism(t *testing.T) {
	m := testmodel.Build(t, testmodel.Options{})
	samples := testmodel.Utterance()

	const n = 4
	results := make([]*onlineasr.Result, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			d := onlineasr.NewDecoder(m)
			for off := 0; off < len(samples); off += 1600 {
				end := min(off+1600, len(samples))
				if err := d.Decode(testmodel.SampleRate, samples[off:end], end == len(samples)); err != nil {
					return err
				}
			}
			results[i], _ = d.Result()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i := 1; i < n; i++ {
		if results[i].Text != results[0].Text || results[i].Likelihood != results[0].Likelihood {
			t.Errorf("decoder %d: %q (%f), decoder 0: %q (%f)",
				i, results[i].Text, results[i].Likelihood, results[0].Text, results[0].Likelihood)
		}
	}
}

func TestDecoder_WordAlignment(t *testing.T) {
	m := testmodel.Build(t, testmodel.Options{})
	d := onlineasr.NewDecoder(m)
	if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
		t.Fatal(err)
	}
	words, err := d.WordAlignment()
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[0].Word != "あ" || words[1].Word != "い" {
		t.Fatalf("alignment = %+v", words)
	}
	for i, w := range words {
		if w.NumFrames < acoustic.NumEmittingStates {
			t.Errorf("word %d spans %d frames", i, w.NumFrames)
		}
		if math.Abs(w.Duration-float64(w.NumFrames)*m.FrameShift()) > 1e-12 {
			t.Errorf("word %d duration %f inconsistent with %d frames", i, w.Duration, w.NumFrames)
		}
	}
	if words[1].StartFrame < words[0].StartFrame+words[0].NumFrames {
		t.Error("words overlap")
	}
	if math.Abs(words[0].StartTime-0.2) > 0.06 || math.Abs(words[1].StartTime-0.5) > 0.06 {
		t.Errorf("start times %f, %f; want about 0.2, 0.5", words[0].StartTime, words[1].StartTime)
	}
}

func TestDecoder_WordAlignmentMismatch(t *testing.T) {
	m := testmodel.Build(t, testmodel.Options{AlignLexicon: "あ あ i\nい い i\n"})
	d := onlineasr.NewDecoder(m)
	if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
		t.Fatal(err)
	}
	if _, err := d.WordAlignment(); !errors.Is(err, onlineasr.ErrAlignmentFailed) {
		t.Errorf("err = %v, want ErrAlignmentFailed", err)
	}
}

func TestDecoder_WordAlignmentSilenceOnly(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{}))
	if err := d.Decode(testmodel.SampleRate, testmodel.Quiet(0.5), true); err != nil {
		t.Fatal(err)
	}
	if res, _ := d.Result(); res.Text != "" {
		t.Fatalf("text = %q, want empty", res.Text)
	}
	if _, err := d.WordAlignment(); !errors.Is(err, onlineasr.ErrAlignmentFailed) {
		t.Errorf("err = %v, want ErrAlignmentFailed", err)
	}
}

func TestDecoder_NoAlignLexicon(t *testing.T) {
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{NoAlign: true}))
	if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
		t.Fatal(err)
	}
	if _, err := d.WordAlignment(); !errors.Is(err, onlineasr.ErrNoAlignLexicon) {
		t.Errorf("err = %v, want ErrNoAlignLexicon", err)
	}
}

func TestDecoder_EndpointDetected(t *testing.T) {
	m := testmodel.Build(t, testmodel.Options{Mutate: func(c *config.Config) {
		c.Endpoint = decoder.EndpointConfig{Rules: []decoder.EndpointRule{
			{MustContainNonsilence: true, MinTrailingSilence: 0.5, MaxRelativeCost: math.Inf(1)},
		}}
	}})
	d := onlineasr.NewDecoder(m)
	if err := d.Decode(testmodel.SampleRate, testmodel.Concat(testmodel.Quiet(0.2), testmodel.Tone(500, 0.3)), false); err != nil {
		t.Fatal(err)
	}
	if d.EndpointDetected() {
		t.Fatal("endpoint while speaking")
	}
	if err := d.Decode(testmodel.SampleRate, testmodel.Quiet(0.8), false); err != nil {
		t.Fatal(err)
	}
	if !d.EndpointDetected() {
		t.Error("no endpoint after trailing silence")
	}
}

func TestDecoder_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{ModelOptions: []onlineasr.Option{onlineasr.WithMeterProvider(mp)}}))
	if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
		t.Fatal(err)
	}
	_ = d.Decode(testmodel.SampleRate, nil, true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	counts := map[string]int64{}
	var active int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch met.Name {
			case "onlineasr.utterances":
				for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
					status, _ := dp.Attributes.Value("status")
					counts[status.AsString()] += dp.Value
				}
			case "onlineasr.active_sessions":
				active = met.Data.(metricdata.Sum[int64]).DataPoints[0].Value
			}
		}
	}
	if counts["ok"] != 1 || counts["empty_lattice"] != 1 {
		t.Errorf("utterance counts = %v", counts)
	}
	if active != 0 {
		t.Errorf("active sessions = %d, want 0", active)
	}
}

func TestDecoder_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := onlineasr.NewDecoder(testmodel.Build(t, testmodel.Options{ModelOptions: []onlineasr.Option{onlineasr.WithLogger(logger)}}))
	if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
		t.Fatal(err)
	}
	_ = d.Decode(testmodel.SampleRate, nil, true)
	for _, want := range []string{"model loaded", "decode session started", "utterance finalized", "empty lattice", "decode session released"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log lacks %q", want)
		}
	}
}

func TestNewModel_Files(t *testing.T) {
	mc := testmodel.Files(t)
	mc.MaxActive = 700
	m, err := onlineasr.NewModel(mc)
	if err != nil {
		t.Fatal(err)
	}
	if m.Config().Decoder.MaxActive != 700 {
		t.Errorf("MaxActive override not applied: %d", m.Config().Decoder.MaxActive)
	}
	if m.Backend() != "gmm" || !m.HasAlignLexicon() || m.SampleRate() != testmodel.SampleRate {
		t.Errorf("model metadata: backend %s align %v rate %d", m.Backend(), m.HasAlignLexicon(), m.SampleRate())
	}
	if math.Abs(m.FrameShift()-0.01) > 1e-12 {
		t.Errorf("FrameShift = %f", m.FrameShift())
	}

	d := onlineasr.NewDecoder(m)
	if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
		t.Fatal(err)
	}
	if s, _ := d.DecodedString(); s != "あ い" {
		t.Errorf("text = %q", s)
	}
	if words, err := d.WordAlignment(); err != nil || len(words) != 2 {
		t.Errorf("alignment = %+v, %v", words, err)
	}
}

func TestNewModel_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*onlineasr.ModelConfig)
	}{
		{"missing acoustic model", func(c *onlineasr.ModelConfig) { c.AcousticModelPath = "/nonexistent/final.mdl" }},
		{"missing lexicon", func(c *onlineasr.ModelConfig) { c.LexiconPath = "/nonexistent/lexicon.tsv" }},
		{"missing symbols", func(c *onlineasr.ModelConfig) { c.WordSymbolsPath = "/nonexistent/words.txt" }},
		{"missing config", func(c *onlineasr.ModelConfig) { c.ConfigPath = "/nonexistent/online.yaml" }},
		{"missing align lexicon", func(c *onlineasr.ModelConfig) { c.AlignLexiconPath = "/nonexistent/align.txt" }},
		{"unknown backend", func(c *onlineasr.ModelConfig) { c.Backend = "hmm" }},
		{"nnet without net", func(c *onlineasr.ModelConfig) { c.Backend = onlineasr.BackendNeural }},
		{"bad override", func(c *onlineasr.ModelConfig) { c.Beam = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := testmodel.Files(t)
			tt.mutate(&mc)
			if _, err := onlineasr.NewModel(mc); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewModel_FeatureDimMismatch(t *testing.T) {
	mc := testmodel.Files(t)
	cfgPath := filepath.Join(t.TempDir(), "online.yaml")
	if err := os.WriteFile(cfgPath, []byte("feature:\n  cmn: false\n  delta_delta: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mc.ConfigPath = cfgPath
	if _, err := onlineasr.NewModel(mc); err == nil {
		t.Error("expected feature dimension error")
	}
}

func TestNewModel_Neural(t *testing.T) {
	mc := testmodel.Files(t)
	dim := testmodel.Config().Feature.FeatureDim()
	net := acoustic.NewDNN(dim, 16, 1, 1, false)
	mc.NeuralNetPath = filepath.Join(t.TempDir(), "nnet.gob")
	f, err := os.Create(mc.NeuralNetPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := net.Save(f); err != nil {
		t.Fatal(err)
	}
	f.Close()
	mc.Backend = onlineasr.BackendNeural

	m, err := onlineasr.NewModel(mc)
	if err != nil {
		t.Fatal(err)
	}
	if m.Backend() != "nnet" {
		t.Errorf("backend = %s", m.Backend())
	}

	var texts [2]string
	var likes [2]float64
	for i := range texts {
		d := onlineasr.NewDecoder(m)
		if err := d.Decode(testmodel.SampleRate, testmodel.Utterance(), true); err != nil {
			t.Fatal(err)
		}
		res, _ := d.Result()
		texts[i], likes[i] = res.Text, res.Likelihood
	}
	if texts[0] != texts[1] || likes[0] != likes[1] || !finite(likes[0]) {
		t.Errorf("neural decodes differ: %q (%f) vs %q (%f)", texts[0], likes[0], texts[1], likes[1])
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[onlineasr.State]string{onlineasr.StateIdle: "idle", onlineasr.StateDecoding: "decoding", onlineasr.StateFinalized: "finalized", onlineasr.State(9): "State(9)"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
