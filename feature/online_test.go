package feature

import (
	"errors"
	"math"
	"testing"
)

func toFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}

func decodeChunks(t *testing.T, cfg Config, samples []float32, chunk int) [][]float64 {
	t.Helper()
	o := NewOnline(cfg, NewCMNState(cfg.CMNWindow))
	for start := 0; start < len(samples); start += chunk {
		end := min(start+chunk, len(samples))
		if err := o.AcceptWaveform(cfg.SampleRate, samples[start:end]); err != nil {
			t.Fatalf("AcceptWaveform: %v", err)
		}
	}
	o.InputFinished()
	out := make([][]float64, o.NumFramesReady())
	for i := range out {
		out[i] = o.Frame(i)
	}
	return out
}

func TestOnlineChunkInvariance(t *testing.T) {
	cfg := DefaultConfig()
	samples := toFloat32(sine(8000, 300, 16000))
	whole := decodeChunks(t, cfg, samples, len(samples))
	for _, chunk := range []int{1, 97, 160, 1000} {
		got := decodeChunks(t, cfg, samples, chunk)
		if len(got) != len(whole) {
			t.Fatalf("chunk %d: %d frames, want %d", chunk, len(got), len(whole))
		}
		for f := range whole {
			for d := range whole[f] {
				if math.Abs(got[f][d]-whole[f][d]) > 1e-9 {
					t.Fatalf("chunk %d frame %d dim %d: %f != %f", chunk, f, d, got[f][d], whole[f][d])
				}
			}
		}
	}
}

func TestOnlineDeltaLag(t *testing.T) {
	cfg := DefaultConfig()
	o := NewOnline(cfg, nil)
	samples := toFloat32(sine(16000, 300, 16000))
	if err := o.AcceptWaveform(16000, samples); err != nil {
		t.Fatal(err)
	}
	static := 1 + (16000-cfg.FrameLen())/cfg.FrameShift()
	if got, want := o.NumFramesReady(), static-cfg.DeltaLag(); got != want {
		t.Errorf("ready before finish = %d, want %d", got, want)
	}
	if o.IsLastFrame(o.NumFramesReady() - 1) {
		t.Error("no frame is last before InputFinished")
	}
	o.InputFinished()
	if got := o.NumFramesReady(); got != static {
		t.Errorf("ready after finish = %d, want %d", got, static)
	}
	if !o.IsLastFrame(static - 1) {
		t.Error("last frame not reported")
	}
	if o.Dim() != 39 || len(o.Frame(0)) != 39 {
		t.Errorf("dim = %d", len(o.Frame(0)))
	}
}

func TestOnlineMatchesExtract(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseDeltaDelta = false
	samples := sine(4000, 500, 16000)
	batch, err := Extract(samples, cfg)
	if err != nil {
		t.Fatal(err)
	}
	online := decodeChunks(t, cfg, toFloat32(samples), 333)
	if len(batch) != len(online) || len(batch[0]) != 26 {
		t.Fatalf("batch %dx%d, online %d", len(batch), len(batch[0]), len(online))
	}
	for f := range batch {
		for d := range batch[f] {
			if batch[f][d] != online[f][d] {
				t.Fatalf("frame %d dim %d differs", f, d)
			}
		}
	}
}

func TestOnlineSampleRateMismatch(t *testing.T) {
	o := NewOnline(DefaultConfig(), nil)
	err := o.AcceptWaveform(8000, make([]float32, 100))
	if !errors.Is(err, ErrSampleRateMismatch) {
		t.Errorf("err = %v, want ErrSampleRateMismatch", err)
	}
	o.InputFinished()
	if err := o.AcceptWaveform(16000, make([]float32, 10)); !errors.Is(err, ErrInputFinished) {
		t.Errorf("err = %v, want ErrInputFinished", err)
	}
}

func TestOnlineEmptyInput(t *testing.T) {
	o := NewOnline(DefaultConfig(), nil)
	if err := o.AcceptWaveform(16000, nil); err != nil {
		t.Fatal(err)
	}
	o.InputFinished()
	if o.NumFramesReady() != 0 {
		t.Errorf("ready = %d, want 0", o.NumFramesReady())
	}
}
