// Command asrdecode transcribes WAV files with one shared model.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	onlineasr "github.com/ieee0824/onlineasr-go"
	"github.com/ieee0824/onlineasr-go/audio"
	"github.com/ieee0824/onlineasr-go/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	amPath := flag.String("am", "", "path to acoustic model file")
	nnetPath := flag.String("nnet", "", "path to DNN file (backend nnet)")
	backend := flag.String("backend", "gmm", "acoustic backend: gmm or nnet")
	lmPath := flag.String("lm", "", "path to language model (ARPA format)")
	dictPath := flag.String("dict", "", "path to pronunciation dictionary")
	symPath := flag.String("words", "", "path to word symbol table (optional)")
	cfgPath := flag.String("config", "", "path to YAML configuration (optional)")
	alignPath := flag.String("align-lexicon", "", "path to alignment lexicon (required for -align)")
	beam := flag.Float64("beam", 0, "beam width (0 = config value)")
	maxActive := flag.Int("max-active", 0, "maximum active tokens (0 = config value)")
	minActive := flag.Int("min-active", 0, "minimum active tokens (0 = config value)")
	latticeBeam := flag.Float64("lattice-beam", 0, "lattice beam (0 = config value)")
	acScale := flag.Float64("acoustic-scale", 0, "acoustic scale (0 = config value)")
	chunk := flag.Float64("chunk", 0, "feed audio in chunks of this many seconds (0 = whole file)")
	parallel := flag.Int("parallel", 1, "number of files decoded concurrently")
	align := flag.Bool("align", false, "print word alignment as CTM lines")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	if *amPath == "" || *lmPath == "" || *dictPath == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: asrdecode -am MODEL -lm LM -dict DICT [flags] FILE.wav...")
		flag.PrintDefaults()
		return 2
	}
	lvl := config.LogLevel(*logLevel)
	if !lvl.IsValid() {
		fmt.Fprintf(os.Stderr, "asrdecode: invalid log level %q\n", *logLevel)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl.Level()}))

	m, err := onlineasr.NewModel(onlineasr.ModelConfig{
		Beam:              *beam,
		MaxActive:         *maxActive,
		MinActive:         *minActive,
		LatticeBeam:       *latticeBeam,
		AcousticScale:     *acScale,
		Backend:           onlineasr.Backend(*backend),
		AcousticModelPath: *amPath,
		NeuralNetPath:     *nnetPath,
		LanguageModelPath: *lmPath,
		LexiconPath:       *dictPath,
		WordSymbolsPath:   *symPath,
		ConfigPath:        *cfgPath,
		AlignLexiconPath:  *alignPath,
	}, onlineasr.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *align && !m.HasAlignLexicon() {
		fmt.Fprintln(os.Stderr, "Error: -align needs -align-lexicon")
		return 2
	}

	results := decodeAll(context.Background(), m, flag.Args(), *chunk, max(*parallel, 1), logger)
	failed := false
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.path, r.err)
			failed = true
			continue
		}
		printResult(os.Stdout, r, *align)
	}
	if failed {
		return 1
	}
	return 0
}

// fileResult is the outcome of decoding one file.
type fileResult struct {
	path  string
	res   *onlineasr.Result
	words []onlineasr.AlignedWord
	err   error
}

// decodeAll decodes paths with up to parallel decoders on m. Results keep the
// order of paths; a failing file does not stop the others.
func decodeAll(ctx context.Context, m *onlineasr.Model, paths []string, chunkSec float64, parallel int, logger *slog.Logger) []fileResult {
	results := make([]fileResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, p := range paths {
		g.Go(func() error {
			results[i] = decodeFile(ctx, m, p, chunkSec)
			if results[i].err != nil {
				logger.Warn("decode failed", "file", p, "error", results[i].err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// decodeFile reads a WAV file, resamples it to the model rate when needed and
// decodes it, optionally in chunks of chunkSec seconds.
func decodeFile(ctx context.Context, m *onlineasr.Model, path string, chunkSec float64) fileResult {
	r := fileResult{path: path}
	samples, hdr, err := audio.ReadWAVFile(path)
	if err != nil {
		r.err = err
		return r
	}
	rate := m.SampleRate()
	if hdr.SampleRate != rate {
		samples = audio.Resample(samples, hdr.SampleRate, rate)
	}

	d := onlineasr.NewDecoder(m)
	step := len(samples)
	if chunkSec > 0 {
		step = max(int(chunkSec*float64(rate)), 1)
	}
	for off := 0; ; off += step {
		end := min(off+step, len(samples))
		last := end == len(samples)
		if r.err = d.DecodeContext(ctx, rate, samples[off:end], last); r.err != nil {
			return r
		}
		if last {
			break
		}
	}
	res, ok := d.Result()
	if !ok {
		r.err = onlineasr.ErrNoResult
		return r
	}
	r.res = res
	if m.HasAlignLexicon() {
		words, err := d.WordAlignment()
		// Silence-only utterances have nothing to align.
		if err != nil && res.Text != "" {
			r.err = fmt.Errorf("word alignment: %w", err)
			return r
		}
		r.words = words
	}
	return r
}

func printResult(w io.Writer, r fileResult, ctm bool) {
	fmt.Fprintf(w, "%s\t%s\t%.4f\n", r.path, r.res.Text, r.res.Likelihood)
	if !ctm {
		return
	}
	utt := strings.TrimSuffix(filepath.Base(r.path), filepath.Ext(r.path))
	for _, aw := range r.words {
		fmt.Fprintf(w, "%s 1 %.2f %.2f %s\n", utt, aw.StartTime, aw.Duration, aw.Word)
	}
}
