// Command asrserver serves a speech recognition model over HTTP and websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	onlineasr "github.com/ieee0824/onlineasr-go"
	"github.com/ieee0824/onlineasr-go/config"
	"github.com/ieee0824/onlineasr-go/internal/observe"
	"github.com/ieee0824/onlineasr-go/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file")
	listen := flag.String("listen", "", "listen address (overrides server.listen_addr)")
	amPath := flag.String("am", "", "path to acoustic model file")
	nnetPath := flag.String("nnet", "", "path to DNN file (backend nnet)")
	backend := flag.String("backend", "gmm", "acoustic backend: gmm or nnet")
	lmPath := flag.String("lm", "", "path to language model (ARPA format)")
	dictPath := flag.String("dict", "", "path to pronunciation dictionary")
	symPath := flag.String("words", "", "path to word symbol table (optional)")
	alignPath := flag.String("align-lexicon", "", "path to alignment lexicon (optional)")
	flag.Parse()

	if *amPath == "" || *lmPath == "" || *dictPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: asrserver -am MODEL -lm LM -dict DICT [-config FILE]")
		flag.PrintDefaults()
		return 2
	}

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "asrserver: %v\n", err)
			return 1
		}
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.Level()}))
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "asrserver",
		ServiceVersion: version,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Model ─────────────────────────────────────────────────────────────────
	start := time.Now()
	m, err := onlineasr.NewModel(onlineasr.ModelConfig{
		Backend:           onlineasr.Backend(*backend),
		AcousticModelPath: *amPath,
		NeuralNetPath:     *nnetPath,
		LanguageModelPath: *lmPath,
		LexiconPath:       *dictPath,
		WordSymbolsPath:   *symPath,
		ConfigPath:        *configPath,
		AlignLexiconPath:  *alignPath,
	}, onlineasr.WithLogger(logger), onlineasr.WithMeterProvider(otel.GetMeterProvider()))
	if err != nil {
		logger.Error("failed to load model", "err", err)
		return 1
	}
	logger.Info("model ready", "took", time.Since(start), "backend", m.Backend())

	// ── Server ────────────────────────────────────────────────────────────────
	srv := server.New(m, cfg.Server,
		server.WithLogger(logger),
		server.WithMetrics(observe.DefaultMetrics()),
		server.WithMetricsHandler(promhttp.Handler()),
	)
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "err", err)
		return 1
	}
	logger.Info("shut down")
	return 0
}
