// Package server exposes an onlineasr Model over HTTP.
//
// Routes:
//
//   - POST /decode: chunked decoding of JSON-encoded int16 audio with optional
//     WAV recording. Requests carry a session ID; each session owns one
//     [onlineasr.Decoder].
//   - GET /stream: websocket streaming. Binary frames are PCM16LE audio,
//     text frames are control messages. Replies are JSON text frames.
//   - GET /healthz: liveness check.
//
// Sessions idle for longer than the configured TTL are dropped by [Server.Run].
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	onlineasr "github.com/ieee0824/onlineasr-go"
	"github.com/ieee0824/onlineasr-go/audio"
	"github.com/ieee0824/onlineasr-go/config"
	"github.com/ieee0824/onlineasr-go/internal/observe"
)

// maxRequestBytes bounds the body of a /decode request.
const maxRequestBytes = 32 << 20

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the server logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server serves one Model to many clients. All exported methods are safe for
// concurrent use.
type Server struct {
	model          *onlineasr.Model
	cfg            config.ServerConfig
	log            *slog.Logger
	metrics        *observe.Metrics
	metricsHandler http.Handler
	now            func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// session is the per-client state of the /decode endpoint.
type session struct {
	id string

	// lastUsed is guarded by Server.mu so Sweep never waits on a decode.
	lastUsed time.Time

	mu       sync.Mutex
	dec      *onlineasr.Decoder
	rec      *audio.WAVWriter
	recPath  string
	recCount int
	// closed is set once the session has left the table. Handlers that
	// looked it up earlier must not touch it afterwards.
	closed bool
}

// closeRecording finalizes the open WAV file, if any.
func (s *session) closeRecording() error {
	if s.rec == nil {
		return nil
	}
	err := s.rec.Close()
	s.rec = nil
	return err
}

// New returns a Server decoding with m.
func New(m *onlineasr.Model, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		model:    m,
		cfg:      cfg,
		log:      slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the HTTP handler with every route registered and the
// observability middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /decode", s.handleDecode)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics, s.log)(mux)
}

// NumSessions returns the number of live /decode sessions.
func (s *Server) NumSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lookup returns the session named id, creating one when id is empty, and
// marks it used. The second result is false when id names no live session.
// Callers must check session.closed after locking it.
func (s *Server) lookup(ctx context.Context, id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		sess, ok := s.sessions[id]
		if ok {
			sess.lastUsed = s.now()
		}
		return sess, ok
	}
	sess := &session{
		id:       uuid.NewString(),
		dec:      onlineasr.NewDecoder(s.model),
		lastUsed: s.now(),
	}
	s.sessions[sess.id] = sess
	s.metrics.ServerSessions.Add(ctx, 1)
	s.log.Debug("session created", "session", sess.id)
	return sess, true
}

// Sweep drops sessions idle since before now minus the TTL and returns how
// many were dropped.
func (s *Server) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.SessionTTL)
	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.dropSession(ctx, sess, "expired")
	}
	return len(expired)
}

func (s *Server) dropSession(ctx context.Context, sess *session, reason string) {
	sess.mu.Lock()
	sess.closed = true
	if err := sess.closeRecording(); err != nil {
		s.log.Warn("close recording", "session", sess.id, "path", sess.recPath, "error", err)
	}
	sess.dec.Reset()
	sess.mu.Unlock()
	s.metrics.ServerSessions.Add(ctx, -1)
	s.log.Debug("session dropped", "session", sess.id, "reason", reason)
}

// Run expires idle sessions until ctx is cancelled, then drops every
// remaining session. It always returns nil.
func (s *Server) Run(ctx context.Context) error {
	interval := max(s.cfg.SessionTTL/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				s.log.Info("expired idle sessions", "count", n)
			}
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range all {
		s.dropSession(context.Background(), sess, "shutdown")
	}
}

// openRecording creates the next WAV file of sess under
// RecordDir/YYYYMMDD/<session>-NNN.wav.
func (s *Server) openRecording(sess *session) error {
	dir := filepath.Join(s.cfg.RecordDir, s.now().Format("20060102"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}
	sess.recCount++
	path := filepath.Join(dir, fmt.Sprintf("%s-%03d.wav", sess.id, sess.recCount))
	w, err := audio.CreateWAV(path, s.model.SampleRate())
	if err != nil {
		return err
	}
	sess.rec, sess.recPath = w, path
	s.log.Debug("recording started", "session", sess.id, "path", path)
	return nil
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}

type errorReply struct {
	Error string `json:"error"`
}
