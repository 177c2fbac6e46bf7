package onlineasr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ieee0824/onlineasr-go/decoder"
	"github.com/ieee0824/onlineasr-go/feature"
	"github.com/ieee0824/onlineasr-go/internal/observe"
)

// State is the lifecycle state of a Decoder.
type State int

const (
	// StateIdle: no live session and no stored result.
	StateIdle State = iota
	// StateDecoding: a session is accepting audio.
	StateDecoding
	// StateFinalized: the last utterance was finalized and its result is stored.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecoding:
		return "decoding"
	case StateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is the outcome of a finalized utterance.
type Result struct {
	Text    string // words joined by spaces
	Words   []string
	WordIDs []int
	// Likelihood is the negated path cost divided by the number of frames.
	Likelihood float64
	Weight     decoder.Weight
	NumFrames  int
	// Alternatives holds the other word sequences of the lattice, best first.
	Alternatives []string

	path *decoder.Path
}

// AlignedWord is one word of a word alignment.
type AlignedWord struct {
	Word       string
	WordID     int
	StartFrame int
	NumFrames  int
	StartTime  float64 // seconds
	Duration   float64 // seconds
}

// Stats counts the audio a Decoder has consumed.
type Stats struct {
	// SamplesDecoded is the number of samples accepted in the current
	// utterance. It is reset when a new session starts.
	SamplesDecoded int64
	// LastUtteranceSamples is SamplesDecoded of the last finalized utterance.
	LastUtteranceSamples int64
	// FramesDecoded is the number of feature frames searched in the current utterance.
	FramesDecoded int
	// Utterances counts successfully finalized utterances.
	Utterances int
}

// session is the per-utterance state: adaptation statistics, the feature
// pipeline and the search.
type session struct {
	cmn    *feature.CMNState
	feats  *feature.Online
	search *decoder.Online
	busy   time.Duration
}

// Decoder decodes one utterance at a time against a Model.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	m      *Model
	sess   *session
	result *Result
	stats  Stats
}

// NewDecoder returns an idle decoder bound to m. m must outlive it.
func NewDecoder(m *Model) *Decoder {
	return &Decoder{m: m}
}

// State reports the lifecycle state.
func (d *Decoder) State() State {
	switch {
	case d.sess != nil:
		return StateDecoding
	case d.result != nil:
		return StateFinalized
	}
	return StateIdle
}

// Stats returns the sample and frame counters.
func (d *Decoder) Stats() Stats {
	s := d.stats
	if d.sess != nil {
		s.FramesDecoded = d.sess.search.NumFramesDecoded()
	}
	return s
}

func (d *Decoder) start() {
	cfg := d.m.cfg
	var cmn *feature.CMNState
	if cfg.Feature.UseCMN {
		cmn = feature.NewCMNState(cfg.Feature.CMNWindow)
	}
	feats := feature.NewOnline(cfg.Feature, cmn)
	dec := d.m.backend.NewDecodable(feats, cfg.Decoder.AcousticScale)
	d.sess = &session{
		cmn:    cmn,
		feats:  feats,
		search: decoder.NewOnline(d.m.net, dec, cfg.Decoder),
	}
	d.result = nil
	d.stats.SamplesDecoded = 0
	d.stats.FramesDecoded = 0
	d.m.metrics.ActiveSessions.Add(context.Background(), 1)
	d.m.logger.Debug("decode session started", "backend", d.m.backend.Name())
}

// release drops the live session, if any.
func (d *Decoder) release() {
	if d.sess == nil {
		return
	}
	d.stats.FramesDecoded = d.sess.search.NumFramesDecoded()
	d.sess = nil
	d.m.metrics.ActiveSessions.Add(context.Background(), -1)
	d.m.logger.Debug("decode session released")
}

// Reset abandons the current utterance and forgets the stored result.
func (d *Decoder) Reset() {
	d.release()
	d.result = nil
	d.stats.SamplesDecoded = 0
}

// Decode feeds samples recorded at sampleRate to the current utterance,
// starting a new one when the decoder is not decoding. With finalize the
// utterance is completed and its result stored; the session is released
// whether or not finalizing succeeds.
func (d *Decoder) Decode(sampleRate int, samples []float32, finalize bool) error {
	return d.DecodeContext(context.Background(), sampleRate, samples, finalize)
}

// DecodeContext is Decode with a context for tracing and metrics.
func (d *Decoder) DecodeContext(ctx context.Context, sampleRate int, samples []float32, finalize bool) error {
	if d.sess == nil {
		d.start()
	}
	sess := d.sess
	began := time.Now()

	if err := sess.feats.AcceptWaveform(sampleRate, samples); err != nil {
		d.release()
		d.stats.SamplesDecoded = 0
		return fmt.Errorf("accept waveform: %w", err)
	}
	d.stats.SamplesDecoded += int64(len(samples))
	sess.search.AdvanceDecoding()

	elapsed := time.Since(began)
	sess.busy += elapsed
	d.m.metrics.ChunkDuration.Record(ctx, elapsed.Seconds())

	if !finalize {
		return nil
	}
	return d.finalize(ctx, sess)
}

func (d *Decoder) finalize(ctx context.Context, sess *session) (err error) {
	ctx, span := observe.StartSpan(ctx, "onlineasr.finalize",
		trace.WithAttributes(attribute.String("backend", d.m.backend.Name())))
	began := time.Now()
	status := "ok"
	defer func() {
		d.release()
		elapsed := time.Since(began)
		sess.busy += elapsed
		audioSec := float64(d.stats.SamplesDecoded) / float64(d.m.SampleRate())
		d.m.metrics.FinalizeDuration.Record(ctx, elapsed.Seconds())
		d.m.metrics.AudioSeconds.Add(ctx, audioSec)
		if audioSec > 0 {
			d.m.metrics.RealTimeFactor.Record(ctx, sess.busy.Seconds()/audioSec)
		}
		d.m.metrics.RecordUtterance(ctx, d.m.backend.Name(), status)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.End()
	}()

	sess.feats.InputFinished()
	sess.search.FinalizeDecoding()
	d.stats.LastUtteranceSamples = d.stats.SamplesDecoded

	lat := sess.search.Lattice()
	best, ok := lat.ShortestPath()
	if !ok {
		status = "empty_lattice"
		d.m.logger.Warn("empty lattice", "frames", sess.search.NumFramesDecoded(), "samples", d.stats.SamplesDecoded)
		return fmt.Errorf("%w after %d frames", ErrEmptyLattice, sess.search.NumFramesDecoded())
	}

	words, err := d.m.graph.Symbols.Words(best.WordIDs)
	if err != nil {
		status = "symbol_error"
		return fmt.Errorf("best path: %w", err)
	}
	res := &Result{
		Text:       strings.Join(words, " "),
		Words:      words,
		WordIDs:    best.WordIDs,
		Likelihood: likelihood(best),
		Weight:     best.Weight,
		NumFrames:  best.NumFrames,
		path:       best,
	}
	for _, alt := range lat.Paths[1:] {
		if ws, err := d.m.graph.Symbols.Words(alt.WordIDs); err == nil {
			res.Alternatives = append(res.Alternatives, strings.Join(ws, " "))
		}
	}
	d.result = res
	d.stats.Utterances++
	span.SetAttributes(attribute.Int("frames", best.NumFrames), attribute.Int("words", len(words)))
	d.m.logger.Debug("utterance finalized", "text", res.Text, "likelihood", res.Likelihood, "frames", best.NumFrames)
	return nil
}

// likelihood is the negated total cost averaged over the frames of p.
func likelihood(p *decoder.Path) float64 {
	if p.NumFrames == 0 {
		return 0
	}
	return -p.Weight.Cost() / float64(p.NumFrames)
}

// DecodedString returns the current transcript and its likelihood. While an
// utterance is being decoded it is the partial best path of that utterance;
// otherwise it is the last finalized result, or "" and 0 when there is none.
func (d *Decoder) DecodedString() (string, float64) {
	if d.sess != nil {
		p, ok := d.sess.search.BestPath(false)
		if !ok {
			return "", 0
		}
		words, err := d.m.graph.Symbols.Words(p.WordIDs)
		if err != nil {
			d.m.logger.Warn("partial result", "error", err)
			return "", 0
		}
		return strings.Join(words, " "), likelihood(p)
	}
	if d.result != nil {
		return d.result.Text, d.result.Likelihood
	}
	return "", 0
}

// Likelihood returns the likelihood DecodedString reports.
func (d *Decoder) Likelihood() float64 {
	_, l := d.DecodedString()
	return l
}

// Result returns the last finalized result.
func (d *Decoder) Result() (*Result, bool) {
	return d.result, d.result != nil
}

// EndpointDetected reports whether the model's endpoint rules say the
// current utterance has ended. It is false when no utterance is live.
func (d *Decoder) EndpointDetected() bool {
	if d.sess == nil {
		return false
	}
	return d.sess.search.EndpointDetected(d.m.cfg.Endpoint, d.m.FrameShift())
}

// WordAlignment checks every word of the last finalized best path against
// the alignment lexicon and returns its timing.
func (d *Decoder) WordAlignment() ([]AlignedWord, error) {
	if d.m.align == nil {
		return nil, ErrNoAlignLexicon
	}
	if d.result == nil {
		return nil, ErrNoResult
	}
	shift := d.m.FrameShift()
	var out []AlignedWord
	for _, seg := range d.result.path.Segments {
		if seg.Silence() {
			continue
		}
		if phones := seg.PhoneSymbols(); !d.m.align.Matches(seg.WordID, phones) {
			err := fmt.Errorf("%w: word %q with phones %v is not in the alignment lexicon", ErrAlignmentFailed, seg.Word, phones)
			d.m.logger.Warn("word alignment failed", "error", err)
			return nil, err
		}
		word, ok := d.m.graph.Symbols.Find(seg.WordID)
		if !ok {
			return nil, fmt.Errorf("%w: word id %d has no symbol", ErrAlignmentFailed, seg.WordID)
		}
		out = append(out, AlignedWord{
			Word:       word,
			WordID:     seg.WordID,
			StartFrame: seg.Start,
			NumFrames:  seg.End - seg.Start,
			StartTime:  float64(seg.Start) * shift,
			Duration:   float64(seg.End-seg.Start) * shift,
		})
	}
	if len(out) == 0 {
		d.m.logger.Warn("word alignment is empty")
		return nil, fmt.Errorf("%w: no words aligned", ErrAlignmentFailed)
	}
	return out, nil
}
