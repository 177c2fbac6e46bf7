package decoder

import (
	"cmp"
	"math"
	"slices"

	"github.com/ieee0824/onlineasr-go/acoustic"
	"github.com/ieee0824/onlineasr-go/language"
)

// token is an active hypothesis: a position inside one word chain plus the
// language model context that led there.
type token struct {
	word  int // index into Network.words
	phon  int
	state int
	ctx   [2]string // last two real words, "" when absent
	graph float64
	ac    float64
	trace *phoneTrace
}

func (t *token) cost() float64 { return t.graph + t.ac }

type tokenKey struct {
	word, phon, state int
	ctx               [2]string
}

var startContext = [2]string{"", language.BOS}

func lmHistory(ctx [2]string) []string {
	if ctx[0] == "" {
		return []string{ctx[1]}
	}
	return []string{ctx[0], ctx[1]}
}

type lmKey struct {
	ctx  [2]string
	word string
}

// Online is a frame-synchronous token-passing search over a Network.
// It consumes frames from a Decodable as they become ready. Not safe for
// concurrent use.
type Online struct {
	net *Network
	dec acoustic.Decodable
	cfg Config

	active    []*token
	decoded   int
	finalized bool
	lmCache   map[lmKey]float64

	// frontier of the frame being expanded
	next  []*token
	index map[tokenKey]int
	best  float64
}

// NewOnline starts a search. Config.AcousticScale is applied by the
// Decodable, not here.
func NewOnline(net *Network, dec acoustic.Decodable, cfg Config) *Online {
	return &Online{
		net:     net,
		dec:     dec,
		cfg:     cfg,
		lmCache: make(map[lmKey]float64),
		index:   make(map[tokenKey]int),
	}
}

// NumFramesDecoded returns the number of frames consumed so far.
func (o *Online) NumFramesDecoded() int { return o.decoded }

// NumActive returns the number of live hypotheses.
func (o *Online) NumActive() int { return len(o.active) }

// AdvanceDecoding consumes every frame the Decodable has ready.
func (o *Online) AdvanceDecoding() {
	if o.finalized {
		return
	}
	for o.decoded < o.dec.NumFramesReady() {
		o.processFrame(o.decoded)
		o.decoded++
	}
}

// FinalizeDecoding consumes the remaining frames and freezes the search.
// The Decodable's input must have been marked finished.
func (o *Online) FinalizeDecoding() {
	o.AdvanceDecoding()
	o.finalized = true
}

// Finalized reports whether FinalizeDecoding was called.
func (o *Online) Finalized() bool { return o.finalized }

func (o *Online) lmCost(ctx [2]string, word string) float64 {
	k := lmKey{ctx, word}
	if c, ok := o.lmCache[k]; ok {
		return c
	}
	c := -o.cfg.LMWeight * o.net.lm.LogProb(lmHistory(ctx), word)
	o.lmCache[k] = c
	return c
}

func (o *Online) processFrame(t int) {
	o.next = o.next[:0]
	clear(o.index)
	o.best = math.Inf(1)

	if t == 0 {
		o.enterWords(startContext, 0, 0, nil, t)
	}

	var ends []*token
	for _, tok := range o.active {
		w := &o.net.words[tok.word]
		h := w.hmms[tok.phon]

		o.add(tok.word, tok.phon, tok.state, tok.ctx, tok.graph-h.SelfLoop(tok.state), tok.ac, tok.trace, false, t)
		if tok.state < acoustic.NumEmittingStates {
			o.add(tok.word, tok.phon, tok.state+1, tok.ctx, tok.graph-h.Forward(tok.state), tok.ac, tok.trace, false, t)
			continue
		}
		if tok.phon+1 < len(w.hmms) {
			o.add(tok.word, tok.phon+1, 1, tok.ctx, tok.graph-h.Forward(tok.state), tok.ac, tok.trace, true, t)
			continue
		}
		ends = append(ends, tok)
	}

	// Word ends branch into every word, so they are expanded last against
	// the best cost seen among the within-word moves.
	for _, tok := range ends {
		w := &o.net.words[tok.word]
		g := tok.graph - w.hmms[tok.phon].Forward(tok.state)
		if g+tok.ac > o.best+o.cfg.Beam {
			continue
		}
		ctx := tok.ctx
		if !w.silence() {
			ctx = [2]string{ctx[1], w.text}
		}
		o.enterWords(ctx, g, tok.ac, tok.trace, t)
	}

	o.prune()
}

// enterWords starts the first phone of every word chain at frame t.
func (o *Online) enterWords(ctx [2]string, g, ac float64, prev *phoneTrace, t int) {
	for i := range o.net.words {
		w := &o.net.words[i]
		gc := g
		if !w.silence() {
			gc += o.lmCost(ctx, w.text) - o.cfg.WordInsertionPenalty
		}
		o.add(i, 0, 1, ctx, gc, ac, prev, true, t)
	}
}

// add emits frame t from (word, phon, state) and recombines with any token
// already in that position and context.
func (o *Online) add(word, phon, state int, ctx [2]string, g, ac float64, prev *phoneTrace, newPhone bool, t int) {
	h := o.net.words[word].hmms[phon]
	ac -= o.dec.LogLikelihood(t, h, state)
	c := g + ac
	if c > o.best+o.cfg.Beam && len(o.next) >= o.cfg.MinActive {
		return
	}
	key := tokenKey{word, phon, state, ctx}
	idx, seen := o.index[key]
	if seen && o.next[idx].cost() <= c {
		return
	}
	tr := prev
	if newPhone {
		tr = &phoneTrace{word: word, phon: phon, start: t, prev: prev}
	}
	tok := &token{word: word, phon: phon, state: state, ctx: ctx, graph: g, ac: ac, trace: tr}
	if seen {
		o.next[idx] = tok
	} else {
		o.index[key] = len(o.next)
		o.next = append(o.next, tok)
	}
	if c < o.best {
		o.best = c
	}
}

// prune keeps the tokens within the beam of the best, at least MinActive
// and at most MaxActive of them.
func (o *Online) prune() {
	toks := o.next
	slices.SortFunc(toks, func(a, b *token) int { return cmp.Compare(a.cost(), b.cost()) })
	n := 0
	if len(toks) > 0 {
		limit := toks[0].cost() + o.cfg.Beam
		for n < len(toks) && toks[n].cost() <= limit {
			n++
		}
	}
	n = max(n, min(o.cfg.MinActive, len(toks)))
	if o.cfg.MaxActive > 0 {
		n = min(n, o.cfg.MaxActive)
	}
	o.active = append(o.active[:0], toks[:n]...)
}

// finalCost returns the extra graph cost of ending the utterance at tok:
// the HMM exit and the end-of-sentence probability. ok is false when tok is
// not at the last state of its word.
func (o *Online) finalCost(tok *token) (float64, bool) {
	w := &o.net.words[tok.word]
	if tok.phon != len(w.hmms)-1 || tok.state != acoustic.NumEmittingStates {
		return 0, false
	}
	ctx := tok.ctx
	if !w.silence() {
		ctx = [2]string{ctx[1], w.text}
	}
	return -w.hmms[tok.phon].Forward(tok.state) + o.lmCost(ctx, language.EOS), true
}

type candidate struct {
	tok   *token
	extra float64
}

// candidates returns the tokens that may end the utterance. With useFinal
// only word-final tokens count, charged their final cost; when none is
// word-final every token is returned uncharged.
func (o *Online) candidates(useFinal bool) []candidate {
	var out []candidate
	if useFinal {
		for _, tok := range o.active {
			if extra, ok := o.finalCost(tok); ok {
				out = append(out, candidate{tok, extra})
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	for _, tok := range o.active {
		out = append(out, candidate{tok: tok})
	}
	return out
}

func (o *Online) pathOf(c candidate) *Path {
	w := Weight{Graph: c.tok.graph + c.extra, Acoustic: c.tok.ac}
	return o.net.buildPath(c.tok.trace, w, o.decoded)
}

// BestPath returns the best hypothesis so far. With useFinal the hypothesis
// must end at a word boundary when any does, and pays the end-of-sentence
// cost. The partial path includes the word currently being decoded.
func (o *Online) BestPath(useFinal bool) (*Path, bool) {
	cands := o.candidates(useFinal)
	if len(cands) == 0 {
		return nil, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.tok.cost()+c.extra < best.tok.cost()+best.extra {
			best = c
		}
	}
	return o.pathOf(best), true
}

// Lattice collects the distinct word sequences within the lattice beam,
// using final costs when the search has been finalized.
func (o *Online) Lattice() *Lattice {
	cands := o.candidates(o.finalized)
	paths := make([]*Path, 0, len(cands))
	for _, c := range cands {
		paths = append(paths, o.pathOf(c))
	}
	return newLattice(paths, o.cfg.LatticeBeam)
}
