package decoder

import (
	"strconv"
	"strings"

	"github.com/ieee0824/onlineasr-go/acoustic"
	"github.com/ieee0824/onlineasr-go/graph"
)

// Weight is a path cost split the way lattices keep it: Graph holds the
// language model, insertion penalty and transition costs, Acoustic the scaled
// negative acoustic log-likelihood.
type Weight struct {
	Graph    float64
	Acoustic float64
}

// Cost returns the total cost.
func (w Weight) Cost() float64 { return w.Graph + w.Acoustic }

// PhoneSegment is one phone occupying frames [Start, End).
type PhoneSegment struct {
	Phoneme acoustic.Phoneme
	Start   int
	End     int
}

// Segment is one word (or silence) occupying frames [Start, End).
type Segment struct {
	WordID int // graph.Epsilon for silence
	Word   string
	Start  int
	End    int
	Phones []PhoneSegment
}

// Silence reports whether the segment is inter-word silence.
func (s Segment) Silence() bool { return s.WordID == graph.Epsilon }

// PhoneSymbols returns the phone sequence of the segment.
func (s Segment) PhoneSymbols() []acoustic.Phoneme {
	out := make([]acoustic.Phoneme, len(s.Phones))
	for i, p := range s.Phones {
		out[i] = p.Phoneme
	}
	return out
}

// Path is one hypothesis through the network.
type Path struct {
	WordIDs   []int
	Words     []string
	Segments  []Segment // time order, silence included
	Weight    Weight
	NumFrames int
}

// Text joins the words with spaces.
func (p *Path) Text() string { return strings.Join(p.Words, " ") }

// key identifies the word sequence for lattice deduplication.
func (p *Path) key() string {
	var b strings.Builder
	for i, id := range p.WordIDs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

// phoneTrace records where a phone of a word instance started.
// Traces are shared between tokens and form a backward chain.
type phoneTrace struct {
	word  int // index into Network.words
	phon  int
	start int
	prev  *phoneTrace
}

// buildPath walks tr back to the first phone and lays out the segments.
// The last phone ends at numFrames.
func (n *Network) buildPath(tr *phoneTrace, w Weight, numFrames int) *Path {
	var chain []*phoneTrace
	for cur := tr; cur != nil; cur = cur.prev {
		chain = append(chain, cur)
	}
	p := &Path{Weight: w, NumFrames: numFrames}
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		end := numFrames
		if i > 0 {
			end = chain[i-1].start
		}
		nw := &n.words[cur.word]
		if cur.phon == 0 || len(p.Segments) == 0 {
			p.Segments = append(p.Segments, Segment{WordID: nw.id, Word: nw.text, Start: cur.start})
			if !nw.silence() {
				p.WordIDs = append(p.WordIDs, nw.id)
				p.Words = append(p.Words, nw.text)
			}
		}
		seg := &p.Segments[len(p.Segments)-1]
		seg.Phones = append(seg.Phones, PhoneSegment{Phoneme: nw.phones[cur.phon], Start: cur.start, End: end})
		seg.End = end
	}
	return p
}
