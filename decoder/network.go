package decoder

import (
	"fmt"

	"github.com/ieee0824/onlineasr-go/acoustic"
	"github.com/ieee0824/onlineasr-go/graph"
	"github.com/ieee0824/onlineasr-go/language"
)

// netWord is one pronunciation of a graph word with its HMMs resolved.
type netWord struct {
	id     int // graph.Epsilon for silence
	text   string
	phones []acoustic.Phoneme
	hmms   []*acoustic.HMM
}

func (w *netWord) silence() bool { return w.id == graph.Epsilon }

// Network is the compiled search space: every pronunciation of every graph
// word as a chain of phone HMMs. It is read-only and shared by all searches.
type Network struct {
	words   []netWord
	lm      *language.NGramModel
	symbols *graph.SymbolTable
}

// NewNetwork resolves the HMMs for every pronunciation in g. Word-internal
// phones use triphones when am has them; word edges use the "#" boundary context.
// Silence is dropped when am has no model for it.
func NewNetwork(g *graph.Graph, am *acoustic.Model) (*Network, error) {
	n := &Network{lm: g.LM, symbols: g.Symbols}
	for _, w := range g.Words {
		for _, pron := range w.Pronunciations {
			hmms, err := resolvePronunciation(am, pron)
			if err != nil {
				return nil, fmt.Errorf("word %q: %w", w.Text, err)
			}
			n.words = append(n.words, netWord{id: w.ID, text: w.Text, phones: pron, hmms: hmms})
		}
	}
	for _, pron := range g.Silence {
		hmms, err := resolvePronunciation(am, pron)
		if err != nil {
			continue
		}
		n.words = append(n.words, netWord{id: graph.Epsilon, text: graph.SilenceWord, phones: pron, hmms: hmms})
	}
	return n, nil
}

func resolvePronunciation(am *acoustic.Model, phones []acoustic.Phoneme) ([]*acoustic.HMM, error) {
	if len(phones) == 0 {
		return nil, fmt.Errorf("empty pronunciation")
	}
	hmms := make([]*acoustic.HMM, len(phones))
	for i, ph := range phones {
		left, right := acoustic.Phoneme(acoustic.WordBoundary), acoustic.Phoneme(acoustic.WordBoundary)
		if i > 0 {
			left = phones[i-1]
		}
		if i+1 < len(phones) {
			right = phones[i+1]
		}
		h := am.ResolveHMM(left, ph, right)
		if h == nil {
			return nil, fmt.Errorf("phoneme %q has no acoustic model", ph)
		}
		hmms[i] = h
	}
	return hmms, nil
}

// Symbols returns the word symbol table of the underlying graph.
func (n *Network) Symbols() *graph.SymbolTable { return n.symbols }

// NumPronunciations returns the number of word chains, silence included.
func (n *Network) NumPronunciations() int { return len(n.words) }
