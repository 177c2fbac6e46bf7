// Package graph compiles a pronunciation dictionary, an n-gram language model
// and a word symbol table into the static decoding graph searched by the decoder.
package graph

import (
	"fmt"

	"github.com/ieee0824/onlineasr-go/acoustic"
	"github.com/ieee0824/onlineasr-go/internal/mathutil"
	"github.com/ieee0824/onlineasr-go/language"
	"github.com/ieee0824/onlineasr-go/lexicon"
)

// SilenceWord is the dictionary entry for optional inter-word silence.
// It never appears in transcripts and carries no language-model score.
const SilenceWord = "<sil>"

// Word is a graph vocabulary entry.
type Word struct {
	ID             int
	Text           string
	Pronunciations [][]acoustic.Phoneme
}

// Graph is the read-only decoding graph shared by all sessions of a model.
type Graph struct {
	Symbols *SymbolTable
	LM      *language.NGramModel
	Words   []Word
	// Silence holds the pronunciations of the optional silence word.
	Silence [][]acoustic.Phoneme
	// Unreachable lists dictionary words the language model gives no probability.
	Unreachable []string
}

// New compiles dict and lm. When syms is nil a table is derived from the dictionary.
// Every reachable dictionary word must have a symbol.
func New(dict *lexicon.Dictionary, lm *language.NGramModel, syms *SymbolTable) (*Graph, error) {
	if syms == nil {
		syms = NewSymbolTable()
		for _, w := range dict.Words() {
			if w != SilenceWord {
				syms.Add(w)
			}
		}
	}
	g := &Graph{Symbols: syms, LM: lm}

	for _, w := range dict.Words() {
		var prons [][]acoustic.Phoneme
		for _, e := range dict.Lookup(w) {
			prons = append(prons, e.Phonemes)
		}
		if w == SilenceWord {
			g.Silence = prons
			continue
		}
		if lm.LogProb(nil, w) <= mathutil.LogZero+1 {
			g.Unreachable = append(g.Unreachable, w)
			continue
		}
		id, ok := syms.ID(w)
		if !ok {
			return nil, fmt.Errorf("dictionary word %q: %w", w, ErrSymbolNotFound)
		}
		g.Words = append(g.Words, Word{ID: id, Text: w, Pronunciations: prons})
	}
	if len(g.Words) == 0 {
		return nil, fmt.Errorf("graph has no words covered by both dictionary and language model")
	}
	if g.Silence == nil {
		g.Silence = [][]acoustic.Phoneme{{acoustic.PhonSil}}
	}
	return g, nil
}

// Load reads the dictionary, ARPA model and (optional) symbol table from disk.
func Load(lexiconPath, lmPath, symbolsPath string) (*Graph, error) {
	dict, err := lexicon.LoadFile(lexiconPath)
	if err != nil {
		return nil, err
	}
	lm, err := language.LoadARPAFile(lmPath)
	if err != nil {
		return nil, err
	}
	var syms *SymbolTable
	if symbolsPath != "" {
		if syms, err = LoadSymbolTableFile(symbolsPath); err != nil {
			return nil, err
		}
	}
	return New(dict, lm, syms)
}
