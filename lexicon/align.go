package lexicon

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/ieee0824/onlineasr-go/acoustic"
)

// WordIDs resolves words to integer symbols.
type WordIDs interface {
	ID(word string) (int, bool)
}

// AlignLexicon lists the phone sequences each word may be aligned to.
// It is read-only after loading.
type AlignLexicon struct {
	prons map[int][][]acoustic.Phoneme
}

// LoadAlignLexicon reads lines of the form
//
//	word word phone phone ...
//
// where the word is repeated (the first column is the word that appears in the
// lattice, the second the pronunciation's word). Position suffixes such as
// "_B", "_I", "_E" and "_S" on phones are stripped.
func LoadAlignLexicon(r io.Reader, syms WordIDs) (*AlignLexicon, error) {
	lex := &AlignLexicon{prons: make(map[int][][]acoustic.Phoneme)}
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("align lexicon line %d: expected at least two words", lineNum)
		}
		if fields[0] != fields[1] {
			return nil, fmt.Errorf("align lexicon line %d: columns %q and %q differ", lineNum, fields[0], fields[1])
		}
		id, ok := syms.ID(fields[0])
		if !ok {
			return nil, fmt.Errorf("align lexicon line %d: word %q not in symbol table", lineNum, fields[0])
		}
		labels := make([]string, len(fields)-2)
		for i, f := range fields[2:] {
			labels[i] = stripPosition(f)
		}
		phones, err := acoustic.ParsePhonemes(labels)
		if err != nil {
			return nil, fmt.Errorf("align lexicon line %d: %w", lineNum, err)
		}
		lex.prons[id] = append(lex.prons[id], phones)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read align lexicon: %w", err)
	}
	if len(lex.prons) == 0 {
		return nil, fmt.Errorf("align lexicon is empty")
	}
	return lex, nil
}

// LoadAlignLexiconFile opens path and calls LoadAlignLexicon.
func LoadAlignLexiconFile(path string, syms WordIDs) (*AlignLexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open align lexicon: %w", err)
	}
	defer f.Close()
	return LoadAlignLexicon(f, syms)
}

// AlignLexiconFromDictionary builds an align lexicon from the pronunciation dictionary.
// Words missing from syms are skipped.
func AlignLexiconFromDictionary(d *Dictionary, syms WordIDs) *AlignLexicon {
	lex := &AlignLexicon{prons: make(map[int][][]acoustic.Phoneme)}
	for _, w := range d.Words() {
		id, ok := syms.ID(w)
		if !ok {
			continue
		}
		for _, e := range d.Lookup(w) {
			lex.prons[id] = append(lex.prons[id], e.Phonemes)
		}
	}
	return lex
}

// Matches reports whether phones is a listed pronunciation of wordID.
func (l *AlignLexicon) Matches(wordID int, phones []acoustic.Phoneme) bool {
	for _, p := range l.prons[wordID] {
		if slices.Equal(p, phones) {
			return true
		}
	}
	return false
}

// NumWords returns how many words have at least one pronunciation.
func (l *AlignLexicon) NumWords() int { return len(l.prons) }

func stripPosition(phone string) string {
	if i := strings.LastIndexByte(phone, '_'); i > 0 {
		switch phone[i+1:] {
		case "B", "I", "E", "S":
			return phone[:i]
		}
	}
	return phone
}
