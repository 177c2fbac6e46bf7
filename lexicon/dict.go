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

// Entry is one pronunciation of a word.
type Entry struct {
	Word     string
	Reading  string // katakana reading
	Phonemes []acoustic.Phoneme
}

// Dictionary maps words to their pronunciations.
type Dictionary struct {
	Entries map[string][]Entry
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{Entries: make(map[string][]Entry)}
}

// Add records a pronunciation; an identical phone sequence for the same word is ignored.
func (d *Dictionary) Add(word, reading string, phonemes []acoustic.Phoneme) {
	for _, e := range d.Entries[word] {
		if slices.Equal(e.Phonemes, phonemes) {
			return
		}
	}
	d.Entries[word] = append(d.Entries[word], Entry{Word: word, Reading: reading, Phonemes: phonemes})
}

// Load reads a tab-separated dictionary:
//
//	word<TAB>reading<TAB>phone phone ...
//
// When the phone column is empty or missing the phones are derived from the reading.
// Blank lines and lines starting with '#' are skipped.
func Load(r io.Reader) (*Dictionary, error) {
	d := NewDictionary()
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("line %d: expected word<TAB>reading[<TAB>phones], got %q", lineNum, line)
		}
		word, reading := parts[0], parts[1]

		var phonemes []acoustic.Phoneme
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			var err error
			if phonemes, err = acoustic.ParsePhonemes(strings.Fields(parts[2])); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
		} else {
			phonemes = KanaToPhonemes(reading)
		}
		if len(phonemes) == 0 {
			return nil, fmt.Errorf("line %d: word %q has no pronunciation", lineNum, word)
		}
		d.Add(word, reading, phonemes)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return d, nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Lookup returns all pronunciations of word.
func (d *Dictionary) Lookup(word string) []Entry {
	return d.Entries[word]
}

// PhonemeSequence returns the first pronunciation of word.
func (d *Dictionary) PhonemeSequence(word string) ([]acoustic.Phoneme, bool) {
	entries := d.Entries[word]
	if len(entries) == 0 {
		return nil, false
	}
	return entries[0].Phonemes, true
}

// Words returns the vocabulary in sorted order.
func (d *Dictionary) Words() []string {
	words := make([]string, 0, len(d.Entries))
	for w := range d.Entries {
		words = append(words, w)
	}
	slices.Sort(words)
	return words
}
