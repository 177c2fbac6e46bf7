package graph

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrSymbolNotFound is returned when a word or id has no entry in the symbol table.
var ErrSymbolNotFound = errors.New("graph: symbol not found")

// Epsilon is the reserved id of the empty symbol.
const Epsilon = 0

const epsWord = "<eps>"

// SymbolTable maps words to integer ids, as in a Kaldi words.txt.
// It is read-only once built.
type SymbolTable struct {
	byID   map[int]string
	byWord map[string]int
	next   int
}

// NewSymbolTable returns a table holding only <eps>.
func NewSymbolTable() *SymbolTable {
	s := &SymbolTable{byID: make(map[int]string), byWord: make(map[string]int)}
	s.set(epsWord, Epsilon)
	return s
}

func (s *SymbolTable) set(word string, id int) {
	s.byID[id] = word
	s.byWord[word] = id
	s.next = max(s.next, id+1)
}

// Add assigns the next free id to word, or returns its existing id.
func (s *SymbolTable) Add(word string) int {
	if id, ok := s.byWord[word]; ok {
		return id
	}
	id := s.next
	s.set(word, id)
	return id
}

// LoadSymbolTable reads "word id" lines. Id 0 belongs to <eps> and to nothing else.
func LoadSymbolTable(r io.Reader) (*SymbolTable, error) {
	s := &SymbolTable{byID: make(map[int]string), byWord: make(map[string]int)}
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("symbol table line %d: expected \"word id\", got %q", lineNum, sc.Text())
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil || id < 0 {
			return nil, fmt.Errorf("symbol table line %d: bad id %q", lineNum, fields[1])
		}
		// The decoder treats id 0 as silence, so a real word there would vanish.
		if (id == Epsilon) != (fields[0] == epsWord) {
			return nil, fmt.Errorf("symbol table line %d: id %d is reserved for %s, got %q with id %d",
				lineNum, Epsilon, epsWord, fields[0], id)
		}
		if prev, ok := s.byID[id]; ok {
			return nil, fmt.Errorf("symbol table line %d: id %d already used by %q", lineNum, id, prev)
		}
		if _, ok := s.byWord[fields[0]]; ok {
			return nil, fmt.Errorf("symbol table line %d: duplicate word %q", lineNum, fields[0])
		}
		s.set(fields[0], id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read symbol table: %w", err)
	}
	if len(s.byID) == 0 {
		return nil, fmt.Errorf("symbol table is empty")
	}
	return s, nil
}

// LoadSymbolTableFile opens path and calls LoadSymbolTable.
func LoadSymbolTableFile(path string) (*SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbol table: %w", err)
	}
	defer f.Close()
	return LoadSymbolTable(f)
}

// Find returns the word for id.
func (s *SymbolTable) Find(id int) (string, bool) {
	w, ok := s.byID[id]
	return w, ok
}

// ID returns the id of word.
func (s *SymbolTable) ID(word string) (int, bool) {
	id, ok := s.byWord[word]
	return id, ok
}

// Words maps ids to words. A missing id yields an error wrapping ErrSymbolNotFound.
func (s *SymbolTable) Words(ids []int) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		w, ok := s.byID[id]
		if !ok {
			return nil, fmt.Errorf("word id %d: %w", id, ErrSymbolNotFound)
		}
		out[i] = w
	}
	return out, nil
}

// Len returns the number of symbols, <eps> included.
func (s *SymbolTable) Len() int { return len(s.byID) }
