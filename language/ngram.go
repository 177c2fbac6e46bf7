package language

import (
	"slices"

	"github.com/ieee0824/onlineasr-go/internal/mathutil"
)

// Sentence boundary and unknown-word tokens.
const (
	BOS = "<s>"
	EOS = "</s>"
	UNK = "<unk>"
)

// NGramModel is a backoff n-gram language model of order up to 3.
// Probabilities are natural logs. It is read-only after loading.
type NGramModel struct {
	Order    int
	Unigrams map[string]ngramEntry
	Bigrams  map[[2]string]ngramEntry
	Trigrams map[[3]string]ngramEntry
}

type ngramEntry struct {
	LogProb    float64
	LogBackoff float64
}

// NewNGramModel creates an empty model.
func NewNGramModel(order int) *NGramModel {
	return &NGramModel{
		Order:    order,
		Unigrams: make(map[string]ngramEntry),
		Bigrams:  make(map[[2]string]ngramEntry),
		Trigrams: make(map[[3]string]ngramEntry),
	}
}

// LogProb returns log P(word | history), backing off to lower orders.
// Only the last Order-1 history words are used.
func (m *NGramModel) LogProb(history []string, word string) float64 {
	n := len(history)
	switch {
	case m.Order >= 3 && n >= 2:
		return m.trigram(history[n-2], history[n-1], word)
	case m.Order >= 2 && n >= 1:
		return m.bigram(history[n-1], word)
	}
	return m.unigram(word)
}

func (m *NGramModel) trigram(u, v, w string) float64 {
	if e, ok := m.Trigrams[[3]string{u, v, w}]; ok {
		return e.LogProb
	}
	return m.Bigrams[[2]string{u, v}].LogBackoff + m.bigram(v, w)
}

func (m *NGramModel) bigram(v, w string) float64 {
	if e, ok := m.Bigrams[[2]string{v, w}]; ok {
		return e.LogProb
	}
	return m.Unigrams[v].LogBackoff + m.unigram(w)
}

func (m *NGramModel) unigram(w string) float64 {
	if e, ok := m.Unigrams[w]; ok {
		return e.LogProb
	}
	if e, ok := m.Unigrams[UNK]; ok {
		return e.LogProb
	}
	return mathutil.LogZero
}

// SentenceLogProb scores words wrapped in <s> ... </s>.
func (m *NGramModel) SentenceLogProb(words []string) float64 {
	total := 0.0
	history := []string{BOS}
	for _, w := range words {
		total += m.LogProb(history, w)
		history = append(history, w)
	}
	return total + m.LogProb(history, EOS)
}

// Vocab returns the unigram vocabulary in sorted order.
func (m *NGramModel) Vocab() []string {
	words := make([]string, 0, len(m.Unigrams))
	for w := range m.Unigrams {
		words = append(words, w)
	}
	slices.Sort(words)
	return words
}
