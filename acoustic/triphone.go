package acoustic

import "strings"

// Triphone is a context-dependent phone in "left-center+right" form.
// Word edges take WordBoundary as context.
// Example: the word [i, k, u] uses "#-i+k", "i-k+u" and "k-u+#";
// a one-phone word [a] uses "#-a+#".
type Triphone string

// WordBoundary is the context label at word edges.
const WordBoundary = "#"

// MakeTriphone joins the three context labels.
func MakeTriphone(left, center, right string) Triphone {
	return Triphone(left + "-" + center + "+" + right)
}

// CenterPhoneme extracts the base phone of a triphone.
// For "i-k+u" it returns Phoneme("k"). A label without context is
// treated as a monophone and returned as is.
func (t Triphone) CenterPhoneme() Phoneme {
	s := string(t)
	dash := strings.IndexByte(s, '-')
	plus := strings.LastIndexByte(s, '+')
	if dash >= 0 && plus > dash {
		return Phoneme(s[dash+1 : plus])
	}
	return Phoneme(s)
}
