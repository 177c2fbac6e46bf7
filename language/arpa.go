package language

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// LoadARPA reads an ARPA-format model. Base-10 log values are converted to natural logs.
func LoadARPA(r io.Reader) (*NGramModel, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	model := NewNGramModel(0)

	section := -1 // -1 before \data\, 0 inside \data\, n inside \n-grams:
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == `\data\`:
			section = 0
			continue
		case line == `\end\`:
			if model.Order == 0 {
				return nil, fmt.Errorf("arpa: no n-gram sections")
			}
			return model, nil
		case strings.HasPrefix(line, `\`) && strings.HasSuffix(line, "-grams:"):
			order, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(line, `\`), "-grams:"))
			if err != nil || order < 1 || order > 3 {
				return nil, fmt.Errorf("arpa line %d: unsupported section %q", lineNo, line)
			}
			section = order
			model.Order = max(model.Order, order)
			continue
		}

		switch {
		case section == 0:
			// "ngram N=count" lines carry no information the sections don't.
		case section > 0:
			if err := parseNGramLine(model, section, line); err != nil {
				return nil, fmt.Errorf("arpa line %d: %w", lineNo, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("arpa: %w", err)
	}
	if model.Order == 0 {
		return nil, fmt.Errorf("arpa: no n-gram sections")
	}
	return model, nil
}

// LoadARPAFile opens path and calls LoadARPA.
func LoadARPAFile(path string) (*NGramModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open language model: %w", err)
	}
	defer f.Close()
	return LoadARPA(f)
}

func parseNGramLine(model *NGramModel, order int, line string) error {
	fields := strings.Fields(line)
	if len(fields) < order+1 {
		return fmt.Errorf("too few fields for %d-gram: %q", order, line)
	}
	lp, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("parse log prob: %w", err)
	}
	e := ngramEntry{LogProb: lp * math.Ln10}
	if len(fields) > order+1 {
		bo, err := strconv.ParseFloat(fields[order+1], 64)
		if err != nil {
			return fmt.Errorf("parse backoff: %w", err)
		}
		e.LogBackoff = bo * math.Ln10
	}

	w := fields[1 : order+1]
	switch order {
	case 1:
		model.Unigrams[w[0]] = e
	case 2:
		model.Bigrams[[2]string{w[0], w[1]}] = e
	case 3:
		model.Trigrams[[3]string{w[0], w[1], w[2]}] = e
	}
	return nil
}
