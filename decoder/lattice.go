package decoder

import (
	"cmp"
	"slices"
)

// Lattice holds the distinct word sequences that survived the search,
// best first. Only sequences within the lattice beam of the best are kept.
type Lattice struct {
	Paths []*Path
}

// Empty reports whether the lattice has no hypotheses.
func (l *Lattice) Empty() bool { return l == nil || len(l.Paths) == 0 }

// ShortestPath returns the lowest-cost hypothesis.
func (l *Lattice) ShortestPath() (*Path, bool) {
	if l.Empty() {
		return nil, false
	}
	return l.Paths[0], true
}

// NumPaths returns the number of distinct hypotheses.
func (l *Lattice) NumPaths() int {
	if l == nil {
		return 0
	}
	return len(l.Paths)
}

// newLattice keeps the cheapest path per word sequence and prunes to beam.
func newLattice(paths []*Path, beam float64) *Lattice {
	slices.SortStableFunc(paths, func(a, b *Path) int {
		return cmp.Compare(a.Weight.Cost(), b.Weight.Cost())
	})
	lat := &Lattice{}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if len(lat.Paths) > 0 && p.Weight.Cost() > lat.Paths[0].Weight.Cost()+beam {
			break
		}
		k := p.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		lat.Paths = append(lat.Paths, p)
	}
	return lat
}
