package joinset

import "sort"

// Pair asserts that two entities are the same physical object and should
// be merged. Pairs are ordered: (a,b) and (b,a) are distinct entries.
// The upstream geometric matcher is expected to emit one order only.
type Pair struct {
	A, B uint64
}

// EquivSet is a growable bag of equivalence pairs with the same doubling
// growth discipline as Buffer.
type EquivSet struct {
	pairs *Buffer[Pair]
}

// NewEquivSet allocates a set with the given initial capacity.
func NewEquivSet(capacity int) *EquivSet {
	return &EquivSet{pairs: NewBuffer[Pair](capacity)}
}

// Len returns the number of stored pairs.
func (s *EquivSet) Len() int { return s.pairs.Len() }

// Cap returns the allocated pair capacity.
func (s *EquivSet) Cap() int { return s.pairs.Cap() }

// Reserve grows the backing storage to hold at least min pairs.
func (s *EquivSet) Reserve(min int) { s.pairs.Reserve(min) }

// Add appends one pair.
func (s *EquivSet) Add(a, b uint64) { s.pairs.Append(Pair{A: a, B: b}) }

// Pairs returns the stored pairs; the slice is invalidated by the next
// mutating call.
func (s *EquivSet) Pairs() []Pair { return s.pairs.Values() }

// Clean returns a new set sorted ascending by (A,B) with exact duplicate
// pairs collapsed. Clean is idempotent.
func (s *EquivSet) Clean() *EquivSet {
	src := s.pairs.Values()
	out := NewEquivSet(len(src))
	if len(src) == 0 {
		return out
	}

	sorted := make([]Pair, len(src))
	copy(sorted, src)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].A != sorted[j].A {
			return sorted[i].A < sorted[j].A
		}
		return sorted[i].B < sorted[j].B
	})

	out.pairs.Append(sorted[0])
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			out.pairs.Append(sorted[i])
		}
	}
	return out
}
