package joinset

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// IndexedSet is a CSR-encoded multimap from global ids to lists of global
// ids. Keys[i] owns the value range Values[Index[i]:Index[i+1]].
//
// Structural invariants (checked by Validate): len(Index) == len(Keys)+1,
// Index[0] == 0, Index non-decreasing, Index[len(Keys)] == len(Values).
// Keys sorted unique and rows sorted duplicate-free are post-conditions
// of SortKeys/MergeKeys and Clean respectively, not of every state.
type IndexedSet struct {
	Keys   []uint64
	Index  []int
	Values []uint64
}

// New returns an empty set with nKeys zeroed keys and a zeroed index.
func New(nKeys int) *IndexedSet {
	return &IndexedSet{
		Keys:  make([]uint64, nKeys),
		Index: make([]int, nKeys+1),
	}
}

// Validate checks the structural CSR invariants.
func (s *IndexedSet) Validate() error {
	if len(s.Index) != len(s.Keys)+1 {
		return fmt.Errorf("joinset: index length %d, want %d", len(s.Index), len(s.Keys)+1)
	}
	if s.Index[0] != 0 {
		return fmt.Errorf("joinset: index starts at %d, want 0", s.Index[0])
	}
	for i := 1; i < len(s.Index); i++ {
		if s.Index[i] < s.Index[i-1] {
			return fmt.Errorf("joinset: index decreases at %d", i)
		}
	}
	if got, want := s.Index[len(s.Keys)], len(s.Values); got != want {
		return fmt.Errorf("joinset: index covers %d values, have %d", got, want)
	}
	return nil
}

// Row returns the value range of key position i. The slice aliases the
// set and is invalidated by any operation that rebuilds it.
func (s *IndexedSet) Row(i int) []uint64 {
	return s.Values[s.Index[i]:s.Index[i+1]]
}

// NKeys returns the number of key rows.
func (s *IndexedSet) NKeys() int { return len(s.Keys) }

// searchKey locates g in sorted keys, or -1.
func searchKey(keys []uint64, g uint64) int {
	i := sort.Search(len(keys), func(k int) bool { return keys[k] >= g })
	if i < len(keys) && keys[i] == g {
		return i
	}
	return -1
}

// FromTag groups the positions of tag by equal tag value. Keys are the
// distinct tag values ascending; each row lists the positions sharing
// that value, ascending.
func FromTag(tag []uint64) *IndexedSet {
	if len(tag) == 0 {
		return New(0)
	}

	order := make([]int, len(tag))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return tag[order[a]] < tag[order[b]] })

	nKeys := 1
	for i := 1; i < len(order); i++ {
		if tag[order[i]] != tag[order[i-1]] {
			nKeys++
		}
	}

	set := New(nKeys)
	set.Values = make([]uint64, len(tag))

	k := 0
	set.Keys[0] = tag[order[0]]
	set.Values[0] = uint64(order[0])
	for i := 1; i < len(order); i++ {
		if tag[order[i]] != tag[order[i-1]] {
			k++
			set.Keys[k] = tag[order[i]]
			set.Index[k] = i
		}
		set.Values[i] = uint64(order[i])
	}
	set.Index[nKeys] = len(tag)
	return set
}

// ByEquiv converts "these positions collided on the same target" into
// "these original labels form one equivalence group".
//
// init is an alternate label array parallel to set.Values. Value
// positions sharing an equal list value are grouped; every group of two
// or more members emits a row keyed by the shared value, listing the
// members' init labels (a member whose label equals the shared value
// contributes the first member's label instead). Groups of one are
// dropped.
func ByEquiv(set *IndexedSet, init []uint64) (*IndexedSet, error) {
	listSize := set.Index[len(set.Keys)]
	if len(init) != listSize {
		return nil, fmt.Errorf("joinset: init label array has %d entries, want %d", len(init), listSize)
	}
	if listSize == 0 {
		return New(0), nil
	}

	order := make([]int, listSize)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := set.Values[order[a]], set.Values[order[b]]
		if va != vb {
			return va < vb
		}
		return init[order[a]] < init[order[b]]
	})

	// Count groups with at least two members.
	nGroups := 0
	runLen := 1
	total := 0
	for i := 1; i <= listSize; i++ {
		if i < listSize && set.Values[order[i]] == set.Values[order[i-1]] {
			runLen++
			continue
		}
		if runLen >= 2 {
			nGroups++
			total += runLen - 1
		}
		runLen = 1
	}

	equiv := New(nGroups)
	equiv.Values = make([]uint64, total)

	g := 0
	shift := 0
	start := 0
	for i := 1; i <= listSize; i++ {
		if i < listSize && set.Values[order[i]] == set.Values[order[i-1]] {
			continue
		}
		if i-start >= 2 {
			cur := set.Values[order[start]]
			equiv.Keys[g] = cur
			first := order[start]
			for j := start + 1; j < i; j++ {
				o := order[j]
				if cur != init[o] {
					equiv.Values[shift] = init[o]
				} else {
					equiv.Values[shift] = init[first]
				}
				shift++
			}
			g++
			equiv.Index[g] = shift
		}
		start = i
	}
	return equiv, nil
}

// Copy returns a deep copy.
func (s *IndexedSet) Copy() *IndexedSet {
	out := &IndexedSet{
		Keys:   make([]uint64, len(s.Keys)),
		Index:  make([]int, len(s.Index)),
		Values: make([]uint64, len(s.Values)),
	}
	copy(out.Keys, s.Keys)
	copy(out.Index, s.Index)
	copy(out.Values, s.Values)
	return out
}

// SortKeys returns a new set with rows reordered by ascending key.
// Duplicate keys are kept (see MergeKeys).
func (s *IndexedSet) SortKeys() *IndexedSet {
	order := make([]int, len(s.Keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return s.Keys[order[a]] < s.Keys[order[b]] })

	out := New(len(s.Keys))
	out.Values = make([]uint64, len(s.Values))
	shift := 0
	for i, o := range order {
		out.Keys[i] = s.Keys[o]
		shift += copy(out.Values[shift:], s.Row(o))
		out.Index[i+1] = shift
	}
	return out
}

// SortRows returns a new set with each row's values sorted ascending,
// keys untouched.
func (s *IndexedSet) SortRows() *IndexedSet {
	out := s.Copy()
	for i := 0; i < len(out.Keys); i++ {
		row := out.Row(i)
		sort.Slice(row, func(a, b int) bool { return row[a] < row[b] })
	}
	return out
}

// Clean returns a new set whose rows are sorted ascending with
// consecutive duplicates removed.
func (s *IndexedSet) Clean() *IndexedSet {
	sorted := s.SortRows()
	out := New(len(sorted.Keys))
	copy(out.Keys, sorted.Keys)
	out.Values = make([]uint64, 0, len(sorted.Values))
	for i := 0; i < len(sorted.Keys); i++ {
		row := sorted.Row(i)
		for j, v := range row {
			if j == 0 || v != row[j-1] {
				out.Values = append(out.Values, v)
			}
		}
		out.Index[i+1] = len(out.Values)
	}
	return out
}

// CleanByLinked de-duplicates each row using an auxiliary array parallel
// to Values: rows are ordered by the linked values and entries whose
// linked value repeats are dropped. Both arrays are reordered in
// lockstep; the surviving linked values are returned alongside.
func (s *IndexedSet) CleanByLinked(linked []uint64) (*IndexedSet, []uint64, error) {
	if len(linked) != len(s.Values) {
		return nil, nil, fmt.Errorf("joinset: linked array has %d entries, want %d", len(linked), len(s.Values))
	}

	vals := make([]uint64, len(s.Values))
	link := make([]uint64, len(linked))
	copy(vals, s.Values)
	copy(link, linked)

	for i := 0; i < len(s.Keys); i++ {
		lo, hi := s.Index[i], s.Index[i+1]
		row := vals[lo:hi]
		aux := link[lo:hi]
		order := make([]int, len(row))
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(a, b int) bool {
			if aux[order[a]] != aux[order[b]] {
				return aux[order[a]] < aux[order[b]]
			}
			return row[order[a]] < row[order[b]]
		})
		pRow := make([]uint64, len(row))
		pAux := make([]uint64, len(aux))
		for k, o := range order {
			pRow[k] = row[o]
			pAux[k] = aux[o]
		}
		copy(row, pRow)
		copy(aux, pAux)
	}

	out := New(len(s.Keys))
	copy(out.Keys, s.Keys)
	out.Values = make([]uint64, 0, len(vals))
	keptLink := make([]uint64, 0, len(link))
	for i := 0; i < len(s.Keys); i++ {
		lo, hi := s.Index[i], s.Index[i+1]
		for j := lo; j < hi; j++ {
			if j == lo || link[j] != link[j-1] {
				out.Values = append(out.Values, vals[j])
				keptLink = append(keptLink, link[j])
			}
		}
		out.Index[i+1] = len(out.Values)
	}
	return out, keptLink, nil
}

// Invert returns the transposed multimap: for every distinct value
// appearing in Values, the keys referencing it. It fails if a referenced
// value cannot be located in the inverted key set; callers treat that as
// fatal.
func (s *IndexedSet) Invert() (*IndexedSet, error) {
	listSize := s.Index[len(s.Keys)]
	if listSize == 0 {
		return New(0), nil
	}

	distinct := roaring64.New()
	distinct.AddMany(s.Values)
	keys := distinct.ToArray()

	inv := New(len(keys))
	copy(inv.Keys, keys)

	for i := 0; i < len(s.Keys); i++ {
		for _, v := range s.Row(i) {
			id := searchKey(inv.Keys, v)
			if id < 0 {
				return nil, fmt.Errorf("joinset: cannot find %d in element list while inverting", v)
			}
			inv.Index[id+1]++
		}
	}
	for i := 0; i < len(inv.Keys); i++ {
		inv.Index[i+1] += inv.Index[i]
	}

	inv.Values = make([]uint64, inv.Index[len(inv.Keys)])
	count := make([]int, len(inv.Keys))
	for i := 0; i < len(s.Keys); i++ {
		for _, v := range s.Row(i) {
			id := searchKey(inv.Keys, v)
			inv.Values[inv.Index[id]+count[id]] = s.Keys[i]
			count[id]++
		}
	}
	return inv, nil
}

// SingleOrder returns the union of keys and values as a strictly
// increasing duplicate-free array: every global id the set touches.
func (s *IndexedSet) SingleOrder() []uint64 {
	all := roaring64.New()
	all.AddMany(s.Keys)
	all.AddMany(s.Values)
	return all.ToArray()
}

// Compress drops a row value that is also present as an earlier-or-equal
// key in the set, since the relation is already representable from the
// other direction; only irreducible back-references survive. Keys and
// rows must be sorted ascending (Clean provides sorted rows).
func (s *IndexedSet) Compress() (*IndexedSet, error) {
	for i := 1; i < len(s.Keys); i++ {
		if s.Keys[i-1] > s.Keys[i] {
			return nil, fmt.Errorf("joinset: compress requires sorted keys")
		}
	}

	out := New(len(s.Keys))
	copy(out.Keys, s.Keys)
	out.Values = make([]uint64, 0, len(s.Values))

	for i := 0; i < len(s.Keys); i++ {
		cur := s.Keys[i]
		row := s.Row(i)
		for j, v := range row {
			switch {
			case v > cur:
				if j == 0 || row[j-1] != v {
					out.Values = append(out.Values, v)
				}
			case v < cur:
				if searchKey(s.Keys[:i+1], v) < 0 { // not a key, keep it
					out.Values = append(out.Values, v)
				}
			}
		}
		out.Index[i+1] = len(out.Values)
	}
	return out, nil
}

// MergeKeys collapses duplicate keys into one row holding the
// concatenation of their lists. If sorted is false the set is key-sorted
// first.
func (s *IndexedSet) MergeKeys(sorted bool) *IndexedSet {
	src := s
	if !sorted {
		src = s.SortKeys()
	}
	if len(src.Keys) < 2 {
		return src.Copy()
	}

	nKeys := 1
	for i := 1; i < len(src.Keys); i++ {
		if src.Keys[i] != src.Keys[i-1] {
			nKeys++
		}
	}

	out := New(nKeys)
	out.Values = make([]uint64, len(src.Values))
	copy(out.Values, src.Values)

	// Rows of equal keys are adjacent after sorting, so each merged row
	// is a contiguous range of Values.
	k := 0
	out.Keys[0] = src.Keys[0]
	for i := 1; i < len(src.Keys); i++ {
		if src.Keys[i] != src.Keys[i-1] {
			out.Index[k+1] = src.Index[i]
			k++
			out.Keys[k] = src.Keys[i]
		}
	}
	out.Index[nKeys] = len(out.Values)
	return out
}
