package morton

import (
	"fmt"
	"sort"
)

// MaxLevel is the finest supported refinement level. With up to 3 active
// axes, 3*21 = 63 interleaved bits fit in a uint64.
const MaxLevel = 21

// Code identifies one spatial cell: per-axis grid coordinates at a given
// refinement level. Only the first dim entries of X are meaningful.
type Code struct {
	Level uint8
	X     [3]uint32
}

// Leaf is an aggregated spatial cell tagged with a weight, the unit of
// load balancing when building a rank index.
type Leaf struct {
	Code   Code
	Weight int
}

// Encode returns the code of the cell containing coord at the given level.
// Coordinates must be normalized to [0,1]; values outside are clamped.
func Encode(dim int, level uint8, coord []float64) Code {
	c := Code{Level: level}
	n := uint32(1) << level
	for j := 0; j < dim; j++ {
		v := coord[j]
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		cell := uint32(v * float64(n))
		if cell >= n {
			cell = n - 1
		}
		c.X[j] = cell
	}
	return c
}

// Norm returns the interleaved code of the cell's lowest descendant at
// MaxLevel. It defines a total order over cells of mixed levels in which
// a cell precedes everything it contains except its own first descendant.
func (c Code) Norm(dim int) uint64 {
	shift := MaxLevel - uint(c.Level)
	var v uint64
	for j := 0; j < dim; j++ {
		x := uint64(c.X[j]) << shift
		for k := 0; k < MaxLevel; k++ {
			v |= ((x >> uint(k)) & 1) << uint(k*dim+j)
		}
	}
	return v
}

// Compare orders codes by their normalized position on the curve; equal
// positions are ordered coarsest first so a parent sorts before its first
// child.
func Compare(dim int, a, b Code) int {
	na, nb := a.Norm(dim), b.Norm(dim)
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	switch {
	case a.Level < b.Level:
		return -1
	case a.Level > b.Level:
		return 1
	}
	return 0
}

// Child returns the i-th child cell at the next refinement level.
// For dim active axes there are 1<<dim children; bit j of i selects the
// upper half along axis j.
func (c Code) Child(dim, i int) Code {
	child := Code{Level: c.Level + 1}
	for j := 0; j < dim; j++ {
		child.X[j] = c.X[j]<<1 | uint32(i>>j)&1
	}
	return child
}

// Order returns the permutation that sorts codes ascending.
func Order(dim int, codes []Code) []int {
	order := make([]int, len(codes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return Compare(dim, codes[order[a]], codes[order[b]]) < 0
	})
	return order
}

// CheckRankIndex verifies that a rank index of nRanks+1 boundary codes is
// non-decreasing. Looking up codes in an unsorted rank index is a
// precondition violation, so builders validate once up front.
func CheckRankIndex(dim int, rankIndex []Code) error {
	if len(rankIndex) < 2 {
		return fmt.Errorf("morton: rank index needs at least 2 boundaries, got %d", len(rankIndex))
	}
	for i := 1; i < len(rankIndex); i++ {
		if Compare(dim, rankIndex[i-1], rankIndex[i]) > 0 {
			return fmt.Errorf("morton: rank index decreases at boundary %d", i)
		}
	}
	return nil
}

// LocateRank returns the rank owning code c in a rank index of
// nRanks+1 non-decreasing boundary codes. The index must have been
// validated with CheckRankIndex.
func LocateRank(dim int, c Code, rankIndex []Code) int {
	nRanks := len(rankIndex) - 1
	norm := c.Norm(dim)
	// Largest r with rankIndex[r].Norm <= norm.
	r := sort.Search(nRanks, func(i int) bool {
		return rankIndex[i+1].Norm(dim) > norm
	})
	if r >= nRanks {
		r = nRanks - 1
	}
	return r
}
