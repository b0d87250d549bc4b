package boxes

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/meshjoin/comm"
	"github.com/hupe1980/meshjoin/morton"
)

// Distrib is a weight-balanced partition of the Morton code space over
// the ranks of a group: rank r owns leaf codes in
// [rankIndex[r], rankIndex[r+1]).
type Distrib struct {
	dim       int
	nRanks    int
	maxLevel  uint8
	rankIndex []morton.Code
	fit       float64
}

// DefaultImbalanceTolerance bounds how much of the ideal per-rank weight
// a single leaf may carry before it is split to a finer level.
const DefaultImbalanceTolerance = 0.10

// BuildDistrib computes a rank index over the given weighted leaves so
// that each rank's assigned weight stays close to the ideal average.
// Leaves whose weight alone would exceed tolerance of the ideal are
// refined to finer code levels, so one oversized cell cannot monopolize
// a rank. Every rank computes the identical index. Collective.
func BuildDistrib(ctx context.Context, ch comm.Channel, dim int, maxLevel uint8, leaves []morton.Leaf, tolerance float64) (*Distrib, error) {
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("boxes: dimension %d out of range [1,3]", dim)
	}
	if maxLevel > morton.MaxLevel {
		maxLevel = morton.MaxLevel
	}
	if tolerance <= 0 {
		tolerance = DefaultImbalanceTolerance
	}

	nRanks := ch.Size()

	gMaxLevel, err := ch.AllReduceUint64(ctx, uint64(maxLevel), comm.ReduceMax)
	if err != nil {
		return nil, err
	}
	maxLevel = uint8(gMaxLevel)

	// Gather every rank's leaves; the merged, deterministically ordered
	// list lets all ranks derive the same boundaries without a central
	// coordinator. Leaves are aggregated cells, not boxes, so the
	// gathered volume stays small.
	gathered, err := ch.AllGather(ctx, encodeLeaves(leaves))
	if err != nil {
		return nil, err
	}
	var all []morton.Leaf
	for _, buf := range gathered {
		all = append(all, decodeLeaves(buf)...)
	}

	all = mergeLeaves(dim, all)

	d := &Distrib{
		dim:      dim,
		nRanks:   nRanks,
		maxLevel: maxLevel,
		fit:      1,
	}

	var total int
	for _, l := range all {
		total += l.Weight
	}
	if total == 0 || len(all) == 0 {
		// Trivial partition: everything lands on rank 0.
		d.rankIndex = trivialRankIndex(nRanks)
		return d, nil
	}

	// Split any leaf heavy enough to force an imbalance beyond tolerance
	// into equal-weight children at finer levels.
	ideal := float64(total) / float64(nRanks)
	limit := int(ideal * (1 + tolerance))
	if limit < 1 {
		limit = 1
	}
	all = refineLeaves(dim, maxLevel, all, limit)

	d.rankIndex = make([]morton.Code, nRanks+1)
	assigned := make([]int, nRanks)

	rank := 0
	cum := 0
	for _, l := range all {
		// Advance to the rank whose weight target the running total has
		// not yet met; boundary codes are the first leaf of each rank.
		for rank < nRanks-1 && float64(cum) >= float64(rank+1)*ideal {
			rank++
			d.rankIndex[rank] = l.Code
		}
		assigned[rank] += l.Weight
		cum += l.Weight
	}
	// Ranks that never received a boundary inherit the end of space.
	sentinel := maxCode(dim)
	for r := rank + 1; r <= nRanks; r++ {
		d.rankIndex[r] = sentinel
	}
	d.rankIndex[nRanks] = sentinel

	maxAssigned := 0
	for _, w := range assigned {
		if w > maxAssigned {
			maxAssigned = w
		}
	}
	d.fit = float64(maxAssigned) / ideal

	if err := morton.CheckRankIndex(dim, d.rankIndex); err != nil {
		return nil, err
	}
	return d, nil
}

// NRanks returns the number of ranks the index partitions over.
func (d *Distrib) NRanks() int { return d.nRanks }

// MaxLevel returns the finest refinement level used by the index.
func (d *Distrib) MaxLevel() uint8 { return d.maxLevel }

// Fit reports (max assigned weight) / (ideal average weight). Diagnostic
// only; 1.0 is a perfect balance.
func (d *Distrib) Fit() float64 { return d.fit }

// RankIndex returns the nRanks+1 boundary codes.
func (d *Distrib) RankIndex() []morton.Code {
	return append([]morton.Code(nil), d.rankIndex...)
}

// LocateRank returns the rank owning the given leaf code.
func (d *Distrib) LocateRank(c morton.Code) int {
	return morton.LocateRank(d.dim, c, d.rankIndex)
}

func trivialRankIndex(nRanks int) []morton.Code {
	idx := make([]morton.Code, nRanks+1)
	sentinel := maxCode(3)
	for r := 1; r <= nRanks; r++ {
		idx[r] = sentinel
	}
	return idx
}

func maxCode(dim int) morton.Code {
	c := morton.Code{Level: morton.MaxLevel}
	for j := 0; j < dim; j++ {
		c.X[j] = 1<<morton.MaxLevel - 1
	}
	return c
}

// mergeLeaves sorts leaves and sums the weights of identical codes.
func mergeLeaves(dim int, leaves []morton.Leaf) []morton.Leaf {
	if len(leaves) == 0 {
		return leaves
	}
	order := morton.Order(dim, leafCodes(leaves))
	merged := make([]morton.Leaf, 0, len(leaves))
	for _, o := range order {
		l := leaves[o]
		if n := len(merged); n > 0 && merged[n-1].Code == l.Code {
			merged[n-1].Weight += l.Weight
			continue
		}
		merged = append(merged, l)
	}
	return merged
}

// refineLeaves replaces every leaf heavier than limit by its children at
// the next level, splitting the weight evenly, until no leaf exceeds the
// limit or maxLevel is reached. Children of one cell are contiguous on
// the curve, so order is preserved.
func refineLeaves(dim int, maxLevel uint8, leaves []morton.Leaf, limit int) []morton.Leaf {
	out := make([]morton.Leaf, 0, len(leaves))
	for _, l := range leaves {
		if l.Weight <= limit || l.Code.Level >= maxLevel {
			out = append(out, l)
			continue
		}
		nChildren := 1 << dim
		base := l.Weight / nChildren
		rem := l.Weight % nChildren
		children := make([]morton.Leaf, 0, nChildren)
		for i := 0; i < nChildren; i++ {
			w := base
			if i < rem {
				w++
			}
			if w > 0 {
				children = append(children, morton.Leaf{Code: l.Code.Child(dim, i), Weight: w})
			}
		}
		// Children interleave on the curve in a dim-dependent order.
		corder := morton.Order(dim, leafCodes(children))
		tmp := make([]morton.Leaf, len(children))
		for i, o := range corder {
			tmp[i] = children[o]
		}
		out = append(out, refineLeaves(dim, maxLevel, tmp, limit)...)
	}
	return out
}

// Leaf wire encoding: level, x0, x1, x2, weight as little-endian uint64.

func encodeLeaves(leaves []morton.Leaf) []byte {
	buf := make([]byte, 0, len(leaves)*5*8)
	for _, l := range leaves {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(l.Code.Level))
		for j := 0; j < 3; j++ {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(l.Code.X[j]))
		}
		buf = binary.LittleEndian.AppendUint64(buf, uint64(l.Weight))
	}
	return buf
}

func decodeLeaves(buf []byte) []morton.Leaf {
	n := len(buf) / (5 * 8)
	leaves := make([]morton.Leaf, n)
	for i := 0; i < n; i++ {
		b := buf[i*5*8:]
		leaves[i].Code.Level = uint8(binary.LittleEndian.Uint64(b))
		for j := 0; j < 3; j++ {
			leaves[i].Code.X[j] = uint32(binary.LittleEndian.Uint64(b[(j+1)*8:]))
		}
		leaves[i].Weight = int(binary.LittleEndian.Uint64(b[4*8:]))
	}
	return leaves
}
