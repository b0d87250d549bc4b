package boxes

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/meshjoin/comm"
	"github.com/hupe1980/meshjoin/morton"
)

type setOptions struct {
	normalize  bool
	projection bool
}

// SetOption configures NewSet.
type SetOption func(*setOptions)

// WithNormalize rescales stored extents into [0,1] per active axis using
// the global extents.
func WithNormalize(normalize bool) SetOption {
	return func(o *setOptions) { o.normalize = normalize }
}

// WithProjection drops axes along which every box straddles the median
// plane of the set, reducing the indexing dimension for effectively
// planar layouts.
func WithProjection(projection bool) SetOption {
	return func(o *setOptions) { o.projection = projection }
}

// Set is one rank's shard of a global collection of axis-aligned boxes.
// Extents are stored per active axis as (min..., max...) with stride
// Dim()*2. Created once per matching pass.
type Set struct {
	dim     int
	axes    [3]int
	n       int
	nGlobal uint64

	gnums   []uint64
	extents []float64

	// Normalization parameters per active axis: stored extents relate to
	// input coordinates as (x - shift) / scale when normalized.
	normalized   bool
	shift, scale [3]float64

	ch comm.Channel
}

// NewSet builds a box set from local boxes. Global extents and the global
// box count are reduced collectively over ch; extents[i*dim*2:...] holds
// box i as (min per axis..., max per axis...). Collective.
func NewSet(ctx context.Context, ch comm.Channel, dim int, gnums []uint64, extents []float64, opts ...SetOption) (*Set, error) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("boxes: dimension %d out of range [1,3]", dim)
	}
	stride := dim * 2
	n := len(gnums)
	if len(extents) != n*stride {
		return nil, fmt.Errorf("boxes: %d extent values for %d boxes of dim %d", len(extents), n, dim)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			if extents[i*stride+j] > extents[i*stride+j+dim] {
				return nil, fmt.Errorf("boxes: box %d has min > max on axis %d", gnums[i], j)
			}
		}
	}

	// Global extents per axis.
	var gmin, gmax [3]float64
	for j := 0; j < dim; j++ {
		lmin, lmax := math.Inf(1), math.Inf(-1)
		for i := 0; i < n; i++ {
			lmin = math.Min(lmin, extents[i*stride+j])
			lmax = math.Max(lmax, extents[i*stride+j+dim])
		}
		var err error
		if gmin[j], err = ch.AllReduceFloat64(ctx, lmin, comm.ReduceMin); err != nil {
			return nil, err
		}
		if gmax[j], err = ch.AllReduceFloat64(ctx, lmax, comm.ReduceMax); err != nil {
			return nil, err
		}
	}

	nGlobal, err := ch.AllReduceUint64(ctx, uint64(n), comm.ReduceSum)
	if err != nil {
		return nil, err
	}

	s := &Set{
		dim:     dim,
		n:       n,
		nGlobal: nGlobal,
		ch:      ch,
	}
	for j := 0; j < 3; j++ {
		s.axes[j] = -1
	}

	// Detect and drop effectively planar axes: an axis is dropped when
	// every box, on every rank, is cut by the median plane of the set.
	keep := make([]bool, dim)
	if o.projection {
		for j := 0; j < dim; j++ {
			mid := (gmin[j] + gmax[j]) * 0.5
			straddles := uint64(1)
			for i := 0; i < n; i++ {
				if extents[i*stride+j] > mid || extents[i*stride+j+dim] < mid {
					straddles = 0
					break
				}
			}
			all, err := ch.AllReduceUint64(ctx, straddles, comm.ReduceMin)
			if err != nil {
				return nil, err
			}
			keep[j] = all == 0
		}
	} else {
		for j := range keep {
			keep[j] = true
		}
	}

	sdim := 0
	for j := 0; j < dim; j++ {
		if keep[j] {
			s.axes[sdim] = j
			sdim++
		}
	}
	// A fully degenerate set keeps its first axis rather than none.
	if sdim == 0 {
		s.axes[0] = 0
		sdim = 1
	}
	s.dim = sdim

	// Project onto the active axes.
	s.gnums = make([]uint64, n)
	copy(s.gnums, gnums)
	s.extents = make([]float64, n*sdim*2)
	for i := 0; i < n; i++ {
		for j := 0; j < sdim; j++ {
			k := s.axes[j]
			s.extents[i*sdim*2+j] = extents[i*stride+k]
			s.extents[i*sdim*2+j+sdim] = extents[i*stride+k+dim]
		}
	}

	for j := 0; j < sdim; j++ {
		k := s.axes[j]
		s.shift[j] = gmin[k]
		s.scale[j] = gmax[k] - gmin[k]
		if s.scale[j] == 0 {
			s.scale[j] = 1
		}
	}

	if o.normalize {
		s.normalized = true
		for i := 0; i < n; i++ {
			for j := 0; j < sdim; j++ {
				lo := i*sdim*2 + j
				hi := lo + sdim
				s.extents[lo] = (s.extents[lo] - s.shift[j]) / s.scale[j]
				s.extents[hi] = (s.extents[hi] - s.shift[j]) / s.scale[j]
			}
		}
	}

	return s, nil
}

// Dim returns the number of active axes after projection.
func (s *Set) Dim() int { return s.dim }

// ActiveAxes returns the original axis index of each active axis.
func (s *Set) ActiveAxes() []int { return append([]int(nil), s.axes[:s.dim]...) }

// Size returns the local number of boxes.
func (s *Set) Size() int { return s.n }

// GlobalSize returns the number of boxes across all ranks.
func (s *Set) GlobalSize() uint64 { return s.nGlobal }

// Extents returns the stored extents, stride Dim()*2 per box.
func (s *Set) Extents() []float64 { return s.extents }

// GlobalIDs returns the global id of each local box.
func (s *Set) GlobalIDs() []uint64 { return s.gnums }

// center returns box i's center normalized to [0,1] per active axis.
func (s *Set) center(i int) [3]float64 {
	var c [3]float64
	stride := s.dim * 2
	for j := 0; j < s.dim; j++ {
		mid := (s.extents[i*stride+j] + s.extents[i*stride+j+s.dim]) * 0.5
		if !s.normalized {
			mid = (mid - s.shift[j]) / s.scale[j]
		}
		c[j] = mid
	}
	return c
}

// LeafCodes returns each local box's Morton leaf at the given level,
// computed from the box center.
func (s *Set) LeafCodes(level uint8) []morton.Code {
	codes := make([]morton.Code, s.n)
	for i := 0; i < s.n; i++ {
		c := s.center(i)
		codes[i] = morton.Encode(s.dim, level, c[:])
	}
	return codes
}

// BuildLeaves aggregates the local boxes into weighted leaves at the
// given level: one leaf per occupied cell, weighted by its box count.
func (s *Set) BuildLeaves(level uint8) []morton.Leaf {
	codes := s.LeafCodes(level)
	weight := make(map[morton.Code]int, len(codes))
	for _, c := range codes {
		weight[c]++
	}
	leaves := make([]morton.Leaf, 0, len(weight))
	for c, w := range weight {
		leaves = append(leaves, morton.Leaf{Code: c, Weight: w})
	}
	order := morton.Order(s.dim, leafCodes(leaves))
	sorted := make([]morton.Leaf, len(leaves))
	for i, o := range order {
		sorted[i] = leaves[o]
	}
	return sorted
}

func leafCodes(leaves []morton.Leaf) []morton.Code {
	codes := make([]morton.Code, len(leaves))
	for i, l := range leaves {
		codes[i] = l.Code
	}
	return codes
}

// Redistribute moves every box to the rank owning its leaf code under d
// and returns the new local shard. codes[i] is box i's Morton leaf (see
// LeafCodes). The multiset of global ids across ranks is unchanged and
// extents travel bit-identical. Collective.
func (s *Set) Redistribute(ctx context.Context, d *Distrib, codes []morton.Code) (*Set, error) {
	if len(codes) != s.n {
		return nil, fmt.Errorf("boxes: %d leaf codes for %d boxes", len(codes), s.n)
	}

	dest := make([]int, s.n)
	for i, c := range codes {
		dest[i] = d.LocateRank(c)
	}

	ex, err := comm.NewExchanger(ctx, s.ch, dest)
	if err != nil {
		return nil, err
	}
	gnums, err := ex.Uint64s(ctx, 1, s.gnums)
	if err != nil {
		return nil, err
	}
	extents, err := ex.Float64s(ctx, s.dim*2, s.extents)
	if err != nil {
		return nil, err
	}

	out := &Set{
		dim:        s.dim,
		axes:       s.axes,
		n:          len(gnums),
		nGlobal:    s.nGlobal,
		gnums:      gnums,
		extents:    extents,
		normalized: s.normalized,
		shift:      s.shift,
		scale:      s.scale,
		ch:         s.ch,
	}
	return out, nil
}
