package meshjoin

import (
	"context"
	"time"

	"github.com/hupe1980/meshjoin/boxes"
	"github.com/hupe1980/meshjoin/comm"
	"github.com/hupe1980/meshjoin/joinset"
)

// Joiner bundles the distributed joining primitives behind one
// communication channel. Create one Joiner per rank of the group; all
// context-taking methods are collective over that group.
type Joiner struct {
	ch comm.Channel
	o  options
}

// New creates a Joiner over the given channel.
func New(ch comm.Channel, opts ...Option) (*Joiner, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Joiner{ch: ch, o: o}, nil
}

// BoxIndex is the result of balancing and redistributing a box set: the
// rank's new shard, the Morton space partition it was balanced against,
// and distribution statistics.
type BoxIndex struct {
	Boxes   *boxes.Set
	Distrib *boxes.Distrib
	Stats   *boxes.Stats
}

// BuildBoxIndex builds a balanced distributed index over the local boxes
// of every rank. extents holds box i at [i*dim*2, (i+1)*dim*2) as
// (min per axis..., max per axis...). Each box migrates to the rank
// owning its Morton cell; the multiset of global ids over the group is
// unchanged and extents travel bit-identical. Collective.
func (j *Joiner) BuildBoxIndex(ctx context.Context, dim int, gnums []uint64, extents []float64) (*BoxIndex, error) {
	start := time.Now()
	idx, err := j.buildBoxIndex(ctx, dim, gnums, extents)

	fit := 0.0
	if idx != nil {
		fit = idx.Distrib.Fit()
	}
	j.o.metricsCollector.RecordBoxIndex(len(gnums), fit, time.Since(start), err)
	j.o.logger.LogBoxIndex(ctx, len(gnums), fit, err)
	return idx, err
}

func (j *Joiner) buildBoxIndex(ctx context.Context, dim int, gnums []uint64, extents []float64) (*BoxIndex, error) {
	set, err := boxes.NewSet(ctx, j.ch, dim, gnums, extents,
		boxes.WithNormalize(j.o.normalize),
		boxes.WithProjection(j.o.projection),
	)
	if err != nil {
		return nil, err
	}

	d, err := boxes.BuildDistrib(ctx, j.ch, set.Dim(), j.o.maxLevel, set.BuildLeaves(j.o.leafLevel), j.o.imbalanceTolerance)
	if err != nil {
		return nil, err
	}

	// Locate boxes at the distribution's finest level: boundary codes
	// created by refining an oversized leaf sit below the aggregation
	// level and can only separate boxes carrying finer codes.
	redist, err := set.Redistribute(ctx, d, set.LeafCodes(d.MaxLevel()))
	if err != nil {
		return nil, err
	}

	stats, err := d.CollectStats(ctx, j.ch, redist.Size(), j.o.nQuantiles)
	if err != nil {
		return nil, err
	}

	return &BoxIndex{Boxes: redist, Distrib: d, Stats: stats}, nil
}

// MergeResult is the outcome of MergeVertices.
type MergeResult struct {
	// Tags[i] is the merge class of element i: the smallest global id
	// reachable from it through the equivalence relation. Elements with
	// equal tags merge into one entity.
	Tags []uint64

	// Groups maps each tag to the local positions carrying it, one row
	// per distinct tag.
	Groups *joinset.IndexedSet

	// LocalRounds and GlobalRounds count the spreading passes taken to
	// converge.
	LocalRounds, GlobalRounds int
}

// MergeVertices computes the transitive closure of pairwise element
// equivalences across all ranks. gnums[i] is the global id of local
// element i; equiv holds pairs of local positions into gnums declared
// equivalent. Every element ends up tagged with the smallest global id
// of its class, so ranks sharing an element agree on its merged
// identity without further exchange. Collective.
func (j *Joiner) MergeVertices(ctx context.Context, gnums []uint64, equiv *joinset.EquivSet) (*MergeResult, error) {
	start := time.Now()
	res, err := j.mergeVertices(ctx, gnums, equiv)

	local, global := 0, 0
	if res != nil {
		local, global = res.LocalRounds, res.GlobalRounds
	}
	j.o.metricsCollector.RecordMerge(len(gnums), local, global, time.Since(start), err)
	j.o.logger.LogMerge(ctx, len(gnums), local, global, err)
	return res, err
}

func (j *Joiner) mergeVertices(ctx context.Context, gnums []uint64, equiv *joinset.EquivSet) (*MergeResult, error) {
	n := len(gnums)
	pairs := equiv.Clean().Pairs()
	for p, pr := range pairs {
		if pr.A >= uint64(n) || pr.B >= uint64(n) {
			bad := pr.A
			if pr.B >= uint64(n) {
				bad = pr.B
			}
			return nil, &ErrPairOutOfRange{Pair: p, Index: bad, N: n}
		}
	}

	res := &MergeResult{Tags: make([]uint64, n)}
	copy(res.Tags, gnums)
	prev := make([]uint64, n)

	rounds, err := j.localSpread(pairs, res.Tags, prev)
	res.LocalRounds += rounds
	if err != nil {
		return res, err
	}

	if j.ch.Size() > 1 {
		if err := j.globalSpread(ctx, gnums, pairs, prev, res); err != nil {
			return res, err
		}
	}

	res.Groups = joinset.FromTag(res.Tags)
	return res, nil
}

// localSpread propagates the smaller tag across every pair until a full
// pass changes nothing. Returns the number of passes taken.
func (j *Joiner) localSpread(pairs []joinset.Pair, tag, prev []uint64) (int, error) {
	spread := func() {
		for _, p := range pairs {
			if tag[p.A] < tag[p.B] {
				tag[p.B] = tag[p.A]
			} else if tag[p.B] < tag[p.A] {
				tag[p.A] = tag[p.B]
			}
		}
	}

	copy(prev, tag)
	spread()
	rounds := 1
	for !equalUint64s(tag, prev) {
		if rounds >= j.o.maxLocalIterations {
			return rounds, ErrConvergenceFailed
		}
		copy(prev, tag)
		spread()
		rounds++
	}
	return rounds, nil
}

// globalSpread alternates pushing local tags to the block owners of the
// global numbering with local re-spreading, until no owner observes a
// change anywhere in the group.
func (j *Joiner) globalSpread(ctx context.Context, gnums []uint64, pairs []joinset.Pair, prev []uint64, res *MergeResult) error {
	var maxLocal uint64
	for _, g := range gnums {
		if g > maxLocal {
			maxLocal = g
		}
	}
	maxGnum, err := j.ch.AllReduceUint64(ctx, maxLocal, comm.ReduceMax)
	if err != nil {
		return err
	}
	maxGnum++

	rank, size := j.ch.Rank(), j.ch.Size()
	dest := make([]int, len(gnums))
	for i, g := range gnums {
		dest[i] = comm.BlockOwner(g, size, maxGnum)
	}
	ex, err := comm.NewExchanger(ctx, j.ch, dest)
	if err != nil {
		return err
	}

	// The id routing is fixed; only the tags change between rounds.
	recvGnum, err := ex.Uint64s(ctx, 1, gnums)
	if err != nil {
		return err
	}

	lo, hi := comm.BlockRange(rank, size, maxGnum)
	glob := make([]uint64, hi-lo)
	prevGlob := make([]uint64, hi-lo)
	for i := range glob {
		glob[i] = lo + uint64(i)
	}
	copy(prevGlob, glob)

	reply := make([]uint64, len(recvGnum))
	for {
		if res.GlobalRounds >= j.o.maxGlobalIterations {
			return ErrConvergenceFailed
		}
		res.GlobalRounds++

		recvTag, err := ex.Uint64s(ctx, 1, res.Tags)
		if err != nil {
			return err
		}
		for k, g := range recvGnum {
			if id := g - lo; recvTag[k] < glob[id] {
				glob[id] = recvTag[k]
			}
		}

		var changed uint64
		if !equalUint64s(glob, prevGlob) {
			changed = 1
		}
		sum, err := j.ch.AllReduceUint64(ctx, changed, comm.ReduceSum)
		if err != nil {
			return err
		}
		if sum == 0 {
			return nil
		}
		copy(prevGlob, glob)

		// Send the owners' current minima back to where the ids live.
		for k, g := range recvGnum {
			reply[k] = glob[g-lo]
		}
		back, err := ex.ReverseUint64s(ctx, 1, reply)
		if err != nil {
			return err
		}
		for i, t := range back {
			if t < res.Tags[i] {
				res.Tags[i] = t
			}
		}

		rounds, err := j.localSpread(pairs, res.Tags, prev)
		res.LocalRounds += rounds
		if err != nil {
			return err
		}
	}
}

// Resolution is the outcome of ResolveEquivalences.
type Resolution struct {
	// IDs lists, in ascending order, every global id the local input
	// referenced (keys and values).
	IDs []uint64

	// Reps[i] is the representative of IDs[i]: the smallest global id of
	// its equivalence class.
	Reps []uint64

	// Canonical maps each representative owned by this rank's block to
	// the other members of its class, compressed so no relation is
	// stored twice.
	Canonical *joinset.IndexedSet

	// Rounds counts the synchronization rounds taken to converge.
	Rounds int
}

// ResolveEquivalences computes, for every global id referenced by loc on
// any rank, the smallest id reachable through the union of all rows,
// treating each row as relating its key to each of its values. maxGnum
// bounds the global numbering; every id must be below it. The relation
// is synchronized block-wise round by round until a fixed point, then
// compressed into the canonical representative map. Collective.
func (j *Joiner) ResolveEquivalences(ctx context.Context, maxGnum uint64, loc *joinset.IndexedSet) (*Resolution, error) {
	start := time.Now()
	res, err := j.resolveEquivalences(ctx, maxGnum, loc)

	rounds := 0
	if res != nil {
		rounds = res.Rounds
	}
	j.o.metricsCollector.RecordResolve(rounds, time.Since(start), err)
	j.o.logger.LogResolve(ctx, loc.NKeys(), rounds, err)
	return res, err
}

func (j *Joiner) resolveEquivalences(ctx context.Context, maxGnum uint64, loc *joinset.IndexedSet) (*Resolution, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if maxGnum == 0 {
		return &Resolution{Canonical: joinset.New(0)}, nil
	}

	res := &Resolution{IDs: loc.SingleOrder()}
	pos := make(map[uint64]int, len(res.IDs))
	for i, g := range res.IDs {
		pos[g] = i
	}

	// The edge list is fixed; only the representatives evolve.
	type edge struct{ a, b uint64 }
	var edges []edge
	for i, k := range loc.Keys {
		for _, v := range loc.Row(i) {
			if v != k {
				edges = append(edges, edge{a: k, b: v})
			}
		}
	}

	rank, size := j.ch.Rank(), j.ch.Size()
	lo, hi := comm.BlockRange(rank, size, maxGnum)
	blockSize := int(hi - lo)

	// parent[i] is the owner's current representative for id lo+i; it
	// only ever decreases, starting from the identity.
	parent := make([]uint64, blockSize)
	repSet := joinset.New(blockSize)
	repSet.Values = parent
	for i := 0; i < blockSize; i++ {
		parent[i] = lo + uint64(i)
		repSet.Keys[i] = lo + uint64(i)
		repSet.Index[i+1] = i + 1
	}

	query := joinset.New(len(res.IDs))
	copy(query.Keys, res.IDs)
	squery := joinset.New(blockSize)

	// Hook-and-shortcut rounds: every edge hooks the larger of its two
	// current representatives onto the smaller, then every owned id
	// shortcuts to its representative's representative. Both steps only
	// lower representatives, and a round changing nothing anywhere means
	// every class has collapsed onto its smallest id.
	for {
		if res.Rounds >= j.o.maxSyncRounds {
			return res, ErrConvergenceFailed
		}
		res.Rounds++

		fetched, err := joinset.BlockUpdate(ctx, j.ch, maxGnum, repSet, query)
		if err != nil {
			return res, err
		}
		cur := make([]uint64, len(res.IDs))
		for i := range res.IDs {
			cur[i] = fetched.Row(i)[0]
		}

		hooks := joinset.New(0)
		var hkeys, hvals []uint64
		hindex := []int{0}
		for _, e := range edges {
			ra, rb := cur[pos[e.a]], cur[pos[e.b]]
			if ra == rb {
				continue
			}
			if ra < rb {
				ra, rb = rb, ra
			}
			hkeys = append(hkeys, ra)
			hvals = append(hvals, rb)
			hindex = append(hindex, len(hvals))
		}
		hooks.Keys, hooks.Index, hooks.Values = hkeys, hindex, hvals

		sync, err := joinset.BlockSync(ctx, j.ch, maxGnum, hooks.MergeKeys(false).Clean())
		if err != nil {
			return res, err
		}

		var changed uint64
		for i := 0; i < blockSize; i++ {
			// Rows are sorted ascending after a block sync.
			if row := sync.Row(i); len(row) > 0 && row[0] < parent[i] {
				parent[i] = row[0]
				changed = 1
			}
		}

		// Shortcut: parent[i] = parent[parent[i]].
		copy(squery.Keys, parent)
		gp, err := joinset.BlockUpdate(ctx, j.ch, maxGnum, repSet, squery)
		if err != nil {
			return res, err
		}
		for i := 0; i < blockSize; i++ {
			if g := gp.Row(i)[0]; g < parent[i] {
				parent[i] = g
				changed = 1
			}
		}

		sum, err := j.ch.AllReduceUint64(ctx, changed, comm.ReduceSum)
		if err != nil {
			return res, err
		}
		if sum == 0 {
			break
		}
	}

	// Every referenced id fetches its final representative.
	fetched, err := joinset.BlockUpdate(ctx, j.ch, maxGnum, repSet, query)
	if err != nil {
		return res, err
	}
	res.Reps = make([]uint64, len(res.IDs))
	for i := range res.IDs {
		res.Reps[i] = fetched.Row(i)[0]
	}

	// Canonical map: route (rep, member) back to the rep's owner and
	// strip self and duplicate relations.
	members := joinset.New(len(res.IDs))
	copy(members.Keys, res.Reps)
	members.Values = make([]uint64, len(res.IDs))
	copy(members.Values, res.IDs)
	for i := range members.Keys {
		members.Index[i+1] = i + 1
	}
	canon, err := joinset.BlockSync(ctx, j.ch, maxGnum, members)
	if err != nil {
		return res, err
	}
	if res.Canonical, err = canon.Compress(); err != nil {
		return res, err
	}
	return res, nil
}

func equalUint64s(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
