package joinset

import (
	"context"
	"fmt"

	"github.com/hupe1980/meshjoin/comm"
)

// BlockSync repartitions loc into block-distributed canonical form: rank
// r of the group owns the contiguous id range [lo_r, hi_r) of
// [0, maxGnum) and receives every rank's knowledge about the ids it
// owns. The result has one dense row per owned id, merged and cleaned.
//
// Collective: every rank must call with the same maxGnum. A zero maxGnum
// short-circuits to an empty set without communication.
func BlockSync(ctx context.Context, ch comm.Channel, maxGnum uint64, loc *IndexedSet) (*IndexedSet, error) {
	if maxGnum == 0 {
		return New(0), nil
	}

	rank, size := ch.Rank(), ch.Size()
	lo, hi := comm.BlockRange(rank, size, maxGnum)
	blockSize := int(hi - lo)

	dest := make([]int, len(loc.Keys))
	for i, k := range loc.Keys {
		if k >= maxGnum {
			return nil, fmt.Errorf("joinset: key %d outside global numbering [0,%d)", k, maxGnum)
		}
		dest[i] = comm.BlockOwner(k, size, maxGnum)
	}

	ex, err := comm.NewExchanger(ctx, ch, dest)
	if err != nil {
		return nil, err
	}

	// Each routed row carries its key followed by the key's list.
	pIndex := make([]int, len(loc.Keys)+1)
	pVals := make([]uint64, 0, len(loc.Values)+len(loc.Keys))
	for i, k := range loc.Keys {
		pVals = append(pVals, k)
		pVals = append(pVals, loc.Row(i)...)
		pIndex[i+1] = len(pVals)
	}

	rIndex, rVals, err := ex.Indexed(ctx, pIndex, pVals)
	if err != nil {
		return nil, err
	}

	sync := New(blockSize)
	for i := 0; i < blockSize; i++ {
		sync.Keys[i] = lo + uint64(i)
	}

	nRows := len(rIndex) - 1
	for i := 0; i < nRows; i++ {
		k := rVals[rIndex[i]]
		if k < lo || k >= hi {
			return nil, fmt.Errorf("joinset: received key %d outside owned block [%d,%d)", k, lo, hi)
		}
		sync.Index[k-lo+1] += rIndex[i+1] - rIndex[i] - 1
	}
	for i := 0; i < blockSize; i++ {
		sync.Index[i+1] += sync.Index[i]
	}

	sync.Values = make([]uint64, sync.Index[blockSize])
	count := make([]int, blockSize)
	for i := 0; i < nRows; i++ {
		s := rIndex[i]
		j := int(rVals[s] - lo)
		w := sync.Index[j] + count[j]
		n := copy(sync.Values[w:sync.Index[j+1]], rVals[s+1:rIndex[i+1]])
		count[j] += n
	}

	return sync.Clean(), nil
}

// BlockUpdate fetches, for each key of loc, the current canonical row
// from the rank owning it in sync's block distribution, and returns a new
// local set with the same keys and the fetched rows. The reverse
// direction of BlockSync.
//
// Collective: every rank must call with the same maxGnum; keys need not
// be distinct. A zero maxGnum returns loc unchanged.
func BlockUpdate(ctx context.Context, ch comm.Channel, maxGnum uint64, sync, loc *IndexedSet) (*IndexedSet, error) {
	if maxGnum == 0 {
		return loc.Copy(), nil
	}

	rank, size := ch.Rank(), ch.Size()
	lo, _ := comm.BlockRange(rank, size, maxGnum)

	dest := make([]int, len(loc.Keys))
	for i, k := range loc.Keys {
		if k >= maxGnum {
			return nil, fmt.Errorf("joinset: key %d outside global numbering [0,%d)", k, maxGnum)
		}
		dest[i] = comm.BlockOwner(k, size, maxGnum)
	}

	ex, err := comm.NewExchanger(ctx, ch, dest)
	if err != nil {
		return nil, err
	}

	wanted, err := ex.Uint64s(ctx, 1, loc.Keys)
	if err != nil {
		return nil, err
	}

	// Reply with the canonical row of every requested id.
	rIndex := make([]int, len(wanted)+1)
	for i, g := range wanted {
		blockID := int(g - lo)
		if blockID < 0 || blockID >= len(sync.Keys) {
			return nil, fmt.Errorf("joinset: requested id %d outside owned block starting at %d", g, lo)
		}
		rIndex[i+1] = rIndex[i] + (sync.Index[blockID+1] - sync.Index[blockID])
	}
	rVals := make([]uint64, 0, rIndex[len(wanted)])
	for _, g := range wanted {
		blockID := int(g - lo)
		rVals = append(rVals, sync.Row(blockID)...)
	}

	index, vals, err := ex.ReverseIndexed(ctx, rIndex, rVals)
	if err != nil {
		return nil, err
	}

	out := &IndexedSet{
		Keys:   make([]uint64, len(loc.Keys)),
		Index:  index,
		Values: vals,
	}
	copy(out.Keys, loc.Keys)
	return out, nil
}
