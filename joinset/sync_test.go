package joinset_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshjoin/comm"
	"github.com/hupe1980/meshjoin/joinset"
	"github.com/hupe1980/meshjoin/testutil"
)

func TestBlockSync(t *testing.T) {
	t.Run("ZeroNumberingShortCircuits", func(t *testing.T) {
		ch := comm.Single()
		sync, err := joinset.BlockSync(context.Background(), ch, 0, joinset.New(0))
		require.NoError(t, err)
		assert.Equal(t, 0, sync.NKeys())
	})

	t.Run("SingleRankProducesDenseCleanedBlock", func(t *testing.T) {
		ch := comm.Single()
		loc := &joinset.IndexedSet{
			Keys:   []uint64{2, 0, 2},
			Index:  []int{0, 2, 3, 4},
			Values: []uint64{5, 3, 1, 3},
		}
		sync, err := joinset.BlockSync(context.Background(), ch, 6, loc)
		require.NoError(t, err)
		require.NoError(t, sync.Validate())

		require.Equal(t, 6, sync.NKeys())
		assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, sync.Keys)
		assert.Equal(t, []uint64{1}, sync.Row(0))
		assert.Equal(t, []uint64{3, 5}, sync.Row(2))
		assert.Empty(t, sync.Row(4))
	})

	t.Run("RejectsKeyOutsideNumbering", func(t *testing.T) {
		ch := comm.Single()
		loc := joinset.FromTag([]uint64{9})
		_, err := joinset.BlockSync(context.Background(), ch, 5, loc)
		require.Error(t, err)
	})

	t.Run("MergesContributionsAcrossRanks", func(t *testing.T) {
		testutil.RunGroup(t, 2, func(ctx context.Context, ch comm.Channel) error {
			// Both ranks know something about id 1; the owner must see the
			// union, duplicate-free.
			loc := &joinset.IndexedSet{
				Keys:   []uint64{1},
				Index:  []int{0, 2},
				Values: []uint64{uint64(10 + ch.Rank()), 10},
			}
			sync, err := joinset.BlockSync(ctx, ch, 4, loc)
			if err != nil {
				return err
			}

			lo, hi := comm.BlockRange(ch.Rank(), ch.Size(), 4)
			if sync.NKeys() != int(hi-lo) {
				return fmt.Errorf("rank %d: %d owned rows", ch.Rank(), sync.NKeys())
			}
			if ch.Rank() == 0 {
				row := sync.Row(1)
				if fmt.Sprint(row) != fmt.Sprint([]uint64{10, 11}) {
					return fmt.Errorf("owner row %v", row)
				}
			}
			return nil
		})
	})
}

func TestBlockUpdate(t *testing.T) {
	t.Run("ZeroNumberingReturnsCopy", func(t *testing.T) {
		ch := comm.Single()
		loc := joinset.FromTag([]uint64{3, 3})
		out, err := joinset.BlockUpdate(context.Background(), ch, 0, nil, loc)
		require.NoError(t, err)
		assert.Equal(t, loc.Keys, out.Keys)
		assert.Equal(t, loc.Values, out.Values)
	})

	t.Run("SingleRankRoundTripIsIdentity", func(t *testing.T) {
		ch := comm.Single()
		ctx := context.Background()

		loc := &joinset.IndexedSet{
			Keys:   []uint64{0, 2},
			Index:  []int{0, 1, 3},
			Values: []uint64{4, 1, 4},
		}
		sync, err := joinset.BlockSync(ctx, ch, 5, loc)
		require.NoError(t, err)

		out, err := joinset.BlockUpdate(ctx, ch, 5, sync, loc)
		require.NoError(t, err)
		require.NoError(t, out.Validate())

		// One rank means the canonical rows are the cleaned local rows.
		assert.Equal(t, loc.Keys, out.Keys)
		assert.Equal(t, []uint64{4}, out.Row(0))
		assert.Equal(t, []uint64{1, 4}, out.Row(1))
	})

	t.Run("FetchesCanonicalRowsFromOwners", func(t *testing.T) {
		testutil.RunGroup(t, 2, func(ctx context.Context, ch comm.Channel) error {
			// Rank 0 contributes knowledge about id 3, rank 1 asks for it.
			loc := joinset.New(0)
			if ch.Rank() == 0 {
				loc = &joinset.IndexedSet{
					Keys:   []uint64{3},
					Index:  []int{0, 2},
					Values: []uint64{8, 7},
				}
			}
			sync, err := joinset.BlockSync(ctx, ch, 10, loc)
			if err != nil {
				return err
			}

			want := joinset.New(0)
			if ch.Rank() == 1 {
				want = joinset.New(1)
				want.Keys[0] = 3
			}
			out, err := joinset.BlockUpdate(ctx, ch, 10, sync, want)
			if err != nil {
				return err
			}
			if ch.Rank() == 1 {
				if fmt.Sprint(out.Row(0)) != fmt.Sprint([]uint64{7, 8}) {
					return fmt.Errorf("fetched %v", out.Row(0))
				}
			}
			return nil
		})
	})
}
