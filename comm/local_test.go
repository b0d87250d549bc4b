package comm_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshjoin/comm"
	"github.com/hupe1980/meshjoin/testutil"
)

func TestLocalGroup(t *testing.T) {
	t.Run("SingleRankIsIdentity", func(t *testing.T) {
		ch := comm.Single()
		require.Equal(t, 0, ch.Rank())
		require.Equal(t, 1, ch.Size())

		recv, err := ch.AllToAll(context.Background(), [][]byte{{1, 2, 3}})
		require.NoError(t, err)
		require.Len(t, recv, 1)
		assert.Equal(t, []byte{1, 2, 3}, recv[0])
	})

	t.Run("AllToAllRoutesByRank", func(t *testing.T) {
		testutil.RunGroup(t, 3, func(ctx context.Context, ch comm.Channel) error {
			send := make([][]byte, ch.Size())
			for dst := range send {
				send[dst] = []byte{byte(ch.Rank()), byte(dst)}
			}
			recv, err := ch.AllToAll(ctx, send)
			if err != nil {
				return err
			}
			for src, payload := range recv {
				want := []byte{byte(src), byte(ch.Rank())}
				if !assert.ObjectsAreEqual(want, payload) {
					return fmt.Errorf("rank %d got %v from %d, want %v", ch.Rank(), payload, src, want)
				}
			}
			return nil
		})
	})

	t.Run("AllGather", func(t *testing.T) {
		testutil.RunGroup(t, 4, func(ctx context.Context, ch comm.Channel) error {
			gathered, err := ch.AllGather(ctx, []byte{byte(ch.Rank())})
			if err != nil {
				return err
			}
			for r, b := range gathered {
				if len(b) != 1 || b[0] != byte(r) {
					return fmt.Errorf("rank %d: gathered[%d] = %v", ch.Rank(), r, b)
				}
			}
			return nil
		})
	})

	t.Run("AllReduce", func(t *testing.T) {
		testutil.RunGroup(t, 4, func(ctx context.Context, ch comm.Channel) error {
			v := uint64(ch.Rank() + 1)

			minV, err := ch.AllReduceUint64(ctx, v, comm.ReduceMin)
			if err != nil {
				return err
			}
			maxV, err := ch.AllReduceUint64(ctx, v, comm.ReduceMax)
			if err != nil {
				return err
			}
			sumV, err := ch.AllReduceUint64(ctx, v, comm.ReduceSum)
			if err != nil {
				return err
			}
			if minV != 1 || maxV != 4 || sumV != 10 {
				return fmt.Errorf("min=%d max=%d sum=%d", minV, maxV, sumV)
			}

			f, err := ch.AllReduceFloat64(ctx, float64(ch.Rank()), comm.ReduceSum)
			if err != nil {
				return err
			}
			if f != 6 {
				return fmt.Errorf("float sum = %v", f)
			}
			return nil
		})
	})

	t.Run("Barrier", func(t *testing.T) {
		testutil.RunGroup(t, 3, func(ctx context.Context, ch comm.Channel) error {
			return ch.Barrier(ctx)
		})
	})

	t.Run("CancelledContextFails", func(t *testing.T) {
		group := comm.NewLocalGroup(2)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Only one rank participates, so the exchange cannot complete; the
		// cancelled context must surface instead of a hang.
		_, err := group[0].AllToAll(ctx, [][]byte{nil, {1}})
		require.ErrorIs(t, err, context.Canceled)
	})
}
