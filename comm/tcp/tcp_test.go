package tcp

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/meshjoin/comm"
)

// freeAddrs reserves n loopback addresses by listening and closing again.
func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = ln.Addr().String()
		ln.Close()
	}
	return addrs
}

// connectMesh brings up a full group and hands each channel to fn.
func connectMesh(t *testing.T, n int, fn func(ctx context.Context, ch *Channel) error, opts ...Option) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	addrs := freeAddrs(t, n)
	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < n; rank++ {
		rank := rank
		g.Go(func() error {
			ch, err := Connect(ctx, rank, addrs, opts...)
			if err != nil {
				return fmt.Errorf("rank %d connect: %w", rank, err)
			}
			defer ch.Close()
			return fn(ctx, ch)
		})
	}
	require.NoError(t, g.Wait())
}

func TestConnect(t *testing.T) {
	t.Run("RejectsBadRank", func(t *testing.T) {
		_, err := Connect(context.Background(), 2, []string{"127.0.0.1:1"})
		require.Error(t, err)
	})

	t.Run("SingleRankNeedsNoNetwork", func(t *testing.T) {
		ch, err := Connect(context.Background(), 0, []string{"127.0.0.1:1"})
		require.NoError(t, err)
		defer ch.Close()

		recv, err := ch.AllToAll(context.Background(), [][]byte{{42}})
		require.NoError(t, err)
		assert.Equal(t, []byte{42}, recv[0])
	})
}

func TestChannelCollectives(t *testing.T) {
	t.Run("AllToAllRoutesByRank", func(t *testing.T) {
		connectMesh(t, 3, func(ctx context.Context, ch *Channel) error {
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
				if !bytes.Equal(want, payload) {
					return fmt.Errorf("rank %d got %v from %d", ch.Rank(), payload, src)
				}
			}
			return nil
		})
	})

	t.Run("AllReduceAndBarrier", func(t *testing.T) {
		connectMesh(t, 2, func(ctx context.Context, ch *Channel) error {
			sum, err := ch.AllReduceUint64(ctx, uint64(ch.Rank()+1), comm.ReduceSum)
			if err != nil {
				return err
			}
			if sum != 3 {
				return fmt.Errorf("sum %d", sum)
			}
			f, err := ch.AllReduceFloat64(ctx, float64(ch.Rank()), comm.ReduceMax)
			if err != nil {
				return err
			}
			if f != 1 {
				return fmt.Errorf("max %v", f)
			}
			return ch.Barrier(ctx)
		})
	})

	t.Run("CompressedPayloads", func(t *testing.T) {
		for _, compression := range []CompressionType{CompressionLZ4, CompressionZSTD} {
			connectMesh(t, 2, func(ctx context.Context, ch *Channel) error {
				// Highly repetitive payload, sure to compress.
				payload := bytes.Repeat([]byte{7, 7, 7, 0}, 4096)
				gathered, err := ch.AllGather(ctx, payload)
				if err != nil {
					return err
				}
				for r, b := range gathered {
					if !bytes.Equal(payload, b) {
						return fmt.Errorf("rank %d: corrupt payload from %d", ch.Rank(), r)
					}
				}
				return nil
			}, WithCompression(compression))
		}
	})

	t.Run("EmptyPayloads", func(t *testing.T) {
		connectMesh(t, 2, func(ctx context.Context, ch *Channel) error {
			recv, err := ch.AllToAll(ctx, [][]byte{nil, nil})
			if err != nil {
				return err
			}
			for _, b := range recv {
				if len(b) != 0 {
					return fmt.Errorf("unexpected payload %v", b)
				}
			}
			return nil
		})
	})
}

func TestCompressBlock(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		data := bytes.Repeat([]byte("meshjoin"), 512)
		for _, compression := range []CompressionType{CompressionNone, CompressionLZ4, CompressionZSTD} {
			block, err := compressBlock(data, compression)
			require.NoError(t, err)
			out, err := decompressBlock(block, compression)
			require.NoError(t, err)
			assert.Equal(t, data, out, "compression %d", compression)
		}
	})

	t.Run("IncompressibleStoredRaw", func(t *testing.T) {
		data := make([]byte, 256)
		for i := range data {
			data[i] = byte(i * 37)
		}
		block, err := compressBlock(data, CompressionLZ4)
		require.NoError(t, err)
		out, err := decompressBlock(block, CompressionLZ4)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	})

	t.Run("RejectsTruncatedBlock", func(t *testing.T) {
		_, err := decompressBlock([]byte{1, 2}, CompressionLZ4)
		require.Error(t, err)
	})
}
