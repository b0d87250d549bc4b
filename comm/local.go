package comm

import (
	"bytes"
	"context"
	"fmt"
)

// LocalGroup is an in-process Channel: every rank is a goroutine of the
// same process and payloads travel through buffered channels. It backs
// unit tests and degenerate single-rank runs, where every collective
// reduces to a local copy.
type LocalGroup struct {
	rank   int
	shared *localShared
}

type localShared struct {
	size int
	// mail[src][dst] carries one payload per collective step. The buffer
	// of one lets every rank post all sends before draining receives,
	// which keeps a full all-to-all deadlock free.
	mail [][]chan []byte
}

// NewLocalGroup creates size connected ranks. Each returned channel must
// be used by exactly one goroutine.
func NewLocalGroup(size int) []*LocalGroup {
	if size < 1 {
		size = 1
	}
	shared := &localShared{
		size: size,
		mail: make([][]chan []byte, size),
	}
	for src := 0; src < size; src++ {
		shared.mail[src] = make([]chan []byte, size)
		for dst := 0; dst < size; dst++ {
			shared.mail[src][dst] = make(chan []byte, 1)
		}
	}
	group := make([]*LocalGroup, size)
	for r := 0; r < size; r++ {
		group[r] = &LocalGroup{rank: r, shared: shared}
	}
	return group
}

// Single returns a one-rank group, the identity shim for collectives.
func Single() *LocalGroup {
	return NewLocalGroup(1)[0]
}

// Rank returns the caller's rank.
func (g *LocalGroup) Rank() int { return g.rank }

// Size returns the number of ranks in the group.
func (g *LocalGroup) Size() int { return g.shared.size }

// AllToAll implements Channel. Payloads are copied so no slice is shared
// across ranks.
func (g *LocalGroup) AllToAll(ctx context.Context, send [][]byte) ([][]byte, error) {
	size := g.shared.size
	if len(send) != size {
		return nil, fmt.Errorf("comm: all-to-all needs %d payloads, got %d", size, len(send))
	}

	if size == 1 {
		return [][]byte{bytes.Clone(send[0])}, nil
	}

	for dst := 0; dst < size; dst++ {
		select {
		case g.shared.mail[g.rank][dst] <- bytes.Clone(send[dst]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	recv := make([][]byte, size)
	for src := 0; src < size; src++ {
		select {
		case recv[src] = <-g.shared.mail[src][g.rank]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return recv, nil
}

// AllGather implements Channel.
func (g *LocalGroup) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	send := make([][]byte, g.shared.size)
	for r := range send {
		send[r] = data
	}
	return g.AllToAll(ctx, send)
}

// AllReduceUint64 implements Channel.
func (g *LocalGroup) AllReduceUint64(ctx context.Context, v uint64, op ReduceOp) (uint64, error) {
	gathered, err := g.AllGather(ctx, appendUint64s(nil, []uint64{v}))
	if err != nil {
		return 0, err
	}
	vals := make([]uint64, len(gathered))
	for r, b := range gathered {
		vals[r] = decodeUint64s(b)[0]
	}
	return ReduceUint64s(vals, op), nil
}

// AllReduceFloat64 implements Channel.
func (g *LocalGroup) AllReduceFloat64(ctx context.Context, v float64, op ReduceOp) (float64, error) {
	gathered, err := g.AllGather(ctx, appendFloat64s(nil, []float64{v}))
	if err != nil {
		return 0, err
	}
	vals := make([]float64, len(gathered))
	for r, b := range gathered {
		vals[r] = decodeFloat64s(b)[0]
	}
	return ReduceFloat64s(vals, op), nil
}

// Barrier implements Channel.
func (g *LocalGroup) Barrier(ctx context.Context) error {
	_, err := g.AllGather(ctx, nil)
	return err
}
