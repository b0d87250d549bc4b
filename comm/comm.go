package comm

import (
	"context"
	"encoding/binary"
	"math"
)

// ReduceOp selects the combining operation of an all-reduce.
type ReduceOp int

const (
	// ReduceMin keeps the minimum contribution.
	ReduceMin ReduceOp = iota
	// ReduceMax keeps the maximum contribution.
	ReduceMax
	// ReduceSum adds all contributions.
	ReduceSum
)

// Channel is the collective capability shared by the ranks of one group.
//
// All methods are collective and synchronous: they return only once every
// rank of the group has made the matching call, or the context is done.
type Channel interface {
	// Rank returns the caller's rank in [0, Size()).
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// AllToAll delivers send[r] to rank r and returns one payload per
	// rank; recv[r] is the payload rank r addressed to the caller.
	// len(send) must equal Size(). Payloads are owned by the receiver.
	AllToAll(ctx context.Context, send [][]byte) ([][]byte, error)

	// AllGather distributes data to every rank; out[r] is rank r's data.
	AllGather(ctx context.Context, data []byte) ([][]byte, error)

	// AllReduceUint64 combines one uint64 per rank with op.
	AllReduceUint64(ctx context.Context, v uint64, op ReduceOp) (uint64, error)

	// AllReduceFloat64 combines one float64 per rank with op.
	AllReduceFloat64(ctx context.Context, v float64, op ReduceOp) (float64, error)

	// Barrier blocks until every rank has entered it.
	Barrier(ctx context.Context) error
}

// ReduceUint64s folds gathered contributions deterministically by rank
// order. Channel implementations use it to combine all-gathered values.
func ReduceUint64s(vals []uint64, op ReduceOp) uint64 {
	acc := vals[0]
	for _, v := range vals[1:] {
		switch op {
		case ReduceMin:
			if v < acc {
				acc = v
			}
		case ReduceMax:
			if v > acc {
				acc = v
			}
		case ReduceSum:
			acc += v
		}
	}
	return acc
}

// ReduceFloat64s is the float64 counterpart of ReduceUint64s.
func ReduceFloat64s(vals []float64, op ReduceOp) float64 {
	acc := vals[0]
	for _, v := range vals[1:] {
		switch op {
		case ReduceMin:
			if v < acc {
				acc = v
			}
		case ReduceMax:
			if v > acc {
				acc = v
			}
		case ReduceSum:
			acc += v
		}
	}
	return acc
}

// Wire encoding. All ranks run on a homogeneous cluster, so fixed-width
// little-endian values are exchanged without negotiation.

func appendUint64s(dst []byte, vals []uint64) []byte {
	for _, v := range vals {
		dst = binary.LittleEndian.AppendUint64(dst, v)
	}
	return dst
}

func decodeUint64s(data []byte) []uint64 {
	vals := make([]uint64, len(data)/8)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return vals
}

func appendFloat64s(dst []byte, vals []float64) []byte {
	for _, v := range vals {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
	}
	return dst
}

func decodeFloat64s(data []byte) []float64 {
	vals := make([]float64, len(data)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return vals
}
