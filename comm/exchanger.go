package comm

import (
	"context"
	"fmt"
)

// Exchanger routes elements to per-element destination ranks and keeps the
// route so that replies can travel the same way back.
//
// The forward direction moves one entry per source element to its
// destination; received entries are ordered by source rank, and within one
// source rank in that rank's submission order. The reverse direction sends
// one entry per received element back to the rank it came from, restoring
// the original element order on arrival.
type Exchanger struct {
	ch       Channel
	srcOrder [][]int // per destination rank, source element positions
	sendCnt  []int
	recvCnt  []int // elements received per source rank
	nDest    int
}

// NewExchanger builds the routing state for the given per-element
// destinations and exchanges element counts. Collective.
func NewExchanger(ctx context.Context, ch Channel, dest []int) (*Exchanger, error) {
	size := ch.Size()

	e := &Exchanger{
		ch:       ch,
		srcOrder: make([][]int, size),
		sendCnt:  make([]int, size),
	}
	for i, r := range dest {
		if r < 0 || r >= size {
			return nil, fmt.Errorf("comm: destination rank %d out of range [0,%d)", r, size)
		}
		e.srcOrder[r] = append(e.srcOrder[r], i)
		e.sendCnt[r]++
	}

	send := make([][]byte, size)
	for r := 0; r < size; r++ {
		send[r] = appendUint64s(nil, []uint64{uint64(e.sendCnt[r])})
	}
	recv, err := e.ch.AllToAll(ctx, send)
	if err != nil {
		return nil, err
	}

	e.recvCnt = make([]int, size)
	for r := 0; r < size; r++ {
		e.recvCnt[r] = int(decodeUint64s(recv[r])[0])
		e.nDest += e.recvCnt[r]
	}
	return e, nil
}

// NSource returns the number of local source elements.
func (e *Exchanger) NSource() int {
	n := 0
	for _, c := range e.sendCnt {
		n += c
	}
	return n
}

// NDest returns the number of elements this rank receives in the forward
// direction.
func (e *Exchanger) NDest() int { return e.nDest }

// Uint64s moves stride values per source element to its destination and
// returns NDest()*stride values in destination order. Collective.
func (e *Exchanger) Uint64s(ctx context.Context, stride int, vals []uint64) ([]uint64, error) {
	size := e.ch.Size()
	send := make([][]byte, size)
	for r := 0; r < size; r++ {
		buf := make([]byte, 0, len(e.srcOrder[r])*stride*8)
		for _, i := range e.srcOrder[r] {
			buf = appendUint64s(buf, vals[i*stride:(i+1)*stride])
		}
		send[r] = buf
	}
	recv, err := e.ch.AllToAll(ctx, send)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, e.nDest*stride)
	for r := 0; r < size; r++ {
		got := decodeUint64s(recv[r])
		if len(got) != e.recvCnt[r]*stride {
			return nil, fmt.Errorf("comm: rank %d sent %d values, want %d", r, len(got), e.recvCnt[r]*stride)
		}
		out = append(out, got...)
	}
	return out, nil
}

// ReverseUint64s sends stride values per received element back along the
// route and returns them in the original source element order. Collective.
func (e *Exchanger) ReverseUint64s(ctx context.Context, stride int, vals []uint64) ([]uint64, error) {
	size := e.ch.Size()
	send := make([][]byte, size)
	off := 0
	for r := 0; r < size; r++ {
		n := e.recvCnt[r] * stride
		send[r] = appendUint64s(nil, vals[off:off+n])
		off += n
	}
	recv, err := e.ch.AllToAll(ctx, send)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, e.NSource()*stride)
	for r := 0; r < size; r++ {
		got := decodeUint64s(recv[r])
		if len(got) != e.sendCnt[r]*stride {
			return nil, fmt.Errorf("comm: rank %d replied %d values, want %d", r, len(got), e.sendCnt[r]*stride)
		}
		for k, i := range e.srcOrder[r] {
			copy(out[i*stride:(i+1)*stride], got[k*stride:(k+1)*stride])
		}
	}
	return out, nil
}

// Float64s is Uint64s for float64 payloads (extents travel bit-identical).
func (e *Exchanger) Float64s(ctx context.Context, stride int, vals []float64) ([]float64, error) {
	size := e.ch.Size()
	send := make([][]byte, size)
	for r := 0; r < size; r++ {
		buf := make([]byte, 0, len(e.srcOrder[r])*stride*8)
		for _, i := range e.srcOrder[r] {
			buf = appendFloat64s(buf, vals[i*stride:(i+1)*stride])
		}
		send[r] = buf
	}
	recv, err := e.ch.AllToAll(ctx, send)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, e.nDest*stride)
	for r := 0; r < size; r++ {
		got := decodeFloat64s(recv[r])
		if len(got) != e.recvCnt[r]*stride {
			return nil, fmt.Errorf("comm: rank %d sent %d values, want %d", r, len(got), e.recvCnt[r]*stride)
		}
		out = append(out, got...)
	}
	return out, nil
}

// Indexed moves one variable-length row per source element. index has
// len(dest)+1 prefix offsets into vals. It returns the received rows as a
// fresh (index, values) pair in destination order. Collective.
func (e *Exchanger) Indexed(ctx context.Context, index []int, vals []uint64) ([]int, []uint64, error) {
	sizes := make([]uint64, len(index)-1)
	for i := range sizes {
		sizes[i] = uint64(index[i+1] - index[i])
	}
	rSizes, err := e.Uint64s(ctx, 1, sizes)
	if err != nil {
		return nil, nil, err
	}
	rIndex := make([]int, len(rSizes)+1)
	for i, n := range rSizes {
		rIndex[i+1] = rIndex[i] + int(n)
	}

	size := e.ch.Size()
	send := make([][]byte, size)
	for r := 0; r < size; r++ {
		var buf []byte
		for _, i := range e.srcOrder[r] {
			buf = appendUint64s(buf, vals[index[i]:index[i+1]])
		}
		send[r] = buf
	}
	recv, err := e.ch.AllToAll(ctx, send)
	if err != nil {
		return nil, nil, err
	}
	rVals := make([]uint64, 0, rIndex[len(rIndex)-1])
	for r := 0; r < size; r++ {
		rVals = append(rVals, decodeUint64s(recv[r])...)
	}
	if len(rVals) != rIndex[len(rIndex)-1] {
		return nil, nil, fmt.Errorf("comm: indexed exchange received %d values, want %d", len(rVals), rIndex[len(rIndex)-1])
	}
	return rIndex, rVals, nil
}

// ReverseIndexed sends one variable-length row per received element back
// along the route. rIndex has NDest()+1 prefix offsets into rVals. The
// returned (index, values) pair is in the original source element order.
// Collective.
func (e *Exchanger) ReverseIndexed(ctx context.Context, rIndex []int, rVals []uint64) ([]int, []uint64, error) {
	sizes := make([]uint64, len(rIndex)-1)
	for i := range sizes {
		sizes[i] = uint64(rIndex[i+1] - rIndex[i])
	}
	srcSizes, err := e.ReverseUint64s(ctx, 1, sizes)
	if err != nil {
		return nil, nil, err
	}
	index := make([]int, len(srcSizes)+1)
	for i, n := range srcSizes {
		index[i+1] = index[i] + int(n)
	}

	size := e.ch.Size()
	send := make([][]byte, size)
	elt := 0
	for r := 0; r < size; r++ {
		var buf []byte
		for k := 0; k < e.recvCnt[r]; k++ {
			buf = appendUint64s(buf, rVals[rIndex[elt]:rIndex[elt+1]])
			elt++
		}
		send[r] = buf
	}
	recv, err := e.ch.AllToAll(ctx, send)
	if err != nil {
		return nil, nil, err
	}
	vals := make([]uint64, index[len(index)-1])
	for r := 0; r < size; r++ {
		got := decodeUint64s(recv[r])
		off := 0
		for _, i := range e.srcOrder[r] {
			n := index[i+1] - index[i]
			copy(vals[index[i]:index[i+1]], got[off:off+n])
			off += n
		}
		if off != len(got) {
			return nil, nil, fmt.Errorf("comm: rank %d replied %d values, want %d", r, len(got), off)
		}
	}
	return index, vals, nil
}
