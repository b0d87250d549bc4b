package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/meshjoin/comm"
)

type options struct {
	compression CompressionType
	dialTimeout time.Duration
	dialRetry   time.Duration
}

// Option configures Connect.
type Option func(*options)

// WithCompression sets the frame payload compression. Every rank of the
// group must use the same setting.
func WithCompression(c CompressionType) Option {
	return func(o *options) { o.compression = c }
}

// WithDialTimeout bounds how long Connect keeps retrying a peer that is
// not listening yet.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// Channel is a comm.Channel over a full TCP mesh. Like every channel it
// must be used by exactly one goroutine; the collectives run their peer
// I/O concurrently internally.
type Channel struct {
	rank        int
	size        int
	compression CompressionType

	conns   []net.Conn // conns[rank] is nil
	readers []*bufio.Reader
	writers []*bufio.Writer

	step uint64
}

var _ comm.Channel = (*Channel)(nil)

// Connect establishes the mesh for the given rank. addrs lists every
// rank's listen address in rank order; addrs[rank] is bound locally. A
// rank dials every lower rank and accepts from every higher one, so the
// call returns once all size-1 peers are wired. Collective in effect:
// all ranks must connect concurrently.
func Connect(ctx context.Context, rank int, addrs []string, opts ...Option) (*Channel, error) {
	o := options{
		compression: CompressionNone,
		dialTimeout: 30 * time.Second,
		dialRetry:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}

	size := len(addrs)
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("tcp: rank %d outside group of %d", rank, size)
	}

	c := &Channel{
		rank:        rank,
		size:        size,
		compression: o.compression,
		conns:       make([]net.Conn, size),
		readers:     make([]*bufio.Reader, size),
		writers:     make([]*bufio.Writer, size),
	}
	if size == 1 {
		return c, nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addrs[rank])
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	g, ctx := errgroup.WithContext(ctx)

	// Accept from higher ranks; the dialer announces itself first.
	g.Go(func() error {
		for n := 0; n < size-1-rank; n++ {
			conn, err := accept(ctx, ln)
			if err != nil {
				return err
			}
			var hello [4]byte
			if _, err := io.ReadFull(conn, hello[:]); err != nil {
				conn.Close()
				return err
			}
			peer := int(binary.LittleEndian.Uint32(hello[:]))
			if peer <= rank || peer >= size || c.conns[peer] != nil {
				conn.Close()
				return fmt.Errorf("tcp: unexpected hello from rank %d", peer)
			}
			c.conns[peer] = conn
		}
		return nil
	})

	// Dial every lower rank, retrying until its listener is up.
	for peer := 0; peer < rank; peer++ {
		peer := peer
		g.Go(func() error {
			conn, err := dial(ctx, addrs[peer], o.dialTimeout, o.dialRetry)
			if err != nil {
				return err
			}
			var hello [4]byte
			binary.LittleEndian.PutUint32(hello[:], uint32(rank))
			if _, err := conn.Write(hello[:]); err != nil {
				conn.Close()
				return err
			}
			c.conns[peer] = conn
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.Close()
		return nil, err
	}

	for peer, conn := range c.conns {
		if conn != nil {
			c.readers[peer] = bufio.NewReader(conn)
			c.writers[peer] = bufio.NewWriter(conn)
		}
	}
	return c, nil
}

// Close tears down every peer connection.
func (c *Channel) Close() error {
	var first error
	for _, conn := range c.conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Rank implements comm.Channel.
func (c *Channel) Rank() int { return c.rank }

// Size implements comm.Channel.
func (c *Channel) Size() int { return c.size }

// Frame format: [step uint64][compression uint8][length uint32][block].

func (c *Channel) writeFrame(w *bufio.Writer, step uint64, payload []byte) error {
	block, err := compressBlock(payload, c.compression)
	if err != nil {
		return err
	}
	var hdr [13]byte
	binary.LittleEndian.PutUint64(hdr[0:], step)
	hdr[8] = byte(c.compression)
	binary.LittleEndian.PutUint32(hdr[9:], uint32(len(block)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(block); err != nil {
		return err
	}
	return w.Flush()
}

func (c *Channel) readFrame(r *bufio.Reader, step uint64) ([]byte, error) {
	var hdr [13]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if got := binary.LittleEndian.Uint64(hdr[0:]); got != step {
		return nil, fmt.Errorf("tcp: group out of step: frame %d, expected %d", got, step)
	}
	comp := CompressionType(hdr[8])
	if comp != c.compression {
		return nil, fmt.Errorf("tcp: compression mismatch: frame %d, configured %d", comp, c.compression)
	}
	block := make([]byte, binary.LittleEndian.Uint32(hdr[9:]))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}
	return decompressBlock(block, comp)
}

// AllToAll implements comm.Channel. One frame travels to and from every
// peer per call; peer I/O runs concurrently so large exchanges cannot
// head-of-line block each other.
func (c *Channel) AllToAll(ctx context.Context, send [][]byte) ([][]byte, error) {
	if len(send) != c.size {
		return nil, fmt.Errorf("comm: all-to-all needs %d payloads, got %d", c.size, len(send))
	}

	c.step++
	step := c.step

	recv := make([][]byte, c.size)
	recv[c.rank] = append([]byte(nil), send[c.rank]...)
	if c.size == 1 {
		return recv, nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		for _, conn := range c.conns {
			if conn != nil {
				conn.SetDeadline(deadline)
			}
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for peer := 0; peer < c.size; peer++ {
		if peer == c.rank {
			continue
		}
		peer := peer
		g.Go(func() error {
			return c.writeFrame(c.writers[peer], step, send[peer])
		})
		g.Go(func() error {
			payload, err := c.readFrame(c.readers[peer], step)
			if err != nil {
				return fmt.Errorf("tcp: rank %d from %d: %w", c.rank, peer, err)
			}
			recv[peer] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recv, nil
}

// AllGather implements comm.Channel.
func (c *Channel) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	send := make([][]byte, c.size)
	for r := range send {
		send[r] = data
	}
	return c.AllToAll(ctx, send)
}

// AllReduceUint64 implements comm.Channel.
func (c *Channel) AllReduceUint64(ctx context.Context, v uint64, op comm.ReduceOp) (uint64, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	gathered, err := c.AllGather(ctx, buf[:])
	if err != nil {
		return 0, err
	}
	vals := make([]uint64, len(gathered))
	for r, b := range gathered {
		vals[r] = binary.LittleEndian.Uint64(b)
	}
	return comm.ReduceUint64s(vals, op), nil
}

// AllReduceFloat64 implements comm.Channel.
func (c *Channel) AllReduceFloat64(ctx context.Context, v float64, op comm.ReduceOp) (float64, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	gathered, err := c.AllGather(ctx, buf[:])
	if err != nil {
		return 0, err
	}
	vals := make([]float64, len(gathered))
	for r, b := range gathered {
		vals[r] = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return comm.ReduceFloat64s(vals, op), nil
}

// Barrier implements comm.Channel.
func (c *Channel) Barrier(ctx context.Context) error {
	_, err := c.AllGather(ctx, nil)
	return err
}

func accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if tl, ok := ln.(*net.TCPListener); ok {
			tl.SetDeadline(deadline)
		}
	}
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func dial(ctx context.Context, addr string, timeout, retry time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tcp: dialing %s: %w", addr, err)
		case <-time.After(retry):
		}
	}
}
