package testutil

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/meshjoin/comm"
)

// RunGroup runs fn once per rank of a fresh in-process group, each rank
// on its own goroutine, and fails the test on the first error. The
// context carries a deadline so a stuck collective fails the test
// instead of hanging the suite.
func RunGroup(t *testing.T, size int, fn func(ctx context.Context, ch comm.Channel) error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	group := comm.NewLocalGroup(size)
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range group {
		ch := ch
		g.Go(func() error {
			return fn(ctx, ch)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("rank failed: %v", err)
	}
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float64 in a loop).
func (r *RNG) FillUniform(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float64()
	}
}

// UniformBoxes generates num random boxes of dimension dim inside the
// unit cube, numbered firstGnum onward, with edge lengths up to maxSize.
// Extents are laid out (min per axis..., max per axis...) with stride
// dim*2.
func (r *RNG) UniformBoxes(num, dim int, firstGnum uint64, maxSize float64) ([]uint64, []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stride := dim * 2
	gnums := make([]uint64, num)
	extents := make([]float64, num*stride)
	for i := 0; i < num; i++ {
		gnums[i] = firstGnum + uint64(i)
		for j := 0; j < dim; j++ {
			lo := r.rand.Float64() * (1 - maxSize)
			extents[i*stride+j] = lo
			extents[i*stride+j+dim] = lo + r.rand.Float64()*maxSize
		}
	}
	return gnums, extents
}
