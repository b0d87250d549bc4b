package comm

// Block distribution: global ids in [0, max) are assigned to ranks by
// contiguous numeric ranges, independent of where the data originated.

// BlockStep returns the range width of the block distribution of [0, max)
// over size ranks.
func BlockStep(size int, max uint64) uint64 {
	if size <= 0 {
		return max
	}
	return (max + uint64(size) - 1) / uint64(size)
}

// BlockRange returns the half-open id range [lo, hi) owned by rank.
// Trailing ranks may own an empty range when max < size*step.
func BlockRange(rank, size int, max uint64) (lo, hi uint64) {
	step := BlockStep(size, max)
	lo = uint64(rank) * step
	if lo > max {
		lo = max
	}
	hi = lo + step
	if hi > max {
		hi = max
	}
	return lo, hi
}

// BlockOwner returns the rank owning global id gid under the block
// distribution of [0, max) over size ranks.
func BlockOwner(gid uint64, size int, max uint64) int {
	step := BlockStep(size, max)
	if step == 0 {
		return 0
	}
	r := int(gid / step)
	if r >= size {
		r = size - 1
	}
	return r
}
