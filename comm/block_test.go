package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockRange(t *testing.T) {
	t.Run("PartitionsWithoutGapsOrOverlap", func(t *testing.T) {
		const size, max = 4, 10
		var next uint64
		for r := 0; r < size; r++ {
			lo, hi := BlockRange(r, size, max)
			assert.Equal(t, next, lo)
			assert.LessOrEqual(t, lo, hi)
			next = hi
		}
		assert.Equal(t, uint64(max), next)
	})

	t.Run("MoreRanksThanIDs", func(t *testing.T) {
		// Trailing ranks own empty ranges.
		lo, hi := BlockRange(5, 8, 3)
		assert.Equal(t, lo, hi)
	})
}

func TestBlockOwner(t *testing.T) {
	t.Run("OwnerMatchesRange", func(t *testing.T) {
		const size, max = 3, 17
		for g := uint64(0); g < max; g++ {
			r := BlockOwner(g, size, max)
			lo, hi := BlockRange(r, size, max)
			assert.LessOrEqual(t, lo, g)
			assert.Less(t, g, hi)
		}
	})

	t.Run("ClampsToLastRank", func(t *testing.T) {
		assert.Equal(t, 1, BlockOwner(9, 2, 10))
	})
}
