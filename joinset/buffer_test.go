package joinset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer(t *testing.T) {
	t.Run("AppendGrows", func(t *testing.T) {
		b := NewBuffer[uint64](2)
		for i := uint64(0); i < 10; i++ {
			b.Append(i)
		}
		require.Equal(t, 10, b.Len())
		assert.GreaterOrEqual(t, b.Cap(), 10)
		assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, b.Values())
	})

	t.Run("ReserveKeepsContents", func(t *testing.T) {
		b := NewBuffer[int](1)
		b.Append(7)
		b.Reserve(100)
		require.GreaterOrEqual(t, b.Cap(), 100)
		assert.Equal(t, []int{7}, b.Values())
	})

	t.Run("SetLenWithinCapacity", func(t *testing.T) {
		b := NewBuffer[int](4)
		b.Append(1)
		b.Append(2)
		b.SetLen(1)
		assert.Equal(t, []int{1}, b.Values())
	})

	t.Run("SetLenBeyondCapacityPanics", func(t *testing.T) {
		b := NewBuffer[int](2)
		assert.Panics(t, func() { b.SetLen(3) })
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBuffer[int](2)
		b.Append(1)
		b.Reset()
		assert.Equal(t, 0, b.Len())
	})
}
