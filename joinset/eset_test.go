package joinset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquivSetClean(t *testing.T) {
	t.Run("SortsAndDropsExactDuplicates", func(t *testing.T) {
		s := NewEquivSet(4)
		s.Add(2, 7)
		s.Add(2, 7)
		s.Add(3, 1)

		cleaned := s.Clean()
		require.Equal(t, 2, cleaned.Len())
		assert.Equal(t, []Pair{{A: 2, B: 7}, {A: 3, B: 1}}, cleaned.Pairs())
	})

	t.Run("KeepsBothOrientations", func(t *testing.T) {
		// (a,b) and (b,a) are distinct entries; cleaning never reorders
		// the members of a pair.
		s := NewEquivSet(2)
		s.Add(7, 2)
		s.Add(2, 7)

		cleaned := s.Clean()
		assert.Equal(t, []Pair{{A: 2, B: 7}, {A: 7, B: 2}}, cleaned.Pairs())
	})

	t.Run("Idempotent", func(t *testing.T) {
		s := NewEquivSet(4)
		s.Add(5, 1)
		s.Add(5, 1)
		s.Add(0, 9)

		once := s.Clean()
		twice := once.Clean()
		assert.Equal(t, once.Pairs(), twice.Pairs())
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, 0, NewEquivSet(0).Clean().Len())
	})
}
