package joinset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTag(t *testing.T) {
	t.Run("GroupsPositionsByTag", func(t *testing.T) {
		set := FromTag([]uint64{5, 5, 9, 5, 9})
		require.NoError(t, set.Validate())

		assert.Equal(t, []uint64{5, 9}, set.Keys)
		assert.Equal(t, []int{0, 3, 5}, set.Index)
		assert.Equal(t, []uint64{0, 1, 3, 2, 4}, set.Values)
	})

	t.Run("Empty", func(t *testing.T) {
		set := FromTag(nil)
		require.NoError(t, set.Validate())
		assert.Equal(t, 0, set.NKeys())
	})
}

func TestByEquiv(t *testing.T) {
	t.Run("GroupsCollidingPositions", func(t *testing.T) {
		// Positions 0 and 2 collided on target 40, positions 1, 3 and 4 on
		// target 41. init labels the positions.
		set := &IndexedSet{
			Keys:   []uint64{10, 11},
			Index:  []int{0, 2, 5},
			Values: []uint64{40, 41, 40, 41, 41},
		}
		require.NoError(t, set.Validate())
		init := []uint64{100, 101, 102, 103, 104}

		equiv, err := ByEquiv(set, init)
		require.NoError(t, err)
		require.NoError(t, equiv.Validate())

		assert.Equal(t, []uint64{40, 41}, equiv.Keys)
		assert.Equal(t, []uint64{102}, equiv.Row(0))
		assert.Equal(t, []uint64{103, 104}, equiv.Row(1))
	})

	t.Run("DropsSingletonGroups", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{10},
			Index:  []int{0, 2},
			Values: []uint64{40, 41},
		}
		equiv, err := ByEquiv(set, []uint64{100, 101})
		require.NoError(t, err)
		assert.Equal(t, 0, equiv.NKeys())
	})

	t.Run("SelfLabelFallsBackToFirstMember", func(t *testing.T) {
		// The second member's label equals the shared target, so it
		// contributes the first member's label instead.
		set := &IndexedSet{
			Keys:   []uint64{10},
			Index:  []int{0, 2},
			Values: []uint64{40, 40},
		}
		equiv, err := ByEquiv(set, []uint64{7, 40})
		require.NoError(t, err)
		require.Equal(t, 1, equiv.NKeys())
		assert.Equal(t, []uint64{7}, equiv.Row(0))
	})

	t.Run("RejectsMismatchedInit", func(t *testing.T) {
		set := FromTag([]uint64{1, 1})
		_, err := ByEquiv(set, []uint64{0})
		require.Error(t, err)
	})
}

func TestSortAndClean(t *testing.T) {
	t.Run("SortKeysReordersRowsInLockstep", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{9, 3},
			Index:  []int{0, 2, 3},
			Values: []uint64{90, 91, 30},
		}
		sorted := set.SortKeys()
		require.NoError(t, sorted.Validate())
		assert.Equal(t, []uint64{3, 9}, sorted.Keys)
		assert.Equal(t, []uint64{30}, sorted.Row(0))
		assert.Equal(t, []uint64{90, 91}, sorted.Row(1))
	})

	t.Run("CleanSortsRowsAndDropsDuplicates", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{1},
			Index:  []int{0, 5},
			Values: []uint64{4, 2, 4, 1, 2},
		}
		cleaned := set.Clean()
		require.NoError(t, cleaned.Validate())
		assert.Equal(t, []uint64{1, 2, 4}, cleaned.Row(0))
	})

	t.Run("CleanByLinkedDeduplicatesOnTheLinkedValue", func(t *testing.T) {
		// Two entries share linked value 7; after ordering by (linked,
		// value) only the first of them survives, and the kept linked
		// values come back aligned.
		set := &IndexedSet{
			Keys:   []uint64{1},
			Index:  []int{0, 3},
			Values: []uint64{30, 10, 20},
		}
		cleaned, kept, err := set.CleanByLinked([]uint64{7, 5, 7})
		require.NoError(t, err)
		require.NoError(t, cleaned.Validate())
		assert.Equal(t, []uint64{10, 20}, cleaned.Row(0))
		assert.Equal(t, []uint64{5, 7}, kept)
	})

	t.Run("CleanByLinkedRejectsBadLength", func(t *testing.T) {
		set := FromTag([]uint64{1})
		_, _, err := set.CleanByLinked([]uint64{1, 2})
		require.Error(t, err)
	})
}

func TestInvert(t *testing.T) {
	t.Run("TransposesTheMultimap", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{1, 2},
			Index:  []int{0, 2, 3},
			Values: []uint64{10, 11, 10},
		}
		inv, err := set.Invert()
		require.NoError(t, err)
		require.NoError(t, inv.Validate())

		assert.Equal(t, []uint64{10, 11}, inv.Keys)
		assert.Equal(t, []uint64{1, 2}, inv.Row(0))
		assert.Equal(t, []uint64{1}, inv.Row(1))
	})

	t.Run("DoubleInvertRestoresCleanedSet", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{1, 2},
			Index:  []int{0, 2, 3},
			Values: []uint64{10, 11, 10},
		}
		inv, err := set.Invert()
		require.NoError(t, err)
		back, err := inv.Invert()
		require.NoError(t, err)

		assert.Equal(t, set.Keys, back.Keys)
		assert.Equal(t, set.Index, back.Index)
		assert.Equal(t, []uint64{10, 11}, back.Row(0))
		assert.Equal(t, []uint64{10}, back.Row(1))
	})

	t.Run("Empty", func(t *testing.T) {
		inv, err := New(0).Invert()
		require.NoError(t, err)
		assert.Equal(t, 0, inv.NKeys())
	})
}

func TestSingleOrder(t *testing.T) {
	set := &IndexedSet{
		Keys:   []uint64{5, 2},
		Index:  []int{0, 2, 3},
		Values: []uint64{9, 2, 5},
	}
	assert.Equal(t, []uint64{2, 5, 9}, set.SingleOrder())
}

func TestCompress(t *testing.T) {
	t.Run("DropsRelationsAlreadyRepresented", func(t *testing.T) {
		// 2's row references 1, which is itself a key at or before 2, so
		// the back-reference is redundant; 3 is not a key and survives.
		set := &IndexedSet{
			Keys:   []uint64{1, 2},
			Index:  []int{0, 2, 4},
			Values: []uint64{2, 2, 1, 3},
		}
		out, err := set.Compress()
		require.NoError(t, err)
		require.NoError(t, out.Validate())

		assert.Equal(t, []uint64{2}, out.Row(0))
		assert.Equal(t, []uint64{3}, out.Row(1))
	})

	t.Run("DropsSelfReferences", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{4},
			Index:  []int{0, 1},
			Values: []uint64{4},
		}
		out, err := set.Compress()
		require.NoError(t, err)
		assert.Empty(t, out.Row(0))
	})

	t.Run("RequiresSortedKeys", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{2, 1},
			Index:  []int{0, 0, 0},
			Values: nil,
		}
		_, err := set.Compress()
		require.Error(t, err)
	})
}

func TestMergeKeys(t *testing.T) {
	t.Run("CollapsesDuplicateKeys", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{3, 1, 3},
			Index:  []int{0, 1, 2, 4},
			Values: []uint64{30, 10, 31, 32},
		}
		merged := set.MergeKeys(false)
		require.NoError(t, merged.Validate())

		assert.Equal(t, []uint64{1, 3}, merged.Keys)
		assert.Equal(t, []uint64{10}, merged.Row(0))
		assert.Equal(t, []uint64{30, 31, 32}, merged.Row(1))
	})

	t.Run("AlreadySorted", func(t *testing.T) {
		set := &IndexedSet{
			Keys:   []uint64{1, 1, 2},
			Index:  []int{0, 1, 2, 3},
			Values: []uint64{10, 11, 20},
		}
		merged := set.MergeKeys(true)
		assert.Equal(t, []uint64{1, 2}, merged.Keys)
		assert.Equal(t, []uint64{10, 11}, merged.Row(0))
	})
}

func TestValidate(t *testing.T) {
	t.Run("CatchesBrokenIndex", func(t *testing.T) {
		set := &IndexedSet{Keys: []uint64{1}, Index: []int{0, 2}, Values: []uint64{1, 2, 3}}
		require.Error(t, set.Validate())

		set = &IndexedSet{Keys: []uint64{1, 2}, Index: []int{0, 2, 1}, Values: []uint64{1}}
		require.Error(t, set.Validate())
	})

	t.Run("CopyIsDeep", func(t *testing.T) {
		set := FromTag([]uint64{4, 4})
		cp := set.Copy()
		cp.Values[0] = 99
		assert.Equal(t, uint64(0), set.Values[0])
	})
}
