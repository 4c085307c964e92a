package aggregate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidefall/changesum/internal/types"
)

func insert(key string, value int64) (types.ChangeKind, types.Row) {
	return types.ChangeInsert, types.Row{Key: key, Value: value}
}

func del(key string, value int64) (types.ChangeKind, types.Row) {
	return types.ChangeDelete, types.Row{Key: key, Value: value}
}

func TestFirstInsertAppears(t *testing.T) {
	s := NewState()
	tr, err := s.Apply(insert("Alice", 12))
	require.NoError(t, err)
	assert.Equal(t, Transition{Kind: Appeared, Key: "Alice", New: 12}, tr)
	assert.Equal(t, 1, s.Keys())
}

func TestInsertOnlySumsAccumulate(t *testing.T) {
	s := NewState()
	values := []int64{13, 2, 12, -7, 0, 100}
	var want int64
	for _, v := range values {
		_, err := s.Apply(insert("Alice", v))
		require.NoError(t, err)
		want += v
	}
	got, ok := s.Sum("Alice")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestKeysArePartitioned(t *testing.T) {
	s := NewState()
	_, err := s.Apply(insert("Alice", 12))
	require.NoError(t, err)
	_, err = s.Apply(insert("Bob", 5))
	require.NoError(t, err)

	tr, err := s.Apply(insert("Alice", 3))
	require.NoError(t, err)
	assert.Equal(t, Transition{Kind: Changed, Key: "Alice", Old: 12, New: 15}, tr)

	bob, ok := s.Sum("Bob")
	require.True(t, ok)
	assert.Equal(t, int64(5), bob)
}

func TestDeleteRetractsExactValue(t *testing.T) {
	s := NewState()
	_, err := s.Apply(insert("Alice", 12))
	require.NoError(t, err)
	_, err = s.Apply(insert("Alice", 12))
	require.NoError(t, err)
	_, err = s.Apply(insert("Alice", 5))
	require.NoError(t, err)

	// Removes one occurrence of 12, not an arbitrary amount.
	tr, err := s.Apply(del("Alice", 12))
	require.NoError(t, err)
	assert.Equal(t, Transition{Kind: Changed, Key: "Alice", Old: 29, New: 17}, tr)

	// The second occurrence is still there.
	tr, err = s.Apply(del("Alice", 12))
	require.NoError(t, err)
	assert.Equal(t, Transition{Kind: Changed, Key: "Alice", Old: 17, New: 5}, tr)

	// A third delete of 12 has nothing left to retract.
	_, err = s.Apply(del("Alice", 12))
	var retraction *RetractionError
	require.ErrorAs(t, err, &retraction)
	assert.Equal(t, "Alice", retraction.Key)
	assert.Equal(t, int64(12), retraction.Value)
}

func TestLastDeleteDisappears(t *testing.T) {
	s := NewState()
	_, err := s.Apply(insert("Alice", 12))
	require.NoError(t, err)

	tr, err := s.Apply(del("Alice", 12))
	require.NoError(t, err)
	assert.Equal(t, Transition{Kind: Disappeared, Key: "Alice", Old: 12}, tr)
	assert.Equal(t, 0, s.Keys())

	_, ok := s.Sum("Alice")
	assert.False(t, ok)
}

func TestReinsertAfterDisappearanceAppearsAgain(t *testing.T) {
	s := NewState()
	_, err := s.Apply(insert("Alice", 12))
	require.NoError(t, err)
	_, err = s.Apply(del("Alice", 12))
	require.NoError(t, err)

	tr, err := s.Apply(insert("Alice", 18))
	require.NoError(t, err)
	assert.Equal(t, Transition{Kind: Appeared, Key: "Alice", New: 18}, tr)
}

func TestMatchedInsertsAndDeletesDrainCell(t *testing.T) {
	s := NewState()
	values := []int64{3, 3, -1, 40, 7}
	for _, v := range values {
		_, err := s.Apply(insert("Alice", v))
		require.NoError(t, err)
	}
	// Delete in a different order than inserted.
	for _, v := range []int64{40, 3, 7, -1} {
		tr, err := s.Apply(del("Alice", v))
		require.NoError(t, err)
		assert.Equal(t, Changed, tr.Kind)
	}
	tr, err := s.Apply(del("Alice", 3))
	require.NoError(t, err)
	assert.Equal(t, Disappeared, tr.Kind)
	assert.Equal(t, 0, s.Keys())
}

func TestDeleteForUnknownKey(t *testing.T) {
	s := NewState()
	_, err := s.Apply(del("Carol", 7))
	var retraction *RetractionError
	require.ErrorAs(t, err, &retraction)
	assert.Equal(t, "Carol", retraction.Key)
	// The failed retraction must not create a cell.
	assert.Equal(t, 0, s.Keys())
}

func TestInsertOverflowIsFatal(t *testing.T) {
	s := NewState()
	_, err := s.Apply(insert("Alice", math.MaxInt64))
	require.NoError(t, err)
	_, err = s.Apply(insert("Alice", 1))
	require.ErrorIs(t, err, ErrOverflow)

	// State is unchanged after a rejected insert.
	got, ok := s.Sum("Alice")
	require.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), got)
}

func TestDeleteOverflowIsFatal(t *testing.T) {
	s := NewState()
	// Reachable state whose sum after retracting -10 exceeds MaxInt64.
	for _, v := range []int64{-10, 5, math.MaxInt64} {
		_, err := s.Apply(insert("Alice", v))
		require.NoError(t, err)
	}
	_, err := s.Apply(del("Alice", -10))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestApplyRejectsUnknownChangeKind(t *testing.T) {
	s := NewState()
	_, err := s.Apply(types.ChangeKind(42), types.Row{Key: "Alice", Value: 1})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrOverflow))
}
