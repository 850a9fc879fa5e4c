package plate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWellSet_Deduplicates(t *testing.T) {
	set := NewWellSet(NewWell(1, 1), NewWell(1, 2), NewWell(1, 1))

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []Well{NewWell(1, 1), NewWell(1, 2)}, set.Wells())
}

func TestWellSet_SingleWell(t *testing.T) {
	set := SingleWell(5, 6)

	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Contains(NewWell(5, 6)))
	assert.False(t, set.Contains(NewWell(6, 5)))
}

func TestWellSet_Union(t *testing.T) {
	a := NewWellSet(NewWell(1, 1), NewWell(1, 2))
	b := NewWellSet(NewWell(1, 2), NewWell(1, 3))

	u := a.Union(b)

	assert.Equal(t, []Well{NewWell(1, 1), NewWell(1, 2), NewWell(1, 3)}, u.Wells())
	assert.Equal(t, 2, a.Len(), "union must not mutate the receiver")
}

func TestWellSet_ZeroValue(t *testing.T) {
	var set WellSet

	assert.True(t, set.IsEmpty())
	assert.False(t, set.Contains(NewWell(0, 0)))
	assert.Empty(t, set.Wells())
}

func TestBounds_ContainsAndNormalize(t *testing.T) {
	b := Bounds{RowMin: 4, RowMax: 2, ColumnMin: 3, ColumnMax: 5}

	assert.Equal(t, Bounds{RowMin: 2, RowMax: 4, ColumnMin: 3, ColumnMax: 5}, b.Normalize())
	assert.True(t, b.Contains(NewWell(2, 3)))
	assert.True(t, b.Contains(NewWell(4, 5)))
	assert.False(t, b.Contains(NewWell(5, 5)))
	assert.False(t, b.Contains(NewWell(3, 6)))
	assert.NoError(t, b.Validate())
	assert.Error(t, Bounds{RowMin: -1}.Validate())
}
