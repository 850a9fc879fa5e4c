package plate

import (
	"testing"

	"imvqa/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLayout() Layout {
	return NewLayout(
		LayoutEntry{Well: NewWell(2, 2), Compound: "DMSO"},
		LayoutEntry{Well: NewWell(2, 3), Compound: "DMSO"},
		LayoutEntry{Well: NewWell(2, 4), Compound: "CompoundX"},
	)
}

func TestWell_CompoundName(t *testing.T) {
	layout := sampleLayout()

	name, err := NewWell(2, 4).CompoundName(layout)
	require.NoError(t, err)
	assert.Equal(t, "CompoundX", name)

	name, err = NewWell(2, 2).CompoundName(layout)
	require.NoError(t, err)
	assert.Equal(t, "DMSO", name)
}

func TestWell_CompoundNameMissingWell(t *testing.T) {
	_, err := NewWell(9, 9).CompoundName(sampleLayout())

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCompoundNotFound)
	assert.True(t, core.IsDataIntegrityError(err))
	assert.Contains(t, err.Error(), "row 9, column 9")
}

func TestWell_CompoundNameFirstMatchWins(t *testing.T) {
	layout := NewLayout(
		LayoutEntry{Well: NewWell(3, 3), Compound: "First"},
		LayoutEntry{Well: NewWell(3, 3), Compound: "Second"},
	)

	name, err := NewWell(3, 3).CompoundName(layout)
	require.NoError(t, err)
	assert.Equal(t, "First", name)
}

func TestWell_EqualityByCoordinates(t *testing.T) {
	assert.Equal(t, NewWell(4, 7), Well{Row: 4, Column: 7})
	assert.NotEqual(t, NewWell(4, 7), NewWell(7, 4))
	assert.Equal(t, "(4, 7)", NewWell(4, 7).String())
}

func TestLayout_WellsWithCompound(t *testing.T) {
	layout := sampleLayout()

	controls := layout.WellsWithCompound("DMSO")
	assert.Equal(t, []Well{NewWell(2, 2), NewWell(2, 3)}, controls.Wells())
	assert.True(t, layout.WellsWithCompound("Missing").IsEmpty())
	assert.Equal(t, []string{"DMSO", "CompoundX"}, layout.Compounds())
}
