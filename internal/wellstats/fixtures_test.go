package wellstats

import (
	"math"
	"testing"

	"imvqa/domain/plate"

	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

// scenarioLayout is two DMSO wells and one treated well on row 2
func scenarioLayout() plate.Layout {
	return plate.NewLayout(
		plate.LayoutEntry{Well: plate.NewWell(2, 2), Compound: "DMSO"},
		plate.LayoutEntry{Well: plate.NewWell(2, 3), Compound: "DMSO"},
		plate.LayoutEntry{Well: plate.NewWell(2, 4), Compound: "CompoundX"},
	)
}

func scenarioDataset(t *testing.T) *plate.QADataset {
	t.Helper()
	ds, err := plate.NewQADataset([]string{"Intensity", "Focus"}, []plate.FieldRecord{
		{Row: 2, Column: 2, Field: 0, Values: []float64{10, 1}},
		{Row: 2, Column: 2, Field: 1, Values: []float64{20, 2}},
		{Row: 2, Column: 3, Field: 0, Values: []float64{30, 3}},
		{Row: 2, Column: 4, Field: 0, Values: []float64{90, nan}},
	})
	require.NoError(t, err)
	return ds
}

func newDataset(t *testing.T, feature string, rows ...[4]float64) *plate.QADataset {
	t.Helper()
	records := make([]plate.FieldRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, plate.FieldRecord{
			Row: int(r[0]), Column: int(r[1]), Field: int(r[2]), Values: []float64{r[3]},
		})
	}
	ds, err := plate.NewQADataset([]string{feature}, records)
	require.NoError(t, err)
	return ds
}
