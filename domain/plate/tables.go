package plate

import "time"

// MedianRow is the per-well median of one feature. NaN means no data.
type MedianRow struct {
	Well
	Median float64 `json:"median"`
}

// MedianTable holds one row per layout entry; it feeds the plate heatmap.
type MedianTable struct {
	Feature string      `json:"feature"`
	Rows    []MedianRow `json:"rows"`
}

// Wells returns the wells of the table as a set
func (t MedianTable) Wells() WellSet {
	wells := make([]Well, 0, len(t.Rows))
	for _, r := range t.Rows {
		wells = append(wells, r.Well)
	}
	return NewWellSet(wells...)
}

// Medians returns the median column in row order
func (t MedianTable) Medians() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Median
	}
	return out
}

// VariationRow is a well's median relative to the control median. NaN means
// the variation is undefined.
type VariationRow struct {
	Well
	Variation float64 `json:"variation"`
}

// VariationTable holds one row per layout entry, plus the control median it
// was normalized by.
type VariationTable struct {
	Feature       string         `json:"feature"`
	ControlMedian float64        `json:"control_median"`
	Rows          []VariationRow `json:"rows"`
}

// Lookup returns the variation recorded for w
func (t VariationTable) Lookup(w Well) (float64, bool) {
	for _, r := range t.Rows {
		if r.Well == w {
			return r.Variation, true
		}
	}
	return 0, false
}

// Index maps each well to its variation; the first row wins for repeated wells
func (t VariationTable) Index() map[Well]float64 {
	idx := make(map[Well]float64, len(t.Rows))
	for _, r := range t.Rows {
		if _, ok := idx[r.Well]; !ok {
			idx[r.Well] = r.Variation
		}
	}
	return idx
}

// DataRecord is one persisted field row: the numeric QA values joined with
// the variation of its well on (row, column).
type DataRecord struct {
	Row       int                `json:"row"`
	Column    int                `json:"column"`
	Field     int                `json:"field"`
	Features  map[string]float64 `json:"features"`
	Variation float64            `json:"variation"`
}

// Snapshot is everything written to the store by one save
type Snapshot struct {
	Feature       string
	Features      []string
	ControlMedian float64
	Records       []DataRecord
	Layout        Layout
}

// AnalysisRecord is the audit row kept for every saved snapshot
type AnalysisRecord struct {
	ID            string    `db:"id" json:"id"`
	Feature       string    `db:"feature" json:"feature"`
	ControlMedian *float64  `db:"control_median" json:"control_median"`
	WellCount     int       `db:"well_count" json:"well_count"`
	RecordCount   int       `db:"record_count" json:"record_count"`
	SavedAt       time.Time `db:"saved_at" json:"saved_at"`
}

// Workbook is the content of one spreadsheet export
type Workbook struct {
	Medians    MedianTable
	Variations VariationTable
	Layout     Layout
}
