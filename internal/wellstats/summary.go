package wellstats

import (
	"fmt"
	"math"
	"sort"

	"imvqa/domain/core"
	"imvqa/domain/plate"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SelectRegion keeps the heatmap rows inside the brushed rectangle
func SelectRegion(table plate.MedianTable, bounds plate.Bounds) plate.MedianTable {
	out := plate.MedianTable{Feature: table.Feature}
	for _, r := range table.Rows {
		if bounds.Contains(r.Well) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// GroupComparison sets a test group against the control baseline, which is
// 1.0 by construction.
type GroupComparison struct {
	Feature       string  `json:"feature"`
	Wells         int     `json:"wells"`
	ControlMedian float64 `json:"control_median"`
	GroupMedian   float64 `json:"group_median"`
	Control       float64 `json:"control"`
	TestGroup     float64 `json:"test_group"`
}

// CompareGroup computes the variation of a selected group of wells. The
// comparison is returned even when the control is degenerate so callers can
// show the medians next to the explanatory error.
func (e *Engine) CompareGroup(layout plate.Layout, ds *plate.QADataset, feature string, wells plate.WellSet) (GroupComparison, error) {
	if wells.IsEmpty() {
		return GroupComparison{}, fmt.Errorf("%w: no wells selected", core.ErrInvalidSelection)
	}
	control, err := e.ControlMedian(layout, ds, feature)
	if err != nil {
		return GroupComparison{}, err
	}
	group, err := MedianOfFeature(ds, feature, wells)
	if err != nil {
		return GroupComparison{}, err
	}
	cmp := GroupComparison{
		Feature:       feature,
		Wells:         wells.Len(),
		ControlMedian: control,
		GroupMedian:   group,
		Control:       1.0,
		TestGroup:     math.NaN(),
	}
	if err := checkControl(control); err != nil {
		return cmp, err
	}
	cmp.TestGroup = ratio(group, control)
	return cmp, nil
}

// Histogram is a binned count of one feature over all field records
type Histogram struct {
	Feature  string    `json:"feature"`
	Dividers []float64 `json:"dividers"`
	Counts   []float64 `json:"counts"`
}

// BuildHistogram bins every non-missing value of feature into equal-width
// bins spanning the observed range.
func BuildHistogram(ds *plate.QADataset, feature string, bins int) (Histogram, error) {
	if bins < 1 {
		return Histogram{}, fmt.Errorf("%w: bins must be positive, got %d", core.ErrInvalidSelection, bins)
	}
	values, err := ds.Column(feature)
	if err != nil {
		return Histogram{}, err
	}
	h := Histogram{Feature: feature}
	if len(values) == 0 {
		return h, nil
	}
	sort.Float64s(values)
	lo, hi := values[0], values[len(values)-1]
	if lo == hi {
		bins = 1
	}
	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// stat.Histogram bins are half-open, so nudge the upper edge past the max
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	h.Dividers = dividers
	h.Counts = stat.Histogram(nil, dividers, values, nil)
	return h, nil
}

// Summary holds the five-number summary used for box plots
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Describe summarizes values, ignoring NaN. An empty input gives NaN fields.
func Describe(values []float64) Summary {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		nan := math.NaN()
		return Summary{Min: nan, Q1: nan, Median: nan, Q3: nan, Max: nan}
	}
	sort.Float64s(clean)
	return Summary{
		Count:  len(clean),
		Min:    clean[0],
		Q1:     stat.Quantile(0.25, stat.LinInterp, clean, nil),
		Median: median(clean),
		Q3:     stat.Quantile(0.75, stat.LinInterp, clean, nil),
		Max:    clean[len(clean)-1],
	}
}
