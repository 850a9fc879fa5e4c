// Package wellstats computes feature medians over wells of a plate and
// expresses them relative to the solvent-control wells.
package wellstats

import (
	"math"

	"imvqa/domain/plate"

	"github.com/montanaflynn/stats"
)

// MedianOfFeature returns the median of feature over every field record whose
// (row, column) belongs to wells. Missing values are skipped. When no record
// matches, or every match is missing, the median is NaN: no data, not zero.
// An unknown feature fails before any aggregation.
func MedianOfFeature(ds *plate.QADataset, feature string, wells plate.WellSet) (float64, error) {
	values, err := ds.Values(feature, wells)
	if err != nil {
		return math.NaN(), err
	}
	return median(values), nil
}

// median is the NaN-on-empty median of values that are already free of NaN
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m, err := stats.Median(values)
	if err != nil {
		return math.NaN()
	}
	return m
}
