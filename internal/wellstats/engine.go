package wellstats

import (
	"math"

	"imvqa/domain/core"
	"imvqa/domain/plate"
	"imvqa/internal"
)

// Engine derives control baselines and variations for one header/label
// configuration. It holds no per-analysis state and is safe to share.
type Engine struct {
	cols   plate.Columns
	logger *internal.Logger
}

// NewEngine creates an engine for the given column configuration
func NewEngine(cols plate.Columns) *Engine {
	return &Engine{
		cols:   cols,
		logger: internal.DefaultLogger.WithComponent("WellStats"),
	}
}

// WithLogger replaces the engine logger
func (e *Engine) WithLogger(logger *internal.Logger) *Engine {
	e.logger = logger.WithComponent("WellStats")
	return e
}

// Columns returns the configuration the engine was built with
func (e *Engine) Columns() plate.Columns {
	return e.cols
}

// ControlWells returns every layout well assigned the control compound. An
// empty set is valid; it makes the control median undefined.
func (e *Engine) ControlWells(layout plate.Layout) plate.WellSet {
	return layout.WellsWithCompound(e.cols.Control)
}

// ControlMedian is the median of feature over all control wells
func (e *Engine) ControlMedian(layout plate.Layout, ds *plate.QADataset, feature string) (float64, error) {
	return MedianOfFeature(ds, feature, e.ControlWells(layout))
}

// Variation returns the median of feature over wells divided by the control
// median. A zero control median yields ErrZeroControlMedian and an undefined
// (NaN) control median yields ErrControlUndefined; in both cases no ratio is
// computed. A group without data yields NaN and no error.
func (e *Engine) Variation(layout plate.Layout, ds *plate.QADataset, feature string, wells plate.WellSet) (float64, error) {
	control, err := e.ControlMedian(layout, ds, feature)
	if err != nil {
		return math.NaN(), err
	}
	if err := checkControl(control); err != nil {
		e.logger.Warn("feature %q: %v", feature, err)
		return math.NaN(), err
	}
	group, err := MedianOfFeature(ds, feature, wells)
	if err != nil {
		return math.NaN(), err
	}
	return ratio(group, control), nil
}

// checkControl rejects control medians that cannot serve as a divisor
func checkControl(control float64) error {
	switch {
	case math.IsNaN(control):
		return core.ErrControlUndefined
	case control == 0:
		return core.ErrZeroControlMedian
	}
	return nil
}

// ratio divides a group median by an already validated control median
func ratio(group, control float64) float64 {
	if math.IsNaN(group) {
		return math.NaN()
	}
	return group / control
}

// BuildMedianTable computes the median of feature for every layout entry.
// The table has exactly one row per entry, in layout order.
func (e *Engine) BuildMedianTable(layout plate.Layout, feature string, ds *plate.QADataset) (plate.MedianTable, error) {
	if _, err := ds.FeatureIndex(feature); err != nil {
		return plate.MedianTable{}, err
	}
	table := plate.MedianTable{
		Feature: feature,
		Rows:    make([]plate.MedianRow, 0, layout.Len()),
	}
	for _, entry := range layout.Entries {
		m, err := MedianOfFeature(ds, feature, plate.NewWellSet(entry.Well))
		if err != nil {
			return plate.MedianTable{}, err
		}
		table.Rows = append(table.Rows, plate.MedianRow{Well: entry.Well, Median: m})
	}
	e.logger.Debug("median table for %q: %d wells", feature, len(table.Rows))
	return table, nil
}

// BuildVariationTable computes the variation of feature for every layout
// entry. The control median is computed once for the whole table. When the
// control is degenerate the table is still complete, every variation is NaN,
// and the degenerate-control error is returned with it.
func (e *Engine) BuildVariationTable(layout plate.Layout, ds *plate.QADataset, feature string) (plate.VariationTable, error) {
	control, err := e.ControlMedian(layout, ds, feature)
	if err != nil {
		return plate.VariationTable{}, err
	}
	table := plate.VariationTable{
		Feature:       feature,
		ControlMedian: control,
		Rows:          make([]plate.VariationRow, 0, layout.Len()),
	}
	controlErr := checkControl(control)
	for _, entry := range layout.Entries {
		v := math.NaN()
		if controlErr == nil {
			m, err := MedianOfFeature(ds, feature, plate.NewWellSet(entry.Well))
			if err != nil {
				return plate.VariationTable{}, err
			}
			v = ratio(m, control)
		}
		table.Rows = append(table.Rows, plate.VariationRow{Well: entry.Well, Variation: v})
	}
	if controlErr != nil {
		e.logger.Warn("variation table for %q: %v", feature, controlErr)
		return table, controlErr
	}
	return table, nil
}

// JoinVariation left-joins every field record of ds with the variation of its
// well. Records of wells absent from the table get a NaN variation.
func JoinVariation(ds *plate.QADataset, table plate.VariationTable) []plate.DataRecord {
	idx := table.Index()
	features := ds.Features()
	out := make([]plate.DataRecord, 0, ds.Len())
	for _, rec := range ds.Records() {
		values := make(map[string]float64, len(features))
		for i, f := range features {
			values[f] = rec.Values[i]
		}
		v, ok := idx[rec.Well()]
		if !ok {
			v = math.NaN()
		}
		out = append(out, plate.DataRecord{
			Row:       rec.Row,
			Column:    rec.Column,
			Field:     rec.Field,
			Features:  values,
			Variation: v,
		})
	}
	return out
}
