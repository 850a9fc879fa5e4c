package ui

import (
	"math"
	"strconv"

	"imvqa/app"
	"imvqa/domain/plate"
	"imvqa/internal/wellstats"
)

// Number is a float that encodes NaN and infinities as JSON null
type Number float64

// MarshalJSON writes the shortest float representation, or null when n is
// not finite
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

func numbers(values []float64) []Number {
	out := make([]Number, len(values))
	for i, v := range values {
		out[i] = Number(v)
	}
	return out
}

type wellResponse struct {
	Row           int    `json:"row"`
	Column        int    `json:"column"`
	Compound      string `json:"compound"`
	Feature       string `json:"feature"`
	Median        Number `json:"median"`
	ControlMedian Number `json:"control_median"`
	Variation     Number `json:"variation"`
	Message       string `json:"message,omitempty"`
}

func newWellResponse(r *app.WellReport) wellResponse {
	return wellResponse{
		Row:           r.Well.Row,
		Column:        r.Well.Column,
		Compound:      r.Compound,
		Feature:       r.Feature,
		Median:        Number(r.Median),
		ControlMedian: Number(r.ControlMedian),
		Variation:     Number(r.Variation),
		Message:       r.Message,
	}
}

type medianCell struct {
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Median Number `json:"median"`
}

type heatmapResponse struct {
	Feature string       `json:"feature"`
	Rows    []medianCell `json:"rows"`
}

func newHeatmapResponse(t plate.MedianTable) heatmapResponse {
	out := heatmapResponse{Feature: t.Feature, Rows: make([]medianCell, 0, len(t.Rows))}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, medianCell{Row: r.Row, Column: r.Column, Median: Number(r.Median)})
	}
	return out
}

type variationCell struct {
	Row       int    `json:"row"`
	Column    int    `json:"column"`
	Variation Number `json:"variation"`
}

type variationResponse struct {
	Feature       string          `json:"feature"`
	ControlMedian Number          `json:"control_median"`
	Rows          []variationCell `json:"rows"`
	Warning       string          `json:"warning,omitempty"`
}

func newVariationResponse(res *app.VariationResult) variationResponse {
	out := variationResponse{
		Feature:       res.Table.Feature,
		ControlMedian: Number(res.Table.ControlMedian),
		Rows:          make([]variationCell, 0, len(res.Table.Rows)),
		Warning:       res.Warning,
	}
	for _, r := range res.Table.Rows {
		out.Rows = append(out.Rows, variationCell{Row: r.Row, Column: r.Column, Variation: Number(r.Variation)})
	}
	return out
}

type comparisonResponse struct {
	Feature       string `json:"feature"`
	Wells         int    `json:"wells"`
	ControlMedian Number `json:"control_median"`
	GroupMedian   Number `json:"group_median"`
	Control       Number `json:"control"`
	TestGroup     Number `json:"test_group"`
}

type summaryResponse struct {
	Count  int    `json:"count"`
	Min    Number `json:"min"`
	Q1     Number `json:"q1"`
	Median Number `json:"median"`
	Q3     Number `json:"q3"`
	Max    Number `json:"max"`
}

func newSummaryResponse(s wellstats.Summary) summaryResponse {
	return summaryResponse{
		Count:  s.Count,
		Min:    Number(s.Min),
		Q1:     Number(s.Q1),
		Median: Number(s.Median),
		Q3:     Number(s.Q3),
		Max:    Number(s.Max),
	}
}

type selectionResponse struct {
	Bounds     plate.Bounds       `json:"bounds"`
	Wells      []plate.Well       `json:"wells"`
	Comparison comparisonResponse `json:"comparison"`
	Summary    summaryResponse    `json:"summary"`
	Warning    string             `json:"warning,omitempty"`
}

func newSelectionResponse(res *app.SelectionResult) selectionResponse {
	cmp := res.Comparison
	return selectionResponse{
		Bounds: res.Bounds,
		Wells:  res.Wells,
		Comparison: comparisonResponse{
			Feature:       cmp.Feature,
			Wells:         cmp.Wells,
			ControlMedian: Number(cmp.ControlMedian),
			GroupMedian:   Number(cmp.GroupMedian),
			Control:       Number(cmp.Control),
			TestGroup:     Number(cmp.TestGroup),
		},
		Summary: newSummaryResponse(res.Summary),
		Warning: res.Warning,
	}
}

type histogramResponse struct {
	Feature  string    `json:"feature"`
	Dividers []Number  `json:"dividers"`
	Counts   []float64 `json:"counts"`
}

func newHistogramResponse(h wellstats.Histogram) histogramResponse {
	counts := h.Counts
	if counts == nil {
		counts = []float64{}
	}
	return histogramResponse{Feature: h.Feature, Dividers: numbers(h.Dividers), Counts: counts}
}

type dataRecordResponse struct {
	Row       int               `json:"row"`
	Column    int               `json:"column"`
	Field     int               `json:"field"`
	Features  map[string]Number `json:"features"`
	Variation Number            `json:"variation"`
}

func newDataRecordResponses(records []plate.DataRecord) []dataRecordResponse {
	out := make([]dataRecordResponse, 0, len(records))
	for _, r := range records {
		features := make(map[string]Number, len(r.Features))
		for k, v := range r.Features {
			features[k] = Number(v)
		}
		out = append(out, dataRecordResponse{
			Row:       r.Row,
			Column:    r.Column,
			Field:     r.Field,
			Features:  features,
			Variation: Number(r.Variation),
		})
	}
	return out
}
