package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"

	"imvqa/domain/plate"
)

// PlateGeneratorConfig configures the synthetic plate generator
type PlateGeneratorConfig struct {
	Rows        int                `json:"rows"`
	Columns     int                `json:"columns"`
	Fields      int                `json:"fields"`
	Control     string             `json:"control"`
	Compounds   []string           `json:"compounds"`
	Features    map[string]float64 `json:"features"` // feature name -> baseline value
	FeatureList []string           `json:"feature_list"`
	HitCompound string             `json:"hit_compound"`
	HitEffect   float64            `json:"hit_effect"`
	Noise       float64            `json:"noise"`
	MissingRate float64            `json:"missing_rate"`
	Seed        int64              `json:"seed"`
}

// DefaultPlateConfig returns a 96-well plate with DMSO in the first and last
// columns and one compound that quadruples every feature
func DefaultPlateConfig() PlateGeneratorConfig {
	return PlateGeneratorConfig{
		Rows:      8,
		Columns:   12,
		Fields:    4,
		Control:   "DMSO",
		Compounds: []string{"Cmpd-A", "Cmpd-B", "Cmpd-C", "Cmpd-D"},
		Features: map[string]float64{
			"Intensity":  100,
			"FocusScore": 1.5,
			"CellCount":  250,
		},
		FeatureList: []string{"Intensity", "FocusScore", "CellCount"},
		HitCompound: "Cmpd-A",
		HitEffect:   4,
		Noise:       0.05,
		MissingRate: 0.01,
		Seed:        42,
	}
}

// PlateDataGenerator generates a layout and a matching per-field QA dataset
type PlateDataGenerator struct {
	config PlateGeneratorConfig
	rng    *rand.Rand
}

// NewPlateDataGenerator creates a new plate generator
func NewPlateDataGenerator(config PlateGeneratorConfig) *PlateDataGenerator {
	return &PlateDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the layout and the QA data. Control wells occupy the first
// and last column; other wells cycle through the compounds.
func (g *PlateDataGenerator) Generate() (plate.Layout, *plate.QADataset, error) {
	cfg := g.config
	if cfg.Rows < 1 || cfg.Columns < 1 || cfg.Fields < 1 {
		return plate.Layout{}, nil, fmt.Errorf("plate dimensions must be positive")
	}
	if len(cfg.FeatureList) == 0 {
		return plate.Layout{}, nil, fmt.Errorf("at least one feature is required")
	}

	var entries []plate.LayoutEntry
	var records []plate.FieldRecord
	for r := 1; r <= cfg.Rows; r++ {
		for c := 1; c <= cfg.Columns; c++ {
			compound := g.compoundFor(r, c)
			entries = append(entries, plate.LayoutEntry{Well: plate.NewWell(r, c), Compound: compound})

			effect := 1.0
			if compound == cfg.HitCompound && cfg.HitEffect > 0 {
				effect = cfg.HitEffect
			}
			for f := 1; f <= cfg.Fields; f++ {
				values := make([]float64, len(cfg.FeatureList))
				for i, name := range cfg.FeatureList {
					if g.rng.Float64() < cfg.MissingRate {
						values[i] = math.NaN()
						continue
					}
					base := cfg.Features[name]
					values[i] = base * effect * (1 + cfg.Noise*g.rng.NormFloat64())
				}
				records = append(records, plate.FieldRecord{Row: r, Column: c, Field: f, Values: values})
			}
		}
	}

	ds, err := plate.NewQADataset(cfg.FeatureList, records)
	if err != nil {
		return plate.Layout{}, nil, err
	}
	return plate.NewLayout(entries...), ds, nil
}

func (g *PlateDataGenerator) compoundFor(row, column int) string {
	if column == 1 || column == g.config.Columns || len(g.config.Compounds) == 0 {
		return g.config.Control
	}
	return g.config.Compounds[(row+column)%len(g.config.Compounds)]
}

// WriteLayoutCSV writes the layout the way the plate reader exports it
func WriteLayoutCSV(w io.Writer, layout plate.Layout, cols plate.Columns) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{cols.Row, cols.Column, cols.Compound}); err != nil {
		return err
	}
	for _, e := range layout.Entries {
		if err := cw.Write([]string{strconv.Itoa(e.Row), strconv.Itoa(e.Column), e.Compound}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteQACSV writes the dataset as a raw QA export: r/c/f coordinates, the
// features, a msg column, and a trailing summary row of feature means
func WriteQACSV(w io.Writer, ds *plate.QADataset, cols plate.Columns) error {
	features := ds.Features()
	cw := csv.NewWriter(w)

	header := append([]string{cols.RawRow, cols.RawColumn, cols.RawField}, features...)
	header = append(header, cols.RawMessage)
	if err := cw.Write(header); err != nil {
		return err
	}

	sums := make([]float64, len(features))
	counts := make([]int, len(features))
	for _, rec := range ds.Records() {
		row := []string{strconv.Itoa(rec.Row), strconv.Itoa(rec.Column), strconv.Itoa(rec.Field)}
		for i, v := range rec.Values {
			row = append(row, formatCell(v))
			if !math.IsNaN(v) {
				sums[i] += v
				counts[i]++
			}
		}
		row = append(row, "ok")
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	summary := []string{"", "", ""}
	for i := range features {
		mean := math.NaN()
		if counts[i] > 0 {
			mean = sums[i] / float64(counts[i])
		}
		summary = append(summary, formatCell(mean))
	}
	summary = append(summary, "summary")
	if err := cw.Write(summary); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
