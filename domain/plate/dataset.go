package plate

import (
	"fmt"
	"math"

	"imvqa/domain/core"
)

// FieldRecord is one imaged field of a well. Values align with the owning
// dataset's feature list; NaN marks a missing measurement.
type FieldRecord struct {
	Row    int       `json:"row"`
	Column int       `json:"column"`
	Field  int       `json:"field"`
	Values []float64 `json:"values"`
}

// Well returns the coordinates of the record
func (r FieldRecord) Well() Well {
	return Well{Row: r.Row, Column: r.Column}
}

// QADataset is the per-field QA export: several records share a well across
// fields. It is read-only once built.
type QADataset struct {
	features []string
	featIdx  map[string]int
	records  []FieldRecord
	byWell   map[Well][]int
}

// NewQADataset validates that every record carries one value per feature and
// indexes the records by well.
func NewQADataset(features []string, records []FieldRecord) (*QADataset, error) {
	ds := &QADataset{
		features: append([]string(nil), features...),
		featIdx:  make(map[string]int, len(features)),
		records:  make([]FieldRecord, len(records)),
		byWell:   make(map[Well][]int),
	}
	for i, f := range features {
		if _, dup := ds.featIdx[f]; dup {
			return nil, fmt.Errorf("%w: duplicate feature %q", core.ErrMalformedDataset, f)
		}
		ds.featIdx[f] = i
	}
	for i, rec := range records {
		if len(rec.Values) != len(features) {
			return nil, fmt.Errorf("%w: record %d has %d values, expected %d",
				core.ErrMalformedDataset, i, len(rec.Values), len(features))
		}
		rec.Values = append([]float64(nil), rec.Values...)
		ds.records[i] = rec
		w := rec.Well()
		ds.byWell[w] = append(ds.byWell[w], i)
	}
	return ds, nil
}

// Features returns the feature names in file order
func (d *QADataset) Features() []string {
	return append([]string(nil), d.features...)
}

// HasFeature reports whether the dataset carries the named feature column
func (d *QADataset) HasFeature(feature string) bool {
	_, ok := d.featIdx[feature]
	return ok
}

// FeatureIndex returns the position of feature in each record's values
func (d *QADataset) FeatureIndex(feature string) (int, error) {
	idx, ok := d.featIdx[feature]
	if !ok {
		return -1, core.NewUnknownFeatureError(feature)
	}
	return idx, nil
}

// Len returns the number of field records
func (d *QADataset) Len() int {
	return len(d.records)
}

// Records returns the field records in file order
func (d *QADataset) Records() []FieldRecord {
	return d.records
}

// Values returns the non-missing values of feature over every field record
// whose well is in the set. Wells are visited in set order.
func (d *QADataset) Values(feature string, wells WellSet) ([]float64, error) {
	idx, err := d.FeatureIndex(feature)
	if err != nil {
		return nil, err
	}
	var values []float64
	for _, w := range wells.Wells() {
		for _, ri := range d.byWell[w] {
			v := d.records[ri].Values[idx]
			if math.IsNaN(v) {
				continue
			}
			values = append(values, v)
		}
	}
	return values, nil
}

// Column returns every value of feature across the dataset, skipping missing ones
func (d *QADataset) Column(feature string) ([]float64, error) {
	idx, err := d.FeatureIndex(feature)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(d.records))
	for _, rec := range d.records {
		if v := rec.Values[idx]; !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	return values, nil
}

// Wells returns the distinct wells that have at least one field record
func (d *QADataset) Wells() WellSet {
	wells := make([]Well, 0, len(d.byWell))
	for _, rec := range d.records {
		wells = append(wells, rec.Well())
	}
	return NewWellSet(wells...)
}
