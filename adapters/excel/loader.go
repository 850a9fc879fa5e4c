package excel

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"imvqa/domain/plate"
	"imvqa/internal"
	"imvqa/internal/errors"
)

// Loader turns layout and QA exports into domain values
type Loader struct {
	cols   plate.Columns
	logger *internal.Logger
}

// NewLoader creates a loader for the given header configuration
func NewLoader(cols plate.Columns) *Loader {
	return &Loader{
		cols:   cols,
		logger: internal.DefaultLogger.WithComponent("Loader"),
	}
}

// WithLogger replaces the loader logger
func (l *Loader) WithLogger(logger *internal.Logger) *Loader {
	l.logger = logger.WithComponent("Loader")
	return l
}

// LoadLayoutFile reads an assay layout from disk
func (l *Loader) LoadLayoutFile(ctx context.Context, path string) (plate.Layout, error) {
	data, err := NewDataReader(path).WithLogger(l.logger).ReadData()
	if err != nil {
		return plate.Layout{}, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return l.layoutFrom(ctx, path, data)
}

// LoadQADataFile reads a QA export from disk
func (l *Loader) LoadQADataFile(ctx context.Context, path string) (*plate.QADataset, error) {
	data, err := NewDataReader(path).WithLogger(l.logger).ReadData()
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return l.qaFrom(ctx, path, data)
}

// LoadLayout reads the assay layout, keeping only the row, column and
// compound columns
func (l *Loader) LoadLayout(ctx context.Context, name string, r io.Reader) (plate.Layout, error) {
	data, err := NewStreamReader(name, r).WithLogger(l.logger).ReadData()
	if err != nil {
		return plate.Layout{}, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return l.layoutFrom(ctx, name, data)
}

func (l *Loader) layoutFrom(ctx context.Context, name string, data *ExcelData) (plate.Layout, error) {
	if err := ctx.Err(); err != nil {
		return plate.Layout{}, err
	}
	for _, h := range []string{l.cols.Row, l.cols.Column, l.cols.Compound} {
		if !data.HasHeader(h) {
			return plate.Layout{}, errors.InvalidInput(fmt.Sprintf("layout %s: missing column %q", name, h))
		}
	}

	entries := make([]plate.LayoutEntry, 0, len(data.Rows))
	for i, row := range data.Rows {
		well, err := l.parseWell(row)
		if err != nil {
			return plate.Layout{}, errors.InvalidInput(fmt.Sprintf("layout %s row %d: %v", name, i+2, err))
		}
		entries = append(entries, plate.LayoutEntry{Well: well, Compound: row[l.cols.Compound]})
	}

	l.logger.Info("layout %s: %d wells", name, len(entries))
	return plate.NewLayout(entries...), nil
}

// LoadQAData reads a per-field QA export. The trailing summary row and the
// message column are dropped, the raw coordinate headers are renamed, and
// every column whose cells are all numeric (or empty) becomes a feature.
func (l *Loader) LoadQAData(ctx context.Context, name string, r io.Reader) (*plate.QADataset, error) {
	data, err := NewStreamReader(name, r).WithLogger(l.logger).ReadData()
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return l.qaFrom(ctx, name, data)
}

func (l *Loader) qaFrom(ctx context.Context, name string, data *ExcelData) (*plate.QADataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data = l.normalizeQA(data)
	for _, h := range []string{l.cols.Row, l.cols.Column, l.cols.Field} {
		if !data.HasHeader(h) {
			return nil, errors.InvalidInput(fmt.Sprintf("QA data %s: missing column %q", name, h))
		}
	}

	features, err := l.numericFeatures(data)
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("QA data %s: %v", name, err))
	}
	records := make([]plate.FieldRecord, 0, len(data.Rows))
	for i, row := range data.Rows {
		well, err := l.parseWell(row)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("QA data %s row %d: %v", name, i+2, err))
		}
		field, err := parseCoordinate(row[l.cols.Field])
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("QA data %s row %d: %s: %v", name, i+2, l.cols.Field, err))
		}
		values := make([]float64, len(features))
		for j, f := range features {
			values[j], _ = parseValue(row[f])
		}
		records = append(records, plate.FieldRecord{Row: well.Row, Column: well.Column, Field: field, Values: values})
	}

	ds, err := plate.NewQADataset(features, records)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	l.logger.Info("QA data %s: %d field records, %d features", name, ds.Len(), len(features))
	return ds, nil
}

// normalizeQA drops the summary row and the message column and renames the
// raw coordinate headers
func (l *Loader) normalizeQA(data *ExcelData) *ExcelData {
	rename := map[string]string{
		l.cols.RawRow:    l.cols.Row,
		l.cols.RawColumn: l.cols.Column,
		l.cols.RawField:  l.cols.Field,
	}

	headers := make([]string, 0, len(data.Headers))
	for _, h := range data.Headers {
		if h == l.cols.RawMessage {
			continue
		}
		if to, ok := rename[h]; ok {
			h = to
		}
		headers = append(headers, h)
	}

	rows := data.Rows
	if len(rows) > 0 {
		rows = rows[:len(rows)-1]
	}
	out := make([]RawRowData, 0, len(rows))
	for _, row := range rows {
		next := make(RawRowData, len(row))
		for k, v := range row {
			if k == l.cols.RawMessage {
				continue
			}
			if to, ok := rename[k]; ok {
				k = to
			}
			next[k] = v
		}
		out = append(out, next)
	}
	return &ExcelData{Headers: headers, Rows: out}
}

// numericFeatures returns the non-coordinate columns whose every cell parses
// as a number, in header order. SQL column names are case-insensitive, so a
// column equal to a coordinate or the variation header up to case is
// skipped, and two features differing only in case are rejected.
func (l *Loader) numericFeatures(data *ExcelData) ([]string, error) {
	reserved := map[string]bool{
		strings.ToLower(l.cols.Row):       true,
		strings.ToLower(l.cols.Column):    true,
		strings.ToLower(l.cols.Field):     true,
		strings.ToLower(l.cols.Variation): true,
	}
	seen := make(map[string]string)

	var features []string
	for _, h := range data.Headers {
		if h == "" {
			continue
		}
		key := strings.ToLower(h)
		if reserved[key] {
			if !l.cols.IsCoordinate(h) {
				l.logger.Warn("column %q collides with a reserved header, skipped", h)
			}
			continue
		}
		numeric := true
		for _, row := range data.Rows {
			if _, ok := parseValue(row[h]); !ok {
				numeric = false
				break
			}
		}
		if !numeric {
			l.logger.Debug("column %q is not numeric, skipped", h)
			continue
		}
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("feature columns %q and %q differ only in case", prev, h)
		}
		seen[key] = h
		features = append(features, h)
	}
	return features, nil
}

func (l *Loader) parseWell(row RawRowData) (plate.Well, error) {
	r, err := parseCoordinate(row[l.cols.Row])
	if err != nil {
		return plate.Well{}, fmt.Errorf("%s: %w", l.cols.Row, err)
	}
	c, err := parseCoordinate(row[l.cols.Column])
	if err != nil {
		return plate.Well{}, fmt.Errorf("%s: %w", l.cols.Column, err)
	}
	return plate.NewWell(r, c), nil
}

// parseCoordinate accepts integral values written as "2" or "2.0"
func parseCoordinate(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	return int(f), nil
}

// parseValue reads a feature cell. Empty and NaN cells are missing values;
// ok is false only for non-numeric text.
func parseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return f, true
}
