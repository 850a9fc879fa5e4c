package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"imvqa/domain/core"
	"imvqa/domain/plate"
	"imvqa/internal"
	"imvqa/internal/errors"
	"imvqa/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	dataTable     = "data"
	assayTable    = "assay"
	analysesTable = "analyses"
)

// plateStore implements the PlateStore interface
type plateStore struct {
	db     *sqlx.DB
	cols   plate.Columns
	logger *internal.Logger
}

// NewPlateStore creates a store over an already migrated database. A nil
// logger falls back to the default one.
func NewPlateStore(db *sqlx.DB, cols plate.Columns, logger *internal.Logger) ports.PlateStore {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &plateStore{
		db:     db,
		cols:   cols,
		logger: logger.WithComponent("SQLStore"),
	}
}

// Save replaces the data and assay relations in one transaction
func (s *plateStore) Save(ctx context.Context, snap plate.Snapshot) (*plate.AnalysisRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := s.replaceData(ctx, tx, snap); err != nil {
		return nil, err
	}
	if err := s.replaceAssay(ctx, tx, snap.Layout); err != nil {
		return nil, err
	}

	record := &plate.AnalysisRecord{
		ID:            core.NewAnalysisID().String(),
		Feature:       snap.Feature,
		ControlMedian: nullable(snap.ControlMedian),
		WellCount:     snap.Layout.Wells().Len(),
		RecordCount:   len(snap.Records),
		SavedAt:       time.Now().UTC(),
	}
	query := `INSERT INTO analyses (id, feature, control_median, well_count, record_count, saved_at)
		VALUES (:id, :feature, :control_median, :well_count, :record_count, :saved_at)`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		return nil, errors.DatabaseError("failed to record analysis", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.DatabaseError("failed to commit analysis", err)
	}

	s.logger.Info("saved analysis %s: feature %q, %d records", record.ID, record.Feature, record.RecordCount)
	return record, nil
}

// replaceData drops and recreates the data relation with one column per feature
func (s *plateStore) replaceData(ctx context.Context, tx *sqlx.Tx, snap plate.Snapshot) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+dataTable); err != nil {
		return errors.DatabaseError("failed to drop data table", err)
	}

	columns := []string{
		pq.QuoteIdentifier(s.cols.Row) + " INTEGER NOT NULL",
		pq.QuoteIdentifier(s.cols.Column) + " INTEGER NOT NULL",
		pq.QuoteIdentifier(s.cols.Field) + " INTEGER NOT NULL",
	}
	names := []string{
		pq.QuoteIdentifier(s.cols.Row),
		pq.QuoteIdentifier(s.cols.Column),
		pq.QuoteIdentifier(s.cols.Field),
	}
	for _, f := range snap.Features {
		columns = append(columns, pq.QuoteIdentifier(f)+" DOUBLE PRECISION")
		names = append(names, pq.QuoteIdentifier(f))
	}
	columns = append(columns, pq.QuoteIdentifier(s.cols.Variation)+" DOUBLE PRECISION")
	names = append(names, pq.QuoteIdentifier(s.cols.Variation))

	create := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", dataTable, strings.Join(columns, ",\n\t"))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return errors.DatabaseError("failed to create data table", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	insert := tx.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", dataTable, strings.Join(names, ", "), placeholders))
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return errors.DatabaseError("failed to prepare data insert", err)
	}
	defer stmt.Close()

	for i, rec := range snap.Records {
		args := make([]interface{}, 0, len(names))
		args = append(args, rec.Row, rec.Column, rec.Field)
		for _, f := range snap.Features {
			v, ok := rec.Features[f]
			if !ok {
				v = math.NaN()
			}
			args = append(args, nullFloat(v))
		}
		args = append(args, nullFloat(rec.Variation))
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert data row %d", i), err)
		}
	}
	return nil
}

func (s *plateStore) replaceAssay(ctx context.Context, tx *sqlx.Tx, layout plate.Layout) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+assayTable); err != nil {
		return errors.DatabaseError("failed to clear assay table", err)
	}
	insert := tx.Rebind(fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)", assayTable,
		pq.QuoteIdentifier(s.cols.Row), pq.QuoteIdentifier(s.cols.Column), pq.QuoteIdentifier(s.cols.Compound)))
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return errors.DatabaseError("failed to prepare assay insert", err)
	}
	defer stmt.Close()

	for _, e := range layout.Entries {
		if _, err := stmt.ExecContext(ctx, e.Row, e.Column, e.Compound); err != nil {
			return errors.DatabaseError("failed to insert assay row", err)
		}
	}
	return nil
}

// AboveThreshold returns every stored field row with variation strictly
// greater than threshold. Undefined variations are stored as NULL and never
// match. Before the first save the result is empty.
func (s *plateStore) AboveThreshold(ctx context.Context, threshold float64) ([]plate.DataRecord, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidThreshold, threshold)
	}

	var saved int
	if err := s.db.GetContext(ctx, &saved, "SELECT COUNT(*) FROM "+analysesTable); err != nil {
		return nil, errors.DatabaseError("failed to count analyses", err)
	}
	if saved == 0 {
		return []plate.DataRecord{}, nil
	}

	row, col, field := pq.QuoteIdentifier(s.cols.Row), pq.QuoteIdentifier(s.cols.Column), pq.QuoteIdentifier(s.cols.Field)
	query := s.db.Rebind(fmt.Sprintf("SELECT * FROM %s WHERE %s > ? ORDER BY %s, %s, %s",
		dataTable, pq.QuoteIdentifier(s.cols.Variation), row, col, field))

	rows, err := s.db.QueryxContext(ctx, query, threshold)
	if err != nil {
		return nil, errors.DatabaseError("failed to query data above threshold", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, errors.DatabaseError("failed to read data columns", err)
	}

	records := []plate.DataRecord{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, errors.DatabaseError("failed to scan data row", err)
		}
		rec, err := s.decodeRecord(names, values)
		if err != nil {
			return nil, errors.DatabaseError("failed to decode data row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("failed to iterate data rows", err)
	}

	s.logger.Debug("%d field rows above %v", len(records), threshold)
	return records, nil
}

func (s *plateStore) decodeRecord(names []string, values []interface{}) (plate.DataRecord, error) {
	rec := plate.DataRecord{
		Features:  make(map[string]float64, len(names)),
		Variation: math.NaN(),
	}
	for i, name := range names {
		v, err := toFloat(values[i])
		if err != nil {
			return plate.DataRecord{}, fmt.Errorf("column %s: %w", name, err)
		}
		switch name {
		case s.cols.Row:
			rec.Row = int(v)
		case s.cols.Column:
			rec.Column = int(v)
		case s.cols.Field:
			rec.Field = int(v)
		case s.cols.Variation:
			rec.Variation = v
		default:
			rec.Features[name] = v
		}
	}
	return rec, nil
}

// Assay returns the stored layout ordered by well
func (s *plateStore) Assay(ctx context.Context) (plate.Layout, error) {
	query := fmt.Sprintf(`SELECT %[1]s AS row_index, %[2]s AS column_index, %[3]s AS compound
		FROM assay ORDER BY %[1]s, %[2]s`,
		pq.QuoteIdentifier(s.cols.Row), pq.QuoteIdentifier(s.cols.Column), pq.QuoteIdentifier(s.cols.Compound))

	var rows []struct {
		Row      int    `db:"row_index"`
		Column   int    `db:"column_index"`
		Compound string `db:"compound"`
	}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return plate.Layout{}, errors.DatabaseError("failed to load assay", err)
	}

	entries := make([]plate.LayoutEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, plate.LayoutEntry{Well: plate.NewWell(r.Row, r.Column), Compound: r.Compound})
	}
	return plate.NewLayout(entries...), nil
}

// Analyses lists saved analyses, newest first
func (s *plateStore) Analyses(ctx context.Context, limit int) ([]plate.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Rebind(`SELECT id, feature, control_median, well_count, record_count, saved_at
		FROM analyses ORDER BY saved_at DESC, id DESC LIMIT ?`)

	records := []plate.AnalysisRecord{}
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, errors.DatabaseError("failed to list analyses", err)
	}
	return records, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// toFloat normalizes the driver value of a numeric column; NULL is NaN
func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
