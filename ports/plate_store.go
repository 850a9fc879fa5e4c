package ports

import (
	"context"

	"imvqa/domain/plate"
)

// PlateStore defines the persistence operations of saved analyses
type PlateStore interface {
	// Save replaces the data and assay relations with the snapshot and
	// records an audit row
	Save(ctx context.Context, snapshot plate.Snapshot) (*plate.AnalysisRecord, error)

	// AboveThreshold returns the stored field rows whose variation is
	// strictly greater than threshold
	AboveThreshold(ctx context.Context, threshold float64) ([]plate.DataRecord, error)

	// Assay returns the stored layout
	Assay(ctx context.Context) (plate.Layout, error)

	// Analyses lists the audit rows, newest first
	Analyses(ctx context.Context, limit int) ([]plate.AnalysisRecord, error)
}
