package ports

import (
	"context"
	"io"

	"imvqa/domain/plate"
)

// PlateLoader parses the two plate inputs. name is the original file name and
// selects the format (.csv or a workbook).
type PlateLoader interface {
	LoadLayout(ctx context.Context, name string, r io.Reader) (plate.Layout, error)
	LoadQAData(ctx context.Context, name string, r io.Reader) (*plate.QADataset, error)
}

// WorkbookWriter renders analysis tables as a spreadsheet
type WorkbookWriter interface {
	WriteWorkbook(out io.Writer, wb plate.Workbook) error
}
