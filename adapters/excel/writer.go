package excel

import (
	"fmt"
	"io"
	"math"

	"imvqa/domain/plate"

	"github.com/xuri/excelize/v2"
)

// Sheet names of an exported workbook
const (
	SheetMedian    = "Median"
	SheetVariation = "Variation"
	SheetAssay     = "Assay"
)

// Writer renders analysis tables into XLSX workbooks
type Writer struct {
	cols plate.Columns
}

// NewWriter creates a workbook writer using the configured header names
func NewWriter(cols plate.Columns) *Writer {
	return &Writer{cols: cols}
}

// WriteWorkbook writes one sheet per table. Undefined (NaN) values are left
// as empty cells.
func (w *Writer) WriteWorkbook(out io.Writer, wb plate.Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	medians := make([][]interface{}, 0, len(wb.Medians.Rows))
	for _, r := range wb.Medians.Rows {
		medians = append(medians, []interface{}{r.Row, r.Column, cell(r.Median)})
	}
	if err := w.writeSheet(f, SheetMedian, []interface{}{w.cols.Row, w.cols.Column, w.cols.Median}, medians); err != nil {
		return err
	}

	variations := make([][]interface{}, 0, len(wb.Variations.Rows))
	for _, r := range wb.Variations.Rows {
		variations = append(variations, []interface{}{r.Row, r.Column, cell(r.Variation)})
	}
	if err := w.writeSheet(f, SheetVariation, []interface{}{w.cols.Row, w.cols.Column, w.cols.Variation}, variations); err != nil {
		return err
	}

	assay := make([][]interface{}, 0, wb.Layout.Len())
	for _, e := range wb.Layout.Entries {
		assay = append(assay, []interface{}{e.Row, e.Column, e.Compound})
	}
	if err := w.writeSheet(f, SheetAssay, []interface{}{w.cols.Row, w.cols.Column, w.cols.Compound}, assay); err != nil {
		return err
	}

	// NewFile starts with a default sheet we do not use
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetMedian); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (w *Writer) writeSheet(f *excelize.File, name string, header []interface{}, rows [][]interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	for i := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, axis, &rows[i]); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", name, i+2, err)
		}
	}
	return nil
}

func cell(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
