package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imvqa/internal"

	"github.com/xuri/excelize/v2"
)

// Supported file types
const (
	FileTypeCSV  = "csv"
	FileTypeXLSX = "xlsx"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	name     string
	fileType string
	open     func() (io.ReadCloser, error)
	logger   *internal.Logger
}

// NewDataReader creates a reader for a file on disk; the type follows the extension
func NewDataReader(filePath string) *DataReader {
	return &DataReader{
		name:     filePath,
		fileType: DetectFileType(filePath),
		logger:   internal.DefaultLogger.WithComponent("DataReader"),
		open: func() (io.ReadCloser, error) {
			if _, err := os.Stat(filePath); os.IsNotExist(err) {
				return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(DetectFileType(filePath)), filePath)
			}
			return os.Open(filePath)
		},
	}
}

// NewStreamReader creates a reader over an uploaded stream; name only selects the type
func NewStreamReader(name string, r io.Reader) *DataReader {
	return &DataReader{
		name:     name,
		fileType: DetectFileType(name),
		logger:   internal.DefaultLogger.WithComponent("DataReader"),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
	}
}

// WithLogger replaces the reader logger
func (r *DataReader) WithLogger(logger *internal.Logger) *DataReader {
	r.logger = logger.WithComponent("DataReader")
	return r
}

// DetectFileType maps a file name to csv or xlsx. Anything that is not .csv is
// treated as a workbook.
func DetectFileType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return FileTypeCSV
	}
	return FileTypeXLSX
}

// ReadData reads data from Excel or CSV files into structured format
func (r *DataReader) ReadData() (*ExcelData, error) {
	r.logger.Debug("Starting to read %s file: %s", r.fileType, r.name)

	src, err := r.open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	switch r.fileType {
	case FileTypeCSV:
		return r.readCSVData(src)
	case FileTypeXLSX:
		return r.readExcelData(src)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads the first sheet of a workbook
func (r *DataReader) readExcelData(src io.Reader) (*ExcelData, error) {
	startTime := time.Now()
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file %s has no sheets", r.name)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheets[0], err)
	}
	r.logger.Debug("%s read in %.2fms (%d rows)", sheets[0], float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("Excel file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData(src io.Reader) (*ExcelData, error) {
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	// Spreadsheet exports often lead with a UTF-8 BOM
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.logger.Debug("CSV file read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// processRows converts raw string rows into ExcelData format
func (r *DataReader) processRows(rows [][]string) (*ExcelData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	dataRows := make([]RawRowData, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData, len(headers))

		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}

		dataRows = append(dataRows, rowData)
	}

	r.logger.Debug("%s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &ExcelData{
		Headers: headers,
		Rows:    dataRows,
	}, nil
}
