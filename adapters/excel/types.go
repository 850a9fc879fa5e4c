package excel

// RawRowData represents a row of raw spreadsheet data as header/value pairs
type RawRowData map[string]string

// ExcelData represents a complete sheet: trimmed headers and their rows
type ExcelData struct {
	Headers []string     // Column headers in file order
	Rows    []RawRowData // Data rows
}

// HasHeader reports whether the sheet carries the named column
func (d *ExcelData) HasHeader(name string) bool {
	for _, h := range d.Headers {
		if h == name {
			return true
		}
	}
	return false
}
