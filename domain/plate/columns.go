package plate

// Columns names every header and label shared by the loader, the statistics
// engine and the SQL store. It is passed explicitly to each component.
type Columns struct {
	Row      string `json:"row"`
	Column   string `json:"column"`
	Field    string `json:"field"`
	Compound string `json:"compound"`

	// Derived columns
	Median    string `json:"median"`
	Variation string `json:"variation"`

	// Control is the compound label of the solvent-control wells
	Control string `json:"control"`

	// Raw QA export headers renamed on load, and the dropped message column
	RawRow     string `json:"raw_row"`
	RawColumn  string `json:"raw_column"`
	RawField   string `json:"raw_field"`
	RawMessage string `json:"raw_message"`
}

// DefaultColumns returns the header names used by the IMV exports
func DefaultColumns() Columns {
	return Columns{
		Row:        "Row",
		Column:     "Column",
		Field:      "Field",
		Compound:   "Compound",
		Median:     "median",
		Variation:  "variation",
		Control:    "DMSO",
		RawRow:     "r",
		RawColumn:  "c",
		RawField:   "f",
		RawMessage: "msg",
	}
}

// IsCoordinate reports whether header is one of the well/field coordinate headers
func (c Columns) IsCoordinate(header string) bool {
	return header == c.Row || header == c.Column || header == c.Field
}
