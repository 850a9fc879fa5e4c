package plate

import (
	"fmt"

	"imvqa/domain/core"
)

// Well is one (row, column) coordinate on a microplate. Wells compare by value.
type Well struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// NewWell creates a well at the given coordinates
func NewWell(row, column int) Well {
	return Well{Row: row, Column: column}
}

// String renders the well as "(row, column)"
func (w Well) String() string {
	return fmt.Sprintf("(%d, %d)", w.Row, w.Column)
}

// CompoundName returns the compound the layout assigns to this well. A well
// missing from the layout is a data-integrity error; with duplicate entries
// the first one wins.
func (w Well) CompoundName(layout Layout) (string, error) {
	entry, ok := layout.Lookup(w)
	if !ok {
		return "", core.NewCompoundNotFoundError(w.Row, w.Column)
	}
	return entry.Compound, nil
}
