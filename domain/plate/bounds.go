package plate

import (
	"fmt"

	"imvqa/domain/core"
)

// Bounds is an inclusive rectangle of wells, as brushed on the heatmap
type Bounds struct {
	RowMin    int `json:"row_min"`
	RowMax    int `json:"row_max"`
	ColumnMin int `json:"column_min"`
	ColumnMax int `json:"column_max"`
}

// Normalize swaps inverted edges so that Min <= Max on both axes
func (b Bounds) Normalize() Bounds {
	if b.RowMin > b.RowMax {
		b.RowMin, b.RowMax = b.RowMax, b.RowMin
	}
	if b.ColumnMin > b.ColumnMax {
		b.ColumnMin, b.ColumnMax = b.ColumnMax, b.ColumnMin
	}
	return b
}

// Contains reports whether w lies inside the rectangle
func (b Bounds) Contains(w Well) bool {
	n := b.Normalize()
	return w.Row >= n.RowMin && w.Row <= n.RowMax &&
		w.Column >= n.ColumnMin && w.Column <= n.ColumnMax
}

// Validate rejects negative coordinates
func (b Bounds) Validate() error {
	if b.RowMin < 0 || b.RowMax < 0 || b.ColumnMin < 0 || b.ColumnMax < 0 {
		return fmt.Errorf("%w: negative coordinate in %s", core.ErrInvalidSelection, b)
	}
	return nil
}

func (b Bounds) String() string {
	n := b.Normalize()
	return fmt.Sprintf("rows %d-%d, columns %d-%d", n.RowMin, n.RowMax, n.ColumnMin, n.ColumnMax)
}
