package plate

// LayoutEntry assigns a compound to one well
type LayoutEntry struct {
	Well
	Compound string `json:"compound"`
}

// Layout is the assay layout: one entry per well. Entries keep file order.
// At most one entry per well is expected but not enforced.
type Layout struct {
	Entries []LayoutEntry `json:"entries"`
}

// NewLayout wraps entries as a layout
func NewLayout(entries ...LayoutEntry) Layout {
	return Layout{Entries: entries}
}

// Lookup returns the first entry matching w
func (l Layout) Lookup(w Well) (LayoutEntry, bool) {
	for _, e := range l.Entries {
		if e.Well == w {
			return e, true
		}
	}
	return LayoutEntry{}, false
}

// Len returns the number of layout entries
func (l Layout) Len() int {
	return len(l.Entries)
}

// Wells returns the distinct wells of the layout in file order
func (l Layout) Wells() WellSet {
	wells := make([]Well, 0, len(l.Entries))
	for _, e := range l.Entries {
		wells = append(wells, e.Well)
	}
	return NewWellSet(wells...)
}

// WellsWithCompound returns the wells assigned the given compound
func (l Layout) WellsWithCompound(compound string) WellSet {
	var wells []Well
	for _, e := range l.Entries {
		if e.Compound == compound {
			wells = append(wells, e.Well)
		}
	}
	return NewWellSet(wells...)
}

// Compounds returns the distinct compound names in file order
func (l Layout) Compounds() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range l.Entries {
		if !seen[e.Compound] {
			seen[e.Compound] = true
			out = append(out, e.Compound)
		}
	}
	return out
}
