package plate

// WellSet is a duplicate-free collection of wells in first-seen order. A
// single well is a one-element set, so every aggregation takes a WellSet.
type WellSet struct {
	wells []Well
	index map[Well]struct{}
}

// NewWellSet builds a set from wells, dropping repeats so overlapping
// selections never weight a well's fields twice.
func NewWellSet(wells ...Well) WellSet {
	set := WellSet{index: make(map[Well]struct{}, len(wells))}
	for _, w := range wells {
		set.add(w)
	}
	return set
}

// SingleWell is shorthand for a one-element set
func SingleWell(row, column int) WellSet {
	return NewWellSet(NewWell(row, column))
}

func (s *WellSet) add(w Well) {
	if s.index == nil {
		s.index = make(map[Well]struct{})
	}
	if _, seen := s.index[w]; seen {
		return
	}
	s.index[w] = struct{}{}
	s.wells = append(s.wells, w)
}

// Contains reports whether w is a member of the set
func (s WellSet) Contains(w Well) bool {
	_, ok := s.index[w]
	return ok
}

// Len returns the number of distinct wells
func (s WellSet) Len() int {
	return len(s.wells)
}

// IsEmpty reports whether the set has no wells
func (s WellSet) IsEmpty() bool {
	return len(s.wells) == 0
}

// Wells returns a copy of the members in insertion order
func (s WellSet) Wells() []Well {
	out := make([]Well, len(s.wells))
	copy(out, s.wells)
	return out
}

// Union returns a new set holding the members of both sets
func (s WellSet) Union(other WellSet) WellSet {
	out := NewWellSet(s.wells...)
	for _, w := range other.wells {
		out.add(w)
	}
	return out
}
