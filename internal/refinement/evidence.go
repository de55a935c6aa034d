package refinement

import (
	"fmt"
	"strings"
)

// EvidenceSet is an insertion-ordered set of symptoms.
type EvidenceSet struct {
	order []SymptomID
	index map[SymptomID]struct{}
}

func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{index: make(map[SymptomID]struct{})}
}

// EvidenceFromSelection builds the initial evidence from a user selection,
// keeping the first occurrence of duplicates.
func EvidenceFromSelection(selection []SymptomID) (*EvidenceSet, error) {
	e := NewEvidenceSet()
	for _, id := range selection {
		if strings.TrimSpace(string(id)) == "" {
			return nil, fmt.Errorf("%w: blank symptom in selection", ErrValidation)
		}
		e.Add(id)
	}
	if e.Len() == 0 {
		return nil, fmt.Errorf("%w: select at least one symptom", ErrValidation)
	}
	return e, nil
}

// Add appends id unless it is already present. It reports whether the set grew.
func (e *EvidenceSet) Add(id SymptomID) bool {
	if _, ok := e.index[id]; ok {
		return false
	}
	e.index[id] = struct{}{}
	e.order = append(e.order, id)
	return true
}

func (e *EvidenceSet) Contains(id SymptomID) bool {
	_, ok := e.index[id]
	return ok
}

func (e *EvidenceSet) Len() int {
	return len(e.order)
}

// IDs returns a copy in insertion order.
func (e *EvidenceSet) IDs() []SymptomID {
	out := make([]SymptomID, len(e.order))
	copy(out, e.order)
	return out
}

// Clone returns an independent copy, used to stage a mutation until the
// prediction round commits.
func (e *EvidenceSet) Clone() *EvidenceSet {
	c := &EvidenceSet{
		order: make([]SymptomID, len(e.order)),
		index: make(map[SymptomID]struct{}, len(e.index)),
	}
	copy(c.order, e.order)
	for k := range e.index {
		c.index[k] = struct{}{}
	}
	return c
}
