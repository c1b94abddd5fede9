package lineage

import (
	"encoding/json"
	"fmt"
)

// SegmentLineage is the insertion-ordered collection of replacement entries
// for one table. The whole collection is the unit of atomicity: it is read
// and written back as a single versioned record.
type SegmentLineage struct {
	table   string
	entries []*Entry
	byID    map[string]*Entry
}

// NewSegmentLineage returns an empty lineage for a table.
func NewSegmentLineage(table string) *SegmentLineage {
	return &SegmentLineage{
		table: table,
		byID:  make(map[string]*Entry),
	}
}

// Table returns the table this lineage belongs to.
func (l *SegmentLineage) Table() string { return l.table }

// Len returns the number of entries.
func (l *SegmentLineage) Len() int { return len(l.entries) }

// Entry returns a copy of the entry with the given id, or nil.
func (l *SegmentLineage) Entry(id string) *Entry {
	e, ok := l.byID[id]
	if !ok {
		return nil
	}
	return e.clone()
}

// Entries returns copies of all entries in insertion order.
func (l *SegmentLineage) Entries() []*Entry {
	out := make([]*Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// add appends a new entry. Entries are never removed; history is kept for
// audit and for idempotent retries of end/revert.
func (l *SegmentLineage) add(e *Entry) {
	l.entries = append(l.entries, e)
	l.byID[e.ID] = e
}

// setState transitions the entry with the given id. The caller is
// responsible for having checked the transition is legal.
func (l *SegmentLineage) setState(id string, s State) {
	if e, ok := l.byID[id]; ok {
		e.State = s
	}
}

// MarshalJSON encodes the entries as a JSON array, preserving insertion
// order across a round trip.
func (l *SegmentLineage) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.entries)
}

// UnmarshalSegmentLineage decodes a lineage record for the given table.
func UnmarshalSegmentLineage(table string, data []byte) (*SegmentLineage, error) {
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode lineage for table %s: %w", table, err)
	}
	l := NewSegmentLineage(table)
	for _, e := range entries {
		l.add(e)
	}
	return l, nil
}

// segmentsIntersect reports whether two source sets conflict. Two empty sets
// count as intersecting so that repeated full-refresh attempts serialize
// instead of racing.
func segmentsIntersect(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return true
		}
	}
	return false
}
