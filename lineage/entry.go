// Package lineage implements the segment lineage protocol: the record of
// in-flight and completed segment replacements for a table, and the state
// machine that starts, completes, or reverts a replacement without ever
// exposing readers to a mix of stale and new segments.
package lineage

import (
	"fmt"

	"github.com/google/uuid"
)

// State is the lifecycle state of a lineage entry. COMPLETED and REVERTED
// are terminal.
type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateReverted   State = "REVERTED"
)

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateReverted
}

// IngestionMode is how a table receives data. Refresh-mode tables replace
// their whole data snapshot each load, which enables generation pruning.
type IngestionMode string

const (
	ModeAppend  IngestionMode = "APPEND"
	ModeRefresh IngestionMode = "REFRESH"
)

// Entry records one attempted segment replacement. SegmentsFrom and
// SegmentsTo are fixed at creation; only State changes, and only once.
type Entry struct {
	ID           string   `json:"id"`
	SegmentsFrom []string `json:"segmentsFrom"`
	SegmentsTo   []string `json:"segmentsTo"`
	State        State    `json:"state"`
}

// newEntryID returns a fresh opaque entry identifier.
func newEntryID() string {
	return uuid.NewString()
}

func (e *Entry) String() string {
	return fmt.Sprintf("entry %s: %v -> %v (%s)", e.ID, e.SegmentsFrom, e.SegmentsTo, e.State)
}

// clone returns a deep copy so callers can hand entries out without
// exposing internal slices.
func (e *Entry) clone() *Entry {
	return &Entry{
		ID:           e.ID,
		SegmentsFrom: append([]string(nil), e.SegmentsFrom...),
		SegmentsTo:   append([]string(nil), e.SegmentsTo...),
		State:        e.State,
	}
}
