// Package lineageerr defines the error taxonomy for segment replacement
// operations. Validation errors are permanent and reported immediately;
// precondition errors are expected, recoverable conditions the caller is
// meant to resolve and retry; concurrent-modification errors surface only
// after the internal retry budget is exhausted.
package lineageerr

import (
	"errors"
	"fmt"
	"strings"
)

// DuplicateSegmentsToError indicates that a requested destination segment is
// empty, collides with the source set, or is already produced by an existing
// in-progress or completed replacement.
type DuplicateSegmentsToError struct {
	Table    string
	Segments []string
}

func (e *DuplicateSegmentsToError) Error() string {
	if len(e.Segments) == 0 {
		return fmt.Sprintf("table %s: segmentsTo must not be empty", e.Table)
	}
	return fmt.Sprintf("table %s: segments [%s] already produced or consumed by another replacement",
		e.Table, strings.Join(e.Segments, ", "))
}

// SegmentsNotAvailableError indicates that one or more requested source
// segments are not part of the table's currently served segment set.
type SegmentsNotAvailableError struct {
	Table    string
	Segments []string
}

func (e *SegmentsNotAvailableError) Error() string {
	return fmt.Sprintf("table %s: source segments [%s] are not in the served segment set",
		e.Table, strings.Join(e.Segments, ", "))
}

// ConflictingReplacementError indicates that another in-progress replacement
// already consumes the requested source segments.
type ConflictingReplacementError struct {
	Table   string
	EntryID string
}

func (e *ConflictingReplacementError) Error() string {
	return fmt.Sprintf("table %s: replacement %s is already in progress for the same source segments",
		e.Table, e.EntryID)
}

// UnknownEntryError indicates that no lineage entry exists for the given id.
type UnknownEntryError struct {
	Table   string
	EntryID string
}

func (e *UnknownEntryError) Error() string {
	return fmt.Sprintf("table %s: no lineage entry %s", e.Table, e.EntryID)
}

// InvalidStateTransitionError indicates an attempt to move a lineage entry
// out of a terminal state.
type InvalidStateTransitionError struct {
	Table   string
	EntryID string
	From    string
	To      string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("table %s: entry %s cannot transition from %s to %s",
		e.Table, e.EntryID, e.From, e.To)
}

// SegmentsNotUploadedError indicates that a replacement cannot be completed
// because some destination segments are not yet registered and servable.
// Callers retry once the uploads finish.
type SegmentsNotUploadedError struct {
	Table   string
	EntryID string
	Missing []string
}

func (e *SegmentsNotUploadedError) Error() string {
	return fmt.Sprintf("table %s: entry %s: destination segments [%s] not yet uploaded",
		e.Table, e.EntryID, strings.Join(e.Missing, ", "))
}

// PartialUploadError indicates that a revert was refused because some
// destination segments were already uploaded and forceRevert was not set.
type PartialUploadError struct {
	Table    string
	EntryID  string
	Uploaded []string
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("table %s: entry %s: segments [%s] already uploaded, pass forceRevert to discard them",
		e.Table, e.EntryID, strings.Join(e.Uploaded, ", "))
}

// ConcurrentModificationError indicates that the bounded retry budget for
// optimistic writes was exhausted by competing writers.
type ConcurrentModificationError struct {
	Table    string
	Attempts int
	Err      error
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("table %s: lineage write lost to concurrent writers after %d attempts: %v",
		e.Table, e.Attempts, e.Err)
}

func (e *ConcurrentModificationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a permanent input validation failure
// that must not be retried with the same arguments.
func IsValidation(err error) bool {
	var (
		dup     *DuplicateSegmentsToError
		notAv   *SegmentsNotAvailableError
		unknown *UnknownEntryError
		invalid *InvalidStateTransitionError
		confl   *ConflictingReplacementError
	)
	return errors.As(err, &dup) || errors.As(err, &notAv) ||
		errors.As(err, &unknown) || errors.As(err, &invalid) || errors.As(err, &confl)
}

// IsRetryable reports whether err is an expected, recoverable condition that
// the caller can resolve (finish uploads, force the revert, or back off and
// retry the whole operation).
func IsRetryable(err error) bool {
	var (
		notUp   *SegmentsNotUploadedError
		partial *PartialUploadError
		concur  *ConcurrentModificationError
	)
	return errors.As(err, &notUp) || errors.As(err, &partial) || errors.As(err, &concur)
}
