package lineageerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestConcurrentModificationError_Unwrap(t *testing.T) {
	inner := errors.New("version conflict")
	err := &ConcurrentModificationError{Table: "orders", Attempts: 5, Err: inner}

	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}

	wrapped := fmt.Errorf("start replace: %w", err)
	var target *ConcurrentModificationError
	if !errors.As(wrapped, &target) {
		t.Fatalf("expected errors.As to unwrap through fmt.Errorf")
	}
	if target.Attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", target.Attempts)
	}
}

func TestIsValidation(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate segmentsTo", &DuplicateSegmentsToError{Table: "t", Segments: []string{"s1"}}, true},
		{"segments not available", &SegmentsNotAvailableError{Table: "t", Segments: []string{"s1"}}, true},
		{"unknown entry", &UnknownEntryError{Table: "t", EntryID: "abc"}, true},
		{"invalid transition", &InvalidStateTransitionError{Table: "t", EntryID: "abc", From: "COMPLETED", To: "REVERTED"}, true},
		{"conflicting replacement", &ConflictingReplacementError{Table: "t", EntryID: "abc"}, true},
		{"not uploaded", &SegmentsNotUploadedError{Table: "t", EntryID: "abc", Missing: []string{"s1"}}, false},
		{"plain error", errors.New("boom"), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidation(tc.err); got != tc.want {
				t.Fatalf("IsValidation(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want bool
	}{
		{"not uploaded", &SegmentsNotUploadedError{Table: "t", EntryID: "abc", Missing: []string{"s1"}}, true},
		{"partial upload", &PartialUploadError{Table: "t", EntryID: "abc", Uploaded: []string{"s1"}}, true},
		{"concurrent modification", &ConcurrentModificationError{Table: "t", Attempts: 3}, true},
		{"wrapped", fmt.Errorf("end replace: %w", &SegmentsNotUploadedError{Table: "t", EntryID: "abc"}), true},
		{"duplicate segmentsTo", &DuplicateSegmentsToError{Table: "t"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
