// Package store provides the versioned record store that holds one segment
// lineage record per table. All mutation goes through conditional writes: a
// write carries the version the writer last read, and loses with
// ErrVersionConflict when another writer committed in between.
package store

import (
	"context"
	"errors"
)

// Version is the monotonically increasing version of a table's record.
type Version int64

// NoVersion is the expected version for a record that does not exist yet.
// Writing with NoVersion creates the record and fails with
// ErrVersionConflict if it already exists.
const NoVersion Version = -1

// ErrVersionConflict is returned by Write when the record's version no longer
// matches the expected one, meaning a concurrent writer committed first.
var ErrVersionConflict = errors.New("store: record version changed by a concurrent writer")

// ErrNotFound is returned by Read when no record exists for the table.
var ErrNotFound = errors.New("store: no record for table")

// Record is a table's serialized lineage together with its version.
type Record struct {
	Data    []byte
	Version Version
}

// Store persists one versioned record per table.
type Store interface {
	// Read returns the current record for the table, or ErrNotFound.
	Read(ctx context.Context, table string) (Record, error)

	// Write replaces the table's record if its version still equals expected,
	// returning the new version. Pass NoVersion to create the record.
	Write(ctx context.Context, table string, data []byte, expected Version) (Version, error)

	// Delete removes the table's record. Deleting an absent record is not an
	// error; the record only goes away when the table itself is dropped.
	Delete(ctx context.Context, table string) error

	// Close releases the underlying connection.
	Close() error
}
