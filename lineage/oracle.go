package lineage

import "context"

// SegmentOracle answers what the cluster knows about a table's segments. It
// is backed by the external segment metadata service; the protocol only ever
// reads from it.
type SegmentOracle interface {
	// ListSegments returns every registered segment for the table,
	// regardless of lineage state.
	ListSegments(ctx context.Context, table string) ([]string, error)

	// IsAvailable reports whether the segment is registered and physically
	// placed, i.e. servable by queries.
	IsAvailable(ctx context.Context, table, segment string) (bool, error)

	// IngestionMode returns how the table receives data.
	IngestionMode(ctx context.Context, table string) (IngestionMode, error)
}
