// Package catalog is an in-memory segment catalog: which tables exist, how
// they ingest data, and which segments are registered and servable. It
// implements the oracle the lineage protocol validates against. Deployments
// with an external metadata service implement lineage.SegmentOracle over
// that service instead; this implementation backs embedded use and tests.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/joshbouncesecurity/pinot/lineage"
)

type table struct {
	mode     lineage.IngestionMode
	segments map[string]bool // segment -> physically available
}

// Catalog tracks tables and their registered segments.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*table
	logger *slog.Logger
}

// New returns an empty catalog.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		tables: make(map[string]*table),
		logger: logger.With("component", "catalog"),
	}
}

// AddTable registers a table with the given ingestion mode. Re-adding an
// existing table only updates the mode.
func (c *Catalog) AddTable(name string, mode lineage.IngestionMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[name]; ok {
		t.mode = mode
		return
	}
	c.tables[name] = &table{mode: mode, segments: make(map[string]bool)}
}

// AddSegment registers a segment as uploaded and servable.
func (c *Catalog) AddSegment(tableName, segment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[tableName]
	if !ok {
		return fmt.Errorf("catalog: unknown table %s", tableName)
	}
	t.segments[segment] = true
	return nil
}

// RemoveSegment drops a segment's registration. Removing an absent segment
// is a no-op, which makes this usable as an idempotent deletion target.
func (c *Catalog) RemoveSegment(_ context.Context, tableName, segment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[tableName]
	if !ok {
		return nil
	}
	if _, existed := t.segments[segment]; existed {
		delete(t.segments, segment)
		c.logger.Debug("segment removed", "table", tableName, "segment", segment)
	}
	return nil
}

// ListSegments implements lineage.SegmentOracle.
func (c *Catalog) ListSegments(_ context.Context, tableName string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown table %s", tableName)
	}
	out := make([]string, 0, len(t.segments))
	for s := range t.segments {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// IsAvailable implements lineage.SegmentOracle.
func (c *Catalog) IsAvailable(_ context.Context, tableName, segment string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableName]
	if !ok {
		return false, fmt.Errorf("catalog: unknown table %s", tableName)
	}
	return t.segments[segment], nil
}

// IngestionMode implements lineage.SegmentOracle.
func (c *Catalog) IngestionMode(_ context.Context, tableName string) (lineage.IngestionMode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableName]
	if !ok {
		return "", fmt.Errorf("catalog: unknown table %s", tableName)
	}
	return t.mode, nil
}

// Tables returns the registered table names, sorted.
func (c *Catalog) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tables))
	for name := range c.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
