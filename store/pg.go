package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

const lineageTable = "segment_lineage"

// PGStore persists lineage records in a single PostgreSQL table, one row per
// lineage table name. The conditional write is an UPDATE guarded on the
// version column; zero rows affected means a concurrent writer won.
type PGStore struct {
	mu           sync.Mutex
	conn         *pgx.Conn
	tableCreated bool
	logger       *slog.Logger
}

// NewPGStore connects to PostgreSQL and returns a record store. The
// segment_lineage table is auto-created on first use.
func NewPGStore(ctx context.Context, connStr string, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("lineage store connect: %w", err)
	}
	return &PGStore{
		conn:   conn,
		logger: logger.With("component", "pgstore"),
	}, nil
}

func (s *PGStore) ensureTable(ctx context.Context) error {
	if s.tableCreated {
		return nil
	}
	_, err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			table_name TEXT PRIMARY KEY,
			data       BYTEA NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, lineageTable))
	if err != nil {
		return fmt.Errorf("create lineage table: %w", err)
	}
	s.tableCreated = true
	return nil
}

func (s *PGStore) Read(ctx context.Context, table string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(ctx); err != nil {
		return Record{Version: NoVersion}, err
	}

	var (
		data    []byte
		version int64
	)
	err := s.conn.QueryRow(ctx,
		fmt.Sprintf("SELECT data, version FROM %s WHERE table_name = $1", lineageTable),
		table,
	).Scan(&data, &version)

	if errors.Is(err, pgx.ErrNoRows) {
		return Record{Version: NoVersion}, ErrNotFound
	}
	if err != nil {
		return Record{Version: NoVersion}, fmt.Errorf("read lineage record: %w", err)
	}
	return Record{Data: data, Version: Version(version)}, nil
}

func (s *PGStore) Write(ctx context.Context, table string, data []byte, expected Version) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(ctx); err != nil {
		return NoVersion, err
	}

	if expected == NoVersion {
		tag, err := s.conn.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (table_name, data, version)
			VALUES ($1, $2, 0)
			ON CONFLICT (table_name) DO NOTHING
		`, lineageTable), table, data)
		if err != nil {
			return NoVersion, fmt.Errorf("create lineage record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return NoVersion, ErrVersionConflict
		}
		return 0, nil
	}

	tag, err := s.conn.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET data = $2, version = version + 1, updated_at = now()
		WHERE table_name = $1 AND version = $3
	`, lineageTable), table, data, int64(expected))
	if err != nil {
		return NoVersion, fmt.Errorf("update lineage record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return NoVersion, ErrVersionConflict
	}
	return expected + 1, nil
}

func (s *PGStore) Delete(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(ctx); err != nil {
		return err
	}
	_, err := s.conn.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE table_name = $1", lineageTable), table)
	if err != nil {
		return fmt.Errorf("delete lineage record: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}
