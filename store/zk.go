package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// ZKStore persists lineage records as znodes under a root path, one znode per
// table. ZooKeeper's znode version is the record version: Set with an
// expected version is the conditional write, Create covers the
// record-does-not-exist case.
type ZKStore struct {
	conn     *zk.Conn
	rootPath string
	logger   *slog.Logger
}

// NewZKStore connects to the given ZooKeeper ensemble and roots all records
// under rootPath (for example "/pinot/SEGMENT_LINEAGE").
func NewZKStore(servers []string, rootPath string, logger *slog.Logger) (*ZKStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := zk.Connect(servers, 5*time.Second, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}

	s := &ZKStore{
		conn:     conn,
		rootPath: strings.TrimRight(rootPath, "/"),
		logger:   logger.With("component", "zkstore"),
	}
	if err := s.waitConnected(10 * time.Second); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.ensurePath(s.rootPath); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure root path: %w", err)
	}
	return s, nil
}

func (s *ZKStore) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := s.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (s *ZKStore) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := s.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = s.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

func (s *ZKStore) nodePath(table string) string {
	return s.rootPath + "/" + table
}

func (s *ZKStore) Read(_ context.Context, table string) (Record, error) {
	data, stat, err := s.conn.Get(s.nodePath(table))
	if errors.Is(err, zk.ErrNoNode) {
		return Record{Version: NoVersion}, ErrNotFound
	}
	if err != nil {
		return Record{Version: NoVersion}, fmt.Errorf("zk get %s: %w", table, err)
	}
	return Record{Data: data, Version: Version(stat.Version)}, nil
}

func (s *ZKStore) Write(_ context.Context, table string, data []byte, expected Version) (Version, error) {
	path := s.nodePath(table)

	if expected == NoVersion {
		_, err := s.conn.Create(path, data, 0, zk.WorldACL(zk.PermAll))
		if errors.Is(err, zk.ErrNodeExists) {
			return NoVersion, ErrVersionConflict
		}
		if err != nil {
			return NoVersion, fmt.Errorf("zk create %s: %w", table, err)
		}
		return 0, nil
	}

	stat, err := s.conn.Set(path, data, int32(expected))
	if errors.Is(err, zk.ErrBadVersion) || errors.Is(err, zk.ErrNoNode) {
		return NoVersion, ErrVersionConflict
	}
	if err != nil {
		return NoVersion, fmt.Errorf("zk set %s: %w", table, err)
	}
	return Version(stat.Version), nil
}

func (s *ZKStore) Delete(_ context.Context, table string) error {
	// Version -1 deletes unconditionally; the record only goes away when the
	// table is dropped, so there is no version to race against.
	err := s.conn.Delete(s.nodePath(table), -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("zk delete %s: %w", table, err)
	}
	return nil
}

func (s *ZKStore) Close() error {
	s.conn.Close()
	return nil
}
