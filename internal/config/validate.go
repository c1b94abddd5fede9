package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for contradictions before anything is
// wired. It returns the first problem found.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "zookeeper":
		if len(c.Store.ZKServers) == 0 {
			return fmt.Errorf("store backend %q requires store.zk_servers", c.Store.Backend)
		}
		if !strings.HasPrefix(c.Store.ZKRootPath, "/") {
			return fmt.Errorf("store.zk_root_path must be an absolute path, got %q", c.Store.ZKRootPath)
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store backend %q requires store.database_url", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q (expected memory, zookeeper, or postgres)", c.Store.Backend)
	}

	switch c.Cleanup.Mode {
	case "", "none", "queue":
	case "kafka":
		if len(c.Cleanup.KafkaBrokers) == 0 {
			return fmt.Errorf("cleanup mode %q requires cleanup.kafka_brokers", c.Cleanup.Mode)
		}
		if c.Cleanup.KafkaTopic == "" {
			return fmt.Errorf("cleanup mode %q requires cleanup.kafka_topic", c.Cleanup.Mode)
		}
	default:
		return fmt.Errorf("unknown cleanup mode %q (expected queue, kafka, or none)", c.Cleanup.Mode)
	}

	if c.Lineage.RetainedGenerations != 0 && c.Lineage.RetainedGenerations < 2 {
		return fmt.Errorf("lineage.retained_generations must be at least 2, got %d", c.Lineage.RetainedGenerations)
	}

	seen := make(map[string]bool, len(c.Tables))
	for _, tbl := range c.Tables {
		if tbl.Name == "" {
			return fmt.Errorf("table with empty name")
		}
		if seen[tbl.Name] {
			return fmt.Errorf("duplicate table %q", tbl.Name)
		}
		seen[tbl.Name] = true
		switch strings.ToUpper(tbl.Mode) {
		case "", "APPEND", "REFRESH":
		default:
			return fmt.Errorf("table %q: unknown ingestion mode %q (expected APPEND or REFRESH)", tbl.Name, tbl.Mode)
		}
	}
	return nil
}
