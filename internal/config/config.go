package config

import "time"

// Config is the top-level daemon configuration, loaded from YAML and
// LINEAGE_* environment variables via viper.
type Config struct {
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Store           StoreConfig   `mapstructure:"store"`
	Cleanup         CleanupConfig `mapstructure:"cleanup"`
	Lineage         LineageConfig `mapstructure:"lineage"`
	Tables          []TableConfig `mapstructure:"tables"`
	OTel            OTelConfig    `mapstructure:"otel"`
}

// StoreConfig selects and configures the versioned record store backend.
type StoreConfig struct {
	Backend     string   `mapstructure:"backend"` // "memory", "zookeeper", "postgres"
	ZKServers   []string `mapstructure:"zk_servers"`
	ZKRootPath  string   `mapstructure:"zk_root_path"`
	DatabaseURL string   `mapstructure:"database_url"`
}

// CleanupConfig selects how segment deletion requests are delivered.
type CleanupConfig struct {
	Mode         string        `mapstructure:"mode"` // "queue", "kafka", "none"
	Workers      int           `mapstructure:"workers"`
	QueueDepth   int           `mapstructure:"queue_depth"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffCap   time.Duration `mapstructure:"backoff_cap"`
	KafkaBrokers []string      `mapstructure:"kafka_brokers"`
	KafkaTopic   string        `mapstructure:"kafka_topic"`
}

// LineageConfig tunes the replacement protocol itself.
type LineageConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BackoffBase         time.Duration `mapstructure:"backoff_base"`
	BackoffCap          time.Duration `mapstructure:"backoff_cap"`
	RetainedGenerations int           `mapstructure:"retained_generations"`
}

// TableConfig declares a table served by the embedded catalog.
type TableConfig struct {
	Name string `mapstructure:"name"`
	Mode string `mapstructure:"mode"` // "APPEND" or "REFRESH"
}

// OTelConfig configures trace export.
type OTelConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Defaults returns a Config with the defaults applied.
func Defaults() Config {
	return Config{
		LogLevel:        "info",
		LogFormat:       "text",
		HTTPAddr:        ":8080",
		ShutdownTimeout: 10 * time.Second,
		Store: StoreConfig{
			Backend:    "memory",
			ZKRootPath: "/pinot/SEGMENT_LINEAGE",
		},
		Cleanup: CleanupConfig{
			Mode:    "queue",
			Workers: 4,
		},
	}
}
