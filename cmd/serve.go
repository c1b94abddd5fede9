package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joshbouncesecurity/pinot/catalog"
	"github.com/joshbouncesecurity/pinot/cleanup"
	"github.com/joshbouncesecurity/pinot/health"
	"github.com/joshbouncesecurity/pinot/internal/config"
	"github.com/joshbouncesecurity/pinot/internal/server"
	"github.com/joshbouncesecurity/pinot/lineage"
	"github.com/joshbouncesecurity/pinot/store"
	"github.com/joshbouncesecurity/pinot/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lineage daemon",
	Long: `Starts the lineage daemon: connects the configured record store,
registers the configured tables, starts the cleanup workers, and serves
health, metrics, and lineage inspection over HTTP.

Example config (lineaged.yaml):

  store:
    backend: zookeeper
    zk_servers: [zk1:2181, zk2:2181]
  cleanup:
    mode: kafka
    kafka_brokers: [kafka1:9092]
    kafka_topic: segment-deletions
  tables:
    - {name: orders, mode: APPEND}
    - {name: daily_totals, mode: REFRESH}
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides http_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Defaults()
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tp, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Exporter:       cfg.OTel.Exporter,
		Endpoint:       cfg.OTel.Endpoint,
		SampleRatio:    cfg.OTel.SampleRatio,
		ServiceVersion: Version,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer shutdownTracing()

	checker := health.NewChecker()
	checker.Register("store")
	checker.Register("cleanup")

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	checker.SetStatus("store", health.StatusUp)

	cat := catalog.New(logger)
	for _, tbl := range cfg.Tables {
		cat.AddTable(tbl.Name, parseMode(tbl.Mode))
	}

	trigger, err := buildTrigger(cfg.Cleanup, cat, logger)
	if err != nil {
		return fmt.Errorf("cleanup setup: %w", err)
	}
	checker.SetStatus("cleanup", health.StatusUp)

	mgrOpts := []lineage.Option{
		lineage.WithLogger(logger),
		lineage.WithTracerProvider(tp),
	}
	if cfg.Lineage.MaxAttempts > 0 {
		mgrOpts = append(mgrOpts, lineage.WithMaxAttempts(cfg.Lineage.MaxAttempts))
	}
	if cfg.Lineage.BackoffBase > 0 && cfg.Lineage.BackoffCap > 0 {
		mgrOpts = append(mgrOpts, lineage.WithBackoff(cfg.Lineage.BackoffBase, cfg.Lineage.BackoffCap))
	}
	if cfg.Lineage.RetainedGenerations > 0 {
		mgrOpts = append(mgrOpts, lineage.WithRetainedGenerations(cfg.Lineage.RetainedGenerations))
	}
	mgr := lineage.NewManager(st, cat, trigger, mgrOpts...)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(mgr, cat, checker, logger),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ln, lnErr := net.Listen("tcp", cfg.HTTPAddr)
		if lnErr != nil {
			return fmt.Errorf("http listen: %w", lnErr)
		}
		logger.Info("http server started", "addr", cfg.HTTPAddr, "tables", len(cfg.Tables))
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down...")

		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if err := trigger.Close(); err != nil {
			logger.Error("cleanup shutdown failed", "error", err)
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore connects the versioned record store named by the config.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemStore(), nil
	case "zookeeper":
		return store.NewZKStore(cfg.ZKServers, cfg.ZKRootPath, logger)
	case "postgres":
		return store.NewPGStore(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildTrigger constructs the deletion trigger named by the config. Queue
// mode deletes straight from the embedded catalog; kafka mode publishes
// deletion requests for an external janitor to act on.
func buildTrigger(cfg config.CleanupConfig, cat *catalog.Catalog, logger *slog.Logger) (cleanup.Trigger, error) {
	switch cfg.Mode {
	case "", "none":
		return cleanup.NopTrigger{}, nil
	case "queue":
		opts := []cleanup.QueueOption{cleanup.WithQueueLogger(logger)}
		if cfg.QueueDepth > 0 {
			opts = append(opts, cleanup.WithQueueDepth(cfg.QueueDepth))
		}
		if cfg.MaxAttempts > 0 && cfg.BackoffBase > 0 && cfg.BackoffCap > 0 {
			opts = append(opts, cleanup.WithQueueRetry(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffCap))
		}
		workers := cfg.Workers
		if workers <= 0 {
			workers = 4
		}
		return cleanup.NewQueue(cat.RemoveSegment, workers, opts...), nil
	case "kafka":
		return cleanup.NewKafkaTrigger(cfg.KafkaBrokers, cfg.KafkaTopic, logger), nil
	default:
		return nil, fmt.Errorf("unknown cleanup mode %q", cfg.Mode)
	}
}

func parseMode(s string) lineage.IngestionMode {
	if strings.EqualFold(s, string(lineage.ModeRefresh)) {
		return lineage.ModeRefresh
	}
	return lineage.ModeAppend
}
