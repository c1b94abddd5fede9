package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joshbouncesecurity/pinot/internal/config"
	"github.com/joshbouncesecurity/pinot/store"
)

type validationResult struct {
	component string
	status    string
	message   string
	duration  time.Duration
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration without starting the daemon",
	Long:  `Checks the config file for structural problems and unknown keys, and probes store connectivity. Reports pass/fail status per component.`,
	RunE:  runValidate,
}

var validateSkipConnect bool

func init() {
	validateCmd.Flags().BoolVar(&validateSkipConnect, "skip-connect", false, "skip store connectivity checks")
}

func runValidate(cmd *cobra.Command, args []string) error {
	var results []validationResult
	hasFailure := false

	// Structural config validation.
	cfg := config.Defaults()
	if err := viper.Unmarshal(&cfg); err != nil {
		results = append(results, validationResult{
			component: "config",
			status:    "FAIL",
			message:   fmt.Sprintf("unmarshal: %s", err),
		})
		hasFailure = true
	} else if err := cfg.Validate(); err != nil {
		results = append(results, validationResult{
			component: "config",
			status:    "FAIL",
			message:   err.Error(),
		})
		hasFailure = true
	} else {
		results = append(results, validationResult{
			component: "config",
			status:    "OK",
			message:   fmt.Sprintf("backend=%s cleanup=%s tables=%d", cfg.Store.Backend, cfg.Cleanup.Mode, len(cfg.Tables)),
		})
	}

	// Unknown top-level keys. Viper drops these silently, which turns a
	// typo like "clenup:" into a config that validates and does nothing.
	if file := viper.ConfigFileUsed(); file != "" {
		results = append(results, validateKeys(file))
	}

	// Store connectivity.
	if validateSkipConnect {
		results = append(results, validationResult{
			component: "store",
			status:    "SKIP",
			message:   "--skip-connect",
		})
	} else {
		r := validateStore(cmd.Context(), cfg.Store)
		results = append(results, r)
		if r.status == "FAIL" {
			hasFailure = true
		}
	}

	// Print results table.
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDURATION\tMESSAGE")
	_, _ = fmt.Fprintln(w, "---------\t------\t--------\t-------")
	for _, r := range results {
		dur := "-"
		if r.duration > 0 {
			dur = r.duration.Truncate(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.component, r.status, dur, r.message)
	}
	_ = w.Flush()

	if hasFailure {
		return fmt.Errorf("validation failed")
	}
	return nil
}

var knownConfigKeys = map[string]bool{
	"log_level": true, "log_format": true, "http_addr": true,
	"shutdown_timeout": true, "store": true, "cleanup": true,
	"lineage": true, "tables": true, "otel": true,
}

func validateKeys(file string) validationResult {
	data, err := os.ReadFile(file)
	if err != nil {
		return validationResult{component: "keys", status: "FAIL", message: fmt.Sprintf("read %s: %s", file, err)}
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return validationResult{component: "keys", status: "FAIL", message: fmt.Sprintf("parse %s: %s", file, err)}
	}
	var unknown []string
	for k := range raw {
		if !knownConfigKeys[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return validationResult{component: "keys", status: "WARN", message: fmt.Sprintf("unknown keys ignored: %v", unknown)}
	}
	return validationResult{component: "keys", status: "OK", message: fmt.Sprintf("%d top-level keys recognised", len(raw))}
}

func validateStore(ctx context.Context, cfg config.StoreConfig) validationResult {
	start := time.Now()
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch cfg.Backend {
	case "memory":
		return validationResult{component: "store", status: "OK", message: "in-memory, nothing to probe"}
	case "postgres":
		conn, err := pgx.Connect(connCtx, cfg.DatabaseURL)
		if err != nil {
			return validationResult{component: "store", status: "FAIL", message: fmt.Sprintf("connect: %s", err), duration: time.Since(start)}
		}
		defer func() { _ = conn.Close(ctx) }()
		if err := conn.Ping(connCtx); err != nil {
			return validationResult{component: "store", status: "FAIL", message: fmt.Sprintf("ping: %s", err), duration: time.Since(start)}
		}
		return validationResult{component: "store", status: "OK", message: "connected", duration: time.Since(start)}
	case "zookeeper":
		st, err := store.NewZKStore(cfg.ZKServers, cfg.ZKRootPath, nil)
		if err != nil {
			return validationResult{component: "store", status: "FAIL", message: fmt.Sprintf("connect: %s", err), duration: time.Since(start)}
		}
		_ = st.Close()
		return validationResult{component: "store", status: "OK", message: "connected", duration: time.Since(start)}
	default:
		return validationResult{component: "store", status: "FAIL", message: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}
