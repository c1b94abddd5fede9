// Package server exposes the read-only HTTP surface of the lineage daemon:
// health, metrics, and per-table inspection of lineage records and the
// served segment view. Replacement operations are driven through the
// lineage.Manager API, not over HTTP.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshbouncesecurity/pinot/catalog"
	"github.com/joshbouncesecurity/pinot/health"
	"github.com/joshbouncesecurity/pinot/lineage"
)

// Handler returns the daemon's HTTP router.
//
//	GET /healthz                  — aggregate component health
//	GET /metrics                  — prometheus metrics
//	GET /tables                   — registered tables
//	GET /tables/{table}/lineage   — lineage entries for a table
//	GET /tables/{table}/segments  — segments currently served for a table
func Handler(mgr *lineage.Manager, cat *catalog.Catalog, checker *health.Checker, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", checker)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/tables", listTables(cat))
	r.Get("/tables/{table}/lineage", getLineage(mgr, logger))
	r.Get("/tables/{table}/segments", getSegments(mgr, logger))

	return r
}

func listTables(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tables := cat.Tables()
		writeJSON(w, http.StatusOK, map[string]any{
			"tables": tables,
			"count":  len(tables),
		})
	}
}

func getLineage(mgr *lineage.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "table")
		l, err := mgr.GetLineage(r.Context(), table)
		if err != nil {
			logger.Error("lineage lookup failed", "table", table, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"table":   table,
			"entries": l.Entries(),
		})
	}
}

func getSegments(mgr *lineage.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "table")
		segments, err := mgr.ServedSegments(r.Context(), table)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		if segments == nil {
			segments = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"table":    table,
			"segments": segments,
			"count":    len(segments),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
