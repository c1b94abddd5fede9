package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joshbouncesecurity/pinot/catalog"
	"github.com/joshbouncesecurity/pinot/cleanup"
	"github.com/joshbouncesecurity/pinot/health"
	"github.com/joshbouncesecurity/pinot/lineage"
	"github.com/joshbouncesecurity/pinot/store"
)

func newTestHandler(t *testing.T) (http.Handler, *lineage.Manager) {
	t.Helper()
	cat := catalog.New(nil)
	cat.AddTable("orders", lineage.ModeAppend)
	for _, s := range []string{"s0", "s1"} {
		if err := cat.AddSegment("orders", s); err != nil {
			t.Fatal(err)
		}
	}
	mgr := lineage.NewManager(store.NewMemStore(), cat, cleanup.NopTrigger{})
	checker := health.NewChecker()
	checker.Register("store")
	checker.SetStatus("store", health.StatusUp)
	return Handler(mgr, cat, checker, nil), mgr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListTables(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := get(t, h, "/tables")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Tables []string `json:"tables"`
		Count  int      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || len(body.Tables) != 1 || body.Tables[0] != "orders" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGetSegments(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := get(t, h, "/tables/orders/segments")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Table    string   `json:"table"`
		Segments []string `json:"segments"`
		Count    int      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Table != "orders" || body.Count != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGetSegmentsUnknownTable(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := get(t, h, "/tables/nope/segments")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetLineageReflectsReplacement(t *testing.T) {
	h, mgr := newTestHandler(t)

	id, err := mgr.StartReplaceSegments(context.Background(), "orders", []string{"s0"}, []string{"m0"}, false)
	if err != nil {
		t.Fatal(err)
	}

	rec := get(t, h, "/tables/orders/lineage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Table   string `json:"table"`
		Entries []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", body)
	}
	if body.Entries[0].ID != id || body.Entries[0].State != "IN_PROGRESS" {
		t.Fatalf("unexpected entry: %+v", body.Entries[0])
	}
}

func TestGetLineageEmptyTable(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := get(t, h, "/tables/orders/lineage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
