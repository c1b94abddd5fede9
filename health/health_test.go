package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestChecker_AllUp(t *testing.T) {
	c := NewChecker()
	c.Register("store")
	c.Register("cleanup")
	c.SetStatus("store", StatusUp)
	c.SetStatus("cleanup", StatusUp)

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status     Status            `json:"status"`
		Components map[string]Status `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Status != StatusUp {
		t.Fatalf("expected up, got %s", resp.Status)
	}
	if len(resp.Components) != 2 {
		t.Fatalf("expected 2 components, got %v", resp.Components)
	}
}

func TestChecker_DownComponentDegradesAggregate(t *testing.T) {
	c := NewChecker()
	c.Register("store")
	c.Register("cleanup")
	c.SetStatus("store", StatusUp)
	// cleanup stays down.

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 503 {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
