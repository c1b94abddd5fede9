package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshbouncesecurity/pinot/lineage"
)

func TestValidateKeys(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "lineaged.yaml")

	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	write("store:\n  backend: memory\ntables:\n  - name: orders\n")
	if r := validateKeys(file); r.status != "OK" {
		t.Fatalf("expected OK, got %s: %s", r.status, r.message)
	}

	write("store:\n  backend: memory\nclenup:\n  mode: queue\n")
	r := validateKeys(file)
	if r.status != "WARN" {
		t.Fatalf("expected WARN for typo, got %s: %s", r.status, r.message)
	}
	if !strings.Contains(r.message, "clenup") {
		t.Fatalf("expected the typo to be named, got %s", r.message)
	}

	write(":\n  - not yaml [")
	if r := validateKeys(file); r.status != "FAIL" {
		t.Fatalf("expected FAIL for invalid yaml, got %s: %s", r.status, r.message)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]lineage.IngestionMode{
		"":        lineage.ModeAppend,
		"APPEND":  lineage.ModeAppend,
		"append":  lineage.ModeAppend,
		"REFRESH": lineage.ModeRefresh,
		"refresh": lineage.ModeRefresh,
	} {
		if got := parseMode(in); got != want {
			t.Errorf("parseMode(%q) = %q, want %q", in, got, want)
		}
	}
}
