package safegoroutine

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestGo_PanicBecomesError(t *testing.T) {
	var g errgroup.Group
	Go(&g, nil, "worker", func() error {
		panic("boom")
	})

	err := g.Wait()
	if err == nil {
		t.Fatal("expected an error from the panicking goroutine")
	}
	if !strings.Contains(err.Error(), "panic in worker") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGo_ErrorPassthrough(t *testing.T) {
	want := errors.New("expected")
	var g errgroup.Group
	Go(&g, nil, "worker", func() error {
		return want
	})

	if err := g.Wait(); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestGo_NilError(t *testing.T) {
	var g errgroup.Group
	Go(&g, nil, "worker", func() error { return nil })
	if err := g.Wait(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
