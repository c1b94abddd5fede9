package tracing

import (
	"context"
	"testing"
)

func TestSetup_NoneReturnsNoop(t *testing.T) {
	for _, exporter := range []string{"", "none"} {
		tp, shutdown, err := Setup(context.Background(), Config{Exporter: exporter}, nil)
		if err != nil {
			t.Fatalf("exporter %q: %v", exporter, err)
		}
		if tp == nil {
			t.Fatalf("exporter %q: nil provider", exporter)
		}
		shutdown()
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, _, err := Setup(context.Background(), Config{Exporter: "jaeger"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestSetup_Stdout(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), Config{Exporter: "stdout", SampleRatio: 0.5}, nil)
	if err != nil {
		t.Fatalf("stdout exporter: %v", err)
	}
	if tp == nil {
		t.Fatal("nil provider")
	}
	shutdown()
}
