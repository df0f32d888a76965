package metrics

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingSink_SaveLogsMeasurementNameAndFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLoggingSink(zap.New(core))

	sink.Save("node_elapsed_time", map[string]any{"elapsed_ms": 12.5, "success": true}, map[string]string{"from_node": "node-a"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["measurement"] != "node_elapsed_time" {
		t.Errorf("measurement field = %v, want %q", ctx["measurement"], "node_elapsed_time")
	}
	if ctx["from_node"] != "node-a" {
		t.Errorf("from_node tag = %v, want %q", ctx["from_node"], "node-a")
	}
}
