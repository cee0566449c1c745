package telemetry

import (
	"context"
	"testing"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown := Setup("crew-monitor", "test")
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown, got %v", err)
	}
}

func TestSampleRatio(t *testing.T) {
	tests := map[string]float64{"": 1, "0.25": 0.25, "0": 0, "2": 1, "abc": 1}
	for raw, want := range tests {
		t.Setenv("OTEL_TRACES_SAMPLER_RATIO", raw)
		if got := sampleRatio(); got != want {
			t.Fatalf("ratio %q: expected %v, got %v", raw, want, got)
		}
	}
}
