package telemetry

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSampleRate(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{-0.1, defaultSampleRate},
		{1.5, defaultSampleRate},
	}
	for _, tc := range tests {
		if got := SampleRate(tc.in); got != tc.want {
			t.Fatalf("SampleRate(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTracerName(t *testing.T) {
	if Tracer("bridge") == nil {
		t.Fatalf("expected tracer")
	}
}
