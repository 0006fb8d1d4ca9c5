package otel

import (
	"context"
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = secret ,broken, =x,team=streaks")
	want := map[string]string{"api-key": "secret", "team": "streaks"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected headers %v", got)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := ConfigFromEnv("streakd", "test")
	if cfg.Traces || cfg.Metrics {
		t.Fatalf("exporters should be disabled without an endpoint: %+v", cfg)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	cfg = ConfigFromEnv("streakd", "test")
	if !cfg.Traces || !cfg.Metrics || cfg.Insecure || cfg.Endpoint != "collector:4318" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "streakd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}
