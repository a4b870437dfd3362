package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitStdout(t *testing.T) {
	p, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: ExporterStdout})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if p.Shutdown == nil || p.MetricsHandler != nil {
		t.Fatalf("unexpected providers %+v", p)
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitNone(t *testing.T) {
	p, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	if p.MetricsHandler != nil {
		t.Fatal("expected no metrics handler")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("svc", "v0", Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	if _, err := InitWithConfig("svc", "v0", Config{Exporter: ExporterOTLP}); err == nil {
		t.Fatal("expected error for otlp without endpoint")
	}
}

func TestInitPrometheusServesMetrics(t *testing.T) {
	p, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: ExporterPrometheus})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()
	if p.MetricsHandler == nil {
		t.Fatal("expected metrics handler")
	}

	counter, err := otel.Meter("agora-test").Int64Counter("agora.test.counter")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.MetricsHandler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "agora_test_counter") {
		t.Fatalf("expected counter in scrape output, got:\n%s", body)
	}
}

func TestConfigureSlogAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	ctx, span := otel.Tracer("agora-test").Start(context.Background(), "op")
	defer span.End()
	logger.InfoContext(ctx, "hello")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if span.SpanContext().IsValid() && !strings.Contains(out, "trace_id") {
		t.Fatalf("expected trace id in output: %s", out)
	}
}
