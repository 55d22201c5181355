package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/errors"
)

func TestInit(t *testing.T) {
	shutdown, err := Init("clade-test", "v0.0.1")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitWithConfigRejectsUnknownExporter(t *testing.T) {
	_, err := InitWithConfig("clade-test", "v0.0.1", Config{Exporter: "bogus"})
	if !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error for unknown exporter, got %v", err)
	}
}

func TestInitWithConfigRequiresOTLPEndpoint(t *testing.T) {
	_, err := InitWithConfig("clade-test", "v0.0.1", Config{Exporter: "otlp"})
	if !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error when otlp endpoint is missing, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		cfg Config
		ok  bool
	}{
		{Config{}, true},
		{Config{Exporter: ExporterStdout}, true},
		{Config{Exporter: ExporterOTLP, OTLPEndpoint: "localhost:4317"}, true},
		{Config{Exporter: ExporterOTLP}, false},
		{Config{Exporter: "jaeger"}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Errorf("Validate(%+v) = %v, want nil", tc.cfg, err)
		}
		if !tc.ok && !errors.HasCode(err, errors.CodeConfiguration) {
			t.Errorf("Validate(%+v) = %v, want configuration error", tc.cfg, err)
		}
	}
}

func TestConfigureSlogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn record missing")
	}
}

func TestSlogHandlerInjectsCycleID(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := core.WithCycleID(context.Background(), "cycle-42")
	logger.InfoContext(ctx, "generation done")

	if !strings.Contains(buf.String(), `"cycle_id":"cycle-42"`) {
		t.Errorf("cycle_id missing from record: %s", buf.String())
	}
}

func TestEngineMetrics(t *testing.T) {
	em, err := NewEngineMetrics()
	if err != nil {
		t.Fatalf("failed to create engine metrics: %v", err)
	}
	ctx := context.Background()

	em.RecordCall(ctx, "gemini-3-flash-preview", nil)
	em.RecordCall(ctx, "gemini-3-flash-preview",
		errors.New(errors.CodeTransientResource, "quota", nil))
	em.RecordRotation(ctx, "key-1")
	em.RecordParseFallback(ctx, "ideator")
	em.RecordGeneration(ctx, 0, 0.42)
	em.RecordSpawn(ctx, true)
	em.RecordSpawn(ctx, false)
	em.RecordPopulation(ctx, 5)

	var nilMetrics *EngineMetrics
	nilMetrics.RecordCall(ctx, "m", nil)
	nilMetrics.RecordRotation(ctx, "k")
	nilMetrics.RecordParseFallback(ctx, "critic")
	nilMetrics.RecordGeneration(ctx, 1, 0.9)
	nilMetrics.RecordSpawn(ctx, true)
	nilMetrics.RecordPopulation(ctx, 1)
}
