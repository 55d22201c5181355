// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cladeerrors "github.com/imoran/clade/pkg/errors"
)

// EngineMetrics tracks evolution engine activity: model calls, credential
// rotation, parse fallbacks, spawning, and population. It satisfies the
// recorder interfaces of the resilience, agent, and evolution packages.
type EngineMetrics struct {
	callCounter       metric.Int64Counter
	rotationCounter   metric.Int64Counter
	fallbackCounter   metric.Int64Counter
	spawnCounter      metric.Int64Counter
	generationCounter metric.Int64Counter
	consensusGauge    metric.Float64Gauge
	populationGauge   metric.Int64Gauge
}

// NewEngineMetrics creates the engine metric instruments on the global meter.
func NewEngineMetrics() (*EngineMetrics, error) {
	meter := otel.Meter("clade/engine")

	callCounter, err := meter.Int64Counter(
		"clade.llm.calls",
		metric.WithDescription("Model invocations by model and outcome"),
	)
	if err != nil {
		return nil, err
	}

	rotationCounter, err := meter.Int64Counter(
		"clade.rotation.quarantines",
		metric.WithDescription("Credentials quarantined after transient exhaustion"),
	)
	if err != nil {
		return nil, err
	}

	fallbackCounter, err := meter.Int64Counter(
		"clade.parse.fallbacks",
		metric.WithDescription("Role responses kept as raw text after JSON extraction failed"),
	)
	if err != nil {
		return nil, err
	}

	spawnCounter, err := meter.Int64Counter(
		"clade.evolution.spawns",
		metric.WithDescription("Spawn decisions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	generationCounter, err := meter.Int64Counter(
		"clade.evolution.generations",
		metric.WithDescription("Completed generations"),
	)
	if err != nil {
		return nil, err
	}

	consensusGauge, err := meter.Float64Gauge(
		"clade.evolution.consensus",
		metric.WithDescription("Most recent synthesis consensus level"),
	)
	if err != nil {
		return nil, err
	}

	populationGauge, err := meter.Int64Gauge(
		"clade.evolution.population",
		metric.WithDescription("Registered agents in the lineage tracker"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		callCounter:       callCounter,
		rotationCounter:   rotationCounter,
		fallbackCounter:   fallbackCounter,
		spawnCounter:      spawnCounter,
		generationCounter: generationCounter,
		consensusGauge:    consensusGauge,
		populationGauge:   populationGauge,
	}, nil
}

// RecordCall counts one model invocation attempt.
func (m *EngineMetrics) RecordCall(ctx context.Context, model string, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.Bool("success", err == nil),
	}
	if ce, ok := err.(*cladeerrors.CladeError); ok {
		attrs = append(attrs, attribute.String("error_code", string(ce.Code)))
	}
	m.callCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRotation counts one credential quarantine.
func (m *EngineMetrics) RecordRotation(ctx context.Context, quarantinedKey string) {
	if m == nil {
		return
	}
	// Key material stays out of telemetry; only the event is counted.
	_ = quarantinedKey
	m.rotationCounter.Add(ctx, 1)
}

// RecordParseFallback counts one raw-text fallback by role.
func (m *EngineMetrics) RecordParseFallback(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordGeneration counts a completed generation and reports its consensus.
func (m *EngineMetrics) RecordGeneration(ctx context.Context, generation int, consensus float64) {
	if m == nil {
		return
	}
	m.generationCounter.Add(ctx, 1)
	m.consensusGauge.Record(ctx, consensus, metric.WithAttributes(attribute.Int("generation", generation)))
}

// RecordSpawn counts a spawn decision.
func (m *EngineMetrics) RecordSpawn(ctx context.Context, granted bool) {
	if m == nil {
		return
	}
	m.spawnCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("granted", granted)))
}

// RecordPopulation reports the current registered population size.
func (m *EngineMetrics) RecordPopulation(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.populationGauge.Record(ctx, int64(size))
}
