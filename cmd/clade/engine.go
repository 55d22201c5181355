package main

import (
	"fmt"
	"time"

	"github.com/imoran/clade/pkg/archive"
	"github.com/imoran/clade/pkg/config"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/cycles"
	"github.com/imoran/clade/pkg/evolution"
	"github.com/imoran/clade/pkg/lineage"
	"github.com/imoran/clade/pkg/llm"
	"github.com/imoran/clade/pkg/resilience"
	"github.com/imoran/clade/pkg/rotation"
	"github.com/imoran/clade/pkg/telemetry"
	"github.com/imoran/clade/providers/gemini"
)

// engine bundles the wired components shared by serve, run, and mcp.
type engine struct {
	manager *cycles.Manager
	store   archive.Store
	metrics *telemetry.EngineMetrics
}

func buildEngine(cfg *config.Config) (*engine, error) {
	provider, keys, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	rotOpts := []rotation.Option{}
	if cfg.Resilience.QuarantineCooldown > 0 {
		rotOpts = append(rotOpts, rotation.WithCooldown(cfg.Resilience.QuarantineCooldown))
	}
	rotator, err := rotation.New(keys, rotOpts...)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewEngineMetrics()
	if err != nil {
		return nil, err
	}

	invOpts := []resilience.InvokerOption{resilience.WithRecorder(metrics)}
	if cfg.Resilience.MaxAttempts > 0 {
		invOpts = append(invOpts, resilience.WithMaxAttempts(cfg.Resilience.MaxAttempts))
	}
	if cfg.Resilience.CallTimeout > 0 {
		invOpts = append(invOpts, resilience.WithCallTimeout(cfg.Resilience.CallTimeout))
	}
	invoker := resilience.NewInvoker(provider, rotator, invOpts...)

	agentFactory := evolution.NewFactory(invoker,
		evolution.WithModel(cfg.LLM.Model),
		evolution.WithAgentMetrics(metrics))

	newEngine := func() (*evolution.Orchestrator, *lineage.Tracker) {
		tracker := lineage.NewTracker(lineage.WithCeiling(cfg.Evolution.MaxAgents * len(core.Roles())))
		orch := evolution.New(agentFactory, tracker, evolution.WithMetrics(metrics))
		return orch, tracker
	}

	store, err := buildArchive(cfg)
	if err != nil {
		return nil, err
	}

	runOpts := evolution.Options{
		EnableSpawning:       cfg.Evolution.EnableSpawning,
		ConvergenceThreshold: cfg.Evolution.ConvergenceThreshold,
		SpawnRole:            core.Role(cfg.Evolution.SpawnRole),
	}
	manager := cycles.NewManager(newEngine,
		cycles.WithArchive(store),
		cycles.WithRunOptions(runOpts))

	return &engine{manager: manager, store: store, metrics: metrics}, nil
}

func buildProvider(cfg *config.Config) (llm.Provider, []string, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return gemini.New(gemini.WithModel(cfg.LLM.Model)), cfg.LLM.Keys(), nil
	case "ollama":
		// Local backend, no credential pool; the rotator still needs one slot.
		return llm.NewOllama(cfg.LLM.BaseURL), []string{"local"}, nil
	case "mock":
		return &llm.MockProvider{Response: "mock response"}, []string{"mock"}, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func buildArchive(cfg *config.Config) (archive.Store, error) {
	switch cfg.Archive.Driver {
	case "", "memory":
		return archive.NewMemoryStore(), nil
	case "sqlite":
		return archive.OpenSQLite(cfg.Archive.Path)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Archive.Driver)
	}
}

func mandateDefaults(cfg *config.Config, mandate *core.Mandate) {
	if mandate.MaxIterations <= 0 {
		mandate.MaxIterations = cfg.Evolution.MaxIterations
	}
	if mandate.MaxAgents <= 0 {
		mandate.MaxAgents = cfg.Evolution.MaxAgents
	}
	if mandate.CreatedAt.IsZero() {
		mandate.CreatedAt = time.Now().UTC()
	}
}
