// SPDX-License-Identifier: Apache-2.0

package evolution

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/imoran/clade/pkg/agent"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/errors"
	"github.com/imoran/clade/pkg/lineage"
)

const defaultIdeasPerAgent = 3

// Metrics records orchestration events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordGeneration(ctx context.Context, generation int, consensus float64)
	RecordSpawn(ctx context.Context, granted bool)
	RecordPopulation(ctx context.Context, size int)
}

type noopMetrics struct{}

func (noopMetrics) RecordGeneration(context.Context, int, float64) {}
func (noopMetrics) RecordSpawn(context.Context, bool)              {}
func (noopMetrics) RecordPopulation(context.Context, int)          {}

// Orchestrator runs evolution cycles: it seeds a founder population, drives
// generational rounds, spawns specialists by trait crossover, and terminates
// on consensus, iteration budget, or cancellation.
type Orchestrator struct {
	factory *Factory
	tracker *lineage.Tracker
	log     *slog.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics attaches an orchestration metrics recorder.
func WithMetrics(m Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator over the given agent factory and lineage
// tracker.
func New(factory *Factory, tracker *lineage.Tracker, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		factory: factory,
		tracker: tracker,
		log:     slog.Default(),
		metrics: noopMetrics{},
		tracer:  otel.Tracer("github.com/imoran/clade/pkg/evolution"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one evolution cycle for mandate and returns its terminal
// result. Budget exhaustion and cancellation are defined terminations, not
// errors; Run returns an error only for invalid mandates and unrecoverable
// call failures.
func (o *Orchestrator) Run(ctx context.Context, mandate core.Mandate, opts Options) (*core.EvolutionResult, error) {
	if err := mandate.Validate(); err != nil {
		return nil, err
	}
	m := mandate.Normalized()
	ctx = core.EnsureCycleID(ctx)
	ctx, span := o.tracer.Start(ctx, "evolution.run",
		trace.WithAttributes(attribute.String("mandate.title", m.Title)))
	defer span.End()

	start := time.Now()
	pop, err := o.seedFounders(ctx)
	if err != nil {
		return nil, err
	}
	o.log.InfoContext(ctx, "evolution.started",
		"cycle_id", core.CycleID(ctx),
		"mandate", m.Title,
		"max_iterations", m.MaxIterations,
		"max_agents", m.MaxAgents,
		"founders", o.tracker.Count())

	threshold := opts.threshold()
	spawned := 0
	var last *core.SynthesisResult
	var prev RoundPool

	for gen := 0; ; gen++ {
		// Cancellation is honored between generations only; in-flight role
		// calls run to completion.
		if ctx.Err() != nil {
			o.log.InfoContext(ctx, "evolution.cancelled", "cycle_id", core.CycleID(ctx), "iterations", gen)
			return o.finish(ctx, start, false, gen, core.ReasonCancelled, last, spawned), nil
		}

		pool, syn, err := o.runGeneration(ctx, m, pop, prev, gen)
		if err != nil {
			return nil, errors.New(errors.CodePermanentCall, "evolution cycle aborted", err).
				WithContext("generation", gen)
		}
		last = syn
		iterations := gen + 1
		o.metrics.RecordGeneration(ctx, gen, syn.ConsensusLevel)
		o.log.InfoContext(ctx, "evolution.generation",
			"cycle_id", core.CycleID(ctx),
			"generation", gen,
			"ideas", len(pool.Ideas),
			"simulations", len(pool.Sims),
			"critiques", len(pool.Critiques),
			"consensus", syn.ConsensusLevel)

		if syn.ConsensusLevel >= threshold {
			return o.finish(ctx, start, true, iterations, core.ReasonConsensus, syn, spawned), nil
		}
		if iterations >= m.MaxIterations {
			return o.finish(ctx, start, false, iterations, core.ReasonIterationBudget, syn, spawned), nil
		}
		if syn.ReadyForSpawn && opts.EnableSpawning {
			if o.spawn(ctx, m, opts, pop, pool, syn) {
				spawned++
			}
		}
		prev = pool
	}
}

func (o *Orchestrator) seedFounders(ctx context.Context) (map[core.Role][]*agent.Agent, error) {
	pop := make(map[core.Role][]*agent.Agent, len(core.Roles()))
	for _, role := range core.Roles() {
		founder := o.factory.NewAgent(role, agent.Config{})
		if err := o.tracker.Register(founder.DNA()); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "founder registration failed", err).
				WithContext("role", string(role))
		}
		pop[role] = append(pop[role], founder)
	}
	o.metrics.RecordPopulation(ctx, o.tracker.Count())
	return pop, nil
}

// runGeneration dispatches the ideation, simulation, and critique rounds
// concurrently, then runs synthesis over the joined pool. Simulators and
// critics work from the previous generation's artifacts so the three rounds
// stay independent of each other.
func (o *Orchestrator) runGeneration(ctx context.Context, m core.Mandate, pop map[core.Role][]*agent.Agent, prev RoundPool, gen int) (RoundPool, *core.SynthesisResult, error) {
	ctx, span := o.tracer.Start(ctx, "evolution.generation",
		trace.WithAttributes(attribute.Int("generation", gen)))
	defer span.End()

	// In-flight role calls are not interrupted by caller cancellation; the
	// loop in Run observes it before the next generation.
	roundCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(roundCtx)

	var (
		ideas []core.IdeaProposal
		sims  []core.SimulationResult
		crits []core.CritiqueResult
	)
	g.Go(func() error {
		for _, ag := range pop[core.RoleIdeator] {
			out, err := ag.GenerateIdeas(gctx, m, defaultIdeasPerAgent)
			if err != nil {
				return err
			}
			ideas = append(ideas, out...)
		}
		return nil
	})
	g.Go(func() error {
		for _, ag := range pop[core.RoleSimulator] {
			out, err := ag.Simulate(gctx, m, prev.Ideas)
			if err != nil {
				return err
			}
			sims = append(sims, out...)
		}
		return nil
	})
	g.Go(func() error {
		for _, ag := range pop[core.RoleCritic] {
			out, err := ag.Critique(gctx, m, prev.Ideas, prev.Sims)
			if err != nil {
				return err
			}
			crits = append(crits, out...)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return RoundPool{}, nil, err
	}

	pool := RoundPool{Ideas: ideas, Sims: sims, Critiques: crits}
	synths := pop[core.RoleSynthesizer]
	if len(synths) == 0 {
		return RoundPool{}, nil, errors.New(errors.CodeConfiguration, "no synthesizer in population", nil)
	}
	syn, err := synths[0].Synthesize(roundCtx, m, ideas, sims, crits)
	if err != nil {
		return RoundPool{}, nil, err
	}
	return pool, syn, nil
}

// spawn grants or denies a synthesis spawn recommendation and, when granted,
// registers a crossover child in the target role's population. The budget is
// judged against the target role's active population.
func (o *Orchestrator) spawn(ctx context.Context, m core.Mandate, opts Options, pop map[core.Role][]*agent.Agent, pool RoundPool, syn *core.SynthesisResult) bool {
	role := opts.spawnRole()
	if len(pop[role]) >= m.MaxAgents {
		o.metrics.RecordSpawn(ctx, false)
		o.log.InfoContext(ctx, "evolution.spawn_denied",
			"cycle_id", core.CycleID(ctx),
			"role", string(role),
			"population", len(pop[role]),
			"budget", m.MaxAgents)
		return false
	}

	sel := opts.SelectParents
	if sel == nil {
		sel = defaultParentSelector
	}
	var parents []string
	generation := 0
	for _, id := range sel(pool, syn, syn.AgentID) {
		dna, err := o.tracker.Get(id)
		if err != nil {
			continue
		}
		parents = append(parents, id)
		if dna.Generation+1 > generation {
			generation = dna.Generation + 1
		}
	}
	if len(parents) == 0 {
		o.metrics.RecordSpawn(ctx, false)
		o.log.WarnContext(ctx, "evolution.spawn_no_parents", "cycle_id", core.CycleID(ctx))
		return false
	}

	traits := agent.DefaultTraits(role)
	caps := agent.DefaultCapabilities(role)
	var notes []string
	if syn.Spawn != nil {
		traits = traits.Blend(syn.Spawn.Traits, 0.5)
		if len(syn.Spawn.Capabilities) > 0 {
			caps = syn.Spawn.Capabilities
		}
		if syn.Spawn.Rationale != "" {
			notes = append(notes, syn.Spawn.Rationale)
		}
	}

	child := o.factory.NewAgent(role, agent.Config{
		Traits:        &traits,
		Capabilities:  caps,
		Generation:    generation,
		ParentIDs:     parents,
		MutationNotes: notes,
	})
	if err := o.tracker.Register(child.DNA()); err != nil {
		o.metrics.RecordSpawn(ctx, false)
		o.log.WarnContext(ctx, "evolution.spawn_rejected", "cycle_id", core.CycleID(ctx), "error", err)
		return false
	}
	pop[role] = append(pop[role], child)
	o.metrics.RecordSpawn(ctx, true)
	o.metrics.RecordPopulation(ctx, o.tracker.Count())
	o.log.InfoContext(ctx, "evolution.spawned",
		"cycle_id", core.CycleID(ctx),
		"agent_id", child.ID(),
		"role", string(role),
		"generation", generation,
		"parents", parents)
	return true
}

func (o *Orchestrator) finish(ctx context.Context, start time.Time, success bool, iterations int, reason core.ConvergenceReason, syn *core.SynthesisResult, spawned int) *core.EvolutionResult {
	res := &core.EvolutionResult{
		Success:        success,
		Iterations:     iterations,
		Reason:         reason,
		ExecutionTime:  time.Since(start),
		AgentsSpawned:  spawned,
		FinalSynthesis: syn,
	}
	o.log.InfoContext(ctx, "evolution.finished",
		"cycle_id", core.CycleID(ctx),
		"success", res.Success,
		"reason", string(res.Reason),
		"iterations", res.Iterations,
		"agents_spawned", res.AgentsSpawned,
		"population", o.tracker.Count(),
		"duration", res.ExecutionTime)
	return res
}
