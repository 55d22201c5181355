package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/errors"
	"github.com/imoran/clade/pkg/llm"
	"github.com/imoran/clade/pkg/resilience"
)

// Metrics receives agent-level telemetry. Implemented by
// telemetry.EngineMetrics; nil records nothing.
type Metrics interface {
	RecordParseFallback(ctx context.Context, role string)
}

// Config carries optional overrides merged over role defaults at construction.
type Config struct {
	// Name overrides the role's display name.
	Name string

	// Traits overrides the role's default trait vector. Clamped to [0,1].
	Traits *core.Traits

	// Capabilities replaces the role's default capability set when non-empty.
	Capabilities []string

	// Model overrides the default model assignment.
	Model string

	// Generation and ParentIDs place the agent in the genealogy. Founders
	// leave both empty.
	Generation int
	ParentIDs  []string

	// MutationNotes documents how this agent's DNA diverged from its parents.
	MutationNotes []string

	// Metrics attaches a telemetry recorder.
	Metrics Metrics
}

// Agent is one reasoning role instance. It is stateless per call: every
// operation builds its prompt from its inputs, invokes the resilient invoker,
// and parses the result. Safe for concurrent use.
type Agent struct {
	dna     core.DNA
	invoker *resilience.Invoker
	metrics Metrics
}

// New constructs an agent for the given role, merging cfg over role defaults.
// The instruction text is computed deterministically from role and traits.
func New(role core.Role, invoker *resilience.Invoker, cfg Config) *Agent {
	traits := DefaultTraits(role)
	if cfg.Traits != nil {
		traits = cfg.Traits.Clamp()
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName(role)
	}
	capabilities := cfg.Capabilities
	if len(capabilities) == 0 {
		capabilities = DefaultCapabilities(role)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	dna := core.DNA{
		ID:            uuid.NewString(),
		Name:          name,
		Role:          role,
		Traits:        traits,
		Capabilities:  append([]string(nil), capabilities...),
		Model:         model,
		Instructions:  BuildInstructions(role, traits),
		Generation:    cfg.Generation,
		BirthTime:     time.Now().UTC(),
		MutationNotes: append([]string(nil), cfg.MutationNotes...),
		ParentIDs:     append([]string(nil), cfg.ParentIDs...),
	}

	return &Agent{dna: dna, invoker: invoker, metrics: cfg.Metrics}
}

// DNA returns a defensive copy of the agent's identity record.
func (a *Agent) DNA() core.DNA { return a.dna.Clone() }

// ID returns the agent's unique id.
func (a *Agent) ID() string { return a.dna.ID }

// Role returns the agent's role.
func (a *Agent) Role() core.Role { return a.dna.Role }

func (a *Agent) requireRole(role core.Role) error {
	if a.dna.Role != role {
		return errors.New(errors.CodeValidation, "operation not available for this role", nil).
			WithContext("agent_role", string(a.dna.Role)).
			WithContext("required_role", string(role))
	}
	return nil
}

func (a *Agent) invoke(ctx context.Context, prompt string) (string, error) {
	return a.invoker.InvokeMessages(ctx, a.dna.Model, []llm.Message{
		{Role: llm.RoleSystem, Content: a.dna.Instructions},
		{Role: llm.RoleUser, Content: prompt},
	})
}

// GenerateIdeas produces candidate solution ideas for the mandate.
// Ideator only.
func (a *Agent) GenerateIdeas(ctx context.Context, mandate core.Mandate, count int) ([]core.IdeaProposal, error) {
	if err := a.requireRole(core.RoleIdeator); err != nil {
		return nil, err
	}
	if count < 1 {
		count = 3
	}
	raw, err := a.invoke(ctx, ideationPrompt(mandate, count))
	if err != nil {
		return nil, err
	}
	return a.parseIdeas(ctx, raw), nil
}

// Simulate evaluates how each idea would play out. Simulator only.
func (a *Agent) Simulate(ctx context.Context, mandate core.Mandate, ideas []core.IdeaProposal) ([]core.SimulationResult, error) {
	if err := a.requireRole(core.RoleSimulator); err != nil {
		return nil, err
	}
	raw, err := a.invoke(ctx, simulationPrompt(mandate, ideas))
	if err != nil {
		return nil, err
	}
	return a.parseSimulations(ctx, raw), nil
}

// Critique reviews ideas in light of their simulations. Critic only.
func (a *Agent) Critique(ctx context.Context, mandate core.Mandate, ideas []core.IdeaProposal, sims []core.SimulationResult) ([]core.CritiqueResult, error) {
	if err := a.requireRole(core.RoleCritic); err != nil {
		return nil, err
	}
	raw, err := a.invoke(ctx, critiquePrompt(mandate, ideas, sims))
	if err != nil {
		return nil, err
	}
	return a.parseCritiques(ctx, raw), nil
}

// Synthesize aggregates the round's pooled artifacts into one synthesis.
// Synthesizer only.
func (a *Agent) Synthesize(ctx context.Context, mandate core.Mandate, ideas []core.IdeaProposal, sims []core.SimulationResult, crits []core.CritiqueResult) (*core.SynthesisResult, error) {
	if err := a.requireRole(core.RoleSynthesizer); err != nil {
		return nil, err
	}
	raw, err := a.invoke(ctx, synthesisPrompt(mandate, ideas, sims, crits))
	if err != nil {
		return nil, err
	}
	return a.parseSynthesis(ctx, raw), nil
}
