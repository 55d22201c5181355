// Package evolution drives generational evolution cycles: seeding a founder
// population, running ideation, simulation, critique, and synthesis rounds,
// spawning specialist agents by trait crossover, and terminating on
// convergence or budget exhaustion.
package evolution

import (
	"github.com/imoran/clade/pkg/agent"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/resilience"
)

// Factory constructs role agents over a shared invoker.
type Factory struct {
	invoker *resilience.Invoker
	model   string
	metrics agent.Metrics
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithModel sets the model assigned to constructed agents.
func WithModel(model string) FactoryOption {
	return func(f *Factory) { f.model = model }
}

// WithAgentMetrics attaches a telemetry recorder to constructed agents.
func WithAgentMetrics(m agent.Metrics) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

// NewFactory creates a Factory.
func NewFactory(invoker *resilience.Invoker, opts ...FactoryOption) *Factory {
	f := &Factory{invoker: invoker}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewAgent constructs an agent for role, merging cfg over the factory's
// defaults.
func (f *Factory) NewAgent(role core.Role, cfg agent.Config) *agent.Agent {
	if cfg.Model == "" {
		cfg.Model = f.model
	}
	if cfg.Metrics == nil {
		cfg.Metrics = f.metrics
	}
	return agent.New(role, f.invoker, cfg)
}
