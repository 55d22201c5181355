// SPDX-License-Identifier: Apache-2.0

// Package cycles manages asynchronous evolution cycles: starting them,
// tracking their status, cancelling them, and archiving terminal results.
package cycles

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imoran/clade/pkg/archive"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/errors"
	"github.com/imoran/clade/pkg/evolution"
	"github.com/imoran/clade/pkg/lineage"
)

// Status is a cycle's lifecycle phase.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Cycle is the external view of one managed cycle.
type Cycle struct {
	ID          string                `json:"id"`
	Status      Status                `json:"status"`
	Mandate     core.Mandate          `json:"mandate"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at,omitempty"`
	Result      *core.EvolutionResult `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// EngineFactory builds a fresh orchestrator and lineage tracker for one
// cycle. Each cycle gets its own tracker so populations never mix.
type EngineFactory func() (*evolution.Orchestrator, *lineage.Tracker)

type cycleState struct {
	info    Cycle
	tracker *lineage.Tracker
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager runs evolution cycles in the background.
type Manager struct {
	mu        sync.RWMutex
	cycles    map[string]*cycleState
	newEngine EngineFactory
	opts      evolution.Options
	store     archive.Store
	log       *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithArchive persists terminal cycles to store.
func WithArchive(store archive.Store) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithRunOptions sets the evolution options applied to every cycle.
func WithRunOptions(opts evolution.Options) ManagerOption {
	return func(m *Manager) { m.opts = opts }
}

// WithLogger sets the manager's logger.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a Manager over the given engine factory.
func NewManager(newEngine EngineFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		cycles:    make(map[string]*cycleState),
		newEngine: newEngine,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start validates the mandate and launches a cycle in the background,
// returning its id immediately.
func (m *Manager) Start(ctx context.Context, mandate core.Mandate) (string, error) {
	if err := mandate.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	orch, tracker := m.newEngine()

	// The cycle outlives the caller's request context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = core.WithCycleID(runCtx, id)

	state := &cycleState{
		info: Cycle{
			ID:        id,
			Status:    StatusRunning,
			Mandate:   mandate.Normalized(),
			StartedAt: time.Now().UTC(),
		},
		tracker: tracker,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.cycles[id] = state
	m.mu.Unlock()

	go m.run(runCtx, orch, state, mandate)
	return id, nil
}

func (m *Manager) run(ctx context.Context, orch *evolution.Orchestrator, state *cycleState, mandate core.Mandate) {
	defer close(state.done)
	defer state.cancel()

	result, err := orch.Run(ctx, mandate, m.opts)

	m.mu.Lock()
	state.info.CompletedAt = time.Now().UTC()
	if err != nil {
		state.info.Status = StatusFailed
		state.info.Error = err.Error()
	} else {
		state.info.Status = StatusCompleted
		state.info.Result = result
	}
	info := state.info
	m.mu.Unlock()

	if err != nil {
		m.log.ErrorContext(ctx, "cycles.failed", "cycle_id", info.ID, "error", err)
		return
	}
	m.log.InfoContext(ctx, "cycles.completed",
		"cycle_id", info.ID,
		"success", result.Success,
		"reason", string(result.Reason),
		"iterations", result.Iterations)
	m.archiveCycle(ctx, state, info, result)
}

func (m *Manager) archiveCycle(ctx context.Context, state *cycleState, info Cycle, result *core.EvolutionResult) {
	if m.store == nil {
		return
	}
	record := archive.Record{
		CycleID:   info.ID,
		Mandate:   info.Mandate,
		Result:    *result,
		Agents:    state.tracker.All(),
		Edges:     state.tracker.Edges(),
		CreatedAt: info.CompletedAt,
	}
	if err := m.store.Save(ctx, record); err != nil {
		m.log.WarnContext(ctx, "cycles.archive_failed", "cycle_id", info.ID, "error", err)
	}
}

func (m *Manager) state(id string) (*cycleState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.cycles[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "cycle not found", nil).
			WithContext("cycle_id", id)
	}
	return state, nil
}

// Get returns a cycle's current view.
func (m *Manager) Get(id string) (*Cycle, error) {
	state, err := m.state(id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := state.info
	return &info, nil
}

// List returns every managed cycle, most recently started first.
func (m *Manager) List() []*Cycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Cycle, 0, len(m.cycles))
	for _, state := range m.cycles {
		info := state.info
		out = append(out, &info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Cancel requests cancellation of a running cycle. The cycle finishes its
// in-flight generation before terminating. Cancelling a terminal cycle is a
// no-op.
func (m *Manager) Cancel(id string) error {
	state, err := m.state(id)
	if err != nil {
		return err
	}
	state.cancel()
	return nil
}

// Lineage returns the cycle's registered agents and parent-child edges.
func (m *Manager) Lineage(id string) ([]core.DNA, []lineage.Edge, error) {
	state, err := m.state(id)
	if err != nil {
		return nil, nil, err
	}
	return state.tracker.All(), state.tracker.Edges(), nil
}

// LineageOf returns the root-to-agent ancestor chain for one agent in the
// cycle's population.
func (m *Manager) LineageOf(id, agentID string) ([]core.DNA, error) {
	state, err := m.state(id)
	if err != nil {
		return nil, err
	}
	return state.tracker.LineageOf(agentID)
}

// Stats returns the cycle's lineage statistics.
func (m *Manager) Stats(id string) (lineage.Stats, error) {
	state, err := m.state(id)
	if err != nil {
		return lineage.Stats{}, err
	}
	return state.tracker.Stats(), nil
}

// Wait blocks until the cycle terminates or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) error {
	state, err := m.state(id)
	if err != nil {
		return err
	}
	select {
	case <-state.done:
		return nil
	case <-ctx.Done():
		return errors.New(errors.CodeTimeout, "wait for cycle interrupted", ctx.Err()).
			WithContext("cycle_id", id)
	}
}
