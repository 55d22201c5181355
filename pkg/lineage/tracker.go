// Package lineage is the append-only genealogy store for evolution cycles.
// It owns the canonical copy of every registered agent identity and is the
// single source of truth for population size.
package lineage

import (
	"sort"
	"sync"

	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/errors"
)

// Edge is one parent-child relation in the genealogy graph.
type Edge struct {
	ParentID   string `json:"parent_id"`
	ChildID    string `json:"child_id"`
	Generation int    `json:"generation"`
}

// Stats summarizes the genealogy graph. Computed on demand from the indexes
// rather than cached incrementally, so it can never go stale.
type Stats struct {
	TotalAgents   int     `json:"total_agents"`
	MaxGeneration int     `json:"max_generation"`
	BranchPoints  int     `json:"branch_points"`
	AvgChildren   float64 `json:"avg_children_per_parent"`
}

// Tracker records agent identities and their parent-child edges.
// Registrations are append-only: once registered, an identity never changes.
type Tracker struct {
	mu          sync.Mutex
	agents      map[string]core.DNA
	order       []string
	children    map[string][]string
	generations map[int][]string
	ceiling     int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithCeiling caps the total population. Zero means unlimited.
func WithCeiling(n int) Option {
	return func(t *Tracker) { t.ceiling = n }
}

// NewTracker creates an empty Tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		agents:      make(map[string]core.DNA),
		children:    make(map[string][]string),
		generations: make(map[int][]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds an agent identity to the genealogy.
//
// It rejects duplicate ids, unknown parent ids (no forward references), a
// generation number that is not exactly one past the maximum parent
// generation, and registrations beyond the configured population ceiling.
func (t *Tracker) Register(dna core.DNA) error {
	if dna.ID == "" {
		return errors.New(errors.CodeValidation, "agent id is required", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.agents[dna.ID]; exists {
		return errors.New(errors.CodeValidation, "agent id already registered", nil).
			WithContext("agent_id", dna.ID)
	}
	if t.ceiling > 0 && len(t.agents) >= t.ceiling {
		return errors.New(errors.CodeValidation, "population ceiling reached", nil).
			WithContext("ceiling", t.ceiling)
	}

	maxParentGen := -1
	for _, pid := range dna.ParentIDs {
		parent, ok := t.agents[pid]
		if !ok {
			return errors.New(errors.CodeValidation, "unknown parent id", nil).
				WithContext("agent_id", dna.ID).
				WithContext("parent_id", pid)
		}
		if parent.Generation > maxParentGen {
			maxParentGen = parent.Generation
		}
	}
	if dna.Generation != maxParentGen+1 {
		return errors.New(errors.CodeValidation, "generation must be one past the oldest parent", nil).
			WithContext("agent_id", dna.ID).
			WithContext("generation", dna.Generation).
			WithContext("expected", maxParentGen+1)
	}

	stored := dna.Clone()
	stored.Traits = stored.Traits.Clamp()

	t.agents[stored.ID] = stored
	t.order = append(t.order, stored.ID)
	t.generations[stored.Generation] = append(t.generations[stored.Generation], stored.ID)
	for _, pid := range stored.ParentIDs {
		t.children[pid] = append(t.children[pid], stored.ID)
	}
	return nil
}

// Get returns a copy of the identity for id.
func (t *Tracker) Get(id string) (core.DNA, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dna, ok := t.agents[id]
	if !ok {
		return core.DNA{}, errors.New(errors.CodeNotFound, "agent not registered", nil).
			WithContext("agent_id", id)
	}
	return dna.Clone(), nil
}

// Count returns the current population size.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.agents)
}

// Children returns the child ids of the given agent, in registration order.
func (t *Tracker) Children(id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.children[id]...)
}

// Generation returns copies of all agents at the given generation, in
// registration order.
func (t *Tracker) Generation(n int) []core.DNA {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.DNA, 0, len(t.generations[n]))
	for _, id := range t.generations[n] {
		out = append(out, t.agents[id].Clone())
	}
	return out
}

// All returns copies of every registered agent in registration order.
func (t *Tracker) All() []core.DNA {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.DNA, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.agents[id].Clone())
	}
	return out
}

// Edges returns every parent-child edge in registration order.
func (t *Tracker) Edges() []Edge {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Edge, 0)
	for _, id := range t.order {
		child := t.agents[id]
		for _, pid := range child.ParentIDs {
			out = append(out, Edge{ParentID: pid, ChildID: id, Generation: child.Generation})
		}
	}
	return out
}

// Stats computes graph statistics on demand.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Stats{TotalAgents: len(t.agents)}
	for _, dna := range t.agents {
		if dna.Generation > st.MaxGeneration {
			st.MaxGeneration = dna.Generation
		}
	}
	parents := 0
	childTotal := 0
	for _, kids := range t.children {
		if len(kids) == 0 {
			continue
		}
		parents++
		childTotal += len(kids)
		if len(kids) >= 2 {
			st.BranchPoints++
		}
	}
	if parents > 0 {
		st.AvgChildren = float64(childTotal) / float64(parents)
	}
	return st
}

// LineageOf returns the full ancestor chain of id in root-to-id order:
// every transitive ancestor sorted by generation (registration order breaks
// ties), with the agent itself last.
func (t *Tracker) LineageOf(id string) ([]core.DNA, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	self, ok := t.agents[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "agent not registered", nil).
			WithContext("agent_id", id)
	}

	seen := map[string]bool{}
	var collect func(string)
	collect = func(aid string) {
		for _, pid := range t.agents[aid].ParentIDs {
			if seen[pid] {
				continue
			}
			seen[pid] = true
			collect(pid)
		}
	}
	collect(id)

	ancestors := make([]core.DNA, 0, len(seen)+1)
	rank := make(map[string]int, len(t.order))
	for i, aid := range t.order {
		rank[aid] = i
	}
	for aid := range seen {
		ancestors = append(ancestors, t.agents[aid].Clone())
	}
	sort.Slice(ancestors, func(i, j int) bool {
		if ancestors[i].Generation != ancestors[j].Generation {
			return ancestors[i].Generation < ancestors[j].Generation
		}
		return rank[ancestors[i].ID] < rank[ancestors[j].ID]
	})
	return append(ancestors, self.Clone()), nil
}
