package evolution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/imoran/clade/pkg/agent"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/errors"
	"github.com/imoran/clade/pkg/lineage"
	"github.com/imoran/clade/pkg/llm"
	"github.com/imoran/clade/pkg/resilience"
	"github.com/imoran/clade/pkg/rotation"
)

func testMandate() core.Mandate {
	return core.Mandate{
		Title:           "reduce checkout latency",
		SuccessCriteria: []string{"p99 under 300ms"},
		MaxIterations:   10,
		MaxAgents:       12,
	}
}

// roleProvider routes calls by the agent's system instructions so results are
// deterministic regardless of dispatch order. Synthesis responses are consumed
// in sequence; the last one repeats.
func roleProvider(syntheses ...string) llm.Provider {
	var mu sync.Mutex
	idx := 0
	return &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			system := req.Messages[0].Content
			var content string
			switch {
			case strings.Contains(system, "generate candidate"):
				content = `[{"title":"cache warmup","description":"pre-warm edge caches","novelty":0.7}]`
			case strings.Contains(system, "simulate how"):
				content = `[{"idea_id":"","outcome":"latency drops","viability":0.6}]`
			case strings.Contains(system, "critique candidate"):
				content = `[{"target_id":"","strengths":"simple","weaknesses":"cache churn","approval":0.5}]`
			default:
				mu.Lock()
				if idx < len(syntheses)-1 {
					content = syntheses[idx]
					idx++
				} else {
					content = syntheses[len(syntheses)-1]
				}
				mu.Unlock()
			}
			return &llm.ChatResponse{Content: content}, nil
		},
	}
}

func synthesisDoc(consensus float64, spawn bool) string {
	spawnRec := "null"
	if spawn {
		spawnRec = `{"traits":{"creativity":0.9,"precision":0.2,"speed":0.5,"collaboration":0.5},"capabilities":["edge-caching"],"rationale":"need a caching specialist"}`
	}
	return fmt.Sprintf(`{"top_idea_ids":[],"combined_approach":"warm caches ahead of peaks","consensus_level":%.2f,"ready_for_spawn":%t,"spawn_recommendation":%s}`,
		consensus, spawn, spawnRec)
}

func newTestOrchestrator(t *testing.T, provider llm.Provider) (*Orchestrator, *lineage.Tracker) {
	t.Helper()
	rot, err := rotation.New([]string{"test-key"})
	if err != nil {
		t.Fatalf("rotation.New: %v", err)
	}
	inv := resilience.NewInvoker(provider, rot, resilience.WithMaxAttempts(1))
	tracker := lineage.NewTracker()
	orch := New(NewFactory(inv), tracker,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return orch, tracker
}

func TestRunConvergesOnConsensus(t *testing.T) {
	provider := roleProvider(synthesisDoc(0.5, false), synthesisDoc(0.9, false))
	orch, tracker := newTestOrchestrator(t, provider)

	res, err := orch.Run(context.Background(), testMandate(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Error("expected Success=true")
	}
	if res.Reason != core.ReasonConsensus {
		t.Errorf("Reason = %q, want %q", res.Reason, core.ReasonConsensus)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}
	if res.FinalSynthesis == nil || res.FinalSynthesis.ConsensusLevel != 0.9 {
		t.Errorf("FinalSynthesis = %+v, want consensus 0.9", res.FinalSynthesis)
	}
	if res.AgentsSpawned != 0 {
		t.Errorf("AgentsSpawned = %d, want 0", res.AgentsSpawned)
	}
	if tracker.Count() != 4 {
		t.Errorf("population = %d, want 4 founders", tracker.Count())
	}
}

func TestRunExhaustsIterationBudget(t *testing.T) {
	provider := roleProvider(synthesisDoc(0.3, false))
	orch, _ := newTestOrchestrator(t, provider)

	mandate := testMandate()
	mandate.MaxIterations = 3
	res, err := orch.Run(context.Background(), mandate, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Error("expected Success=false")
	}
	if res.Reason != core.ReasonIterationBudget {
		t.Errorf("Reason = %q, want %q", res.Reason, core.ReasonIterationBudget)
	}
	if res.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", res.Iterations)
	}
	if res.FinalSynthesis == nil {
		t.Error("expected final synthesis from the last generation")
	}
}

func TestRunSpawnsUntilRoleBudget(t *testing.T) {
	provider := roleProvider(synthesisDoc(0.4, true))
	orch, tracker := newTestOrchestrator(t, provider)

	mandate := testMandate()
	mandate.MaxIterations = 10
	mandate.MaxAgents = 5
	res, err := orch.Run(context.Background(), mandate, Options{EnableSpawning: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != core.ReasonIterationBudget {
		t.Errorf("Reason = %q, want %q", res.Reason, core.ReasonIterationBudget)
	}
	if res.Iterations != 10 {
		t.Errorf("Iterations = %d, want 10", res.Iterations)
	}
	// One founder ideator plus spawns until that role's population hits the
	// budget of 5.
	if res.AgentsSpawned != 4 {
		t.Errorf("AgentsSpawned = %d, want 4", res.AgentsSpawned)
	}
	if tracker.Count() != 8 {
		t.Errorf("population = %d, want 4 founders + 4 spawns", tracker.Count())
	}
	stats := tracker.Stats()
	if stats.MaxGeneration < 1 {
		t.Errorf("MaxGeneration = %d, want >= 1", stats.MaxGeneration)
	}
}

func TestRunSpawningDisabledIgnoresRecommendation(t *testing.T) {
	provider := roleProvider(synthesisDoc(0.4, true))
	orch, tracker := newTestOrchestrator(t, provider)

	mandate := testMandate()
	mandate.MaxIterations = 2
	res, err := orch.Run(context.Background(), mandate, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.AgentsSpawned != 0 {
		t.Errorf("AgentsSpawned = %d, want 0 with spawning disabled", res.AgentsSpawned)
	}
	if tracker.Count() != 4 {
		t.Errorf("population = %d, want 4 founders only", tracker.Count())
	}
}

func TestRunCancelledBetweenGenerations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	base := roleProvider(synthesisDoc(0.4, false))
	provider := &llm.MockProvider{
		ChatFunc: func(c context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			once.Do(cancel)
			return base.Chat(c, req)
		},
	}
	orch, _ := newTestOrchestrator(t, provider)

	res, err := orch.Run(ctx, testMandate(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Success {
		t.Error("expected Success=false")
	}
	if res.Reason != core.ReasonCancelled {
		t.Errorf("Reason = %q, want %q", res.Reason, core.ReasonCancelled)
	}
	// The first generation runs to completion before cancellation is observed.
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
	if res.FinalSynthesis == nil {
		t.Error("expected the completed generation's synthesis to be kept")
	}
}

func TestRunAbortsOnPermanentFailure(t *testing.T) {
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, fmt.Errorf("model not found")
		},
	}
	orch, _ := newTestOrchestrator(t, provider)

	res, err := orch.Run(context.Background(), testMandate(), Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if res != nil {
		t.Errorf("result = %+v, want nil on abort", res)
	}
	if !errors.HasCode(err, errors.CodePermanentCall) {
		t.Errorf("error code = %v, want permanent call", err)
	}
}

func TestRunRejectsInvalidMandate(t *testing.T) {
	orch, _ := newTestOrchestrator(t, roleProvider(synthesisDoc(0.9, false)))
	_, err := orch.Run(context.Background(), core.Mandate{Title: "no criteria"}, Options{})
	if !errors.HasCode(err, errors.CodeValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestSpawnedChildCrossesTraits(t *testing.T) {
	provider := roleProvider(synthesisDoc(0.4, true), synthesisDoc(0.9, true))
	orch, tracker := newTestOrchestrator(t, provider)

	res, err := orch.Run(context.Background(), testMandate(), Options{EnableSpawning: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.AgentsSpawned != 1 {
		t.Fatalf("AgentsSpawned = %d, want 1", res.AgentsSpawned)
	}

	var child core.DNA
	found := false
	for _, dna := range tracker.All() {
		if dna.Generation == 1 {
			child = dna
			found = true
		}
	}
	if !found {
		t.Fatal("no generation-1 agent registered")
	}
	if child.Role != core.RoleIdeator {
		t.Errorf("child role = %q, want ideator", child.Role)
	}
	if len(child.ParentIDs) == 0 {
		t.Fatal("child has no parents")
	}
	for _, p := range child.ParentIDs {
		parent, err := tracker.Get(p)
		if err != nil {
			t.Fatalf("parent %s not registered: %v", p, err)
		}
		if parent.Generation != 0 {
			t.Errorf("parent generation = %d, want 0", parent.Generation)
		}
	}

	// Recommended creativity 0.9 blended evenly with the founder default.
	base := agent.DefaultTraits(DefaultSpawnRole).Creativity
	want := (base + 0.9) / 2
	if diff := child.Traits.Creativity - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("child creativity = %.3f, want %.3f", child.Traits.Creativity, want)
	}
	if child.Traits.Creativity < 0 || child.Traits.Creativity > 1 {
		t.Errorf("child creativity %.3f out of range", child.Traits.Creativity)
	}
	if len(child.Capabilities) != 1 || child.Capabilities[0] != "edge-caching" {
		t.Errorf("child capabilities = %v, want recommendation's", child.Capabilities)
	}
	if len(child.MutationNotes) == 0 {
		t.Error("expected spawn rationale recorded in mutation notes")
	}
}

func TestDefaultParentSelector(t *testing.T) {
	pool := RoundPool{Ideas: []core.IdeaProposal{
		{ID: "idea-1", AgentID: "agent-a"},
		{ID: "idea-2", AgentID: "agent-b"},
	}}
	syn := &core.SynthesisResult{TopIdeaIDs: []string{"idea-2", "idea-1"}}

	parents := defaultParentSelector(pool, syn, "agent-syn")
	if len(parents) != 2 || parents[0] != "agent-b" || parents[1] != "agent-syn" {
		t.Errorf("parents = %v, want [agent-b agent-syn]", parents)
	}

	// No surviving ideas: synthesizer is the sole parent.
	parents = defaultParentSelector(RoundPool{}, &core.SynthesisResult{}, "agent-syn")
	if len(parents) != 1 || parents[0] != "agent-syn" {
		t.Errorf("parents = %v, want [agent-syn]", parents)
	}

	// Synthesizer authored the top idea: no duplicate entry.
	pool = RoundPool{Ideas: []core.IdeaProposal{{ID: "idea-1", AgentID: "agent-syn"}}}
	syn = &core.SynthesisResult{TopIdeaIDs: []string{"idea-1"}}
	parents = defaultParentSelector(pool, syn, "agent-syn")
	if len(parents) != 1 {
		t.Errorf("parents = %v, want single deduplicated entry", parents)
	}
}

func TestCustomParentSelector(t *testing.T) {
	provider := roleProvider(synthesisDoc(0.4, true), synthesisDoc(0.9, false))
	orch, tracker := newTestOrchestrator(t, provider)

	var sawSynthesizer string
	opts := Options{
		EnableSpawning: true,
		SelectParents: func(pool RoundPool, syn *core.SynthesisResult, synthesizerID string) []string {
			sawSynthesizer = synthesizerID
			return []string{synthesizerID}
		},
	}
	res, err := orch.Run(context.Background(), testMandate(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.AgentsSpawned != 1 {
		t.Fatalf("AgentsSpawned = %d, want 1", res.AgentsSpawned)
	}
	if _, err := tracker.Get(sawSynthesizer); err != nil {
		t.Errorf("selector saw unregistered synthesizer id %q", sawSynthesizer)
	}
}
