package cycles

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/imoran/clade/pkg/archive"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/errors"
	"github.com/imoran/clade/pkg/evolution"
	"github.com/imoran/clade/pkg/lineage"
	"github.com/imoran/clade/pkg/llm"
	"github.com/imoran/clade/pkg/resilience"
	"github.com/imoran/clade/pkg/rotation"
)

func testMandate() core.Mandate {
	return core.Mandate{
		Title:           "pick a storage engine",
		SuccessCriteria: []string{"handles 10k writes/sec"},
		MaxIterations:   2,
	}
}

func convergingProvider() llm.Provider {
	return &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			system := req.Messages[0].Content
			var content string
			switch {
			case strings.Contains(system, "generate candidate"):
				content = `[{"title":"lsm tree","description":"append heavy","novelty":0.8}]`
			case strings.Contains(system, "simulate how"):
				content = `[{"idea_id":"","outcome":"sustains writes","viability":0.7}]`
			case strings.Contains(system, "critique candidate"):
				content = `[{"target_id":"","strengths":"fast writes","weaknesses":"read amp","approval":0.7}]`
			default:
				content = `{"top_idea_ids":[],"combined_approach":"lsm with bloom filters","consensus_level":0.95,"ready_for_spawn":false}`
			}
			return &llm.ChatResponse{Content: content}, nil
		},
	}
}

func factoryFor(t *testing.T, provider llm.Provider) EngineFactory {
	t.Helper()
	rot, err := rotation.New([]string{"test-key"})
	if err != nil {
		t.Fatalf("rotation.New: %v", err)
	}
	inv := resilience.NewInvoker(provider, rot, resilience.WithMaxAttempts(1))
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return func() (*evolution.Orchestrator, *lineage.Tracker) {
		tracker := lineage.NewTracker()
		orch := evolution.New(evolution.NewFactory(inv), tracker, evolution.WithLogger(quiet))
		return orch, tracker
	}
}

func quietManager(t *testing.T, provider llm.Provider, opts ...ManagerOption) *Manager {
	t.Helper()
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewManager(factoryFor(t, provider), opts...)
}

func TestStartAndComplete(t *testing.T) {
	store := archive.NewMemoryStore()
	mgr := quietManager(t, convergingProvider(), WithArchive(store))

	id, err := mgr.Start(context.Background(), testMandate())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id == "" {
		t.Fatal("empty cycle id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	cycle, err := mgr.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cycle.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", cycle.Status)
	}
	if cycle.Result == nil || !cycle.Result.Success {
		t.Errorf("result = %+v, want success", cycle.Result)
	}
	if cycle.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}

	// Terminal cycle is archived with its lineage snapshot.
	record, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("archive Get: %v", err)
	}
	if len(record.Agents) != 4 {
		t.Errorf("archived agents = %d, want 4 founders", len(record.Agents))
	}
	if record.Result.Reason != core.ReasonConsensus {
		t.Errorf("archived reason = %q", record.Result.Reason)
	}
}

func TestStartRejectsInvalidMandate(t *testing.T) {
	mgr := quietManager(t, convergingProvider())
	_, err := mgr.Start(context.Background(), core.Mandate{})
	if !errors.HasCode(err, errors.CodeValidation) {
		t.Errorf("error = %v, want validation", err)
	}
}

func TestGetUnknownCycle(t *testing.T) {
	mgr := quietManager(t, convergingProvider())
	if _, err := mgr.Get("nope"); !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
	if err := mgr.Cancel("nope"); !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("Cancel error = %v, want not found", err)
	}
}

func TestCancelRunningCycle(t *testing.T) {
	release := make(chan struct{})
	undecided := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			<-release
			if strings.Contains(req.Messages[0].Content, "synthesize the round") {
				return &llm.ChatResponse{Content: `{"top_idea_ids":[],"combined_approach":"keep exploring","consensus_level":0.2,"ready_for_spawn":false}`}, nil
			}
			return &llm.ChatResponse{Content: `[]`}, nil
		},
	}
	mgr := quietManager(t, undecided)

	mandate := testMandate()
	mandate.MaxIterations = 10
	id, err := mgr.Start(context.Background(), mandate)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	cycle, _ := mgr.Get(id)
	if cycle.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", cycle.Status)
	}
	if cycle.Result.Reason != core.ReasonCancelled {
		t.Errorf("reason = %q, want cancelled", cycle.Result.Reason)
	}
	// Cancelling a terminal cycle is a no-op.
	if err := mgr.Cancel(id); err != nil {
		t.Errorf("Cancel after completion: %v", err)
	}
}

func TestFailedCycleReportsError(t *testing.T) {
	failing := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return nil, fmt.Errorf("bad request")
		},
	}
	mgr := quietManager(t, failing)

	id, err := mgr.Start(context.Background(), testMandate())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	cycle, _ := mgr.Get(id)
	if cycle.Status != StatusFailed {
		t.Errorf("status = %q, want failed", cycle.Status)
	}
	if cycle.Error == "" {
		t.Error("expected error message recorded")
	}
	if cycle.Result != nil {
		t.Errorf("result = %+v, want nil for failed cycle", cycle.Result)
	}
}

func TestLineageAndStats(t *testing.T) {
	mgr := quietManager(t, convergingProvider())

	id, err := mgr.Start(context.Background(), testMandate())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	agents, edges, err := mgr.Lineage(id)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	if len(agents) != 4 {
		t.Errorf("agents = %d, want 4 founders", len(agents))
	}
	if len(edges) != 0 {
		t.Errorf("edges = %d, want 0 without spawning", len(edges))
	}

	chain, err := mgr.LineageOf(id, agents[0].ID)
	if err != nil {
		t.Fatalf("LineageOf: %v", err)
	}
	if len(chain) != 1 || chain[0].ID != agents[0].ID {
		t.Errorf("founder chain = %+v", chain)
	}
	if _, err := mgr.LineageOf(id, "nope"); !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("LineageOf unknown agent err = %v", err)
	}

	stats, err := mgr.Stats(id)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalAgents != 4 || stats.MaxGeneration != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestListNewestFirst(t *testing.T) {
	mgr := quietManager(t, convergingProvider())
	ctx := context.Background()

	first, _ := mgr.Start(ctx, testMandate())
	time.Sleep(5 * time.Millisecond)
	second, _ := mgr.Start(ctx, testMandate())

	cycles := mgr.List()
	if len(cycles) != 2 {
		t.Fatalf("len = %d, want 2", len(cycles))
	}
	if cycles[0].ID != second || cycles[1].ID != first {
		t.Errorf("order = [%s %s], want newest first", cycles[0].ID, cycles[1].ID)
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	mgr.Wait(wctx, first)
	mgr.Wait(wctx, second)
}
