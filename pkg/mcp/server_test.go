package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/imoran/clade/pkg/cycles"
	"github.com/imoran/clade/pkg/evolution"
	"github.com/imoran/clade/pkg/lineage"
	"github.com/imoran/clade/pkg/llm"
	"github.com/imoran/clade/pkg/resilience"
	"github.com/imoran/clade/pkg/rotation"
)

func testManager(t *testing.T) *cycles.Manager {
	t.Helper()
	provider := &llm.MockProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			system := req.Messages[0].Content
			var content string
			switch {
			case strings.Contains(system, "generate candidate"):
				content = `[{"title":"edge rollout","description":"deploy regionally","novelty":0.5}]`
			case strings.Contains(system, "simulate how"):
				content = `[{"idea_id":"","outcome":"works","viability":0.6}]`
			case strings.Contains(system, "critique candidate"):
				content = `[{"target_id":"","strengths":"gradual","weaknesses":"slow","approval":0.6}]`
			default:
				content = `{"top_idea_ids":[],"combined_approach":"regional rollout","consensus_level":0.9,"ready_for_spawn":false}`
			}
			return &llm.ChatResponse{Content: content}, nil
		},
	}
	rot, err := rotation.New([]string{"test-key"})
	if err != nil {
		t.Fatalf("rotation.New: %v", err)
	}
	inv := resilience.NewInvoker(provider, rot, resilience.WithMaxAttempts(1))
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func() (*evolution.Orchestrator, *lineage.Tracker) {
		tracker := lineage.NewTracker()
		return evolution.New(evolution.NewFactory(inv), tracker, evolution.WithLogger(quiet)), tracker
	}
	return cycles.NewManager(factory, cycles.WithLogger(quiet))
}

func textPayload(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func startCycle(t *testing.T, srv *Server) string {
	t.Helper()
	result, err := srv.handleStartCycle(context.Background(), map[string]interface{}{
		"title":            "speed up imports",
		"success_criteria": []interface{}{"imports under 1s"},
		"max_iterations":   float64(2),
	})
	if err != nil {
		t.Fatalf("start_cycle: %v", err)
	}
	if result.IsError {
		t.Fatalf("start_cycle errored: %s", textPayload(t, result))
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(textPayload(t, result)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.ID
}

func TestStartCycleTool(t *testing.T) {
	mgr := testManager(t)
	srv := NewServer(mgr, "test")

	id := startCycle(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	result, err := srv.handleGetCycleStatus(context.Background(), map[string]interface{}{"id": id})
	if err != nil {
		t.Fatalf("get_cycle_status: %v", err)
	}
	var cycle cycles.Cycle
	if err := json.Unmarshal([]byte(textPayload(t, result)), &cycle); err != nil {
		t.Fatalf("decode cycle: %v", err)
	}
	if cycle.Status != cycles.StatusCompleted {
		t.Errorf("status = %q, want completed", cycle.Status)
	}
	if cycle.Result == nil || !cycle.Result.Success {
		t.Errorf("result = %+v, want success", cycle.Result)
	}
}

func TestStartCycleToolRejectsMissingCriteria(t *testing.T) {
	srv := NewServer(testManager(t), "test")
	result, err := srv.handleStartCycle(context.Background(), map[string]interface{}{
		"title": "no criteria",
	})
	if err != nil {
		t.Fatalf("start_cycle: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for invalid mandate")
	}
}

func TestLineageTools(t *testing.T) {
	mgr := testManager(t)
	srv := NewServer(mgr, "test")

	id := startCycle(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	result, err := srv.handleGetLineage(context.Background(), map[string]interface{}{"id": id})
	if err != nil {
		t.Fatalf("get_lineage: %v", err)
	}
	var lin struct {
		Agents []json.RawMessage `json:"agents"`
	}
	if err := json.Unmarshal([]byte(textPayload(t, result)), &lin); err != nil {
		t.Fatalf("decode lineage: %v", err)
	}
	if len(lin.Agents) != 4 {
		t.Errorf("agents = %d, want 4 founders", len(lin.Agents))
	}

	result, err = srv.handleGetLineageStats(context.Background(), map[string]interface{}{"id": id})
	if err != nil {
		t.Fatalf("get_lineage_stats: %v", err)
	}
	var stats lineage.Stats
	if err := json.Unmarshal([]byte(textPayload(t, result)), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalAgents != 4 {
		t.Errorf("TotalAgents = %d, want 4", stats.TotalAgents)
	}
}

func TestToolErrorsForUnknownCycle(t *testing.T) {
	srv := NewServer(testManager(t), "test")
	for name, handler := range map[string]func(context.Context, map[string]interface{}) (*mcp.CallToolResult, error){
		"get_cycle_status":  srv.handleGetCycleStatus,
		"cancel_cycle":      srv.handleCancelCycle,
		"get_lineage":       srv.handleGetLineage,
		"get_lineage_stats": srv.handleGetLineageStats,
	} {
		result, err := handler(context.Background(), map[string]interface{}{"id": "nope"})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !result.IsError {
			t.Errorf("%s: expected IsError for unknown cycle", name)
		}
	}
}
