// Package mcp exposes the evolution engine as MCP tools so external agents
// can start cycles, poll their status, and inspect lineage.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/cycles"
	"github.com/imoran/clade/pkg/lineage"
)

// Server wraps the mcp-go server around a cycle manager.
type Server struct {
	manager   *cycles.Manager
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server exposing the evolution tools.
func NewServer(manager *cycles.Manager, version string) *Server {
	s := &Server{
		manager:   manager,
		mcpServer: server.NewMCPServer("clade", version),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.registerTool("start_cycle",
		"Start an evolution cycle for a problem mandate. Returns the cycle id immediately; the cycle runs in the background.",
		s.handleStartCycle)
	s.registerTool("get_cycle_status",
		"Get the status and, when terminal, the result of an evolution cycle.",
		s.handleGetCycleStatus)
	s.registerTool("cancel_cycle",
		"Request cancellation of a running evolution cycle. The in-flight generation finishes first.",
		s.handleCancelCycle)
	s.registerTool("get_lineage",
		"Get the agent genealogy of an evolution cycle: every agent's DNA and the parent-child edges.",
		s.handleGetLineage)
	s.registerTool("get_lineage_stats",
		"Get population statistics for an evolution cycle: agent count, deepest generation, branch points.",
		s.handleGetLineageStats)
}

func (s *Server) registerTool(name, description string, handler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)) {
	tool := mcp.NewTool(name, mcp.WithDescription(description))
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		return handler(ctx, args)
	})
}

func (s *Server) handleStartCycle(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	mandate := core.Mandate{
		Title:       stringArg(args, "title"),
		Description: stringArg(args, "description"),
		Domain:      stringArg(args, "domain"),
	}
	for _, c := range listArg(args, "constraints") {
		mandate.Constraints = append(mandate.Constraints, c)
	}
	for _, c := range listArg(args, "success_criteria") {
		mandate.SuccessCriteria = append(mandate.SuccessCriteria, c)
	}
	mandate.MaxIterations = intArg(args, "max_iterations")
	mandate.MaxAgents = intArg(args, "max_agents")

	id, err := s.manager.Start(ctx, mandate)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]string{"id": id, "status": string(cycles.StatusRunning)})
}

func (s *Server) handleGetCycleStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	cycle, err := s.manager.Get(stringArg(args, "id"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(cycle)
}

func (s *Server) handleCancelCycle(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	id := stringArg(args, "id")
	if err := s.manager.Cancel(id); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]string{"id": id, "status": "cancelling"})
}

func (s *Server) handleGetLineage(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	agents, edges, err := s.manager.Lineage(stringArg(args, "id"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(struct {
		Agents []core.DNA     `json:"agents"`
		Edges  []lineage.Edge `json:"edges"`
	}{agents, edges})
}

func (s *Server) handleGetLineageStats(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	stats, err := s.manager.Stats(stringArg(args, "id"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(stats)
}

// ServeStdio starts the server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func listArg(args map[string]interface{}, key string) []string {
	raw, _ := args[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(payload)},
		},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: err.Error()},
		},
	}
}
