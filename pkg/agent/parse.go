package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/imoran/clade/pkg/core"
)

// fallbackScore is assigned to artifacts recovered from unparseable output.
const fallbackScore = 0.5

// extractJSON returns the first well-formed top-level JSON object or array
// embedded in raw, honoring string literals and escapes. ok is false when no
// balanced structure exists.
func extractJSON(raw string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' || raw[i] == '[' {
			start = i
			open = raw[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				candidate := raw[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}

// decodeInto extracts the first JSON structure from raw and unmarshals it
// into v. A false return means the caller must fall back; it never errors.
func decodeInto(raw string, v interface{}) bool {
	structured, ok := extractJSON(raw)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(structured), v) == nil
}

func (a *Agent) noteFallback(ctx context.Context, kind string) {
	slog.Warn("agent.parse_fallback",
		slog.String("agent_id", a.dna.ID),
		slog.String("role", string(a.dna.Role)),
		slog.String("artifact", kind),
	)
	if a.metrics != nil {
		a.metrics.RecordParseFallback(ctx, string(a.dna.Role))
	}
}

type ideaWire struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Novelty     float64 `json:"novelty"`
}

func (a *Agent) parseIdeas(ctx context.Context, raw string) []core.IdeaProposal {
	var wires []ideaWire
	if !decodeInto(raw, &wires) || len(wires) == 0 {
		a.noteFallback(ctx, "idea")
		return []core.IdeaProposal{{
			ID:           uuid.NewString(),
			AgentID:      a.dna.ID,
			Title:        "Unstructured proposal",
			Description:  raw,
			Novelty:      fallbackScore,
			FromFallback: true,
		}}
	}
	out := make([]core.IdeaProposal, 0, len(wires))
	for _, w := range wires {
		out = append(out, core.IdeaProposal{
			ID:          uuid.NewString(),
			AgentID:     a.dna.ID,
			Title:       w.Title,
			Description: w.Description,
			Novelty:     core.ClampScore(w.Novelty),
		})
	}
	return out
}

type simulationWire struct {
	IdeaID    string  `json:"idea_id"`
	Outcome   string  `json:"outcome"`
	Viability float64 `json:"viability"`
}

func (a *Agent) parseSimulations(ctx context.Context, raw string) []core.SimulationResult {
	var wires []simulationWire
	if !decodeInto(raw, &wires) || len(wires) == 0 {
		a.noteFallback(ctx, "simulation")
		return []core.SimulationResult{{
			ID:           uuid.NewString(),
			AgentID:      a.dna.ID,
			Outcome:      raw,
			Viability:    fallbackScore,
			FromFallback: true,
		}}
	}
	out := make([]core.SimulationResult, 0, len(wires))
	for _, w := range wires {
		out = append(out, core.SimulationResult{
			ID:        uuid.NewString(),
			AgentID:   a.dna.ID,
			IdeaID:    w.IdeaID,
			Outcome:   w.Outcome,
			Viability: core.ClampScore(w.Viability),
		})
	}
	return out
}

type critiqueWire struct {
	TargetID   string  `json:"target_id"`
	Strengths  string  `json:"strengths"`
	Weaknesses string  `json:"weaknesses"`
	Approval   float64 `json:"approval"`
}

func (a *Agent) parseCritiques(ctx context.Context, raw string) []core.CritiqueResult {
	var wires []critiqueWire
	if !decodeInto(raw, &wires) || len(wires) == 0 {
		a.noteFallback(ctx, "critique")
		return []core.CritiqueResult{{
			ID:           uuid.NewString(),
			AgentID:      a.dna.ID,
			Weaknesses:   raw,
			Approval:     fallbackScore,
			FromFallback: true,
		}}
	}
	out := make([]core.CritiqueResult, 0, len(wires))
	for _, w := range wires {
		out = append(out, core.CritiqueResult{
			ID:         uuid.NewString(),
			AgentID:    a.dna.ID,
			TargetID:   w.TargetID,
			Strengths:  w.Strengths,
			Weaknesses: w.Weaknesses,
			Approval:   core.ClampScore(w.Approval),
		})
	}
	return out
}

type synthesisWire struct {
	TopIdeaIDs       []string `json:"top_idea_ids"`
	CombinedApproach string   `json:"combined_approach"`
	ConsensusLevel   float64  `json:"consensus_level"`
	ReadyForSpawn    bool     `json:"ready_for_spawn"`
	Spawn            *struct {
		Traits       core.Traits `json:"traits"`
		Capabilities []string    `json:"capabilities"`
		Rationale    string      `json:"rationale"`
	} `json:"spawn_recommendation"`
}

func (a *Agent) parseSynthesis(ctx context.Context, raw string) *core.SynthesisResult {
	var wire synthesisWire
	if !decodeInto(raw, &wire) || wire.CombinedApproach == "" {
		a.noteFallback(ctx, "synthesis")
		return &core.SynthesisResult{
			ID:               uuid.NewString(),
			AgentID:          a.dna.ID,
			CombinedApproach: raw,
			ConsensusLevel:   fallbackScore,
			FromFallback:     true,
		}
	}
	out := &core.SynthesisResult{
		ID:               uuid.NewString(),
		AgentID:          a.dna.ID,
		TopIdeaIDs:       wire.TopIdeaIDs,
		CombinedApproach: wire.CombinedApproach,
		ConsensusLevel:   core.ClampScore(wire.ConsensusLevel),
		ReadyForSpawn:    wire.ReadyForSpawn,
	}
	if wire.Spawn != nil {
		out.Spawn = &core.SpawnRecommendation{
			Traits:       wire.Spawn.Traits.Clamp(),
			Capabilities: wire.Spawn.Capabilities,
			Rationale:    wire.Spawn.Rationale,
		}
	}
	return out
}
