package core

// IdeaProposal is one ideation-round artifact. Immutable once produced.
type IdeaProposal struct {
	ID           string  `json:"id"`
	AgentID      string  `json:"agent_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Novelty      float64 `json:"novelty"`
	FromFallback bool    `json:"from_fallback,omitempty"`
}

// SimulationResult is one simulation-round artifact.
type SimulationResult struct {
	ID           string  `json:"id"`
	AgentID      string  `json:"agent_id"`
	IdeaID       string  `json:"idea_id,omitempty"`
	Outcome      string  `json:"outcome"`
	Viability    float64 `json:"viability"`
	FromFallback bool    `json:"from_fallback,omitempty"`
}

// CritiqueResult is one critique-round artifact.
type CritiqueResult struct {
	ID           string  `json:"id"`
	AgentID      string  `json:"agent_id"`
	TargetID     string  `json:"target_id,omitempty"`
	Strengths    string  `json:"strengths,omitempty"`
	Weaknesses   string  `json:"weaknesses,omitempty"`
	Approval     float64 `json:"approval"`
	FromFallback bool    `json:"from_fallback,omitempty"`
}

// SpawnRecommendation is the synthesis round's optional request for a new agent.
type SpawnRecommendation struct {
	Traits       Traits   `json:"traits"`
	Capabilities []string `json:"capabilities,omitempty"`
	Rationale    string   `json:"rationale,omitempty"`
}

// SynthesisResult aggregates one generation. Exactly one is produced per round.
type SynthesisResult struct {
	ID               string               `json:"id"`
	AgentID          string               `json:"agent_id"`
	TopIdeaIDs       []string             `json:"top_idea_ids,omitempty"`
	CombinedApproach string               `json:"combined_approach"`
	ConsensusLevel   float64              `json:"consensus_level"`
	ReadyForSpawn    bool                 `json:"ready_for_spawn"`
	Spawn            *SpawnRecommendation `json:"spawn_recommendation,omitempty"`
	FromFallback     bool                 `json:"from_fallback,omitempty"`
}
