package core

import "time"

// ConvergenceReason explains why a cycle terminated.
type ConvergenceReason string

const (
	// ReasonConsensus means synthesis consensus met the configured threshold.
	ReasonConsensus ConvergenceReason = "consensus-reached"

	// ReasonIterationBudget means the mandate's iteration cap was reached
	// without convergence. A defined, non-error termination.
	ReasonIterationBudget ConvergenceReason = "iteration-budget"

	// ReasonCancelled means the caller cancelled the cycle between generations.
	ReasonCancelled ConvergenceReason = "cancelled"
)

// EvolutionResult is the terminal artifact of one cycle. Immutable once the
// cycle terminates. Success is true only for consensus convergence; budget
// exhaustion and cancellation report Success=false without an error.
type EvolutionResult struct {
	Success        bool              `json:"success"`
	Iterations     int               `json:"iterations"`
	Reason         ConvergenceReason `json:"reason"`
	ExecutionTime  time.Duration     `json:"execution_time"`
	AgentsSpawned  int               `json:"agents_spawned"`
	FinalSynthesis *SynthesisResult  `json:"final_synthesis,omitempty"`
}
