// Package core provides the shared data model for Clade evolution cycles.
package core

import (
	"time"

	"github.com/imoran/clade/pkg/errors"
)

// Mandate is the immutable problem statement driving one evolution cycle.
// It is created once by the caller and never mutated.
type Mandate struct {
	Title           string    `json:"title" yaml:"title"`
	Description     string    `json:"description" yaml:"description"`
	Constraints     []string  `json:"constraints,omitempty" yaml:"constraints"`
	SuccessCriteria []string  `json:"success_criteria" yaml:"success_criteria"`
	Domain          string    `json:"domain,omitempty" yaml:"domain"`
	MaxIterations   int       `json:"max_iterations" yaml:"max_iterations"`
	MaxAgents       int       `json:"max_agents" yaml:"max_agents"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// DefaultMaxIterations bounds a cycle when the mandate does not set a cap.
const DefaultMaxIterations = 10

// DefaultMaxAgents bounds the population when the mandate does not set a budget.
const DefaultMaxAgents = 12

// Validate checks the mandate for required fields.
func (m *Mandate) Validate() error {
	if m.Title == "" {
		return errors.New(errors.CodeValidation, "mandate title is required", nil)
	}
	if len(m.SuccessCriteria) == 0 {
		return errors.New(errors.CodeValidation, "mandate requires at least one success criterion", nil)
	}
	return nil
}

// Normalized returns a copy with budget defaults applied.
func (m *Mandate) Normalized() Mandate {
	out := *m
	out.Constraints = append([]string(nil), m.Constraints...)
	out.SuccessCriteria = append([]string(nil), m.SuccessCriteria...)
	if out.MaxIterations <= 0 {
		out.MaxIterations = DefaultMaxIterations
	}
	if out.MaxAgents <= 0 {
		out.MaxAgents = DefaultMaxAgents
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	return out
}
