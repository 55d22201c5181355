// Package agent implements the four reasoning roles of an evolution cycle:
// Ideator, Simulator, Critic, and Synthesizer. An agent is stateless per
// call; its identity (DNA) is fixed at construction.
package agent

import "github.com/imoran/clade/pkg/core"

// DefaultModel is the model assigned to agents when the caller sets none.
const DefaultModel = "gemini-3-flash-preview"

type roleProfile struct {
	name         string
	traits       core.Traits
	capabilities []string
}

var roleProfiles = map[core.Role]roleProfile{
	core.RoleIdeator: {
		name:         "Ideator",
		traits:       core.Traits{Creativity: 0.9, Precision: 0.4, Speed: 0.7, Collaboration: 0.6},
		capabilities: []string{"brainstorming", "divergent-thinking", "analogy"},
	},
	core.RoleSimulator: {
		name:         "Simulator",
		traits:       core.Traits{Creativity: 0.4, Precision: 0.8, Speed: 0.6, Collaboration: 0.5},
		capabilities: []string{"scenario-modeling", "consequence-analysis", "estimation"},
	},
	core.RoleCritic: {
		name:         "Critic",
		traits:       core.Traits{Creativity: 0.3, Precision: 0.9, Speed: 0.5, Collaboration: 0.4},
		capabilities: []string{"risk-analysis", "assumption-testing", "tradeoff-review"},
	},
	core.RoleSynthesizer: {
		name:         "Synthesizer",
		traits:       core.Traits{Creativity: 0.6, Precision: 0.7, Speed: 0.5, Collaboration: 0.9},
		capabilities: []string{"aggregation", "consensus-building", "prioritization"},
	},
}

// DefaultTraits returns the default trait vector for a role.
func DefaultTraits(role core.Role) core.Traits {
	return roleProfiles[role].traits
}

// DefaultCapabilities returns the default capability set for a role.
func DefaultCapabilities(role core.Role) []string {
	return append([]string(nil), roleProfiles[role].capabilities...)
}

// DefaultName returns the display name for a role.
func DefaultName(role core.Role) string {
	return roleProfiles[role].name
}
