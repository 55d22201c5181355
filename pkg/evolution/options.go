// SPDX-License-Identifier: Apache-2.0

package evolution

import (
	"github.com/imoran/clade/pkg/core"
)

const (
	// DefaultConvergenceThreshold is the consensus level at or above which a
	// cycle converges.
	DefaultConvergenceThreshold = 0.85

	// DefaultSpawnRole is the role new agents join when synthesis does not
	// imply a better target.
	DefaultSpawnRole = core.RoleIdeator
)

// RoundPool holds the pooled artifacts of one generation's role rounds.
type RoundPool struct {
	Ideas     []core.IdeaProposal
	Sims      []core.SimulationResult
	Critiques []core.CritiqueResult
}

// ParentSelector picks the parent agent IDs for a spawned child from the
// generation's pooled artifacts. synthesizerID is the agent that produced the
// synthesis carrying the spawn recommendation.
type ParentSelector func(pool RoundPool, syn *core.SynthesisResult, synthesizerID string) []string

// Options controls a single Run.
type Options struct {
	// EnableSpawning permits population growth between generations.
	EnableSpawning bool

	// ConvergenceThreshold overrides DefaultConvergenceThreshold when > 0.
	ConvergenceThreshold float64

	// SpawnRole is the role spawned agents join. Defaults to DefaultSpawnRole.
	SpawnRole core.Role

	// SelectParents overrides the default parent selection policy: the author
	// of the synthesis' top-ranked idea crossed with the synthesizer itself.
	SelectParents ParentSelector
}

func (o Options) threshold() float64 {
	if o.ConvergenceThreshold > 0 {
		return o.ConvergenceThreshold
	}
	return DefaultConvergenceThreshold
}

func (o Options) spawnRole() core.Role {
	if o.SpawnRole != "" {
		return o.SpawnRole
	}
	return DefaultSpawnRole
}

// defaultParentSelector crosses the agent behind the top-ranked idea with the
// synthesizer. When the synthesis names no surviving idea, the synthesizer is
// the sole parent.
func defaultParentSelector(pool RoundPool, syn *core.SynthesisResult, synthesizerID string) []string {
	parents := []string{}
	if len(syn.TopIdeaIDs) > 0 {
		top := syn.TopIdeaIDs[0]
		for _, idea := range pool.Ideas {
			if idea.ID == top && idea.AgentID != "" {
				parents = append(parents, idea.AgentID)
				break
			}
		}
	}
	dup := false
	for _, p := range parents {
		if p == synthesizerID {
			dup = true
		}
	}
	if !dup && synthesizerID != "" {
		parents = append(parents, synthesizerID)
	}
	return parents
}
