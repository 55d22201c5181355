package agent

import (
	"fmt"
	"strings"

	"github.com/imoran/clade/pkg/core"
)

func writeMandate(b *strings.Builder, m core.Mandate) {
	fmt.Fprintf(b, "Problem: %s\n", m.Title)
	if m.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", m.Description)
	}
	if m.Domain != "" {
		fmt.Fprintf(b, "Domain: %s\n", m.Domain)
	}
	if len(m.Constraints) > 0 {
		b.WriteString("Constraints:\n")
		for _, c := range m.Constraints {
			fmt.Fprintf(b, "- %s\n", c)
		}
	}
	b.WriteString("Success criteria:\n")
	for _, c := range m.SuccessCriteria {
		fmt.Fprintf(b, "- %s\n", c)
	}
}

func writeIdeas(b *strings.Builder, ideas []core.IdeaProposal) {
	b.WriteString("Candidate ideas:\n")
	for _, idea := range ideas {
		fmt.Fprintf(b, "- id=%s title=%q novelty=%.2f: %s\n",
			idea.ID, idea.Title, idea.Novelty, idea.Description)
	}
}

func ideationPrompt(m core.Mandate, count int) string {
	var b strings.Builder
	writeMandate(&b, m)
	fmt.Fprintf(&b, "\nPropose %d distinct solution ideas.\n", count)
	b.WriteString(`Respond with a JSON array only: [{"title": string, "description": string, "novelty": number in [0,1]}]`)
	return b.String()
}

func simulationPrompt(m core.Mandate, ideas []core.IdeaProposal) string {
	var b strings.Builder
	writeMandate(&b, m)
	b.WriteString("\n")
	writeIdeas(&b, ideas)
	b.WriteString("\nSimulate each idea against the constraints and success criteria.\n")
	b.WriteString(`Respond with a JSON array only: [{"idea_id": string, "outcome": string, "viability": number in [0,1]}]`)
	return b.String()
}

func critiquePrompt(m core.Mandate, ideas []core.IdeaProposal, sims []core.SimulationResult) string {
	var b strings.Builder
	writeMandate(&b, m)
	b.WriteString("\n")
	writeIdeas(&b, ideas)
	b.WriteString("Simulation outcomes:\n")
	for _, s := range sims {
		fmt.Fprintf(&b, "- idea_id=%s viability=%.2f: %s\n", s.IdeaID, s.Viability, s.Outcome)
	}
	b.WriteString("\nCritique each idea in light of its simulation.\n")
	b.WriteString(`Respond with a JSON array only: [{"target_id": string, "strengths": string, "weaknesses": string, "approval": number in [0,1]}]`)
	return b.String()
}

func synthesisPrompt(m core.Mandate, ideas []core.IdeaProposal, sims []core.SimulationResult, crits []core.CritiqueResult) string {
	var b strings.Builder
	writeMandate(&b, m)
	b.WriteString("\n")
	writeIdeas(&b, ideas)
	b.WriteString("Simulation outcomes:\n")
	for _, s := range sims {
		fmt.Fprintf(&b, "- idea_id=%s viability=%.2f: %s\n", s.IdeaID, s.Viability, s.Outcome)
	}
	b.WriteString("Critiques:\n")
	for _, c := range crits {
		fmt.Fprintf(&b, "- target_id=%s approval=%.2f strengths=%q weaknesses=%q\n",
			c.TargetID, c.Approval, c.Strengths, c.Weaknesses)
	}
	b.WriteString("\nSynthesize the round: rank the strongest idea ids, describe one combined approach, ")
	b.WriteString("score how close the pool is to consensus, and say whether a new specialist agent should be spawned.\n")
	b.WriteString(`Respond with a JSON object only: {"top_idea_ids": [string], "combined_approach": string, ` +
		`"consensus_level": number in [0,1], "ready_for_spawn": bool, ` +
		`"spawn_recommendation": {"traits": {"creativity": number, "precision": number, "speed": number, "collaboration": number}, "capabilities": [string], "rationale": string} or null}`)
	return b.String()
}
