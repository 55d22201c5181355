package agent

import (
	"fmt"
	"strings"

	"github.com/imoran/clade/pkg/core"
)

// BuildInstructions derives an agent's system instruction text from its role
// and trait vector. It is a pure function of the DNA: the same role and
// traits always produce the same text.
func BuildInstructions(role core.Role, traits core.Traits) string {
	var b strings.Builder

	switch role {
	case core.RoleIdeator:
		b.WriteString("You generate candidate solution ideas for the given problem mandate.")
	case core.RoleSimulator:
		b.WriteString("You simulate how candidate ideas would play out against the mandate's constraints.")
	case core.RoleCritic:
		b.WriteString("You critique candidate ideas and simulations, surfacing weaknesses and risks.")
	case core.RoleSynthesizer:
		b.WriteString("You synthesize the round's ideas, simulations, and critiques into a combined approach and judge consensus.")
	default:
		b.WriteString("You are a reasoning agent collaborating on the given problem mandate.")
	}

	b.WriteString(" ")
	b.WriteString(traitDirective("Creativity", traits.Creativity,
		"Stay close to proven, conventional approaches.",
		"Balance novel directions with established practice.",
		"Favor bold, unconventional directions over safe ones."))
	b.WriteString(" ")
	b.WriteString(traitDirective("Precision", traits.Precision,
		"Broad strokes are acceptable; do not over-qualify.",
		"Be reasonably specific and note key assumptions.",
		"Be rigorous: quantify claims and state every assumption."))
	b.WriteString(" ")
	b.WriteString(traitDirective("Speed", traits.Speed,
		"Take time to be thorough; length is acceptable.",
		"Keep responses focused.",
		"Answer tersely; prefer the shortest adequate response."))
	b.WriteString(" ")
	b.WriteString(traitDirective("Collaboration", traits.Collaboration,
		"Judge independently without deferring to other agents.",
		"Weigh other agents' outputs where they are relevant.",
		"Actively build on and reconcile other agents' contributions."))

	return b.String()
}

func traitDirective(name string, value float64, low, mid, high string) string {
	var directive string
	switch {
	case value < 0.35:
		directive = low
	case value < 0.7:
		directive = mid
	default:
		directive = high
	}
	return fmt.Sprintf("%s %.2f: %s", name, value, directive)
}
