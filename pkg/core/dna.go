package core

import "time"

// Role identifies the reasoning specialty of an agent.
type Role string

const (
	RoleIdeator     Role = "ideator"
	RoleSimulator   Role = "simulator"
	RoleCritic      Role = "critic"
	RoleSynthesizer Role = "synthesizer"
)

// Roles lists all roles in round execution order.
func Roles() []Role {
	return []Role{RoleIdeator, RoleSimulator, RoleCritic, RoleSynthesizer}
}

// Traits is an agent's trait vector. Every component stays in [0,1].
type Traits struct {
	Creativity    float64 `json:"creativity"`
	Precision     float64 `json:"precision"`
	Speed         float64 `json:"speed"`
	Collaboration float64 `json:"collaboration"`
}

// Clamp returns a copy with every component forced into [0,1].
func (t Traits) Clamp() Traits {
	return Traits{
		Creativity:    clamp01(t.Creativity),
		Precision:     clamp01(t.Precision),
		Speed:         clamp01(t.Speed),
		Collaboration: clamp01(t.Collaboration),
	}
}

// Blend mixes t with other using weight w for other (0 keeps t, 1 takes other).
// The result is clamped.
func (t Traits) Blend(other Traits, w float64) Traits {
	w = clamp01(w)
	return Traits{
		Creativity:    t.Creativity*(1-w) + other.Creativity*w,
		Precision:     t.Precision*(1-w) + other.Precision*w,
		Speed:         t.Speed*(1-w) + other.Speed*w,
		Collaboration: t.Collaboration*(1-w) + other.Collaboration*w,
	}.Clamp()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampScore forces an artifact score into [0,1].
func ClampScore(v float64) float64 { return clamp01(v) }

// DNA is an agent's identity record: traits, capabilities, model assignment
// and lineage pointers. Once registered with the lineage tracker the tracker
// owns the canonical copy; agents hold a read-only clone.
type DNA struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	Traits        Traits    `json:"traits"`
	Capabilities  []string  `json:"capabilities,omitempty"`
	Model         string    `json:"model"`
	Instructions  string    `json:"instructions,omitempty"`
	Generation    int       `json:"generation"`
	BirthTime     time.Time `json:"birth_time"`
	MutationNotes []string  `json:"mutation_notes,omitempty"`
	ParentIDs     []string  `json:"parent_ids,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate a registered identity.
func (d DNA) Clone() DNA {
	out := d
	out.Capabilities = append([]string(nil), d.Capabilities...)
	out.MutationNotes = append([]string(nil), d.MutationNotes...)
	out.ParentIDs = append([]string(nil), d.ParentIDs...)
	return out
}

// IsFounder reports whether this agent was seeded at generation 0.
func (d DNA) IsFounder() bool { return len(d.ParentIDs) == 0 }
