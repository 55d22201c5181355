// Package archive persists completed evolution cycles: the mandate, the
// terminal result, and a snapshot of the lineage graph.
package archive

import (
	"context"
	"time"

	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/lineage"
)

// Record is one archived cycle.
type Record struct {
	CycleID   string               `json:"cycle_id"`
	Mandate   core.Mandate         `json:"mandate"`
	Result    core.EvolutionResult `json:"result"`
	Agents    []core.DNA           `json:"agents,omitempty"`
	Edges     []lineage.Edge       `json:"edges,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Store persists cycle records. Implementations must be safe for concurrent
// use.
type Store interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, cycleID string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}
