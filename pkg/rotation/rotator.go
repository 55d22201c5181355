// Package rotation manages a pool of interchangeable API credentials for the
// external reasoning backend. Credentials are handed out round-robin; ones
// that report quota exhaustion are quarantined for a cooldown window and
// released lazily when the window passes.
package rotation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/imoran/clade/pkg/errors"
)

// DefaultCooldown is how long a quarantined credential stays out of rotation.
const DefaultCooldown = time.Minute

// Status reports pool counts for observability. It is a read-only side
// channel and is never used for control decisions.
type Status struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Quarantined int `json:"quarantined"`
}

// Rotator hands out credentials in round-robin order, skipping quarantined
// ones. Quarantine expiry is an explicit per-credential timestamp checked
// lazily on each Next call; there are no background timers.
type Rotator struct {
	mu          sync.Mutex
	keys        []string
	cursor      int
	quarantined map[string]time.Time
	cooldown    time.Duration
	now         func() time.Time
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithCooldown sets the quarantine window.
func WithCooldown(d time.Duration) Option {
	return func(r *Rotator) {
		if d > 0 {
			r.cooldown = d
		}
	}
}

// WithClock injects a clock, used by tests to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Rotator over the given ordered credential list.
// An empty list is a configuration error: the engine cannot run without at
// least one credential.
func New(keys []string, opts ...Option) (*Rotator, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New(errors.CodeConfiguration, "no api keys configured", nil)
	}
	r := &Rotator{
		keys:        cleaned,
		quarantined: make(map[string]time.Time),
		cooldown:    DefaultCooldown,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Next returns the next usable credential in round-robin order.
//
// If every credential is quarantined the whole quarantine set is cleared and
// rotation continues. This fails open on purpose: with no alternative
// backpressure mechanism, availability wins over quarantine correctness and
// the engine never deadlocks on credential exhaustion.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseExpired()

	for i := 0; i < len(r.keys); i++ {
		key := r.keys[r.cursor%len(r.keys)]
		r.cursor++
		if _, bad := r.quarantined[key]; !bad {
			return key
		}
	}

	slog.Warn("rotation.fail_open",
		slog.Int("quarantined", len(r.quarantined)),
		slog.Int("total", len(r.keys)),
	)
	r.quarantined = make(map[string]time.Time)
	key := r.keys[r.cursor%len(r.keys)]
	r.cursor++
	return key
}

// Quarantine marks a credential unusable until the cooldown passes. Calling
// it again before expiry resets the window (debounced, not additive).
// Unknown credentials are ignored.
func (r *Rotator) Quarantine(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.holds(key) {
		return
	}
	r.quarantined[key] = r.now().Add(r.cooldown)
}

// Status reports pool counts. Counts may be momentarily stale relative to
// concurrent Next calls.
func (r *Rotator) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseExpired()
	total := len(r.keys)
	quarantined := len(r.quarantined)
	return Status{
		Total:       total,
		Available:   total - quarantined,
		Quarantined: quarantined,
	}
}

func (r *Rotator) releaseExpired() {
	now := r.now()
	for key, expiry := range r.quarantined {
		if !now.Before(expiry) {
			delete(r.quarantined, key)
		}
	}
}

func (r *Rotator) holds(key string) bool {
	for _, k := range r.keys {
		if k == key {
			return true
		}
	}
	return false
}
