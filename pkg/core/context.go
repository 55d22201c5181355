package core

import (
	"context"

	"github.com/google/uuid"
)

type cycleIDKey struct{}

// WithCycleID attaches a cycle id to the context.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleID returns the cycle id in the context, or "" when none is set.
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleIDKey{}).(string)
	return id
}

// EnsureCycleID returns a context carrying a cycle id, minting a fresh one
// when the incoming context has none.
func EnsureCycleID(ctx context.Context) context.Context {
	if CycleID(ctx) != "" {
		return ctx
	}
	return WithCycleID(ctx, uuid.NewString())
}
