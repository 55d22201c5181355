// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/imoran/clade/pkg/errors"
	"github.com/imoran/clade/pkg/llm"
	"github.com/imoran/clade/pkg/rotation"
)

// DefaultMaxAttempts bounds one logical invocation across credential rotations.
const DefaultMaxAttempts = 3

// DefaultCallTimeout bounds each individual provider call.
const DefaultCallTimeout = 2 * time.Minute

// Invoker wraps a single logical call to the reasoning backend with bounded
// retry, rotating to a fresh credential on transient quota exhaustion.
// It holds no state beyond its references and is safe to share across
// concurrent callers.
type Invoker struct {
	provider    llm.Provider
	rotator     *rotation.Rotator
	retry       RetryConfig
	callTimeout time.Duration
	temperature float64
	metrics     Recorder
}

// Recorder receives invoker telemetry. Implemented by telemetry.EngineMetrics;
// a nil Recorder is valid and records nothing.
type Recorder interface {
	RecordCall(ctx context.Context, model string, err error)
	RecordRotation(ctx context.Context, quarantinedKey string)
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithMaxAttempts bounds the number of attempts per invocation.
func WithMaxAttempts(n int) InvokerOption {
	return func(inv *Invoker) {
		if n >= 1 {
			inv.retry.MaxAttempts = n
		}
	}
}

// WithCallTimeout bounds each individual provider call.
func WithCallTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) {
		if d > 0 {
			inv.callTimeout = d
		}
	}
}

// WithRetryConfig replaces the backoff configuration.
func WithRetryConfig(rc RetryConfig) InvokerOption {
	return func(inv *Invoker) { inv.retry = rc }
}

// WithTemperature sets the sampling temperature passed to the provider.
func WithTemperature(t float64) InvokerOption {
	return func(inv *Invoker) { inv.temperature = t }
}

// WithRecorder attaches a telemetry recorder.
func WithRecorder(rec Recorder) InvokerOption {
	return func(inv *Invoker) { inv.metrics = rec }
}

// NewInvoker creates an Invoker over the given provider and credential pool.
func NewInvoker(provider llm.Provider, rotator *rotation.Rotator, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		provider:    provider,
		rotator:     rotator,
		retry:       DefaultRetryConfig().WithMaxAttempts(DefaultMaxAttempts),
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(inv)
	}
	// Classification happens inside the attempt closure, which returns typed
	// errors with the Recoverable flag set; the retry core only needs to
	// honor that flag.
	if inv.retry.IsRecoverable == nil {
		inv.retry.IsRecoverable = IsTransientExhaustion
	}
	return inv
}

// Invoke performs one logical call with a single user prompt.
func (inv *Invoker) Invoke(ctx context.Context, model, prompt string) (string, error) {
	return inv.InvokeMessages(ctx, model, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
}

// InvokeMessages performs one logical call: obtain a credential, attempt the
// provider call, and on a transient-exhaustion failure quarantine the
// credential and retry with a fresh one, up to the configured attempt cap.
// Permanent failures propagate immediately without masking.
func (inv *Invoker) InvokeMessages(ctx context.Context, model string, messages []llm.Message) (string, error) {
	var content string

	err := inv.retry.Do(ctx, func() error {
		key := inv.rotator.Next()

		callCtx := ctx
		if inv.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, inv.callTimeout)
			defer cancel()
		}

		resp, callErr := inv.provider.Chat(callCtx, llm.ChatRequest{
			Model:       model,
			Messages:    messages,
			Temperature: inv.temperature,
			APIKey:      key,
		})
		if inv.metrics != nil {
			inv.metrics.RecordCall(ctx, model, callErr)
		}
		if callErr == nil {
			content = resp.Content
			return nil
		}

		if IsTransientExhaustion(callErr) {
			inv.rotator.Quarantine(key)
			if inv.metrics != nil {
				inv.metrics.RecordRotation(ctx, key)
			}
			slog.Warn("invoker.rotate",
				slog.String("model", model),
				slog.String("error", callErr.Error()),
			)
			return errors.New(errors.CodeTransientResource, "provider quota exhausted", callErr).
				WithContext("model", model)
		}

		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return errors.New(errors.CodeTimeout, "provider call timed out", callErr).
				WithContext("model", model).
				WithRecoverable(false)
		}

		return errors.New(errors.CodePermanentCall, "provider call failed", callErr).
			WithContext("model", model)
	})
	if err != nil {
		if errors.HasCode(err, errors.CodeTransientResource) {
			return "", errors.New(errors.CodeTransientResource, "all attempts exhausted", err).
				WithContext("max_attempts", inv.retry.MaxAttempts).
				WithRecoverable(false)
		}
		return "", err
	}
	return content, nil
}
