package worker

import (
	"context"
	"time"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/registry"
)

// Emitter is what a running process body uses to report progress and
// produce outputs, and to probe whether it has been asked to stop.
type Emitter interface {
	EmitStatus(percent int, opts ...StatusOption)
	EmitResult(outputIdentifier string, value []byte, mimeType string)
	Cancelled() bool
}

// StatusOption sets the optional next_poll/estimated_completion deltas
// on a Status emission. Deltas, not absolute timestamps: the worker
// resolves them relative to the moment it handles the emission.
type StatusOption func(*domain.Emission)

func WithNextPoll(delta time.Duration) StatusOption {
	return func(e *domain.Emission) {
		e.HasNextPollDelta = true
		e.NextPollDelta = delta
	}
}

func WithEstimatedCompletion(delta time.Duration) StatusOption {
	return func(e *domain.Emission) {
		e.HasEstimatedCompletionDelta = true
		e.EstimatedCompletionDelta = delta
	}
}

// SyncFunctionHandler runs to completion with a single return value;
// it has no suspension point to inject a cancel into, so dismissal
// only marks the job and discards the eventual result.
type SyncFunctionHandler interface {
	registry.Handler
	Run(ctx context.Context, inputs []domain.InputValue) (result []byte, mimeType string, err error)
}

// GeneratorStreamHandler produces a lazy sequence of emissions, pulled
// one at a time; each pull is a suspension point where a cancel may be
// observed.
type GeneratorStreamHandler interface {
	registry.Handler
	Run(ctx context.Context, inputs []domain.InputValue, emit Emitter) error
}

// AsyncCoroutineHandler runs a single scheduled unit of work with one
// terminal emission, watched by ctx for cancellation.
type AsyncCoroutineHandler interface {
	registry.Handler
	Run(ctx context.Context, inputs []domain.InputValue, emit Emitter) error
}

// AsyncStreamHandler is the same emission contract as
// GeneratorStreamHandler but its producer performs blocking,
// I/O-shaped waits between emissions rather than pure computation.
// The two shapes are declared separately so a process can signal
// which cancellation latency callers should expect.
type AsyncStreamHandler interface {
	registry.Handler
	Run(ctx context.Context, inputs []domain.InputValue, emit Emitter) error
}
