// Package broker defines the durable job store, execution queue and
// per-job control channel contract. The Broker is the single source of
// truth for job state; nothing outside it mutates a Job directly.
package broker

import (
	"context"

	"github.com/opengeo/wpys-go/internal/domain"
)

// Broker is implemented by internal/broker/redisbroker for production
// use and may be faked in tests.
type Broker interface {
	// CreateJob constructs and persists a new Job with status
	// ACCEPTED. Fails with errs.KindValidation if id already exists.
	CreateJob(ctx context.Context, id, processID string, inputs []domain.InputValue, outputs []string) (domain.Job, error)

	// GetJob returns a deep copy of the current Job state. Fails with
	// errs.KindNotFound if id is unknown (or expired).
	GetJob(ctx context.Context, id string) (domain.Job, error)

	// EnqueueJob appends id to the shared execution queue. Fails if
	// the job does not exist.
	EnqueueJob(ctx context.Context, id string) error

	// PickJob blocks until the queue is non-empty, pops one job
	// identifier and returns its current Job. Each enqueue is
	// delivered to exactly one caller across any number of
	// cooperating workers.
	PickJob(ctx context.Context) (domain.Job, error)

	// UpdateJob persists a full new Job state. The transition from
	// the stored status to job.Status must be legal per
	// domain.CanTransition. If the new status is terminal, a terminal
	// notification is published on the job's control channel.
	UpdateJob(ctx context.Context, job domain.Job) error

	// UpdateJobStatusInfo applies a light, frequent mutation
	// (percent_completed/next_poll/estimated_completion). Rejects a
	// non-monotonic percent_completed with errs.KindMonotonicityViolation.
	UpdateJobStatusInfo(ctx context.Context, id string, info domain.StatusInfo) error

	// DismissJob atomically sets status to DISMISSED and publishes
	// "dismissed" on the job's control channel. A second call on an
	// already-dismissed job is a no-op.
	DismissJob(ctx context.Context, id string) error

	// PauseJob and ResumeJob implement the optional Pause/Resume
	// operations (the RUNNING -> PAUSED -> ACCEPTED arc).
	PauseJob(ctx context.Context, id string) error
	ResumeJob(ctx context.Context, id string) error

	// GetJobNotification waits for the next control message on the
	// job's channel whose kind is in kinds (any kind if kinds is
	// empty).
	GetJobNotification(ctx context.Context, id string, kinds ...domain.NotificationKind) (domain.NotificationKind, error)
}
