// Package redisbroker backs the broker.Broker contract with Redis: a
// JSON string value per job, a blocking list as the work-stealing execution queue,
// and a pub/sub channel per job for control notifications.
package redisbroker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/opengeo/wpys-go/internal/broker"
	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/logger"
)

const (
	executeQueueKey    = "execute_queue"
	processingQueueKey = "execute_queue:processing"
)

// Options configures a Redis-backed broker.
type Options struct {
	Addr           string
	Password       string
	DB             int
	ExpirationTime time.Duration // zero means no TTL
	HasExpiration  bool
}

// Broker implements broker.Broker against a Redis server.
type Broker struct {
	rdb     *goredis.Client
	opts    Options
	log     *logger.Logger
	breaker *gobreaker.CircuitBreaker
}

var _ broker.Broker = (*Broker)(nil)

// New dials Redis and wraps the client with retry and circuit-breaker
// policy so transient I/O failures surface as BackendError only after
// bounded retries.
func New(opts Options, log *logger.Logger) (*Broker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		// let a caller's context deadline bound blocking commands such
		// as the BRPOPLPUSH in PickJob.
		ContextTimeoutEnabled: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.Wrap(errs.KindBackend, "redis ping failed", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-broker",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// a missing key is an answer from a healthy backend, not a
		// failure the breaker should count.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, goredis.Nil)
		},
	})

	return &Broker{rdb: rdb, opts: opts, log: log.With("component", "RedisBroker"), breaker: cb}, nil
}

func (b *Broker) Close() error { return b.rdb.Close() }

// withRetry runs fn under bounded retry-with-jitter, then through the
// circuit breaker, classifying any surviving failure as BackendError.
func (b *Broker) withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, backoff.Retry(fn, policy)
	})
	if err != nil {
		return errs.Wrap(errs.KindBackend, "redis operation failed", err)
	}
	return nil
}

// record is the JSON-on-the-wire persisted shape of a domain.Job.
// JSON rather than gob so the persisted schema stays self-describing
// and readable by non-Go tooling; schema_version tags the layout for
// forward migration.
type record struct {
	SchemaVersion int             `json:"schema_version"`
	ID            string          `json:"id"`
	ProcessID     string          `json:"process_id"`
	Inputs        []domain.InputValue `json:"inputs"`
	Outputs       []string        `json:"outputs"`
	Status        domain.Status   `json:"status"`
	StatusInfo    statusInfoJSON  `json:"status_info"`
	Results       map[string]domain.Result `json:"results"`
	Error         *domain.JobError `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at,omitempty"`
	HasExpiry     bool            `json:"has_expiry"`
}

type statusInfoJSON struct {
	PercentCompleted       int       `json:"percent_completed,omitempty"`
	HasPercentCompleted    bool      `json:"has_percent_completed"`
	EstimatedCompletion    time.Time `json:"estimated_completion,omitempty"`
	HasEstimatedCompletion bool      `json:"has_estimated_completion"`
	NextPoll               time.Time `json:"next_poll,omitempty"`
	HasNextPoll            bool      `json:"has_next_poll"`
}

const currentSchemaVersion = 1

func toRecord(j domain.Job) record {
	return record{
		SchemaVersion: currentSchemaVersion,
		ID:            j.ID,
		ProcessID:     j.ProcessID,
		Inputs:        j.Inputs,
		Outputs:       j.Outputs,
		Status:        j.Status,
		StatusInfo: statusInfoJSON{
			PercentCompleted:       j.StatusInfo.PercentCompleted,
			HasPercentCompleted:    j.StatusInfo.HasPercentCompleted,
			EstimatedCompletion:    j.StatusInfo.EstimatedCompletion,
			HasEstimatedCompletion: j.StatusInfo.HasEstimatedCompletion,
			NextPoll:               j.StatusInfo.NextPoll,
			HasNextPoll:            j.StatusInfo.HasNextPoll,
		},
		Results:   j.Results,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		ExpiresAt: j.ExpiresAt,
		HasExpiry: j.HasExpiry,
	}
}

func fromRecord(r record) domain.Job {
	return domain.Job{
		ID:        r.ID,
		ProcessID: r.ProcessID,
		Inputs:    r.Inputs,
		Outputs:   r.Outputs,
		Status:    r.Status,
		StatusInfo: domain.StatusInfo{
			PercentCompleted:       r.StatusInfo.PercentCompleted,
			HasPercentCompleted:    r.StatusInfo.HasPercentCompleted,
			EstimatedCompletion:    r.StatusInfo.EstimatedCompletion,
			HasEstimatedCompletion: r.StatusInfo.HasEstimatedCompletion,
			NextPoll:               r.StatusInfo.NextPoll,
			HasNextPoll:            r.StatusInfo.HasNextPoll,
		},
		Results:   r.Results,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		HasExpiry: r.HasExpiry,
	}
}

func jobKey(id string) string     { return "jobs:" + id }
func controlChannel(id string) string { return "control:" + id }

func (b *Broker) CreateJob(ctx context.Context, id, processID string, inputs []domain.InputValue, outputs []string) (domain.Job, error) {
	existing, err := b.rdb.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return domain.Job{}, errs.Wrap(errs.KindBackend, "redis exists failed", err)
	}
	if existing > 0 {
		return domain.Job{}, errs.New(errs.KindValidation, "job already exists: "+id)
	}

	job := domain.Job{
		ID:        id,
		ProcessID: processID,
		Inputs:    inputs,
		Outputs:   outputs,
		Status:    domain.StatusAccepted,
		Results:   map[string]domain.Result{},
		CreatedAt: time.Now(),
	}
	if b.opts.HasExpiration {
		job.HasExpiry = true
		job.ExpiresAt = job.CreatedAt.Add(b.opts.ExpirationTime)
	}

	if err := b.persist(ctx, job); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

func (b *Broker) persist(ctx context.Context, job domain.Job) error {
	data, err := json.Marshal(toRecord(job))
	if err != nil {
		return errs.Wrap(errs.KindBackend, "encode job failed", err)
	}
	return b.withRetry(ctx, func() error {
		pipe := b.rdb.TxPipeline()
		pipe.Set(ctx, jobKey(job.ID), data, 0)
		if b.opts.HasExpiration {
			pipe.Expire(ctx, jobKey(job.ID), b.opts.ExpirationTime)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (b *Broker) GetJob(ctx context.Context, id string) (domain.Job, error) {
	var data string
	err := b.withRetry(ctx, func() error {
		var e error
		data, e = b.rdb.Get(ctx, jobKey(id)).Result()
		if e == goredis.Nil {
			// a missing key is a definitive answer, not an I/O
			// failure worth retrying.
			return backoff.Permanent(e)
		}
		return e
	})
	if errors.Is(err, goredis.Nil) {
		return domain.Job{}, errs.New(errs.KindNotFound, "job not found: "+id)
	}
	if err != nil {
		return domain.Job{}, err
	}
	var r record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return domain.Job{}, errs.Wrap(errs.KindBackend, "decode job failed", err)
	}
	return fromRecord(r).Clone(), nil
}

func (b *Broker) EnqueueJob(ctx context.Context, id string) error {
	if _, err := b.GetJob(ctx, id); err != nil {
		return err
	}
	return b.withRetry(ctx, func() error {
		return b.rdb.LPush(ctx, executeQueueKey, id).Err()
	})
}

// PickJob uses BRPOPLPUSH to atomically move an id from the execution
// queue to a processing list, giving exactly-once delivery across any
// number of concurrent workers.
func (b *Broker) PickJob(ctx context.Context) (domain.Job, error) {
	id, err := b.rdb.BRPopLPush(ctx, executeQueueKey, processingQueueKey, 0).Result()
	if err != nil {
		return domain.Job{}, errs.Wrap(errs.KindBackend, "redis brpoplpush failed", err)
	}
	job, err := b.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	// remove from the processing list now that the job has been
	// handed to the caller; the caller (worker) owns it from here.
	b.rdb.LRem(ctx, processingQueueKey, 1, id)
	return job, nil
}

func (b *Broker) UpdateJob(ctx context.Context, job domain.Job) error {
	current, err := b.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(current.Status, job.Status) {
		return errs.New(errs.KindValidation, "illegal status transition "+string(current.Status)+" -> "+string(job.Status))
	}
	if err := b.persist(ctx, job); err != nil {
		return err
	}
	if job.Status.Terminal() {
		var kind domain.NotificationKind
		switch job.Status {
		case domain.StatusSucceeded:
			kind = domain.NotifySucceeded
		case domain.StatusFailed:
			kind = domain.NotifyFailed
		case domain.StatusDismissed:
			kind = domain.NotifyDismissed
		}
		b.publish(ctx, job.ID, kind)
	}
	return nil
}

func (b *Broker) UpdateJobStatusInfo(ctx context.Context, id string, info domain.StatusInfo) error {
	job, err := b.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if info.HasPercentCompleted && job.StatusInfo.HasPercentCompleted &&
		info.PercentCompleted < job.StatusInfo.PercentCompleted {
		return errs.New(errs.KindMonotonicityViolation, "percent_completed went backwards for job "+id)
	}
	job.StatusInfo = info
	return b.persist(ctx, job)
}

func (b *Broker) DismissJob(ctx context.Context, id string) error {
	job, err := b.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusDismissed {
		return nil // idempotent
	}
	if !domain.CanTransition(job.Status, domain.StatusDismissed) {
		return errs.New(errs.KindValidation, "cannot dismiss job in status "+string(job.Status))
	}
	job.Status = domain.StatusDismissed
	if err := b.persist(ctx, job); err != nil {
		return err
	}
	b.publish(ctx, id, domain.NotifyDismissed)
	return nil
}

func (b *Broker) PauseJob(ctx context.Context, id string) error {
	job, err := b.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusPaused {
		return nil
	}
	if !domain.CanTransition(job.Status, domain.StatusPaused) {
		return errs.New(errs.KindValidation, "cannot pause job in status "+string(job.Status))
	}
	job.Status = domain.StatusPaused
	if err := b.persist(ctx, job); err != nil {
		return err
	}
	b.publish(ctx, id, domain.NotifyPaused)
	return nil
}

func (b *Broker) ResumeJob(ctx context.Context, id string) error {
	job, err := b.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusAccepted {
		return nil
	}
	if !domain.CanTransition(job.Status, domain.StatusAccepted) {
		return errs.New(errs.KindValidation, "cannot resume job in status "+string(job.Status))
	}
	job.Status = domain.StatusAccepted
	if err := b.persist(ctx, job); err != nil {
		return err
	}
	b.publish(ctx, id, domain.NotifyResumed)
	return b.EnqueueJob(ctx, id)
}

func (b *Broker) publish(ctx context.Context, id string, kind domain.NotificationKind) {
	if err := b.rdb.Publish(ctx, controlChannel(id), string(kind)).Err(); err != nil {
		b.log.Warn("publish control message failed", "job_id", id, "kind", kind, "error", err)
	}
}

func (b *Broker) GetJobNotification(ctx context.Context, id string, kinds ...domain.NotificationKind) (domain.NotificationKind, error) {
	sub := b.rdb.Subscribe(ctx, controlChannel(id))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return "", errs.Wrap(errs.KindBackend, "redis subscribe failed", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return "", errs.New(errs.KindBackend, "control channel closed for job "+id)
			}
			kind := domain.NotificationKind(msg.Payload)
			if len(kinds) == 0 || containsKind(kinds, kind) {
				return kind, nil
			}
		}
	}
}

func containsKind(kinds []domain.NotificationKind, k domain.NotificationKind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
