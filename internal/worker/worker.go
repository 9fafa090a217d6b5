// Package worker drives the four process execution shapes
// (sync-function, generator-stream, async-coroutine, async-stream)
// under one uniform cancellation/progress protocol.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	jekaworkerpool "github.com/JekaMas/workerpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opengeo/wpys-go/internal/broker"
	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/logger"
	"github.com/opengeo/wpys-go/internal/metrics"
	"github.com/opengeo/wpys-go/internal/registry"
	"github.com/opengeo/wpys-go/internal/resultbackend"
)

var tracer = otel.Tracer("wpys-go/worker")

// Worker subscribes to the Broker's execution queue and drives one job
// at a time per loop iteration, one loop iteration per goroutine
// (Run is meant to be started once per worker process; multiple
// worker processes may run concurrently against the same Broker).
type Worker struct {
	broker   broker.Broker
	registry *registry.Registry
	backend  resultbackend.Backend
	log      *logger.Logger
	pool     *jekaworkerpool.WorkerPool
	metrics  *metrics.Metrics
}

// New builds a Worker. syncPoolSize bounds the pool that runs
// sync-function process bodies off the main loop goroutine.
func New(b broker.Broker, reg *registry.Registry, backend resultbackend.Backend, log *logger.Logger, m *metrics.Metrics, syncPoolSize int) *Worker {
	if syncPoolSize <= 0 {
		syncPoolSize = 4
	}
	return &Worker{
		broker:   b,
		registry: reg,
		backend:  backend,
		log:      log.With("component", "Worker"),
		pool:     jekaworkerpool.New(syncPoolSize),
		metrics:  m,
	}
}

// Run is the main loop. It blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.pool.StopWait()
			return nil
		default:
		}

		job, err := w.broker.PickJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.pool.StopWait()
				return nil
			}
			w.log.Warn("pick job failed", "error", err)
			continue
		}
		w.metrics.QueueDepth.Dec()
		w.metrics.WorkersBusy.Inc()
		w.runJob(ctx, job)
		w.metrics.WorkersBusy.Dec()
	}
}

// markRunning transitions a freshly-picked job from ACCEPTED to
// RUNNING so the later SUCCEEDED/FAILED/DISMISSED transition UpdateJob
// performs is legal. Returns the persisted job.
func (w *Worker) markRunning(ctx context.Context, job domain.Job) (domain.Job, error) {
	job.Status = domain.StatusRunning
	if err := w.broker.UpdateJob(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

// runJob drives a single job: picking -> running -> {cancel-pending ->
// terminating, terminating} -> back to picking.
func (w *Worker) runJob(ctx context.Context, job domain.Job) {
	spanCtx, span := tracer.Start(ctx, "worker.run_job", trace.WithAttributes())
	defer span.End()

	process, handler, err := w.registry.Get(job.ProcessID)
	if err != nil {
		w.log.Error("no such process for job", "job_id", job.ID, "process_id", job.ProcessID, "error", err)
		w.fail(spanCtx, job, errs.Wrap(errs.KindProcess, "unknown process "+job.ProcessID, err))
		return
	}

	job, err = w.markRunning(spanCtx, job)
	if err != nil {
		if errs.Is(err, errs.KindValidation) {
			// job was dismissed (or otherwise moved) between enqueue
			// and pickup; ACCEPTED->RUNNING is no longer legal, so
			// there is nothing left for this worker to run.
			w.log.Warn("job no longer runnable at pickup", "job_id", job.ID, "error", err)
			return
		}
		w.log.Warn("mark job running failed", "job_id", job.ID, "error", err)
		return
	}

	// cancel-watch: concurrently await the "dismissed" notification.
	cancelCtx, stopWatch := context.WithCancel(spanCtx)
	defer stopWatch()
	dismissed := make(chan struct{}, 1)
	go func() {
		kind, err := w.broker.GetJobNotification(cancelCtx, job.ID, domain.NotifyDismissed)
		if err == nil && kind == domain.NotifyDismissed {
			select {
			case dismissed <- struct{}{}:
			default:
			}
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("process body panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			w.fail(spanCtx, job, errs.New(errs.KindProcess, fmt.Sprintf("panic: %v", r)))
		}
	}()

	switch process.Shape {
	case domain.ShapeSyncFunction:
		w.runSyncFunction(spanCtx, job, handler.(SyncFunctionHandler), dismissed)
	case domain.ShapeGeneratorStream:
		w.runStream(spanCtx, job, func(c context.Context, e Emitter) error {
			return handler.(GeneratorStreamHandler).Run(c, job.Inputs, e)
		}, dismissed)
	case domain.ShapeAsyncCoroutine:
		w.runStream(spanCtx, job, func(c context.Context, e Emitter) error {
			return handler.(AsyncCoroutineHandler).Run(c, job.Inputs, e)
		}, dismissed)
	case domain.ShapeAsyncStream:
		w.runStream(spanCtx, job, func(c context.Context, e Emitter) error {
			return handler.(AsyncStreamHandler).Run(c, job.Inputs, e)
		}, dismissed)
	default:
		w.fail(spanCtx, job, errs.New(errs.KindProcess, "unknown process shape"))
	}
}

// runSyncFunction runs the body in the bounded pool. A plain function
// has no suspension point to inject a cancel into, so on a dismiss
// notification the worker marks the job DISMISSED, lets the body run
// to completion and discards its result.
func (w *Worker) runSyncFunction(ctx context.Context, job domain.Job, h SyncFunctionHandler, dismissed <-chan struct{}) {
	done := make(chan struct{})
	var result []byte
	var mimeType string
	var runErr error
	w.pool.Submit(ctx, func() error {
		defer close(done)
		result, mimeType, runErr = h.Run(ctx, job.Inputs)
		return nil
	}, jekaworkerpool.NoTimeout)

	select {
	case <-dismissed:
		w.cancelled(ctx, job)
		<-done // body runs to completion; result discarded
		return
	case <-done:
	}

	if runErr != nil {
		w.fail(ctx, job, errs.Wrap(errs.KindProcess, "process body failed", runErr))
		return
	}
	w.storeResult(ctx, job, "", result, mimeType)
	w.succeed(ctx, job)
}

// runStream implements the generator-stream / async-coroutine /
// async-stream branches: all three are driven by a goroutine feeding a
// channel of emissions, since Go has no native generator/coroutine
// distinction.
func (w *Worker) runStream(ctx context.Context, job domain.Job, body func(context.Context, Emitter) error, dismissed <-chan struct{}) {
	emitter := newChannelEmitter(4)
	bodyCtx, cancelBody := context.WithCancel(ctx)
	defer cancelBody()

	done := make(chan error, 1)
	go func() {
		defer emitter.close()
		done <- body(bodyCtx, emitter)
	}()

	resultCount := 0
	handle := func(em domain.Emission) {
		switch em.Kind {
		case domain.EmissionStatus:
			w.handleStatus(ctx, job, em)
		case domain.EmissionResult:
			outputID := em.OutputIdentifier
			if !em.HasOutputIdentifier && resultCount < len(job.Outputs) {
				outputID = job.Outputs[resultCount]
			}
			resultCount++
			w.storeResult(ctx, job, outputID, em.ResultValue, em.ResultMimeType)
		}
	}

	out := emitter.out
	for {
		select {
		case <-dismissed:
			emitter.requestCancel()
			cancelBody()
			w.cancelled(ctx, job)
			// keep draining so a body blocked mid-emission can reach
			// its next cancellation check; everything it still emits
			// is discarded.
			for out != nil {
				if _, ok := <-out; !ok {
					out = nil
				}
			}
			<-done
			return

		case em, ok := <-out:
			if !ok {
				out = nil // end of stream; wait for the body's return value
				continue
			}
			handle(em)

		case runErr := <-done:
			// the body has returned, so the emitter channel closes
			// right behind it; flush emissions that were still
			// buffered before settling the job.
			for em := range emitter.out {
				handle(em)
			}
			if runErr != nil {
				w.fail(ctx, job, errs.Wrap(errs.KindProcess, "process body failed", runErr))
				return
			}
			w.succeed(ctx, job)
			return
		}
	}
}

func (w *Worker) handleStatus(ctx context.Context, job domain.Job, em domain.Emission) {
	info := domain.StatusInfo{
		PercentCompleted:    em.PercentCompleted,
		HasPercentCompleted: em.HasPercentCompleted,
	}
	now := time.Now()
	if em.HasNextPollDelta {
		info.NextPoll = now.Add(em.NextPollDelta)
		info.HasNextPoll = true
	}
	if em.HasEstimatedCompletionDelta {
		info.EstimatedCompletion = now.Add(em.EstimatedCompletionDelta)
		info.HasEstimatedCompletion = true
	}
	if err := w.broker.UpdateJobStatusInfo(ctx, job.ID, info); err != nil {
		if errs.Is(err, errs.KindMonotonicityViolation) {
			w.log.Warn("dropped non-monotonic status update", "job_id", job.ID)
			return
		}
		w.log.Warn("update job status info failed", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) storeResult(ctx context.Context, job domain.Job, outputID string, value []byte, mimeType string) {
	if outputID == "" && len(job.Outputs) > 0 {
		outputID = job.Outputs[0]
	}
	contentID, size, err := w.backend.PutJobResult(ctx, job.ID, outputID, value)
	if err != nil {
		w.log.Warn("store result failed", "job_id", job.ID, "output", outputID, "error", err)
		return
	}
	current, err := w.broker.GetJob(ctx, job.ID)
	if err != nil {
		w.log.Warn("reload job before storing result failed", "job_id", job.ID, "error", err)
		return
	}
	if current.Results == nil {
		current.Results = map[string]domain.Result{}
	}
	current.Results[outputID] = domain.Result{
		OutputIdentifier: outputID,
		ContentID:        contentID,
		MimeType:         mimeType,
		SizeBytes:        size,
	}
	if err := w.broker.UpdateJob(ctx, current); err != nil {
		w.log.Warn("persist result failed", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) succeed(ctx context.Context, job domain.Job) {
	current, err := w.broker.GetJob(ctx, job.ID)
	if err != nil {
		w.log.Warn("reload job before succeed failed", "job_id", job.ID, "error", err)
		return
	}
	current.Status = domain.StatusSucceeded
	if err := w.broker.UpdateJob(ctx, current); err != nil {
		w.log.Warn("persist succeeded status failed", "job_id", job.ID, "error", err)
		return
	}
	w.metrics.JobsSucceeded.Inc()
}

func (w *Worker) fail(ctx context.Context, job domain.Job, cause error) {
	current, err := w.broker.GetJob(ctx, job.ID)
	if err != nil {
		current = job
	}
	current.Status = domain.StatusFailed
	current.Error = &domain.JobError{
		Kind:    string(errs.KindOf(cause)),
		Message: cause.Error(),
		Stack:   string(debug.Stack()),
	}
	if err := w.broker.UpdateJob(ctx, current); err != nil {
		w.log.Warn("persist failed status failed", "job_id", job.ID, "error", err)
		return
	}
	w.metrics.JobsFailed.Inc()
}

func (w *Worker) cancelled(ctx context.Context, job domain.Job) {
	if err := w.broker.DismissJob(ctx, job.ID); err != nil {
		w.log.Warn("dismiss on cancel failed", "job_id", job.ID, "error", err)
		return
	}
	w.metrics.JobsDismissed.Inc()
}
