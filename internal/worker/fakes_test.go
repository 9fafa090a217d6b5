package worker

import (
	"context"
	"sync"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/resultbackend"
)

// fakeBroker is an in-memory broker.Broker double: enough of the real
// redisbroker contract (transition checking, pub/sub notifications) to
// drive the worker loop without Redis.
type fakeBroker struct {
	mu      sync.Mutex
	jobs    map[string]domain.Job
	subs    map[string][]chan domain.NotificationKind
	queue   chan string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		jobs:  make(map[string]domain.Job),
		subs:  make(map[string][]chan domain.NotificationKind),
		queue: make(chan string, 16),
	}
}

func (b *fakeBroker) CreateJob(ctx context.Context, id, processID string, inputs []domain.InputValue, outputs []string) (domain.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job := domain.Job{ID: id, ProcessID: processID, Inputs: inputs, Outputs: outputs, Status: domain.StatusAccepted}
	b.jobs[id] = job
	return job.Clone(), nil
}

func (b *fakeBroker) GetJob(ctx context.Context, id string) (domain.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return domain.Job{}, errs.New(errs.KindNotFound, "no such job")
	}
	return j.Clone(), nil
}

func (b *fakeBroker) EnqueueJob(ctx context.Context, id string) error {
	b.queue <- id
	return nil
}

func (b *fakeBroker) PickJob(ctx context.Context) (domain.Job, error) {
	select {
	case id := <-b.queue:
		return b.GetJob(ctx, id)
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	}
}

func (b *fakeBroker) UpdateJob(ctx context.Context, job domain.Job) error {
	b.mu.Lock()
	current, ok := b.jobs[job.ID]
	if !ok {
		b.mu.Unlock()
		return errs.New(errs.KindNotFound, "no such job")
	}
	if !domain.CanTransition(current.Status, job.Status) {
		b.mu.Unlock()
		return errs.New(errs.KindValidation, "illegal transition")
	}
	b.jobs[job.ID] = job.Clone()
	b.mu.Unlock()

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
		b.publish(job.ID, kind)
	}
	return nil
}

func (b *fakeBroker) UpdateJobStatusInfo(ctx context.Context, id string, info domain.StatusInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return errs.New(errs.KindNotFound, "no such job")
	}
	if info.HasPercentCompleted && j.StatusInfo.HasPercentCompleted && info.PercentCompleted < j.StatusInfo.PercentCompleted {
		return errs.New(errs.KindMonotonicityViolation, "percent went backwards")
	}
	j.StatusInfo = info
	b.jobs[id] = j
	return nil
}

func (b *fakeBroker) DismissJob(ctx context.Context, id string) error {
	b.mu.Lock()
	j, ok := b.jobs[id]
	if !ok {
		b.mu.Unlock()
		return errs.New(errs.KindNotFound, "no such job")
	}
	if j.Status == domain.StatusDismissed {
		b.mu.Unlock()
		return nil
	}
	j.Status = domain.StatusDismissed
	b.jobs[id] = j
	b.mu.Unlock()
	b.publish(id, domain.NotifyDismissed)
	return nil
}

func (b *fakeBroker) PauseJob(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return errs.New(errs.KindNotFound, "no such job")
	}
	j.Status = domain.StatusPaused
	b.jobs[id] = j
	return nil
}

func (b *fakeBroker) ResumeJob(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return errs.New(errs.KindNotFound, "no such job")
	}
	j.Status = domain.StatusAccepted
	b.jobs[id] = j
	return nil
}

func (b *fakeBroker) GetJobNotification(ctx context.Context, id string, kinds ...domain.NotificationKind) (domain.NotificationKind, error) {
	ch := make(chan domain.NotificationKind, 1)
	b.mu.Lock()
	b.subs[id] = append(b.subs[id], ch)
	b.mu.Unlock()

	for {
		select {
		case k := <-ch:
			if len(kinds) == 0 {
				return k, nil
			}
			for _, want := range kinds {
				if want == k {
					return k, nil
				}
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (b *fakeBroker) publish(id string, kind domain.NotificationKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[id] {
		select {
		case ch <- kind:
		default:
		}
	}
}

// fakeBackend is an in-memory resultbackend.Backend double.
type fakeBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte)}
}

func (f *fakeBackend) PutJobResult(ctx context.Context, jobID, outputName string, data []byte) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := jobID + "/" + outputName
	f.data[key] = data
	return key, int64(len(data)), nil
}

func (f *fakeBackend) GetJobResult(ctx context.Context, jobID, outputName string) (resultbackend.ResultReader, error) {
	return nil, errs.New(errs.KindNotFound, "not implemented in fake")
}
