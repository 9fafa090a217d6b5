package dispatcher

import (
	"context"
	"io"
	"sync"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/resultbackend"
)

type fakeBroker struct {
	mu    sync.Mutex
	jobs  map[string]domain.Job
	subs  map[string][]chan domain.NotificationKind
	queue []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{jobs: make(map[string]domain.Job), subs: make(map[string][]chan domain.NotificationKind)}
}

func (b *fakeBroker) CreateJob(ctx context.Context, id, processID string, inputs []domain.InputValue, outputs []string) (domain.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.jobs[id]; exists {
		return domain.Job{}, errs.New(errs.KindValidation, "duplicate job id")
	}
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
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[id]; !ok {
		return errs.New(errs.KindNotFound, "no such job")
	}
	b.queue = append(b.queue, id)
	return nil
}

func (b *fakeBroker) PickJob(ctx context.Context) (domain.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return domain.Job{}, errs.New(errs.KindNotFound, "queue empty")
	}
	id := b.queue[0]
	b.queue = b.queue[1:]
	return b.jobs[id], nil
}

func (b *fakeBroker) UpdateJob(ctx context.Context, job domain.Job) error {
	b.mu.Lock()
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

// settleJob is a test helper: simulate a worker moving a job straight
// to a terminal status.
func (b *fakeBroker) settleJob(id string, status domain.Status, results map[string]domain.Result, jobErr *domain.JobError) {
	b.mu.Lock()
	j := b.jobs[id]
	j.Status = status
	j.Results = results
	j.Error = jobErr
	b.jobs[id] = j
	b.mu.Unlock()

	var kind domain.NotificationKind
	switch status {
	case domain.StatusSucceeded:
		kind = domain.NotifySucceeded
	case domain.StatusFailed:
		kind = domain.NotifyFailed
	case domain.StatusDismissed:
		kind = domain.NotifyDismissed
	}
	b.publish(id, kind)
}

type fakeResultBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeResultBackend() *fakeResultBackend {
	return &fakeResultBackend{data: make(map[string][]byte)}
}

func (f *fakeResultBackend) PutJobResult(ctx context.Context, jobID, outputName string, data []byte) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := jobID + "/" + outputName
	f.data[key] = data
	return key, int64(len(data)), nil
}

func (f *fakeResultBackend) GetJobResult(ctx context.Context, jobID, outputName string) (resultbackend.ResultReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := jobID + "/" + outputName
	data, ok := f.data[key]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "no such result")
	}
	return &fakeResultReader{data: data}, nil
}

type fakeResultReader struct {
	data []byte
	pos  int64
}

func (r *fakeResultReader) Read(p []byte) (int, error) {
	if r.pos >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += int64(n)
	return n, nil
}

func (r *fakeResultReader) Seek(offset int64, whence int) (int64, error) {
	r.pos = offset
	return r.pos, nil
}

func (r *fakeResultReader) Size(ctx context.Context) (int64, error) { return int64(len(r.data)), nil }
func (r *fakeResultReader) Close() error                            { return nil }
