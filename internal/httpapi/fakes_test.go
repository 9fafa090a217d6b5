package httpapi

import (
	"context"
	"io"
	"sync"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/resultbackend"
)

// fakeBroker is the minimal in-memory broker.Broker double the router
// tests need; no pub/sub fan-out because no test blocks in sync mode.
type fakeBroker struct {
	mu    sync.Mutex
	jobs  map[string]domain.Job
	queue []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{jobs: make(map[string]domain.Job)}
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
	return domain.Job{}, errs.New(errs.KindBackend, "not used in httpapi tests")
}

func (b *fakeBroker) UpdateJob(ctx context.Context, job domain.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[job.ID] = job.Clone()
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
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return errs.New(errs.KindNotFound, "no such job")
	}
	j.Status = domain.StatusDismissed
	b.jobs[id] = j
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
	<-ctx.Done()
	return "", ctx.Err()
}

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
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[jobID+"/"+outputName]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "no such result")
	}
	return &fakeReader{data: data}, nil
}

type fakeReader struct {
	data []byte
	pos  int64
}

func (r *fakeReader) Read(p []byte) (int, error) {
	if r.pos >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += int64(n)
	return n, nil
}

func (r *fakeReader) Seek(offset int64, whence int) (int64, error) {
	r.pos = offset
	return r.pos, nil
}

func (r *fakeReader) Size(ctx context.Context) (int64, error) { return int64(len(r.data)), nil }
func (r *fakeReader) Close() error                            { return nil }
