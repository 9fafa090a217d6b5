// Package dispatcher turns a parsed WPS request into a response by
// driving Registry and Broker operations.
package dispatcher

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opengeo/wpys-go/internal/broker"
	"github.com/opengeo/wpys-go/internal/config"
	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
	"github.com/opengeo/wpys-go/internal/metrics"
	"github.com/opengeo/wpys-go/internal/registry"
	"github.com/opengeo/wpys-go/internal/resultbackend"
)

var tracer = otel.Tracer("wpys-go/dispatcher")

// Mode is the Execute request's sync/async selector.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// ExecuteRequest is the already-parsed Execute request the wire layer
// hands the Dispatcher.
type ExecuteRequest struct {
	ProcessID string
	Inputs    []domain.InputValue
	Outputs   []string
	Mode      Mode
}

// Response is the tagged union of what an operation can return:
// Capabilities, ProcessOfferings, a StatusInfo, a terminal Result set,
// or an ExceptionReport. At most one of them is populated (a successful
// GetResult leaves all of them empty and hands back its reader
// separately); the wire layer (internal/wire) encodes whichever is set.
type Response struct {
	Capabilities    *CapabilitiesResponse
	ProcessOfferings []*domain.Process
	StatusInfo      *StatusInfoResponse
	Result          *ResultResponse
	Exception       *ExceptionReport
}

type CapabilitiesResponse struct {
	ServiceInfo config.ServiceInfo
	Endpoint    string
	Processes   []*domain.Process
}

type StatusInfoResponse struct {
	JobID      string
	Status     domain.Status
	StatusInfo domain.StatusInfo
}

type ResultResponse struct {
	JobID   string
	Results map[string]domain.Result
}

// ExceptionReport is the error shape returned to callers: an
// exceptionCode (the error Kind), a message, and, only when debug is
// enabled, a locator and rendered stack.
type ExceptionReport struct {
	ExceptionCode string
	Message       string
	Locator       string
	Stack         string
	HasDebugInfo  bool
}

// Dispatcher holds the three collaborators every operation needs.
type Dispatcher struct {
	registry *registry.Registry
	broker   broker.Broker
	backend  resultbackend.Backend
	cfg      config.Config
	metrics  *metrics.Metrics
}

func New(reg *registry.Registry, b broker.Broker, backend resultbackend.Backend, cfg config.Config, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{registry: reg, broker: b, backend: backend, cfg: cfg, metrics: m}
}

// GetCapabilities returns service metadata plus the full registry
// listing.
func (d *Dispatcher) GetCapabilities(ctx context.Context) Response {
	_, span := tracer.Start(ctx, "dispatcher.get_capabilities")
	defer span.End()
	return Response{Capabilities: &CapabilitiesResponse{
		ServiceInfo: d.cfg.ServiceInfo,
		Endpoint:    d.cfg.MainEndpointName,
		Processes:   d.registry.List(),
	}}
}

// DescribeProcess returns full descriptors for the requested
// identifiers. An empty identifiers slice describes every process.
func (d *Dispatcher) DescribeProcess(ctx context.Context, identifiers []string) Response {
	_, span := tracer.Start(ctx, "dispatcher.describe_process")
	defer span.End()

	if len(identifiers) == 0 {
		return Response{ProcessOfferings: d.registry.List()}
	}
	out := make([]*domain.Process, 0, len(identifiers))
	for _, id := range identifiers {
		p, _, err := d.registry.Get(id)
		if err != nil {
			return errorResponse(err, d.cfg.Debug)
		}
		out = append(out, p)
	}
	return Response{ProcessOfferings: out}
}

// Execute resolves the process, allocates a job id, creates and
// enqueues the Job, then either returns immediately (async) or blocks
// on a terminal notification (sync).
func (d *Dispatcher) Execute(ctx context.Context, req ExecuteRequest) Response {
	ctx, span := tracer.Start(ctx, "dispatcher.execute")
	defer span.End()

	if _, _, err := d.registry.Get(req.ProcessID); err != nil {
		return errorResponse(err, d.cfg.Debug)
	}

	jobID := uuid.NewString()
	job, err := d.broker.CreateJob(ctx, jobID, req.ProcessID, req.Inputs, req.Outputs)
	if err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	if err := d.broker.EnqueueJob(ctx, jobID); err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	if d.metrics != nil {
		d.metrics.JobsCreated.Inc()
		d.metrics.QueueDepth.Inc()
	}

	if req.Mode != ModeSync {
		return statusResponse(job)
	}

	for {
		_, err := d.broker.GetJobNotification(ctx, jobID,
			domain.NotifySucceeded, domain.NotifyFailed, domain.NotifyDismissed)
		if err != nil {
			return errorResponse(err, d.cfg.Debug)
		}
		job, err = d.broker.GetJob(ctx, jobID)
		if err != nil {
			return errorResponse(err, d.cfg.Debug)
		}
		switch job.Status {
		case domain.StatusSucceeded:
			return Response{Result: &ResultResponse{JobID: job.ID, Results: job.Results}}
		case domain.StatusFailed:
			return exceptionFromJob(job, d.cfg.Debug)
		case domain.StatusDismissed:
			return statusResponse(job)
		}
	}
}

// GetStatus returns the current StatusInfo for a job.
func (d *Dispatcher) GetStatus(ctx context.Context, jobID string) Response {
	_, span := tracer.Start(ctx, "dispatcher.get_status")
	defer span.End()
	job, err := d.broker.GetJob(ctx, jobID)
	if err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	if job.Status == domain.StatusFailed {
		return exceptionFromJob(job, d.cfg.Debug)
	}
	return statusResponse(job)
}

// Dismiss cancels a running or accepted job.
func (d *Dispatcher) Dismiss(ctx context.Context, jobID string) Response {
	_, span := tracer.Start(ctx, "dispatcher.dismiss")
	defer span.End()
	if err := d.broker.DismissJob(ctx, jobID); err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	job, err := d.broker.GetJob(ctx, jobID)
	if err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	return statusResponse(job)
}

// Pause and Resume are optional operations, gated on
// config.EnablePauseResume by the caller (internal/httpapi checks the
// flag before reaching here).
func (d *Dispatcher) Pause(ctx context.Context, jobID string) Response {
	_, span := tracer.Start(ctx, "dispatcher.pause")
	defer span.End()
	if err := d.broker.PauseJob(ctx, jobID); err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	job, err := d.broker.GetJob(ctx, jobID)
	if err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	return statusResponse(job)
}

func (d *Dispatcher) Resume(ctx context.Context, jobID string) Response {
	_, span := tracer.Start(ctx, "dispatcher.resume")
	defer span.End()
	if err := d.broker.ResumeJob(ctx, jobID); err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	job, err := d.broker.GetJob(ctx, jobID)
	if err != nil {
		return errorResponse(err, d.cfg.Debug)
	}
	return statusResponse(job)
}

// GetResult streams result bytes for one named output through the
// result backend.
func (d *Dispatcher) GetResult(ctx context.Context, jobID, outputName string) (resultbackend.ResultReader, Response) {
	_, span := tracer.Start(ctx, "dispatcher.get_result", trace.WithAttributes())
	defer span.End()
	r, err := d.backend.GetJobResult(ctx, jobID, outputName)
	if err != nil {
		return nil, errorResponse(err, d.cfg.Debug)
	}
	return r, Response{}
}

func statusResponse(job domain.Job) Response {
	return Response{StatusInfo: &StatusInfoResponse{JobID: job.ID, Status: job.Status, StatusInfo: job.StatusInfo}}
}

func exceptionFromJob(job domain.Job, debug bool) Response {
	report := &ExceptionReport{ExceptionCode: string(errs.KindProcess), Message: "process failed"}
	if job.Error != nil {
		report.ExceptionCode = job.Error.Kind
		report.Message = job.Error.Message
		if debug {
			report.HasDebugInfo = true
			report.Locator = job.ID
			report.Stack = job.Error.Stack
		}
	}
	return Response{Exception: report}
}

func errorResponse(err error, debug bool) Response {
	report := &ExceptionReport{ExceptionCode: string(errs.KindOf(err)), Message: err.Error()}
	if debug {
		report.HasDebugInfo = true
	}
	return Response{Exception: report}
}
