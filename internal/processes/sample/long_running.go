// Package sample provides reference processes for development and
// end-to-end testing: at least one process per execution shape
// (sync-function, generator-stream, async-coroutine, async-stream).
package sample

import (
	"context"
	"fmt"
	"time"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/parsing"
	"github.com/opengeo/wpys-go/internal/worker"
)

func feetToMeter(v any) (any, error) {
	f, ok := asFloat(v)
	if !ok {
		return nil, fmt.Errorf("feet value is not numeric: %v", v)
	}
	return f * 0.3048, nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// distanceOutput is the meter/feet UOM-convertible output descriptor
// shared by both long_running_process variants.
func distanceOutput() domain.OutputDescriptor {
	return domain.OutputDescriptor{
		Identifier: "distance",
		Metadata:   domain.Metadata{Title: "Computed distance"},
		Kind:       domain.KindLiteral,
		Domains: []domain.Domain{
			{DataType: "http://www.w3.org/2001/XMLSchema#double", UOM: "meter"},
			{DataType: "http://www.w3.org/2001/XMLSchema#double", UOM: "feet", ToDefaultDomain: feetToMeter},
		},
		Formats: []domain.Format{
			{MimeType: "text/plain"},
			{MimeType: "text/xml"},
		},
	}
}

func sleepTimeInput() domain.InputDescriptor {
	return domain.InputDescriptor{
		Identifier:  "sleep_time",
		Metadata:    domain.Metadata{Title: "Seconds to run before completing"},
		Kind:        domain.KindLiteral,
		ValueParser: parsing.ParseInt,
		Domains: []domain.Domain{
			{DataType: "http://www.w3.org/2001/XMLSchema#int", HasDefault: true, DefaultValue: "5"},
		},
		Formats: []domain.Format{{MimeType: "text/plain"}},
	}
}

// LongRunningProcessDescriptor describes the generator-stream variant.
func LongRunningProcessDescriptor() *domain.Process {
	return &domain.Process{
		Identifier: "long_running_process",
		Metadata:   domain.Metadata{Title: "Long running process", Abstract: "Sleeps in three steps, reporting progress, then returns a constant distance."},
		Inputs:     []domain.InputDescriptor{sleepTimeInput()},
		Outputs:    []domain.OutputDescriptor{distanceOutput()},
		Shape:      domain.ShapeGeneratorStream,
	}
}

// LongRunningAsyncStreamDescriptor describes the async-stream variant:
// identical emission sequence, but its producer waits on a time.Ticker
// instead of plain time.Sleep.
func LongRunningAsyncStreamDescriptor() *domain.Process {
	return &domain.Process{
		Identifier: "long_running_process_async",
		Metadata:   domain.Metadata{Title: "Long running process (async-stream)", Abstract: "Same emission sequence as long_running_process, driven by a ticker."},
		Inputs:     []domain.InputDescriptor{sleepTimeInput()},
		Outputs:    []domain.OutputDescriptor{distanceOutput()},
		Shape:      domain.ShapeAsyncStream,
	}
}

func sleepTimeFrom(inputs []domain.InputValue) int {
	for _, in := range inputs {
		if in.Identifier != "sleep_time" {
			continue
		}
		switch v := in.Value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 5
}

// LongRunningProcessHandler drives the generator-stream emission
// sequence one time.Sleep-paced step at a time: three Status emissions
// followed by a single Result.
type LongRunningProcessHandler struct{}

var _ worker.GeneratorStreamHandler = LongRunningProcessHandler{}

func (LongRunningProcessHandler) Shape() domain.Shape { return domain.ShapeGeneratorStream }

func (LongRunningProcessHandler) Run(ctx context.Context, inputs []domain.InputValue, emit worker.Emitter) error {
	return runLongRunning(ctx, inputs, emit, time.Sleep)
}

// LongRunningAsyncStreamHandler is the async-stream sibling: same
// emission sequence, paced by a ticker instead of a bare sleep.
type LongRunningAsyncStreamHandler struct{}

var _ worker.AsyncStreamHandler = LongRunningAsyncStreamHandler{}

func (LongRunningAsyncStreamHandler) Shape() domain.Shape { return domain.ShapeAsyncStream }

func (LongRunningAsyncStreamHandler) Run(ctx context.Context, inputs []domain.InputValue, emit worker.Emitter) error {
	return runLongRunning(ctx, inputs, emit, tickerWait(ctx))
}

func tickerWait(ctx context.Context) func(time.Duration) {
	return func(d time.Duration) {
		t := time.NewTicker(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
}

func runLongRunning(ctx context.Context, inputs []domain.InputValue, emit worker.Emitter, wait func(time.Duration)) error {
	sleepTime := sleepTimeFrom(inputs)
	step := time.Duration(sleepTime) * time.Second / 3

	for _, percent := range []int{33, 66} {
		if emit.Cancelled() || ctx.Err() != nil {
			return nil
		}
		wait(step)
		emit.EmitStatus(percent,
			worker.WithNextPoll(step),
			worker.WithEstimatedCompletion(step*time.Duration(3-percent/33)))
	}
	if emit.Cancelled() || ctx.Err() != nil {
		return nil
	}
	wait(step)
	emit.EmitStatus(100)
	emit.EmitResult("distance", []byte("42"), "text/plain")
	return nil
}
