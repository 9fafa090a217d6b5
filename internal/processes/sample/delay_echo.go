package sample

import (
	"context"
	"time"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/parsing"
	"github.com/opengeo/wpys-go/internal/worker"
)

// DelayEchoDescriptor describes an async-coroutine process: wait
// delay_seconds, then echo the message input back as the result. It
// exercises the async-coroutine calling convention, the one shape not
// otherwise covered by the generator/sync samples.
func DelayEchoDescriptor() *domain.Process {
	return &domain.Process{
		Identifier: "delay_echo",
		Metadata:   domain.Metadata{Title: "Delay echo", Abstract: "Waits, then echoes the message input back as the result."},
		Inputs: []domain.InputDescriptor{
			{
				Identifier:  "message",
				Metadata:    domain.Metadata{Title: "Message to echo"},
				Kind:        domain.KindLiteral,
				ValueParser: parsing.ParseString,
				Domains:     []domain.Domain{{DataType: "http://www.w3.org/2001/XMLSchema#string"}},
				Formats:     []domain.Format{{MimeType: "text/plain"}},
			},
			{
				Identifier:  "delay_seconds",
				Metadata:    domain.Metadata{Title: "Seconds to wait before echoing"},
				Kind:        domain.KindLiteral,
				ValueParser: parsing.ParseInt,
				Domains:     []domain.Domain{{DataType: "http://www.w3.org/2001/XMLSchema#int", HasDefault: true, DefaultValue: "0"}},
				Formats:     []domain.Format{{MimeType: "text/plain"}},
			},
		},
		Outputs: []domain.OutputDescriptor{{
			Identifier: "echo",
			Metadata:   domain.Metadata{Title: "Echoed message"},
			Kind:       domain.KindLiteral,
			Domains:    []domain.Domain{{DataType: "http://www.w3.org/2001/XMLSchema#string"}},
			Formats:    []domain.Format{{MimeType: "text/plain"}},
		}},
		Shape: domain.ShapeAsyncCoroutine,
	}
}

// DelayEchoHandler is the one-suspension-point async-coroutine shape:
// its only emission is its terminal Result, watched by ctx for
// cancellation during the wait.
type DelayEchoHandler struct{}

var _ worker.AsyncCoroutineHandler = DelayEchoHandler{}

func (DelayEchoHandler) Shape() domain.Shape { return domain.ShapeAsyncCoroutine }

func (DelayEchoHandler) Run(ctx context.Context, inputs []domain.InputValue, emit worker.Emitter) error {
	message := stringFrom(inputs, "message")
	delay := delaySecondsFrom(inputs)

	if delay > 0 {
		t := time.NewTimer(time.Duration(delay) * time.Second)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil
		}
	}
	if emit.Cancelled() || ctx.Err() != nil {
		return nil
	}
	emit.EmitResult("echo", []byte(message), "text/plain")
	return nil
}

func stringFrom(inputs []domain.InputValue, identifier string) string {
	for _, in := range inputs {
		if in.Identifier != identifier {
			continue
		}
		if s, ok := in.Value.(string); ok {
			return s
		}
	}
	return ""
}

func delaySecondsFrom(inputs []domain.InputValue) int {
	for _, in := range inputs {
		if in.Identifier != "delay_seconds" {
			continue
		}
		if v, ok := in.Value.(int); ok {
			return v
		}
	}
	return 0
}
