package sample

import (
	"context"
	"errors"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/worker"
)

// FlakyDescriptor describes a generator-stream process that always
// fails partway through: it emits Status 50, then returns an error,
// landing the job in FAILED with "boom" as the persisted message.
func FlakyDescriptor() *domain.Process {
	return &domain.Process{
		Identifier: "flaky",
		Metadata:   domain.Metadata{Title: "Flaky", Abstract: "Always fails after reporting partial progress."},
		Outputs: []domain.OutputDescriptor{{
			Identifier: "result",
			Metadata:   domain.Metadata{Title: "Result"},
			Kind:       domain.KindLiteral,
			Domains:    []domain.Domain{{DataType: "http://www.w3.org/2001/XMLSchema#string"}},
			Formats:    []domain.Format{{MimeType: "text/plain"}},
		}},
		Shape: domain.ShapeGeneratorStream,
	}
}

type FlakyHandler struct{}

var _ worker.GeneratorStreamHandler = FlakyHandler{}

func (FlakyHandler) Shape() domain.Shape { return domain.ShapeGeneratorStream }

func (FlakyHandler) Run(ctx context.Context, inputs []domain.InputValue, emit worker.Emitter) error {
	emit.EmitStatus(50)
	return errors.New("boom")
}
