package sample

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/parsing"
	"github.com/opengeo/wpys-go/internal/worker"
)

func numberInput(identifier, title string) domain.InputDescriptor {
	return domain.InputDescriptor{
		Identifier:  identifier,
		Metadata:    domain.Metadata{Title: title},
		Kind:        domain.KindLiteral,
		ValueParser: parsing.ParseFloat,
		Domains: []domain.Domain{
			{DataType: "http://www.w3.org/2001/XMLSchema#double"},
		},
		Formats: []domain.Format{{MimeType: "text/plain"}},
	}
}

// AddDescriptor describes a plain sync-function process: sum two
// literal numbers and return the total.
func AddDescriptor() *domain.Process {
	return &domain.Process{
		Identifier: "add",
		Metadata:   domain.Metadata{Title: "Add", Abstract: "Adds two numbers and returns their sum."},
		Inputs:     []domain.InputDescriptor{numberInput("a", "First addend"), numberInput("b", "Second addend")},
		Outputs: []domain.OutputDescriptor{{
			Identifier: "sum",
			Metadata:   domain.Metadata{Title: "Sum"},
			Kind:       domain.KindLiteral,
			Domains:    []domain.Domain{{DataType: "http://www.w3.org/2001/XMLSchema#double"}},
			Formats:    []domain.Format{{MimeType: "text/plain"}},
		}},
		Shape: domain.ShapeSyncFunction,
	}
}

// AddHandler runs to completion in the worker's sync-function pool; a
// dismiss only marks the job DISMISSED, it cannot interrupt this call.
type AddHandler struct{}

var _ worker.SyncFunctionHandler = AddHandler{}

func (AddHandler) Shape() domain.Shape { return domain.ShapeSyncFunction }

func (AddHandler) Run(ctx context.Context, inputs []domain.InputValue) ([]byte, string, error) {
	a, ok := numberFrom(inputs, "a")
	if !ok {
		return nil, "", fmt.Errorf("missing or non-numeric input 'a'")
	}
	b, ok := numberFrom(inputs, "b")
	if !ok {
		return nil, "", fmt.Errorf("missing or non-numeric input 'b'")
	}
	return []byte(strconv.FormatFloat(a+b, 'f', -1, 64)), "text/plain", nil
}

func numberFrom(inputs []domain.InputValue, identifier string) (float64, bool) {
	for _, in := range inputs {
		if in.Identifier != identifier {
			continue
		}
		return asFloat(in.Value)
	}
	return 0, false
}
