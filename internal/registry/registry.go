// Package registry is the process-identifier -> descriptor lookup
// table. It is populated once at startup and never mutated afterward;
// workers only ever read from it.
package registry

import (
	"sync"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
)

// Handler is the executable body bound to a Process. Run is invoked by
// the worker according to the Process's Shape; see internal/worker for
// the four calling conventions (sync-function/generator-stream/
// async-coroutine/async-stream) a Handler may implement.
type Handler interface {
	// Shape reports which of the four worker calling conventions this
	// handler expects to be driven under. It must match the bound
	// Process.Shape.
	Shape() domain.Shape
}

// entry pairs an immutable descriptor with its bound handler.
type entry struct {
	process *domain.Process
	handler Handler
}

// Registry is a concurrency-safe identifier -> (Process, Handler) map.
//
// Invariants:
//   - at most one entry may be registered per identifier
//   - registration happens at startup; lookups may happen concurrently
//     from many worker goroutines thereafter
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds a process descriptor to its handler. Re-registering
// an identifier that already exists is a programming error.
func (r *Registry) Register(p *domain.Process, h Handler) error {
	if p == nil {
		return errs.New(errs.KindConfig, "nil process descriptor")
	}
	if p.Identifier == "" {
		return errs.New(errs.KindConfig, "process identifier is empty")
	}
	if h == nil {
		return errs.New(errs.KindConfig, "nil handler for process "+p.Identifier)
	}
	if h.Shape() != p.Shape {
		return errs.New(errs.KindConfig, "handler shape does not match process shape for "+p.Identifier)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[p.Identifier]; exists {
		return errs.New(errs.KindConfig, "duplicate process identifier: "+p.Identifier)
	}
	r.entries[p.Identifier] = entry{process: p, handler: h}
	r.order = append(r.order, p.Identifier)
	return nil
}

// Get retrieves the descriptor and handler bound to identifier.
func (r *Registry) Get(identifier string) (*domain.Process, Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[identifier]
	if !ok {
		return nil, nil, errs.New(errs.KindNotFound, "no such process: "+identifier)
	}
	return e.process, e.handler, nil
}

// List returns every registered process in stable insertion order.
func (r *Registry) List() []*domain.Process {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Process, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].process)
	}
	return out
}
