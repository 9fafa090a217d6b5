package worker

import (
	"sync/atomic"

	"github.com/opengeo/wpys-go/internal/domain"
)

// channelEmitter funnels a running handler's emissions onto a channel
// the main loop drains, and lets the handler observe a cancel request
// set by the main loop.
type channelEmitter struct {
	out       chan domain.Emission
	cancelled atomic.Bool
}

func newChannelEmitter(buffer int) *channelEmitter {
	return &channelEmitter{out: make(chan domain.Emission, buffer)}
}

func (e *channelEmitter) EmitStatus(percent int, opts ...StatusOption) {
	em := domain.NewStatus(percent, 0, 0, false, false)
	for _, opt := range opts {
		opt(&em)
	}
	e.out <- em
}

func (e *channelEmitter) EmitResult(outputIdentifier string, value []byte, mimeType string) {
	e.out <- domain.NewResult(outputIdentifier, value, mimeType)
}

func (e *channelEmitter) Cancelled() bool { return e.cancelled.Load() }

func (e *channelEmitter) requestCancel() { e.cancelled.Store(true) }

func (e *channelEmitter) close() { close(e.out) }
