// Package bus carries inbound events from transports to the dispatcher.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

type EventBus struct {
	inbound chan InboundEvent
	done    chan struct{}
	closed  atomic.Bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		inbound: make(chan InboundEvent, 100),
		done:    make(chan struct{}),
	}
}

func (eb *EventBus) Publish(ctx context.Context, ev InboundEvent) error {
	if eb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case eb.inbound <- ev:
		return nil
	case <-eb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (eb *EventBus) Consume(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev, ok := <-eb.inbound:
		return ev, ok
	case <-eb.done:
		return InboundEvent{}, false
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

func (eb *EventBus) Close() {
	if eb.closed.CompareAndSwap(false, true) {
		close(eb.done)
	}
}
