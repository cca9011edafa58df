package main

import (
	"context"
	"errors"

	"go.uber.org/atomic"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

const defaultBusBufferSize = 100

// Outcome is the terminal result of a request, emitted once per request.
type Outcome struct {
	Request Request
	Result  Result
}

// EventBus carries inbound requests to the processor and terminal outcomes
// to the wallet listener.
type EventBus struct {
	inbound  chan Request
	outbound chan Outcome
	done     chan struct{}
	closed   *atomic.Bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		inbound:  make(chan Request, defaultBusBufferSize),
		outbound: make(chan Outcome, defaultBusBufferSize),
		done:     make(chan struct{}),
		closed:   atomic.NewBool(false),
	}
}

func (b *EventBus) PublishRequest(ctx context.Context, req Request) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.inbound <- req:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) ConsumeRequest(ctx context.Context) (Request, bool) {
	select {
	case req, ok := <-b.inbound:
		return req, ok
	case <-b.done:
		return Request{}, false
	case <-ctx.Done():
		return Request{}, false
	}
}

func (b *EventBus) PublishOutcome(ctx context.Context, o Outcome) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	select {
	case b.outbound <- o:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) ConsumeOutcome(ctx context.Context) (Outcome, bool) {
	select {
	case o, ok := <-b.outbound:
		return o, ok
	case <-b.done:
		return Outcome{}, false
	case <-ctx.Done():
		return Outcome{}, false
	}
}

func (b *EventBus) Close() {
	if b.closed.CAS(false, true) {
		close(b.done)
	}
}
