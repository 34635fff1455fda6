// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package inproc provides an in-process transport endpoint. It simulates
// one attached network: Inject feeds inbound messages to registered
// listeners, and messages sent through the endpoint are captured on an
// outbound channel. It backs single-process wiring, examples and tests.
package inproc

import (
	"context"
	"sync"

	"github.com/absmach/fluxbridge/core"
	"github.com/absmach/fluxbridge/topics"
	"github.com/absmach/fluxbridge/transport"
)

const defaultOutboundBuffer = 64

type registration struct {
	handle   transport.Handle
	listener transport.Listener
}

// Endpoint is a channel-backed transport endpoint.
type Endpoint struct {
	authority string

	mu        sync.RWMutex
	closed    bool
	nextToken uint64
	listeners map[string]registration // keyed by filter

	outbound chan *core.Message
}

var _ transport.Transport = (*Endpoint)(nil)

// New creates an in-process endpoint with the given authority.
func New(authority string) *Endpoint {
	return &Endpoint{
		authority: authority,
		listeners: make(map[string]registration),
		outbound:  make(chan *core.Message, defaultOutboundBuffer),
	}
}

// Authority returns the endpoint's network identity.
func (e *Endpoint) Authority() string {
	return e.authority
}

// RegisterListener registers l for filter. Registering an already
// registered filter returns the existing handle without duplicating
// delivery.
func (e *Endpoint) RegisterListener(_ context.Context, filter string, l transport.Listener) (transport.Handle, error) {
	if err := topics.ValidateFilter(filter); err != nil {
		return transport.Handle{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return transport.Handle{}, transport.ErrClosed
	}
	if reg, ok := e.listeners[filter]; ok {
		return reg.handle, nil
	}

	e.nextToken++
	reg := registration{
		handle:   transport.Handle{Filter: filter, Token: e.nextToken},
		listener: l,
	}
	e.listeners[filter] = reg
	return reg.handle, nil
}

// UnregisterListener releases the registration identified by h.
func (e *Endpoint) UnregisterListener(_ context.Context, h transport.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	reg, ok := e.listeners[h.Filter]
	if !ok || reg.handle.Token != h.Token {
		return transport.ErrUnknownHandle
	}
	delete(e.listeners, h.Filter)
	return nil
}

// Send places msg on the outbound channel, blocking until there is room,
// the context is done, or the endpoint is closed.
func (e *Endpoint) Send(ctx context.Context, msg *core.Message) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return transport.ErrClosed
	}

	select {
	case e.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inject delivers msg to every registered listener whose filter matches
// the message destination, simulating an inbound delivery from the
// network. Delivery is synchronous in registration order.
func (e *Endpoint) Inject(msg *core.Message) {
	e.mu.RLock()
	var matched []transport.Listener
	for filter, reg := range e.listeners {
		if topics.Match(filter, msg.Destination) {
			matched = append(matched, reg.listener)
		}
	}
	e.mu.RUnlock()

	for _, l := range matched {
		l.OnMessage(msg)
	}
}

// Outbound exposes the messages sent through this endpoint.
func (e *Endpoint) Outbound() <-chan *core.Message {
	return e.outbound
}

// ListenerCount returns the number of live registrations.
func (e *Endpoint) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

// Close marks the endpoint closed. Pending Outbound reads stay valid.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
