// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the capability contract every attached
// network must satisfy for the bridge to forward through it. The bridge
// never assumes anything about wire encoding; payloads are opaque.
package transport

import (
	"context"
	"errors"

	"github.com/absmach/fluxbridge/core"
)

var (
	// ErrRegistrationRefused is returned when a transport rejects a
	// listener registration.
	ErrRegistrationRefused = errors.New("transport: listener registration refused")
	// ErrUnknownHandle is returned when unregistering a handle the
	// transport did not issue or has already released.
	ErrUnknownHandle = errors.New("transport: unknown listener handle")
	// ErrSendTimeout is returned when a send did not complete within its
	// deadline.
	ErrSendTimeout = errors.New("transport: send timed out")
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: closed")
)

// Listener receives inbound messages for a registered topic filter.
// OnMessage may be invoked concurrently from the transport's receive path.
type Listener interface {
	OnMessage(msg *core.Message)
}

// Handle identifies one live listener registration with a Transport.
type Handle struct {
	Filter string
	Token  uint64
}

// Transport is one attached network with send and receive capability.
//
// RegisterListener is idempotent per filter: registering the same filter
// twice returns the handle of the existing registration rather than
// duplicating delivery. Send and the registration calls are the only
// operations that may block; they honor ctx cancellation.
type Transport interface {
	// Authority returns the network identity of this endpoint. Authorities
	// are unique within a Streamer instance.
	Authority() string

	RegisterListener(ctx context.Context, filter string, l Listener) (Handle, error)
	UnregisterListener(ctx context.Context, h Handle) error

	Send(ctx context.Context, msg *core.Message) error
}
