// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package core holds the data types shared by every layer of the bridge:
// endpoint identities, the message envelope, and the provenance set used
// for loop prevention.
package core

import "github.com/google/uuid"

// EndpointID identifies one attached transport instance by its network
// authority. IDs are unique within a single Streamer instance.
type EndpointID string

// Kind classifies a message envelope.
type Kind byte

const (
	// KindPublish is a topic publication with no addressed sink.
	KindPublish Kind = iota
	// KindRequest is an RPC request addressed to a specific peer.
	KindRequest
	// KindResponse is an RPC response addressed back to the requester.
	KindResponse
	// KindNotification is a directed one-way message.
	KindNotification
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPublish:
		return "publish"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Message is the envelope the bridge forwards between transports. The
// payload is opaque; the bridge never interprets it.
//
// Destination may be a topic, a direct peer address, or empty for a pure
// publish. Provenance records every endpoint the message has already
// passed through and only ever grows.
type Message struct {
	ID          string
	Source      string
	Destination string
	Kind        Kind
	Payload     []byte
	Provenance  Provenance
}

// NewMessage builds an envelope with a fresh ID and empty provenance.
func NewMessage(kind Kind, source, destination string, payload []byte) *Message {
	return &Message{
		ID:          uuid.New().String(),
		Source:      source,
		Destination: destination,
		Kind:        kind,
		Payload:     payload,
	}
}

// Forward returns the outbound copy of m for one hop through via. The
// copy shares the payload bytes but carries its own provenance set, so
// concurrent fan-out to multiple destinations never aliases.
func (m *Message) Forward(via EndpointID) *Message {
	out := *m
	out.Provenance = m.Provenance.Extend(via)
	return &out
}
