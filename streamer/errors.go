// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package streamer

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a running streamer.
	ErrAlreadyStarted = errors.New("streamer: already started")
	// ErrNotRunning is returned by mutators outside the created and
	// running states.
	ErrNotRunning = errors.New("streamer: not running")
	// ErrStopped is returned when restarting a stopped streamer; the
	// lifecycle is one-way.
	ErrStopped = errors.New("streamer: stopped")
	// ErrDuplicateEndpoint is returned when attaching an endpoint whose
	// authority is already attached.
	ErrDuplicateEndpoint = errors.New("streamer: endpoint already attached")
	// ErrUnknownEndpoint is returned when detaching an endpoint that was
	// never attached.
	ErrUnknownEndpoint = errors.New("streamer: unknown endpoint")
	// ErrGraceExpired reports that shutdown completed with forwards still
	// in flight.
	ErrGraceExpired = errors.New("streamer: shutdown grace expired with forwards in flight")
)
