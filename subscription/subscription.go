// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package subscription defines the subscription source consumed by the
// bridge: the authority that answers "who subscribes to topic T" and
// notifies when the answer changes.
package subscription

import (
	"context"
	"errors"

	"github.com/absmach/fluxbridge/core"
)

// ErrUnavailable is returned when the source cannot answer a lookup.
var ErrUnavailable = errors.New("subscription: source unavailable")

// Source answers subscriber lookups and notifies on change. Lookup
// failures are non-fatal to the bridge; it retains the last-known-good
// routing state and retries.
type Source interface {
	// Topics lists every topic filter the source currently knows.
	Topics(ctx context.Context) ([]string, error)

	// SubscribersOf returns the endpoint identities subscribed to topic.
	SubscribersOf(ctx context.Context, topic string) (map[core.EndpointID]struct{}, error)

	// OnChange registers a callback invoked with the affected topic
	// whenever subscription data changes. Multiple callbacks may be
	// registered; invocation order is unspecified.
	OnChange(fn func(topic string))
}
