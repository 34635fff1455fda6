// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"fmt"

	"github.com/absmach/fluxbridge/core"
	"github.com/absmach/fluxbridge/subscription"
	"github.com/absmach/fluxbridge/topics"
)

// Build derives a complete snapshot from the attached endpoint set and
// the subscription source. For every known topic, every endpoint other
// than a subscriber is a candidate source; its destinations are the
// attached subscribers minus itself. Keys with no destinations are
// omitted, so no entry ever routes a message back to its source.
func Build(ctx context.Context, endpoints map[core.EndpointID]struct{}, src subscription.Source) (*Table, error) {
	known, err := src.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	routes := map[Key]map[core.EndpointID]struct{}{}
	for _, topic := range known {
		subs, err := src.SubscribersOf(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve subscribers of %q: %w", topic, err)
		}
		addTopicRoutes(routes, topic, subs, endpoints)
	}

	return &Table{version: 1, routes: routes}, nil
}

// WithEndpointAdded derives a snapshot extended for a newly attached
// endpoint. Only routes whose source or destination is the new endpoint
// are recomputed; unrelated keys are carried over untouched. endpoints
// must already contain added.
func (t *Table) WithEndpointAdded(ctx context.Context, added core.EndpointID, endpoints map[core.EndpointID]struct{}, src subscription.Source) (*Table, error) {
	known, err := src.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	routes := t.clone()
	for _, topic := range known {
		subs, err := src.SubscribersOf(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve subscribers of %q: %w", topic, err)
		}

		// The new endpoint as a destination of existing sources.
		if _, ok := subs[added]; ok {
			for e := range endpoints {
				if e == added {
					continue
				}
				key := Key{Source: e, Filter: topic}
				dests := make(map[core.EndpointID]struct{}, len(routes[key])+1)
				for d := range routes[key] {
					dests[d] = struct{}{}
				}
				dests[added] = struct{}{}
				routes[key] = dests
			}
		}

		// The new endpoint as a source for attached subscribers.
		dests := destinationsFor(added, subs, endpoints)
		if len(dests) > 0 {
			routes[Key{Source: added, Filter: topic}] = dests
		}
	}

	return &Table{version: t.version + 1, routes: routes}, nil
}

// WithEndpointRemoved derives a snapshot with every route mentioning id
// dropped. Keys whose destination set becomes empty disappear.
func (t *Table) WithEndpointRemoved(id core.EndpointID) *Table {
	routes := make(map[Key]map[core.EndpointID]struct{}, len(t.routes))
	for k, dests := range t.routes {
		if k.Source == id {
			continue
		}
		if _, ok := dests[id]; !ok {
			routes[k] = dests
			continue
		}
		remaining := make(map[core.EndpointID]struct{}, len(dests)-1)
		for d := range dests {
			if d != id {
				remaining[d] = struct{}{}
			}
		}
		if len(remaining) > 0 {
			routes[k] = remaining
		}
	}
	return &Table{version: t.version + 1, routes: routes}
}

// WithTopicRefreshed derives a snapshot with every filter matching topic
// recomputed from the subscription source. Unrelated keys carry over.
func (t *Table) WithTopicRefreshed(ctx context.Context, topic string, endpoints map[core.EndpointID]struct{}, src subscription.Source) (*Table, error) {
	affected := map[string]struct{}{topic: {}}
	for k := range t.routes {
		if k.Filter == topic || topics.Match(k.Filter, topic) {
			affected[k.Filter] = struct{}{}
		}
	}

	routes := t.clone()
	for filter := range affected {
		for k := range routes {
			if k.Filter == filter {
				delete(routes, k)
			}
		}

		subs, err := src.SubscribersOf(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve subscribers of %q: %w", filter, err)
		}
		addTopicRoutes(routes, filter, subs, endpoints)
	}

	return &Table{version: t.version + 1, routes: routes}, nil
}

// addTopicRoutes fills routes for one topic across all candidate source
// endpoints.
func addTopicRoutes(routes map[Key]map[core.EndpointID]struct{}, topic string, subs map[core.EndpointID]struct{}, endpoints map[core.EndpointID]struct{}) {
	for e := range endpoints {
		dests := destinationsFor(e, subs, endpoints)
		if len(dests) > 0 {
			routes[Key{Source: e, Filter: topic}] = dests
		}
	}
}

// destinationsFor returns the attached subscribers minus the source
// itself. Subscribers not currently attached are ignored.
func destinationsFor(source core.EndpointID, subs, endpoints map[core.EndpointID]struct{}) map[core.EndpointID]struct{} {
	dests := map[core.EndpointID]struct{}{}
	for s := range subs {
		if s == source {
			continue
		}
		if _, attached := endpoints[s]; !attached {
			continue
		}
		dests[s] = struct{}{}
	}
	return dests
}
