// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package routing derives and stores the bridge routing table: a
// versioned, immutable mapping from (source endpoint, topic filter) to
// the set of destination endpoints. Snapshots are replaced wholesale and
// never edited in place, so the forwarding hot path reads them through a
// single atomic pointer load with no locks.
package routing

import (
	"sort"

	"github.com/absmach/fluxbridge/core"
	"github.com/absmach/fluxbridge/topics"
)

// Key identifies one forwarding listener: messages arriving on Source
// that match Filter.
type Key struct {
	Source core.EndpointID
	Filter string
}

// Route is one derived, directed forwarding rule. Routes are never
// constructed by callers; they are the output of combining the endpoint
// set with subscription data. Source never equals Destination.
type Route struct {
	Source      core.EndpointID
	Filter      string
	Destination core.EndpointID
}

// Table is an immutable routing snapshot. All accessors are safe for
// concurrent use; mutation happens only by deriving a new snapshot.
type Table struct {
	version uint64
	routes  map[Key]map[core.EndpointID]struct{}
}

// Empty returns the zero snapshot with version 0.
func Empty() *Table {
	return &Table{routes: map[Key]map[core.EndpointID]struct{}{}}
}

// Version returns the snapshot's monotonically increasing version.
func (t *Table) Version() uint64 {
	return t.version
}

// Len returns the number of (source, filter) keys with destinations.
func (t *Table) Len() int {
	return len(t.routes)
}

// Destinations returns the destination set for (source, filter). The
// returned map is shared with the snapshot and must not be modified.
func (t *Table) Destinations(source core.EndpointID, filter string) map[core.EndpointID]struct{} {
	return t.routes[Key{Source: source, Filter: filter}]
}

// Keys returns every (source, filter) key in deterministic order.
func (t *Table) Keys() []Key {
	out := make([]Key, 0, len(t.routes))
	for k := range t.routes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Filter < out[j].Filter
	})
	return out
}

// Routes expands the table into individual route triples, for
// diagnostics and tests.
func (t *Table) Routes() []Route {
	var out []Route
	for k, dests := range t.routes {
		for d := range dests {
			out = append(out, Route{Source: k.Source, Filter: k.Filter, Destination: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Filter != b.Filter {
			return a.Filter < b.Filter
		}
		return a.Destination < b.Destination
	})
	return out
}

// FiltersMatching returns the filters present in the table that select
// messages for topic.
func (t *Table) FiltersMatching(topic string) []string {
	seen := map[string]struct{}{}
	for k := range t.routes {
		if k.Filter == topic || topics.Match(k.Filter, topic) {
			seen[k.Filter] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// clone copies the outer route map. Destination sets are shared with the
// parent snapshot; derivations replace sets they change, never edit them.
func (t *Table) clone() map[Key]map[core.EndpointID]struct{} {
	routes := make(map[Key]map[core.EndpointID]struct{}, len(t.routes))
	for k, dests := range t.routes {
		routes[k] = dests
	}
	return routes
}
