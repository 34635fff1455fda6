// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/absmach/fluxbridge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	subs map[string]map[core.EndpointID]struct{}
	err  error
}

func (f *fakeSource) Topics(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, 0, len(f.subs))
	for t := range f.subs {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeSource) SubscribersOf(_ context.Context, topic string) (map[core.EndpointID]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subs[topic], nil
}

func (f *fakeSource) OnChange(func(topic string)) {}

func endpointSet(ids ...core.EndpointID) map[core.EndpointID]struct{} {
	set := make(map[core.EndpointID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func TestBuildProducesNoSelfRoutes(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"t1": endpointSet("a", "b", "c"),
	}}

	tbl, err := Build(context.Background(), endpointSet("a", "b", "c"), src)
	require.NoError(t, err)

	for _, r := range tbl.Routes() {
		assert.NotEqual(t, r.Source, r.Destination, "route %+v", r)
	}
	assert.Equal(t, uint64(1), tbl.Version())
}

func TestBuildOmitsEmptyDestinationSets(t *testing.T) {
	// Only "b" subscribes, so key (b, t1) would have an empty set.
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"t1": endpointSet("b"),
	}}

	tbl, err := Build(context.Background(), endpointSet("a", "b"), src)
	require.NoError(t, err)

	require.Equal(t, 1, tbl.Len())
	assert.Nil(t, tbl.Destinations("b", "t1"))
	assert.Equal(t, endpointSet("b"), tbl.Destinations("a", "t1"))
}

func TestBuildIgnoresUnattachedSubscribers(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"t1": endpointSet("b", "ghost"),
	}}

	tbl, err := Build(context.Background(), endpointSet("a", "b"), src)
	require.NoError(t, err)

	assert.Equal(t, endpointSet("b"), tbl.Destinations("a", "t1"))
}

func TestBuildFailsWhenSourceUnavailable(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	_, err := Build(context.Background(), endpointSet("a"), src)
	assert.Error(t, err)
}

func TestWithEndpointAddedExtendsOnlyAffectedRoutes(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"t1": endpointSet("b"),
		"t2": endpointSet("c"),
	}}

	endpoints := endpointSet("a", "b")
	tbl, err := Build(context.Background(), endpoints, src)
	require.NoError(t, err)
	before := tbl.Destinations("a", "t1")

	// Attach c, which subscribes to t2.
	endpoints["c"] = struct{}{}
	next, err := tbl.WithEndpointAdded(context.Background(), "c", endpoints, src)
	require.NoError(t, err)

	// Exactly one new destination set per existing source for t2.
	assert.Equal(t, endpointSet("c"), next.Destinations("a", "t2"))
	assert.Equal(t, endpointSet("c"), next.Destinations("b", "t2"))
	// c also becomes a source for t1 (b subscribes).
	assert.Equal(t, endpointSet("b"), next.Destinations("c", "t1"))
	// Unrelated entry untouched and shared.
	assert.Equal(t, before, next.Destinations("a", "t1"))

	assert.Equal(t, tbl.Version()+1, next.Version())
	// Old snapshot still valid for readers in flight.
	assert.Nil(t, tbl.Destinations("a", "t2"))
}

func TestWithEndpointRemovedDropsAllMentions(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"t1": endpointSet("b", "c"),
	}}

	tbl, err := Build(context.Background(), endpointSet("a", "b", "c"), src)
	require.NoError(t, err)

	next := tbl.WithEndpointRemoved("c")

	assert.Equal(t, endpointSet("b"), next.Destinations("a", "t1"))
	assert.Nil(t, next.Destinations("c", "t1"))
	for _, r := range next.Routes() {
		assert.NotEqual(t, core.EndpointID("c"), r.Source)
		assert.NotEqual(t, core.EndpointID("c"), r.Destination)
	}
	// Key (b, t1) loses its only remaining destination c and disappears.
	assert.Nil(t, next.Destinations("b", "t1"))
}

func TestWithTopicRefreshedRecomputesMatchingFilters(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"t1": endpointSet("b"),
		"t2": endpointSet("b"),
	}}
	endpoints := endpointSet("a", "b")

	tbl, err := Build(context.Background(), endpoints, src)
	require.NoError(t, err)

	// b unsubscribes from t1.
	src.subs["t1"] = endpointSet()
	next, err := tbl.WithTopicRefreshed(context.Background(), "t1", endpoints, src)
	require.NoError(t, err)

	assert.Nil(t, next.Destinations("a", "t1"))
	assert.Equal(t, endpointSet("b"), next.Destinations("a", "t2"))
}

func TestWithTopicRefreshedAddsNewTopic(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{}}
	endpoints := endpointSet("a", "b")

	tbl, err := Build(context.Background(), endpoints, src)
	require.NoError(t, err)
	require.Equal(t, 0, tbl.Len())

	src.subs["t1"] = endpointSet("b")
	next, err := tbl.WithTopicRefreshed(context.Background(), "t1", endpoints, src)
	require.NoError(t, err)

	assert.Equal(t, endpointSet("b"), next.Destinations("a", "t1"))
}

func TestWithTopicRefreshedFailureLeavesCallerTable(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"t1": endpointSet("b"),
	}}
	endpoints := endpointSet("a", "b")

	tbl, err := Build(context.Background(), endpoints, src)
	require.NoError(t, err)

	src.err = errors.New("down")
	_, err = tbl.WithTopicRefreshed(context.Background(), "t1", endpoints, src)
	require.Error(t, err)

	// Caller keeps using tbl; its contents are unchanged.
	assert.Equal(t, endpointSet("b"), tbl.Destinations("a", "t1"))
}

func TestFiltersMatching(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"vehicle/speed": endpointSet("b"),
		"vehicle/#":     endpointSet("c"),
		"cabin/temp":    endpointSet("b"),
	}}

	tbl, err := Build(context.Background(), endpointSet("a", "b", "c"), src)
	require.NoError(t, err)

	assert.Equal(t, []string{"vehicle/#", "vehicle/speed"}, tbl.FiltersMatching("vehicle/speed"))
}

func TestVersionIsMonotonic(t *testing.T) {
	src := &fakeSource{subs: map[string]map[core.EndpointID]struct{}{
		"t1": endpointSet("b"),
	}}
	endpoints := endpointSet("a", "b")

	tbl, err := Build(context.Background(), endpoints, src)
	require.NoError(t, err)

	v1 := tbl.Version()
	t2 := tbl.WithEndpointRemoved("b")
	t3, err := t2.WithTopicRefreshed(context.Background(), "t1", endpoints, src)
	require.NoError(t, err)

	assert.Greater(t, t2.Version(), v1)
	assert.Greater(t, t3.Version(), t2.Version())
}
