// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package streamer implements the forwarding engine that bridges traffic
// between attached transport endpoints. It owns the routing table
// snapshot, one forwarding listener per (source, filter) route key, a
// bounded fan-out pool for per-destination sends, and the one-way
// Created, Running, ShuttingDown, Stopped lifecycle.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/fluxbridge/core"
	"github.com/absmach/fluxbridge/ratelimit"
	"github.com/absmach/fluxbridge/routing"
	"github.com/absmach/fluxbridge/server/otel"
	"github.com/absmach/fluxbridge/subscription"
	"github.com/absmach/fluxbridge/transport"
	"github.com/sony/gobreaker"
)

// State is the streamer lifecycle state. Transitions are one-way:
// Created -> Running -> ShuttingDown -> Stopped.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const defaultSendTimeout = 5 * time.Second

// Streamer bridges messages between attached transport endpoints
// according to the routing table derived from the subscription source.
//
// The receive path reads the table and endpoint set through atomic
// pointer loads and never takes a lock. Mutators and lifecycle
// transitions are linearized under a single mutex.
type Streamer struct {
	source subscription.Source

	state atomic.Int32
	table atomic.Pointer[routing.Table]
	eps   atomic.Pointer[map[core.EndpointID]transport.Transport]

	mu            sync.Mutex
	registrations map[routing.Key]transport.Handle

	pool     *fanOutPool
	inflight sync.WaitGroup

	breakerMu sync.Mutex
	breakers  map[core.EndpointID]*gobreaker.CircuitBreaker

	logger  *slog.Logger
	metrics *otel.Metrics
	stats   *Stats
	limiter *ratelimit.EndpointLimiter

	workers          int
	sendTimeout      time.Duration
	grace            time.Duration
	breakerThreshold uint32
	breakerReset     time.Duration
}

// New creates a streamer in the Created state. Endpoints are attached
// with AddEndpoint; forwarding begins after Start.
func New(source subscription.Source, opts ...Option) *Streamer {
	s := &Streamer{
		source:           source,
		registrations:    make(map[routing.Key]transport.Handle),
		breakers:         make(map[core.EndpointID]*gobreaker.CircuitBreaker),
		logger:           slog.Default(),
		stats:            NewStats(),
		sendTimeout:      defaultSendTimeout,
		grace:            10 * time.Second,
		breakerThreshold: 5,
		breakerReset:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.table.Store(routing.Empty())
	empty := make(map[core.EndpointID]transport.Transport)
	s.eps.Store(&empty)

	source.OnChange(s.onSubscriptionChange)

	return s
}

// State returns the current lifecycle state.
func (s *Streamer) State() State {
	return State(s.state.Load())
}

// Table returns the current routing snapshot.
func (s *Streamer) Table() *routing.Table {
	return s.table.Load()
}

// TableVersion returns the current routing snapshot version.
func (s *Streamer) TableVersion() uint64 {
	return s.table.Load().Version()
}

// EndpointCount returns the number of attached endpoints.
func (s *Streamer) EndpointCount() int {
	return len(*s.eps.Load())
}

// ListenerCount returns the number of live forwarding listener
// registrations.
func (s *Streamer) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registrations)
}

// Stats returns the streamer's forwarding counters.
func (s *Streamer) Stats() *Stats {
	return s.stats
}

// AddEndpoint attaches t to the bridge. In the Created state the
// endpoint is recorded for Start to wire up. In the Running state the
// routing table is extended and listeners are registered immediately;
// a registration failure rolls the attachment back completely.
func (s *Streamer) AddEndpoint(ctx context.Context, t transport.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateCreated, StateRunning:
	default:
		return ErrNotRunning
	}

	id := core.EndpointID(t.Authority())
	current := *s.eps.Load()
	if _, dup := current[id]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, id)
	}

	next := cloneEndpoints(current)
	next[id] = t

	if s.State() == StateCreated {
		s.eps.Store(&next)
		s.logger.Info("Endpoint attached", "authority", id)
		if s.metrics != nil {
			s.metrics.RecordEndpointAdded()
		}
		return nil
	}

	tbl, err := s.table.Load().WithEndpointAdded(ctx, id, idSet(next), s.source)
	if err != nil {
		return fmt.Errorf("failed to extend routing table for %s: %w", id, err)
	}

	s.eps.Store(&next)
	if err := s.reconcileListeners(ctx, tbl); err != nil {
		s.eps.Store(&current)
		return fmt.Errorf("failed to register listeners for %s: %w", id, err)
	}

	s.swapTable(tbl)
	s.logger.Info("Endpoint attached", "authority", id, "table_version", tbl.Version())
	if s.metrics != nil {
		s.metrics.RecordEndpointAdded()
	}
	return nil
}

// RemoveEndpoint detaches the endpoint with the given authority. Routes
// mentioning it as source or destination are dropped and its listeners
// unregistered. Unregistration failures are logged and do not abort the
// removal.
func (s *Streamer) RemoveEndpoint(ctx context.Context, id core.EndpointID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateCreated, StateRunning:
	default:
		return ErrNotRunning
	}

	current := *s.eps.Load()
	if _, ok := current[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, id)
	}

	if s.State() == StateRunning {
		tbl := s.table.Load().WithEndpointRemoved(id)
		if err := s.reconcileListeners(ctx, tbl); err != nil {
			// Registration cannot fail here; only unregistrations run,
			// and those never abort.
			s.logger.Warn("Listener reconciliation reported error on removal", "authority", id, "error", err)
		}
		s.swapTable(tbl)
	}

	next := cloneEndpoints(current)
	delete(next, id)
	s.eps.Store(&next)

	s.breakerMu.Lock()
	delete(s.breakers, id)
	s.breakerMu.Unlock()

	s.logger.Info("Endpoint detached", "authority", id)
	if s.metrics != nil {
		s.metrics.RecordEndpointRemoved()
	}
	return nil
}

// Start builds the initial routing table from the attached endpoints
// and the subscription source, registers the forwarding listeners, and
// moves to Running. On any failure every registration made so far is
// rolled back and the streamer stays in Created.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateCreated:
	case StateRunning:
		return ErrAlreadyStarted
	default:
		return ErrStopped
	}

	eps := *s.eps.Load()
	tbl, err := routing.Build(ctx, idSet(eps), s.source)
	if err != nil {
		return fmt.Errorf("failed to build routing table: %w", err)
	}

	if err := s.reconcileListeners(ctx, tbl); err != nil {
		return fmt.Errorf("failed to register listeners: %w", err)
	}

	s.pool = newFanOutPool(s.workers)
	s.swapTable(tbl)
	s.state.Store(int32(StateRunning))

	s.logger.Info("Streamer started",
		"endpoints", len(eps),
		"listeners", len(s.registrations),
		"table_version", tbl.Version())
	return nil
}

// Shutdown moves the streamer to ShuttingDown, unregisters every
// listener, waits up to the shutdown grace for in-flight forwards, and
// ends in Stopped. Errors along the way are collected but never stop
// the transition; a stopped streamer is the guaranteed outcome.
func (s *Streamer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateStopped:
		return nil
	case StateCreated:
		s.state.Store(int32(StateStopped))
		return nil
	case StateShuttingDown:
		return nil
	}

	s.state.Store(int32(StateShuttingDown))
	s.logger.Info("Streamer shutting down")

	var errs []error
	eps := *s.eps.Load()
	for key, h := range s.registrations {
		ep, ok := eps[key.Source]
		if !ok {
			continue
		}
		if err := ep.UnregisterListener(ctx, h); err != nil {
			s.logger.Warn("Failed to unregister listener",
				"authority", key.Source, "filter", key.Filter, "error", err)
			errs = append(errs, err)
		}
		if s.metrics != nil {
			s.metrics.RecordListenerRemoved()
		}
	}
	s.registrations = make(map[routing.Key]transport.Handle)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	graceful := true
	select {
	case <-done:
	case <-time.After(s.grace):
		graceful = false
	case <-ctx.Done():
		graceful = false
	}

	if graceful {
		s.pool.Close()
	} else {
		s.logger.Warn("Shutdown grace expired with forwards in flight")
		errs = append(errs, ErrGraceExpired)
		// Abandon stragglers; the pool closes once they drain.
		go s.pool.Close()
	}

	s.swapTable(routing.Empty())
	s.state.Store(int32(StateStopped))
	s.logger.Info("Streamer stopped",
		"forwarded", s.stats.GetMessagesForwarded(),
		"failures", s.stats.GetSendFailures())

	return errors.Join(errs...)
}

// reconcileListeners aligns live registrations with the keys of next.
// Missing listeners are registered first; if any registration fails,
// the ones just made are rolled back and the error returned with the
// caller's table untouched. Listeners for keys absent from next are
// then unregistered best-effort.
func (s *Streamer) reconcileListeners(ctx context.Context, next *routing.Table) error {
	eps := *s.eps.Load()

	var added []routing.Key
	for _, key := range next.Keys() {
		if _, ok := s.registrations[key]; ok {
			continue
		}
		ep, ok := eps[key.Source]
		if !ok {
			continue
		}
		h, err := ep.RegisterListener(ctx, key.Filter, &forwardingListener{
			streamer: s,
			source:   key.Source,
			filter:   key.Filter,
		})
		if err != nil {
			s.rollbackRegistrations(ctx, added)
			return fmt.Errorf("register %s on %s: %w", key.Filter, key.Source, err)
		}
		s.registrations[key] = h
		added = append(added, key)
		if s.metrics != nil {
			s.metrics.RecordListenerAdded()
		}
	}

	for key, h := range s.registrations {
		if next.Destinations(key.Source, key.Filter) != nil {
			continue
		}
		if ep, ok := eps[key.Source]; ok {
			if err := ep.UnregisterListener(ctx, h); err != nil {
				s.logger.Warn("Failed to unregister stale listener",
					"authority", key.Source, "filter", key.Filter, "error", err)
			}
		}
		delete(s.registrations, key)
		if s.metrics != nil {
			s.metrics.RecordListenerRemoved()
		}
	}

	return nil
}

func (s *Streamer) rollbackRegistrations(ctx context.Context, keys []routing.Key) {
	eps := *s.eps.Load()
	for _, key := range keys {
		h := s.registrations[key]
		if ep, ok := eps[key.Source]; ok {
			if err := ep.UnregisterListener(ctx, h); err != nil {
				s.logger.Warn("Rollback unregister failed",
					"authority", key.Source, "filter", key.Filter, "error", err)
			}
		}
		delete(s.registrations, key)
		if s.metrics != nil {
			s.metrics.RecordListenerRemoved()
		}
	}
}

// onSubscriptionChange refreshes the routes affected by topic. A failed
// lookup keeps the last-known-good table; the change is picked up on
// the next successful notification.
func (s *Streamer) onSubscriptionChange(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateRunning {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	eps := *s.eps.Load()
	tbl, err := s.table.Load().WithTopicRefreshed(ctx, topic, idSet(eps), s.source)
	if err != nil {
		s.logger.Warn("Subscription refresh failed, keeping last known routes",
			"topic", topic, "error", err)
		return
	}

	if err := s.reconcileListeners(ctx, tbl); err != nil {
		s.logger.Warn("Listener reconciliation failed, keeping last known routes",
			"topic", topic, "error", err)
		return
	}

	s.swapTable(tbl)
	s.logger.Debug("Routes refreshed", "topic", topic, "table_version", tbl.Version())
}

// swapTable publishes a new routing snapshot. Callers hold s.mu.
func (s *Streamer) swapTable(tbl *routing.Table) {
	s.table.Store(tbl)
	s.stats.IncrementTableSwaps()
	if s.metrics != nil {
		s.metrics.RecordRouteRebuild()
	}
}

func (s *Streamer) breakerFor(id core.EndpointID) *gobreaker.CircuitBreaker {
	s.breakerMu.Lock()
	defer s.breakerMu.Unlock()

	cb, ok := s.breakers[id]
	if !ok {
		threshold := s.breakerThreshold
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(id),
			MaxRequests: 1,
			Timeout:     s.breakerReset,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				s.logger.Warn("Destination circuit breaker state changed",
					"authority", name, "from", from.String(), "to", to.String())
			},
		})
		s.breakers[id] = cb
	}
	return cb
}

func cloneEndpoints(in map[core.EndpointID]transport.Transport) map[core.EndpointID]transport.Transport {
	out := make(map[core.EndpointID]transport.Transport, len(in)+1)
	for id, t := range in {
		out[id] = t
	}
	return out
}

func idSet(eps map[core.EndpointID]transport.Transport) map[core.EndpointID]struct{} {
	out := make(map[core.EndpointID]struct{}, len(eps))
	for id := range eps {
		out[id] = struct{}{}
	}
	return out
}
