// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package streamer

import (
	"context"
	"time"

	"github.com/absmach/fluxbridge/core"
	"github.com/absmach/fluxbridge/transport"
)

// forwardingListener receives inbound messages for one (source, filter)
// route key and fans them out to the key's destinations. It runs on the
// transport's receive path, so it does the minimum inline work: a state
// check, a snapshot lookup, and one pool submission per destination.
type forwardingListener struct {
	streamer *Streamer
	source   core.EndpointID
	filter   string
}

var _ transport.Listener = (*forwardingListener)(nil)

// OnMessage forwards msg to every destination of this listener's route
// key. Destinations already present in the message's provenance are
// skipped. Each destination send is independent; one failing never
// affects the others.
func (l *forwardingListener) OnMessage(msg *core.Message) {
	s := l.streamer

	if s.State() != StateRunning {
		s.stats.IncrementStateDrops()
		return
	}

	if s.limiter != nil && !s.limiter.Allow(string(l.source)) {
		s.stats.IncrementRateLimitDrops()
		if s.metrics != nil {
			s.metrics.RecordRateLimitDrop(string(l.source))
		}
		return
	}

	s.stats.IncrementMessagesReceived()
	if s.metrics != nil {
		s.metrics.RecordMessageReceived(string(l.source))
	}

	dests := s.table.Load().Destinations(l.source, l.filter)
	if len(dests) == 0 {
		// The snapshot moved on since registration; dropping silently is
		// the contract for a route miss.
		s.stats.IncrementRouteMisses()
		if s.metrics != nil {
			s.metrics.RecordRouteMiss()
		}
		return
	}

	eps := *s.eps.Load()
	for dest := range dests {
		if dest == l.source || msg.Provenance.Contains(dest) {
			s.stats.IncrementLoopDrops()
			if s.metrics != nil {
				s.metrics.RecordLoopDrop()
			}
			continue
		}
		ep, ok := eps[dest]
		if !ok {
			continue
		}

		// Each destination gets its own envelope copy; provenance never
		// aliases across concurrent sends.
		out := msg.Forward(l.source)

		s.inflight.Add(1)
		if !s.pool.Submit(func() {
			defer s.inflight.Done()
			s.deliver(dest, ep, out)
		}) {
			s.inflight.Done()
			return
		}
	}
}

// deliver sends msg to one destination behind its circuit breaker,
// bounded by the configured send timeout.
func (s *Streamer) deliver(dest core.EndpointID, ep transport.Transport, msg *core.Message) {
	start := time.Now()

	cb := s.breakerFor(dest)
	_, err := cb.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		defer cancel()
		return nil, ep.Send(ctx, msg)
	})

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordForwardDuration(float64(elapsed.Microseconds()) / 1000.0)
	}

	if err != nil {
		s.stats.IncrementSendFailures()
		if s.metrics != nil {
			s.metrics.RecordSendFailure(string(dest))
		}
		s.logger.Warn("Forward failed",
			"destination", dest,
			"message_id", msg.ID,
			"kind", msg.Kind.String(),
			"error", err)
		return
	}

	s.stats.IncrementMessagesForwarded()
	if s.metrics != nil {
		s.metrics.RecordMessageForwarded(string(dest))
	}
}
