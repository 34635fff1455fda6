// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package streamer

import (
	"log/slog"
	"time"

	"github.com/absmach/fluxbridge/ratelimit"
	"github.com/absmach/fluxbridge/server/otel"
)

// Option configures a Streamer.
type Option func(*Streamer)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Streamer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics attaches OpenTelemetry instruments.
func WithMetrics(m *otel.Metrics) Option {
	return func(s *Streamer) {
		s.metrics = m
	}
}

// WithWorkers sets the fan-out worker pool size. Zero or negative uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Streamer) {
		s.workers = n
	}
}

// WithSendTimeout bounds each per-destination send.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Streamer) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithShutdownGrace bounds the wait for in-flight forwards on shutdown.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Streamer) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithRateLimiter enables per-source ingress rate limiting.
func WithRateLimiter(l *ratelimit.EndpointLimiter) Option {
	return func(s *Streamer) {
		s.limiter = l
	}
}

// WithBreaker configures the per-destination circuit breakers: the
// breaker opens after threshold consecutive send failures and probes
// again after reset.
func WithBreaker(threshold uint32, reset time.Duration) Option {
	return func(s *Streamer) {
		if threshold > 0 {
			s.breakerThreshold = threshold
		}
		if reset > 0 {
			s.breakerReset = reset
		}
	}
}
