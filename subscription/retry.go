// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fluxbridge/core"
	"github.com/cenkalti/backoff/v5"
)

// RetryConfig bounds the retry policy of a retrying source.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxTries        uint
}

// DefaultRetryConfig returns the retry policy used when none is given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
		MaxTries:        5,
	}
}

// Retrying wraps a Source with exponential-backoff retries and a
// last-known-good cache. Transient lookup failures return the cached
// answer instead of dropping routes; a lookup only fails if it has never
// succeeded.
type Retrying struct {
	source Source
	cfg    RetryConfig
	logger *slog.Logger

	mu         sync.RWMutex
	lastTopics []string
	lastSubs   map[string]map[core.EndpointID]struct{}
}

var _ Source = (*Retrying)(nil)

// WithRetry wraps source. A nil logger falls back to slog.Default.
func WithRetry(source Source, cfg RetryConfig, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialInterval <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &Retrying{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		lastSubs: make(map[string]map[core.EndpointID]struct{}),
	}
}

func (r *Retrying) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	return b
}

// Topics lists known topics, retrying on failure and falling back to the
// last successful answer.
func (r *Retrying) Topics(ctx context.Context) ([]string, error) {
	topics, err := backoff.Retry(ctx, func() ([]string, error) {
		return r.source.Topics(ctx)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.cfg.MaxTries),
		backoff.WithMaxElapsedTime(r.cfg.MaxElapsedTime),
	)
	if err == nil {
		r.mu.Lock()
		r.lastTopics = append([]string(nil), topics...)
		r.mu.Unlock()
		return topics, nil
	}

	r.mu.RLock()
	cached := r.lastTopics
	r.mu.RUnlock()
	if cached != nil {
		r.logger.Warn("topic listing failed, using last-known-good", "error", err)
		return append([]string(nil), cached...), nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// SubscribersOf looks up subscribers for topic, retrying on failure and
// falling back to the last successful answer for that topic.
func (r *Retrying) SubscribersOf(ctx context.Context, topic string) (map[core.EndpointID]struct{}, error) {
	subs, err := backoff.Retry(ctx, func() (map[core.EndpointID]struct{}, error) {
		return r.source.SubscribersOf(ctx, topic)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.cfg.MaxTries),
		backoff.WithMaxElapsedTime(r.cfg.MaxElapsedTime),
	)
	if err == nil {
		r.mu.Lock()
		r.lastSubs[topic] = subs
		r.mu.Unlock()
		return subs, nil
	}

	r.mu.RLock()
	cached, ok := r.lastSubs[topic]
	r.mu.RUnlock()
	if ok {
		r.logger.Warn("subscriber lookup failed, using last-known-good", "topic", topic, "error", err)
		out := make(map[core.EndpointID]struct{}, len(cached))
		for id := range cached {
			out[id] = struct{}{}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// OnChange forwards change registration to the wrapped source.
func (r *Retrying) OnChange(fn func(topic string)) {
	r.source.OnChange(fn)
}
