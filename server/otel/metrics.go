// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the bridge.
type Metrics struct {
	meter metric.Meter

	// Counters
	messagesReceived  metric.Int64Counter
	messagesForwarded metric.Int64Counter
	sendFailures      metric.Int64Counter
	loopDrops         metric.Int64Counter
	rateLimitDrops    metric.Int64Counter
	routeMisses       metric.Int64Counter
	routeRebuilds     metric.Int64Counter

	// UpDownCounters (Gauges)
	listenersActive metric.Int64UpDownCounter
	endpointsActive metric.Int64UpDownCounter

	// Histograms
	forwardDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("fluxbridge"),
	}

	var err error

	m.messagesReceived, err = m.meter.Int64Counter(
		"bridge.messages.received.total",
		metric.WithDescription("Total messages received from attached endpoints"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesReceived counter: %w", err)
	}

	m.messagesForwarded, err = m.meter.Int64Counter(
		"bridge.messages.forwarded.total",
		metric.WithDescription("Total messages forwarded to destination endpoints"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesForwarded counter: %w", err)
	}

	m.sendFailures, err = m.meter.Int64Counter(
		"bridge.send.failures.total",
		metric.WithDescription("Total forwarding sends that failed or timed out"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sendFailures counter: %w", err)
	}

	m.loopDrops, err = m.meter.Int64Counter(
		"bridge.loop.drops.total",
		metric.WithDescription("Total deliveries suppressed by provenance loop prevention"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create loopDrops counter: %w", err)
	}

	m.rateLimitDrops, err = m.meter.Int64Counter(
		"bridge.ratelimit.drops.total",
		metric.WithDescription("Total inbound messages dropped by rate limiting"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rateLimitDrops counter: %w", err)
	}

	m.routeMisses, err = m.meter.Int64Counter(
		"bridge.route.misses.total",
		metric.WithDescription("Total inbound messages with no matching route"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create routeMisses counter: %w", err)
	}

	m.routeRebuilds, err = m.meter.Int64Counter(
		"bridge.route.rebuilds.total",
		metric.WithDescription("Total route table snapshot swaps"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create routeRebuilds counter: %w", err)
	}

	m.listenersActive, err = m.meter.Int64UpDownCounter(
		"bridge.listeners.active",
		metric.WithDescription("Number of registered forwarding listeners"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create listenersActive gauge: %w", err)
	}

	m.endpointsActive, err = m.meter.Int64UpDownCounter(
		"bridge.endpoints.active",
		metric.WithDescription("Number of attached transport endpoints"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create endpointsActive gauge: %w", err)
	}

	m.forwardDuration, err = m.meter.Float64Histogram(
		"bridge.forward.duration.ms",
		metric.WithDescription("Per-destination forwarding duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forwardDuration histogram: %w", err)
	}

	return m, nil
}

// RecordMessageReceived records a message accepted from a source endpoint.
func (m *Metrics) RecordMessageReceived(authority string) {
	m.messagesReceived.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", authority),
	))
}

// RecordMessageForwarded records a successful forward to one destination.
func (m *Metrics) RecordMessageForwarded(authority string) {
	m.messagesForwarded.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("destination", authority),
	))
}

// RecordSendFailure records a failed or timed-out forward.
func (m *Metrics) RecordSendFailure(authority string) {
	m.sendFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("destination", authority),
	))
}

// RecordLoopDrop records a delivery suppressed by loop prevention.
func (m *Metrics) RecordLoopDrop() {
	m.loopDrops.Add(context.Background(), 1)
}

// RecordRateLimitDrop records an inbound message dropped by rate limiting.
func (m *Metrics) RecordRateLimitDrop(authority string) {
	m.rateLimitDrops.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", authority),
	))
}

// RecordRouteMiss records an inbound message with no matching route.
func (m *Metrics) RecordRouteMiss() {
	m.routeMisses.Add(context.Background(), 1)
}

// RecordRouteRebuild records a route table snapshot swap.
func (m *Metrics) RecordRouteRebuild() {
	m.routeRebuilds.Add(context.Background(), 1)
}

// RecordListenerAdded records a forwarding listener registration.
func (m *Metrics) RecordListenerAdded() {
	m.listenersActive.Add(context.Background(), 1)
}

// RecordListenerRemoved records a forwarding listener removal.
func (m *Metrics) RecordListenerRemoved() {
	m.listenersActive.Add(context.Background(), -1)
}

// RecordEndpointAdded records an endpoint attachment.
func (m *Metrics) RecordEndpointAdded() {
	m.endpointsActive.Add(context.Background(), 1)
}

// RecordEndpointRemoved records an endpoint detachment.
func (m *Metrics) RecordEndpointRemoved() {
	m.endpointsActive.Add(context.Background(), -1)
}

// RecordForwardDuration records the duration of one destination send.
func (m *Metrics) RecordForwardDuration(durationMs float64) {
	m.forwardDuration.Record(context.Background(), durationMs)
}
