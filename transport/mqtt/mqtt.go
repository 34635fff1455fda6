// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mqtt provides a transport endpoint backed by an external MQTT
// broker. Inbound publications arrive as fresh envelopes with empty
// provenance; outbound envelopes are published to their destination
// topic with the payload untouched.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fluxbridge/core"
	"github.com/absmach/fluxbridge/topics"
	"github.com/absmach/fluxbridge/transport"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

// Config holds the settings for one MQTT-backed endpoint.
type Config struct {
	Authority      string
	BrokerURL      string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
}

// Endpoint bridges one MQTT broker connection into the transport
// contract.
type Endpoint struct {
	cfg    Config
	client mqtt.Client
	logger *slog.Logger

	mu        sync.Mutex
	closed    bool
	nextToken uint64
	subs      map[string]transport.Handle
}

var _ transport.Transport = (*Endpoint)(nil)

// Connect dials the broker and returns the endpoint once the connection
// is established.
func Connect(cfg Config, logger *slog.Logger) (*Endpoint, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: %w", cfg.BrokerURL, transport.ErrSendTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.BrokerURL, err)
	}

	return newEndpoint(cfg, client, logger), nil
}

func newEndpoint(cfg Config, client mqtt.Client, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{
		cfg:    cfg,
		client: client,
		logger: logger,
		subs:   make(map[string]transport.Handle),
	}
}

// Authority returns the endpoint's network identity.
func (e *Endpoint) Authority() string {
	return e.cfg.Authority
}

// RegisterListener subscribes to filter on the broker and delivers each
// matching publication to l as a fresh envelope. Registering an already
// registered filter returns the existing handle.
func (e *Endpoint) RegisterListener(ctx context.Context, filter string, l transport.Listener) (transport.Handle, error) {
	if err := topics.ValidateFilter(filter); err != nil {
		return transport.Handle{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return transport.Handle{}, transport.ErrClosed
	}
	if h, ok := e.subs[filter]; ok {
		return h, nil
	}

	token := e.client.Subscribe(filter, e.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		l.OnMessage(core.NewMessage(core.KindPublish, e.cfg.Authority, m.Topic(), m.Payload()))
	})
	if err := waitToken(ctx, token); err != nil {
		return transport.Handle{}, fmt.Errorf("%w: subscribe %s: %w", transport.ErrRegistrationRefused, filter, err)
	}

	e.nextToken++
	h := transport.Handle{Filter: filter, Token: e.nextToken}
	e.subs[filter] = h
	e.logger.Debug("Subscribed", "authority", e.cfg.Authority, "filter", filter)
	return h, nil
}

// UnregisterListener unsubscribes the registration identified by h.
func (e *Endpoint) UnregisterListener(ctx context.Context, h transport.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.subs[h.Filter]
	if !ok || existing.Token != h.Token {
		return transport.ErrUnknownHandle
	}

	token := e.client.Unsubscribe(h.Filter)
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", h.Filter, err)
	}

	delete(e.subs, h.Filter)
	return nil
}

// Send publishes msg to its destination topic.
func (e *Endpoint) Send(ctx context.Context, msg *core.Message) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	token := e.client.Publish(msg.Destination, e.cfg.QoS, false, msg.Payload)
	if err := waitToken(ctx, token); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("publish %s: %w", msg.Destination, transport.ErrSendTimeout)
		}
		return fmt.Errorf("publish %s: %w", msg.Destination, err)
	}
	return nil
}

// Close unsubscribes every live registration and disconnects from the
// broker.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	filters := make([]string, 0, len(e.subs))
	for f := range e.subs {
		filters = append(filters, f)
	}
	e.subs = make(map[string]transport.Handle)
	e.mu.Unlock()

	for _, f := range filters {
		e.client.Unsubscribe(f)
	}
	e.client.Disconnect(disconnectQuiesceMs)
	return nil
}

func waitToken(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
