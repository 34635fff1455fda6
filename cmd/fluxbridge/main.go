// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/absmach/fluxbridge/config"
	"github.com/absmach/fluxbridge/ratelimit"
	"github.com/absmach/fluxbridge/server/health"
	"github.com/absmach/fluxbridge/server/otel"
	"github.com/absmach/fluxbridge/streamer"
	"github.com/absmach/fluxbridge/subscription"
	"github.com/absmach/fluxbridge/transport"
	"github.com/absmach/fluxbridge/transport/inproc"
	"github.com/absmach/fluxbridge/transport/mqtt"
	"github.com/google/uuid"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	instanceID := uuid.NewString()
	slog.Info("Starting bridge", "name", cfg.Name, "instance_id", instanceID)

	// Initialize OpenTelemetry
	var metrics *otel.Metrics
	if cfg.Otel.MetricsEnabled || cfg.Otel.TracesEnabled {
		otelShutdown, err := otel.InitProvider(cfg.Otel, instanceID)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				slog.Error("OpenTelemetry shutdown error", "error", err)
			}
		}()

		if cfg.Otel.MetricsEnabled {
			metrics, err = otel.NewMetrics()
			if err != nil {
				slog.Error("Failed to create metrics", "error", err)
				os.Exit(1)
			}
		}
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Otel.Endpoint)
	}

	// Subscription source: static file with retrying lookups
	static, err := subscription.NewStaticFile(cfg.Subscriptions.File, logger)
	if err != nil {
		slog.Error("Failed to load subscription file", "file", cfg.Subscriptions.File, "error", err)
		os.Exit(1)
	}
	source := subscription.WithRetry(static, subscription.RetryConfig{
		InitialInterval: cfg.Subscriptions.Retry.InitialInterval,
		MaxInterval:     cfg.Subscriptions.Retry.MaxInterval,
		MaxElapsedTime:  cfg.Subscriptions.Retry.MaxElapsedTime,
		MaxTries:        cfg.Subscriptions.Retry.MaxTries,
	}, logger)

	// Streamer options
	opts := []streamer.Option{
		streamer.WithLogger(logger),
		streamer.WithWorkers(cfg.Bridge.Workers),
		streamer.WithSendTimeout(cfg.Bridge.SendTimeout),
		streamer.WithShutdownGrace(cfg.Bridge.ShutdownGrace),
		streamer.WithBreaker(cfg.Bridge.BreakerFailureThreshold, cfg.Bridge.BreakerResetTimeout),
	}
	if metrics != nil {
		opts = append(opts, streamer.WithMetrics(metrics))
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewEndpointLimiter(
			cfg.RateLimit.MessagesPerSecond,
			cfg.RateLimit.Burst,
			cfg.RateLimit.CleanupInterval,
		)
		defer limiter.Stop()
		opts = append(opts, streamer.WithRateLimiter(limiter))
		slog.Info("Rate limiting enabled",
			"messages_per_second", cfg.RateLimit.MessagesPerSecond,
			"burst", cfg.RateLimit.Burst)
	}

	s := streamer.New(source, opts...)

	// Attach configured endpoints
	var closers []func() error
	for _, epCfg := range cfg.Endpoints {
		ep, closer, err := buildEndpoint(epCfg, logger)
		if err != nil {
			slog.Error("Failed to create endpoint",
				"name", epCfg.Name, "authority", epCfg.Authority, "error", err)
			os.Exit(1)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		if err := s.AddEndpoint(context.Background(), ep); err != nil {
			slog.Error("Failed to attach endpoint",
				"name", epCfg.Name, "authority", epCfg.Authority, "error", err)
			os.Exit(1)
		}
		slog.Info("Endpoint configured",
			"name", epCfg.Name, "authority", epCfg.Authority, "type", epCfg.Type)
	}
	defer func() {
		for _, closer := range closers {
			if err := closer(); err != nil {
				slog.Warn("Endpoint close error", "error", err)
			}
		}
	}()

	// Start forwarding
	if err := s.Start(context.Background()); err != nil {
		slog.Error("Failed to start streamer", "error", err)
		os.Exit(1)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	serverErr := make(chan error, 2)

	// Periodic subscription file reload
	if cfg.Subscriptions.RefreshInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.Subscriptions.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := static.Reload(); err != nil {
						slog.Warn("Subscription reload failed", "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Health check server
	if cfg.Health.Enabled {
		healthServer := health.New(health.Config{
			Address:         cfg.Health.Addr,
			ShutdownTimeout: cfg.Health.ShutdownTimeout,
		}, reporter{s}, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthServer.Listen(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	slog.Info("Bridge started successfully",
		"endpoints", s.EndpointCount(),
		"listeners", s.ListenerCount(),
		"table_version", s.TableVersion())

	// Wait for shutdown signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Bridge.ShutdownGrace+5*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Streamer shutdown reported errors", "error", err)
	}

	wg.Wait()
	slog.Info("Bridge stopped")
}

func buildEndpoint(epCfg config.EndpointConfig, logger *slog.Logger) (transport.Transport, func() error, error) {
	switch epCfg.Type {
	case "mqtt":
		ep, err := mqtt.Connect(mqtt.Config{
			Authority:      epCfg.Authority,
			BrokerURL:      epCfg.MQTT.BrokerURL,
			ClientID:       epCfg.MQTT.ClientID,
			QoS:            epCfg.MQTT.QoS,
			ConnectTimeout: epCfg.MQTT.ConnectTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return ep, ep.Close, nil
	default:
		ep := inproc.New(epCfg.Authority)
		return ep, ep.Close, nil
	}
}

// reporter adapts the streamer to the health server's view.
type reporter struct {
	s *streamer.Streamer
}

func (r reporter) State() string        { return r.s.State().String() }
func (r reporter) TableVersion() uint64 { return r.s.TableVersion() }
func (r reporter) EndpointCount() int   { return r.s.EndpointCount() }
func (r reporter) ListenerCount() int   { return r.s.ListenerCount() }
