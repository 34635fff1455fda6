// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config holds the YAML configuration for the bridge process.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the bridge.
type Config struct {
	Name          string              `yaml:"name"`
	Log           LogConfig           `yaml:"log"`
	Health        HealthConfig        `yaml:"health"`
	Otel          OtelConfig          `yaml:"otel"`
	Bridge        BridgeConfig        `yaml:"bridge"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Endpoints     []EndpointConfig    `yaml:"endpoints"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// HealthConfig holds the health check server configuration.
type HealthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OtelConfig holds OpenTelemetry configuration.
type OtelConfig struct {
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TracesEnabled   bool    `yaml:"traces_enabled"`
	Endpoint        string  `yaml:"endpoint"` // OTLP gRPC endpoint
	ServiceName     string  `yaml:"service_name"`
	ServiceVersion  string  `yaml:"service_version"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"` // 0.0 to 1.0
}

// BridgeConfig holds forwarding engine settings.
type BridgeConfig struct {
	// Fan-out worker pool size; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Per-destination send deadline.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// Bounded wait for in-flight forwards on shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// Per-destination circuit breaker.
	BreakerFailureThreshold uint32        `yaml:"breaker_failure_threshold"`
	BreakerResetTimeout     time.Duration `yaml:"breaker_reset_timeout"`
}

// RateLimitConfig holds per-endpoint ingress rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MessagesPerSecond float64       `yaml:"messages_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

// SubscriptionsConfig holds subscription source settings.
type SubscriptionsConfig struct {
	// File is the static YAML subscription file.
	File string `yaml:"file"`

	// RefreshInterval re-reads the file periodically; 0 disables.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig holds the lookup retry policy.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time"`
	MaxTries        uint          `yaml:"max_tries"`
}

// EndpointConfig declares one attached transport endpoint.
type EndpointConfig struct {
	Name      string     `yaml:"name"`
	Authority string     `yaml:"authority"`
	Type      string     `yaml:"type"` // inproc, mqtt
	MQTT      MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds settings for an MQTT-backed endpoint.
type MQTTConfig struct {
	BrokerURL      string        `yaml:"broker_url"`
	ClientID       string        `yaml:"client_id"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Name: "fluxbridge",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Health: HealthConfig{
			Enabled:         true,
			Addr:            ":8081",
			ShutdownTimeout: 10 * time.Second,
		},
		Otel: OtelConfig{
			MetricsEnabled:  false,
			TracesEnabled:   false,
			Endpoint:        "localhost:4317",
			ServiceName:     "fluxbridge",
			ServiceVersion:  "0.1.0",
			TraceSampleRate: 0.1,
		},
		Bridge: BridgeConfig{
			Workers:                 0,
			SendTimeout:             5 * time.Second,
			ShutdownGrace:           10 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerResetTimeout:     30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			MessagesPerSecond: 1000,
			Burst:             100,
			CleanupInterval:   time.Minute,
		},
		Subscriptions: SubscriptionsConfig{
			File: "subscriptions.yaml",
			Retry: RetryConfig{
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     2 * time.Second,
				MaxElapsedTime:  10 * time.Second,
				MaxTries:        5,
			},
		},
	}
}

// Load loads configuration from a YAML file. An empty filename or a
// missing file yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	if c.Bridge.SendTimeout <= 0 {
		return fmt.Errorf("bridge send_timeout must be positive")
	}
	if c.Bridge.ShutdownGrace < 0 {
		return fmt.Errorf("bridge shutdown_grace must not be negative")
	}
	if c.RateLimit.Enabled && c.RateLimit.MessagesPerSecond <= 0 {
		return fmt.Errorf("rate_limit messages_per_second must be positive")
	}
	if c.Otel.TraceSampleRate < 0 || c.Otel.TraceSampleRate > 1 {
		return fmt.Errorf("otel trace_sample_rate must be within [0, 1]")
	}

	seen := make(map[string]struct{}, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep.Authority == "" {
			return fmt.Errorf("endpoint %q has no authority", ep.Name)
		}
		if _, dup := seen[ep.Authority]; dup {
			return fmt.Errorf("duplicate endpoint authority %q", ep.Authority)
		}
		seen[ep.Authority] = struct{}{}

		switch ep.Type {
		case "inproc":
		case "mqtt":
			if ep.MQTT.BrokerURL == "" {
				return fmt.Errorf("mqtt endpoint %q has no broker_url", ep.Name)
			}
		default:
			return fmt.Errorf("endpoint %q has unknown type %q", ep.Name, ep.Type)
		}
	}

	return nil
}
