// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEndpointLimiterEnforcesBurst(t *testing.T) {
	l := NewEndpointLimiter(1, 2, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow("authority-a"))
	assert.True(t, l.Allow("authority-a"))
	assert.False(t, l.Allow("authority-a"))
}

func TestEndpointLimiterIsolatesAuthorities(t *testing.T) {
	l := NewEndpointLimiter(1, 1, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow("authority-a"))
	assert.False(t, l.Allow("authority-a"))
	assert.True(t, l.Allow("authority-b"))
}

func TestEndpointLimiterStopIsIdempotent(t *testing.T) {
	l := NewEndpointLimiter(1, 1, time.Minute)
	l.Stop()
	l.Stop()
}
