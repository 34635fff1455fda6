// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvenanceExtendGrowsOnly(t *testing.T) {
	p := NewProvenance()
	require.Equal(t, 0, p.Len())

	p1 := p.Extend("a")
	p2 := p1.Extend("b")

	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 1, p1.Len())
	assert.Equal(t, 2, p2.Len())
	assert.True(t, p2.Contains("a"))
	assert.True(t, p2.Contains("b"))
	assert.False(t, p1.Contains("b"))
}

func TestProvenanceExtendIsIdempotent(t *testing.T) {
	p := NewProvenance("a")
	assert.Equal(t, 1, p.Extend("a").Len())
}

func TestProvenanceNoCrossHopAliasing(t *testing.T) {
	base := NewProvenance("a")

	left := base.Extend("b")
	right := base.Extend("c")

	assert.False(t, left.Contains("c"))
	assert.False(t, right.Contains("b"))
	assert.False(t, base.Contains("b"))
	assert.False(t, base.Contains("c"))
}

func TestMessageForwardExtendsProvenance(t *testing.T) {
	msg := NewMessage(KindPublish, "//dev-a/topic", "vehicle/speed", []byte("42"))
	require.Equal(t, 0, msg.Provenance.Len())

	out := msg.Forward("dev-a")

	assert.Equal(t, 0, msg.Provenance.Len())
	assert.True(t, out.Provenance.Contains("dev-a"))
	assert.Equal(t, msg.ID, out.ID)
	assert.Equal(t, msg.Payload, out.Payload)
}
