// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/absmach/fluxbridge/core"
	"github.com/absmach/fluxbridge/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	ch chan *core.Message
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ch: make(chan *core.Message, 16)}
}

func (r *recordingListener) OnMessage(msg *core.Message) {
	r.ch <- msg
}

func TestRegisterListenerIsIdempotentPerFilter(t *testing.T) {
	ep := New("authority-a")
	l := newRecordingListener()

	h1, err := ep.RegisterListener(context.Background(), "vehicle/+", l)
	require.NoError(t, err)
	h2, err := ep.RegisterListener(context.Background(), "vehicle/+", newRecordingListener())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, ep.ListenerCount())

	ep.Inject(core.NewMessage(core.KindPublish, "src", "vehicle/speed", nil))
	select {
	case <-l.ch:
	case <-time.After(time.Second):
		t.Fatal("expected single delivery to original listener")
	}
	assert.Empty(t, l.ch)
}

func TestInjectDispatchesByFilter(t *testing.T) {
	ep := New("authority-a")
	speed := newRecordingListener()
	all := newRecordingListener()

	_, err := ep.RegisterListener(context.Background(), "vehicle/speed", speed)
	require.NoError(t, err)
	_, err = ep.RegisterListener(context.Background(), "vehicle/#", all)
	require.NoError(t, err)

	ep.Inject(core.NewMessage(core.KindPublish, "src", "vehicle/rpm", nil))

	select {
	case msg := <-all.ch:
		assert.Equal(t, "vehicle/rpm", msg.Destination)
	case <-time.After(time.Second):
		t.Fatal("wildcard listener should receive")
	}
	assert.Empty(t, speed.ch)
}

func TestUnregisterListener(t *testing.T) {
	ep := New("authority-a")
	l := newRecordingListener()

	h, err := ep.RegisterListener(context.Background(), "t", l)
	require.NoError(t, err)
	require.NoError(t, ep.UnregisterListener(context.Background(), h))

	assert.ErrorIs(t, ep.UnregisterListener(context.Background(), h), transport.ErrUnknownHandle)
	ep.Inject(core.NewMessage(core.KindPublish, "src", "t", nil))
	assert.Empty(t, l.ch)
}

func TestSendCapturesOutbound(t *testing.T) {
	ep := New("authority-a")
	msg := core.NewMessage(core.KindPublish, "src", "vehicle/speed", []byte("42"))

	require.NoError(t, ep.Send(context.Background(), msg))

	select {
	case got := <-ep.Outbound():
		assert.Equal(t, msg, got)
	case <-time.After(time.Second):
		t.Fatal("send not captured")
	}
}

func TestSendHonorsContext(t *testing.T) {
	ep := New("authority-a")
	for i := 0; i < defaultOutboundBuffer; i++ {
		require.NoError(t, ep.Send(context.Background(), core.NewMessage(core.KindPublish, "s", "t", nil)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ep.Send(ctx, core.NewMessage(core.KindPublish, "s", "t", nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedEndpointRejectsOperations(t *testing.T) {
	ep := New("authority-a")
	require.NoError(t, ep.Close())

	_, err := ep.RegisterListener(context.Background(), "t", newRecordingListener())
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, ep.Send(context.Background(), core.NewMessage(core.KindPublish, "s", "t", nil)), transport.ErrClosed)
}
