// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fluxbridge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSubscriptionFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestStaticFileLoadsSubscriptions(t *testing.T) {
	path := writeSubscriptionFile(t, `
subscriptions:
  vehicle/speed: [authority-b, authority-c]
  vehicle/#: [authority-d]
`)

	src, err := NewStaticFile(path, nil)
	require.NoError(t, err)

	topics, err := src.Topics(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vehicle/speed", "vehicle/#"}, topics)

	subs, err := src.SubscribersOf(context.Background(), "vehicle/speed")
	require.NoError(t, err)
	assert.Equal(t, map[core.EndpointID]struct{}{
		"authority-b": {},
		"authority-c": {},
	}, subs)
}

func TestStaticFileUnknownTopicIsEmptyNotError(t *testing.T) {
	path := writeSubscriptionFile(t, "subscriptions:\n  t1: [a]\n")
	src, err := NewStaticFile(path, nil)
	require.NoError(t, err)

	subs, err := src.SubscribersOf(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestStaticFileSkipsInvalidFilters(t *testing.T) {
	path := writeSubscriptionFile(t, `
subscriptions:
  "bad/#/filter": [authority-b]
  good: [authority-b]
`)
	src, err := NewStaticFile(path, nil)
	require.NoError(t, err)

	topics, err := src.Topics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, topics)
}

func TestStaticFileMissingFile(t *testing.T) {
	_, err := NewStaticFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestStaticFileReloadNotifiesChangedTopics(t *testing.T) {
	path := writeSubscriptionFile(t, "subscriptions:\n  t1: [a]\n  t2: [b]\n")
	src, err := NewStaticFile(path, nil)
	require.NoError(t, err)

	var changed []string
	src.OnChange(func(topic string) {
		changed = append(changed, topic)
	})

	require.NoError(t, os.WriteFile(path, []byte("subscriptions:\n  t1: [a, c]\n  t3: [d]\n"), 0o600))
	require.NoError(t, src.Reload())

	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, changed)

	subs, err := src.SubscribersOf(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestStaticFileReloadKeepsDataOnParseFailure(t *testing.T) {
	path := writeSubscriptionFile(t, "subscriptions:\n  t1: [a]\n")
	src, err := NewStaticFile(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(":\tnot yaml"), 0o600))
	assert.Error(t, src.Reload())

	subs, err := src.SubscribersOf(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
