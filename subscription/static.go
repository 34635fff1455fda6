// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/absmach/fluxbridge/core"
	"github.com/absmach/fluxbridge/topics"
	"gopkg.in/yaml.v3"
)

// StaticFile is a read-only subscription source backed by a YAML file
// mapping topic filters to subscriber authorities:
//
//	subscriptions:
//	  vehicle/speed: [authority-b, authority-c]
//	  vehicle/#: [authority-d]
//
// Reload re-parses the file and fires change notifications for every
// topic whose subscriber set differs.
type StaticFile struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	entries   map[string]map[core.EndpointID]struct{}
	callbacks []func(topic string)
}

var _ Source = (*StaticFile)(nil)

type staticFileDoc struct {
	Subscriptions map[string][]string `yaml:"subscriptions"`
}

// NewStaticFile loads path and returns the source. A file that cannot be
// read or parsed is a construction error; later Reload failures keep the
// previous data.
func NewStaticFile(path string, logger *slog.Logger) (*StaticFile, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &StaticFile{
		path:   path,
		logger: logger,
	}

	entries, err := s.parse()
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s, nil
}

func (s *StaticFile) parse() (map[string]map[core.EndpointID]struct{}, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription file: %w", err)
	}

	var doc staticFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse subscription file: %w", err)
	}

	entries := make(map[string]map[core.EndpointID]struct{}, len(doc.Subscriptions))
	for topic, subscribers := range doc.Subscriptions {
		if err := topics.ValidateFilter(topic); err != nil {
			s.logger.Warn("skipping invalid topic filter", "topic", topic, "error", err)
			continue
		}
		set := make(map[core.EndpointID]struct{}, len(subscribers))
		for _, sub := range subscribers {
			if sub == "" {
				s.logger.Warn("skipping empty subscriber", "topic", topic)
				continue
			}
			set[core.EndpointID(sub)] = struct{}{}
		}
		entries[topic] = set
	}
	return entries, nil
}

// Topics lists every topic filter in the file.
func (s *StaticFile) Topics(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for topic := range s.entries {
		out = append(out, topic)
	}
	return out, nil
}

// SubscribersOf returns the subscriber set for topic. Unknown topics
// yield an empty set, not an error.
func (s *StaticFile) SubscribersOf(_ context.Context, topic string) (map[core.EndpointID]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.entries[topic]
	if !ok {
		return map[core.EndpointID]struct{}{}, nil
	}
	out := make(map[core.EndpointID]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out, nil
}

// OnChange registers fn to be called for each topic whose subscribers
// change on Reload.
func (s *StaticFile) OnChange(fn func(topic string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Reload re-parses the backing file and notifies changed topics. On parse
// failure the previous data stays in place and the error is returned.
func (s *StaticFile) Reload() error {
	entries, err := s.parse()
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := diffTopics(s.entries, entries)
	s.entries = entries
	callbacks := make([]func(string), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, topic := range changed {
		for _, fn := range callbacks {
			fn(topic)
		}
	}
	return nil
}

func diffTopics(old, next map[string]map[core.EndpointID]struct{}) []string {
	var changed []string
	for topic, prev := range old {
		cur, ok := next[topic]
		if !ok || !sameSet(prev, cur) {
			changed = append(changed, topic)
		}
	}
	for topic := range next {
		if _, ok := old[topic]; !ok {
			changed = append(changed, topic)
		}
	}
	return changed
}

func sameSet(a, b map[core.EndpointID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
