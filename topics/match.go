// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package topics implements topic-filter matching and validation for the
// bridge. Filters use '/' separated levels with '+' as a single-level
// wildcard and a trailing '#' as a multi-level wildcard.
package topics

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const separator = "/"

// Match reports whether topic matches filter. The topic must be concrete
// (no wildcards); the filter may contain '+' and a trailing '#'.
func Match(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}

	fl := strings.Split(filter, separator)
	tl := strings.Split(topic, separator)

	for i, level := range fl {
		if level == "#" {
			// '#' matches the parent level and everything below it.
			return true
		}
		if i >= len(tl) {
			return false
		}
		if level == "+" {
			continue
		}
		if level != tl[i] {
			return false
		}
	}

	return len(fl) == len(tl)
}

// Validation errors.
var (
	ErrInvalidTopic  = errors.New("invalid topic: empty, contains wildcards or illegal characters")
	ErrInvalidFilter = errors.New("invalid filter: empty, misplaced wildcard or illegal characters")
)

// ValidateTopic checks that topic is a concrete, well-formed topic name.
func ValidateTopic(topic string) error {
	if topic == "" || !utf8.ValidString(topic) || strings.ContainsRune(topic, 0) {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	return nil
}

// ValidateFilter checks that filter is well formed: '+' must occupy a
// whole level and '#' may only appear as the final level.
func ValidateFilter(filter string) error {
	if filter == "" || !utf8.ValidString(filter) || strings.ContainsRune(filter, 0) {
		return ErrInvalidFilter
	}

	levels := strings.Split(filter, separator)
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return ErrInvalidFilter
		case level == "#" || level == "+":
			continue
		case strings.ContainsAny(level, "+#"):
			return ErrInvalidFilter
		}
	}
	return nil
}
