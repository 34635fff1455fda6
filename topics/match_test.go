// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics_test

import (
	"testing"

	"github.com/absmach/fluxbridge/topics"
	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"vehicle/speed", "vehicle/speed", true},
		{"vehicle/speed", "vehicle/rpm", false},
		{"vehicle/+", "vehicle/speed", true},
		{"vehicle/+", "vehicle/speed/raw", false},
		{"vehicle/#", "vehicle/speed", true},
		{"vehicle/#", "vehicle/speed/raw", true},
		{"vehicle/#", "vehicle", true},
		{"#", "anything/at/all", true},
		{"+/speed", "vehicle/speed", true},
		{"+/speed", "vehicle/rpm", false},
		{"vehicle/+/raw", "vehicle/speed/raw", true},
		{"vehicle/speed/extra", "vehicle/speed", false},
		{"", "vehicle/speed", false},
		{"vehicle/speed", "", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, topics.Match(tc.filter, tc.topic),
			"filter=%q topic=%q", tc.filter, tc.topic)
	}
}

func TestValidateTopic(t *testing.T) {
	assert.NoError(t, topics.ValidateTopic("vehicle/speed"))
	assert.Error(t, topics.ValidateTopic(""))
	assert.Error(t, topics.ValidateTopic("vehicle/+"))
	assert.Error(t, topics.ValidateTopic("vehicle/#"))
	assert.Error(t, topics.ValidateTopic("bad\x00topic"))
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, topics.ValidateFilter("vehicle/speed"))
	assert.NoError(t, topics.ValidateFilter("vehicle/+"))
	assert.NoError(t, topics.ValidateFilter("vehicle/#"))
	assert.NoError(t, topics.ValidateFilter("#"))
	assert.Error(t, topics.ValidateFilter("vehicle/#/raw"))
	assert.Error(t, topics.ValidateFilter("vehicle/sp+eed"))
	assert.Error(t, topics.ValidateFilter(""))
}
