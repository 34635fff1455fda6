// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	state     string
	version   uint64
	endpoints int
	listeners int
}

func (f *fakeReporter) State() string        { return f.state }
func (f *fakeReporter) TableVersion() uint64 { return f.version }
func (f *fakeReporter) EndpointCount() int   { return f.endpoints }
func (f *fakeReporter) ListenerCount() int   { return f.listeners }

func TestHealthAlwaysHealthy(t *testing.T) {
	s := New(Config{}, &fakeReporter{state: "created"}, nil)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyFollowsBridgeState(t *testing.T) {
	rep := &fakeReporter{state: "created"}
	s := New(Config{}, rep, nil)

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rep.state = "running"
	rec = httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rep.state = "shutting_down"
	rec = httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusReportsSnapshot(t *testing.T) {
	rep := &fakeReporter{state: "running", version: 7, endpoints: 3, listeners: 5}
	s := New(Config{}, rep, nil)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.State)
	assert.Equal(t, uint64(7), resp.TableVersion)
	assert.Equal(t, 3, resp.Endpoints)
	assert.Equal(t, 5, resp.Listeners)
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(Config{}, &fakeReporter{state: "running"}, nil)

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodPost, "/ready", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
