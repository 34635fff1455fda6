// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package streamer

import (
	"sync/atomic"
	"time"
)

// Stats tracks forwarding statistics using atomic counters.
type Stats struct {
	startTime time.Time

	messagesReceived  atomic.Uint64
	messagesForwarded atomic.Uint64
	sendFailures      atomic.Uint64

	loopDrops      atomic.Uint64
	routeMisses    atomic.Uint64
	rateLimitDrops atomic.Uint64
	stateDrops     atomic.Uint64

	tableSwaps atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) IncrementMessagesReceived()  { s.messagesReceived.Add(1) }
func (s *Stats) IncrementMessagesForwarded() { s.messagesForwarded.Add(1) }
func (s *Stats) IncrementSendFailures()      { s.sendFailures.Add(1) }
func (s *Stats) IncrementLoopDrops()         { s.loopDrops.Add(1) }
func (s *Stats) IncrementRouteMisses()       { s.routeMisses.Add(1) }
func (s *Stats) IncrementRateLimitDrops()    { s.rateLimitDrops.Add(1) }
func (s *Stats) IncrementStateDrops()        { s.stateDrops.Add(1) }
func (s *Stats) IncrementTableSwaps()        { s.tableSwaps.Add(1) }

func (s *Stats) GetMessagesReceived() uint64  { return s.messagesReceived.Load() }
func (s *Stats) GetMessagesForwarded() uint64 { return s.messagesForwarded.Load() }
func (s *Stats) GetSendFailures() uint64      { return s.sendFailures.Load() }
func (s *Stats) GetLoopDrops() uint64         { return s.loopDrops.Load() }
func (s *Stats) GetRouteMisses() uint64       { return s.routeMisses.Load() }
func (s *Stats) GetRateLimitDrops() uint64    { return s.rateLimitDrops.Load() }
func (s *Stats) GetStateDrops() uint64        { return s.stateDrops.Load() }
func (s *Stats) GetTableSwaps() uint64        { return s.tableSwaps.Load() }
func (s *Stats) GetUptime() time.Duration     { return time.Since(s.startTime) }
