// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/envnode/internal/env"
)

// State holds the diagnostic counters of a running node. Readings, the last
// reading and the sensor flag are written by acquisition only, the publish
// counters by publication only. The network flag has two writers: publication
// records the outcome of each attempt and the status loop refreshes it from
// the link before every report. All fields are atomics or behind mu.
type State struct {
	deviceID string
	start    time.Time

	readings        atomic.Uint64
	published       atomic.Uint64
	publishFailures atomic.Uint64
	sensorActive    atomic.Bool
	netConnected    atomic.Bool

	mu       sync.RWMutex
	last     env.Reading
	haveLast bool
}

// NewState returns the state of a node started at start.
func NewState(deviceID string, start time.Time) *State {
	return &State{deviceID: deviceID, start: start}
}

func (s *State) recordReading(r env.Reading) {
	s.readings.Store(r.Count)
	s.mu.Lock()
	s.last = r
	s.haveLast = true
	s.mu.Unlock()
}

func (s *State) recordPublish(err error) {
	if err != nil {
		s.publishFailures.Add(1)
		return
	}
	s.published.Add(1)
}

func (s *State) setSensorActive(v bool) { s.sensorActive.Store(v) }

func (s *State) setNetworkConnected(v bool) { s.netConnected.Store(v) }

// Latest returns the last reading, if any.
func (s *State) Latest() (env.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.haveLast
}

// Uptime returns the time elapsed since start.
func (s *State) Uptime() time.Duration {
	return time.Since(s.start)
}

// Status returns a status report as of now.
func (s *State) Status() env.DeviceStatus {
	return s.statusAt(time.Now())
}

func (s *State) statusAt(now time.Time) env.DeviceStatus {
	st := env.DeviceStatus{
		DeviceID:         s.deviceID,
		Status:           "online",
		UptimeSeconds:    uint64(now.Sub(s.start) / time.Second),
		Readings:         s.readings.Load(),
		Published:        s.published.Load(),
		PublishFailures:  s.publishFailures.Load(),
		SensorActive:     s.sensorActive.Load(),
		NetworkConnected: s.netConnected.Load(),
		Timestamp:        now.UTC().Format(time.RFC3339),
	}
	if !st.SensorActive || !st.NetworkConnected {
		st.Status = "degraded"
	}
	return st
}
