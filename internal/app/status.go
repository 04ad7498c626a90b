// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/relabs-tech/envnode/internal/env"
	"github.com/relabs-tech/envnode/internal/netlink"
	"github.com/relabs-tech/envnode/internal/publish"
	"github.com/sirupsen/logrus"
)

// StatusSink receives the periodic status report. last is nil until the
// first reading.
type StatusSink interface {
	Report(ctx context.Context, st env.DeviceStatus, last *env.Reading) error
}

// Status reports the node health every Interval. It does not touch the
// readings handoff.
type Status struct {
	State    *State
	Network  netlink.Provider
	Interval time.Duration
	Sinks    []StatusSink
	Log      *logrus.Entry
}

// Run never returns before ctx is done.
func (s *Status) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

func (s *Status) report(ctx context.Context) {
	s.State.setNetworkConnected(s.Network.Connected())
	st := s.State.Status()
	var last *env.Reading
	if r, ok := s.State.Latest(); ok {
		last = &r
	}
	for _, sink := range s.Sinks {
		if err := sink.Report(ctx, st, last); err != nil && ctx.Err() == nil {
			s.Log.WithError(err).Warnf("status sink %T failed", sink)
		}
	}
}

// LogSink writes the status report as one log line.
type LogSink struct {
	Log *logrus.Entry
}

// Report implements StatusSink.
func (l LogSink) Report(_ context.Context, st env.DeviceStatus, last *env.Reading) error {
	fields := logrus.Fields{
		"status":           st.Status,
		"uptime":           (time.Duration(st.UptimeSeconds) * time.Second).String(),
		"readings":         st.Readings,
		"published":        st.Published,
		"publish_failures": st.PublishFailures,
		"sensor_active":    st.SensorActive,
		"network":          st.NetworkConnected,
	}
	if last != nil {
		fields["last_count"] = last.Count
	}
	l.Log.WithFields(fields).Info("status")
	return nil
}

// BrokerSink publishes the status report as JSON on Topic over its own
// session, so a slow broker only delays the status loop.
type BrokerSink struct {
	Topic string
	link  brokerLink
}

// NewBrokerSink returns a sink publishing on topic.
func NewBrokerSink(n netlink.Provider, p publish.Publisher, topic string) *BrokerSink {
	return &BrokerSink{Topic: topic, link: brokerLink{network: n, publisher: p}}
}

// Report implements StatusSink.
func (b *BrokerSink) Report(ctx context.Context, st env.DeviceStatus, _ *env.Reading) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	err = b.link.send(ctx, b.Topic, payload)
	if errors.Is(err, publish.ErrDisabled) {
		return nil
	}
	return err
}

// Close ends the sink's broker session.
func (b *BrokerSink) Close() error {
	b.link.close()
	return nil
}
