// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relabs-tech/envnode/internal/env"
	"github.com/relabs-tech/envnode/internal/handoff"
	"github.com/relabs-tech/envnode/internal/netlink"
	"github.com/relabs-tech/envnode/internal/publish"
	"github.com/sirupsen/logrus"
)

// brokerLink keeps one publisher session open across sends and reopens it
// after a failure.
type brokerLink struct {
	network   netlink.Provider
	publisher publish.Publisher
	session   publish.Session
}

func (l *brokerLink) send(ctx context.Context, topic string, payload []byte) error {
	if _, off := l.publisher.(publish.Disabled); off {
		return publish.ErrDisabled
	}
	if !l.network.Connected() {
		l.close()
		return netlink.ErrNotConnected
	}
	if l.session != nil && !l.session.Connected() {
		l.close()
	}
	if l.session == nil {
		s, err := l.publisher.Connect(ctx, l.network.Handle())
		if err != nil {
			return err
		}
		l.session = s
	}
	if err := l.session.Publish(ctx, topic, payload); err != nil {
		l.close()
		return err
	}
	return nil
}

func (l *brokerLink) close() {
	if l.session != nil {
		l.session.Close()
		l.session = nil
	}
}

// Publication forwards readings from In to the broker. A reading that
// cannot be published is dropped.
type Publication struct {
	In       *handoff.Signal[env.Reading]
	State    *State
	Log      *logrus.Entry
	Topic    string
	DeviceID string

	link brokerLink
}

// NewPublication returns a publication task sending over n with p.
func NewPublication(in *handoff.Signal[env.Reading], st *State, n netlink.Provider, p publish.Publisher, topic, deviceID string, log *logrus.Entry) *Publication {
	return &Publication{
		In:       in,
		State:    st,
		Log:      log,
		Topic:    topic,
		DeviceID: deviceID,
		link:     brokerLink{network: n, publisher: p},
	}
}

// Run never returns before ctx is done.
func (p *Publication) Run(ctx context.Context) error {
	defer p.link.close()
	for {
		r, err := p.In.Wait(ctx)
		if err != nil {
			return err
		}
		p.publish(ctx, r)
	}
}

func (p *Publication) publish(ctx context.Context, r env.Reading) {
	log := p.Log.WithField("count", r.Count)
	if !r.Plausible() {
		log.WithFields(logrus.Fields{
			"temperature": r.Temperature,
			"pressure":    r.Pressure,
		}).Warn("reading out of sensor range")
	}
	payload, err := json.Marshal(env.NewPayload(p.DeviceID, r))
	if err != nil {
		p.State.recordPublish(err)
		log.WithError(err).Error("payload encoding failed")
		return
	}
	err = p.link.send(ctx, p.Topic, payload)
	switch {
	case err == nil:
		p.State.setNetworkConnected(true)
		p.State.recordPublish(nil)
		log.WithField("topic", p.Topic).Debug("published")
	case errors.Is(err, publish.ErrDisabled):
		log.Debug("publishing disabled, reading dropped")
	case ctx.Err() != nil:
	case errors.Is(err, netlink.ErrNotConnected):
		p.State.setNetworkConnected(false)
		p.State.recordPublish(err)
		log.Warn("network down, reading dropped")
	default:
		p.State.recordPublish(err)
		log.WithError(fmt.Errorf("publish to %s: %w", p.Topic, err)).Warn("reading dropped")
	}
}
