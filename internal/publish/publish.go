// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package publish sends payloads to the message broker.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/envnode/internal/netlink"
	"github.com/sirupsen/logrus"
)

// ErrDisabled is returned by the disabled publisher.
var ErrDisabled = errors.New("publish: publisher disabled")

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("publish: timed out")

// Session is a connected publisher.
type Session interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Connected() bool
	Close()
}

// Publisher opens sessions over a transport obtained from the network.
type Publisher interface {
	Connect(ctx context.Context, d netlink.Dialer) (Session, error)
}

// MQTT publishes with the paho client. The TCP connection is opened through
// the dialer given to Connect.
type MQTT struct {
	Broker         string // tcp://host:port
	ClientID       string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Log            *logrus.Entry
}

func (m *MQTT) String() string {
	return fmt.Sprintf("mqtt(%s as %s)", m.Broker, m.ClientID)
}

// Connect implements Publisher.
func (m *MQTT) Connect(ctx context.Context, d netlink.Dialer) (Session, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(m.Broker).
		SetClientID(m.ClientID).
		SetProtocolVersion(4).
		SetConnectTimeout(m.ConnectTimeout).
		SetWriteTimeout(m.PublishTimeout).
		SetAutoReconnect(false).
		SetCustomOpenConnectionFn(func(u *url.URL, _ mqtt.ClientOptions) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", u.Host)
		})
	if m.Log != nil {
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.Log.WithError(err).Warn("broker connection lost")
		})
	}
	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect(), m.ConnectTimeout); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: %w", m.Broker, err)
	}
	return &mqttSession{client: client, qos: m.QoS, retain: m.Retain, timeout: m.PublishTimeout}, nil
}

type mqttSession struct {
	client  mqtt.Client
	qos     byte
	retain  bool
	timeout time.Duration
}

func (s *mqttSession) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := wait(ctx, s.client.Publish(topic, s.qos, s.retain, payload), s.timeout); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (s *mqttSession) Connected() bool {
	return s.client.IsConnectionOpen()
}

func (s *mqttSession) Close() {
	s.client.Disconnect(250)
}

// wait blocks until tok completes, ctx is done or timeout elapses. A zero
// timeout waits for the token or ctx only.
func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrTimeout
	}
}

// SetLogger routes the paho client diagnostics to l.
func SetLogger(l *logrus.Entry) {
	mqtt.ERROR = l.WithField("paho", "error")
	mqtt.CRITICAL = l.WithField("paho", "critical")
	mqtt.WARN = l.WithField("paho", "warn")
}

// Disabled is the publisher of a node built without a broker.
type Disabled struct{}

func (Disabled) String() string { return "disabled" }

// Connect implements Publisher.
func (Disabled) Connect(context.Context, netlink.Dialer) (Session, error) {
	return nil, ErrDisabled
}
