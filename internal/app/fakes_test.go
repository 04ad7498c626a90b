// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/relabs-tech/envnode/internal/env"
	"github.com/relabs-tech/envnode/internal/netlink"
	"github.com/relabs-tech/envnode/internal/publish"
)

var errBus = errors.New("i2c: remote I/O error")

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

type checkResult struct {
	ok  bool
	err error
}

// fakeSensor plays scripted results; once a script is exhausted every call
// succeeds.
type fakeSensor struct {
	mu     sync.Mutex
	checks []checkResult
	reads  []error
	m      env.Measurements

	checkCalls int
	initCalls  int
	readCalls  int
}

func (f *fakeSensor) CheckID(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	if len(f.checks) == 0 {
		return true, nil
	}
	r := f.checks[0]
	f.checks = f.checks[1:]
	return r.ok, r.err
}

func (f *fakeSensor) Init(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return nil
}

func (f *fakeSensor) ReadMeasurements(context.Context) (env.Measurements, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if len(f.reads) > 0 {
		err := f.reads[0]
		f.reads = f.reads[1:]
		if err != nil {
			return env.Measurements{}, err
		}
	}
	return f.m, nil
}

type fakeNetwork struct {
	down atomic.Bool
}

func (n *fakeNetwork) Connected() bool { return !n.down.Load() }

func (n *fakeNetwork) Handle() netlink.Dialer { return &net.Dialer{} }

type message struct {
	topic   string
	payload []byte
}

// fakePublisher records what its sessions publish.
type fakePublisher struct {
	mu         sync.Mutex
	connects   int
	connectErr error
	publishErr error
	// block, when set, makes Publish wait on it. entered receives a value
	// each time a Publish starts waiting.
	block   chan struct{}
	entered chan struct{}
	sent    []message
	closed  int
}

func (p *fakePublisher) Connect(context.Context, netlink.Dialer) (publish.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	return &fakeSession{p: p}, nil
}

func (p *fakePublisher) messages() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.sent...)
}

type fakeSession struct {
	p      *fakePublisher
	closed bool
}

func (s *fakeSession) Publish(ctx context.Context, topic string, payload []byte) error {
	if s.p.block != nil {
		if s.p.entered != nil {
			s.p.entered <- struct{}{}
		}
		select {
		case <-s.p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.p.publishErr != nil {
		return s.p.publishErr
	}
	s.p.sent = append(s.p.sent, message{topic, append([]byte(nil), payload...)})
	return nil
}

func (s *fakeSession) Connected() bool { return !s.closed }

func (s *fakeSession) Close() {
	s.closed = true
	s.p.mu.Lock()
	s.p.closed++
	s.p.mu.Unlock()
}

// recordSink collects status reports.
type recordSink struct {
	mu      sync.Mutex
	err     error
	reports []env.DeviceStatus
	lasts   []*env.Reading
}

func (r *recordSink) Report(_ context.Context, st env.DeviceStatus, last *env.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, st)
	r.lasts = append(r.lasts, last)
	return r.err
}

func (r *recordSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}
