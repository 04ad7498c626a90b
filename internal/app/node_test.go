// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/envnode/internal/config"
	"github.com/relabs-tech/envnode/internal/env"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DeviceID = "node-1"
	cfg.Sensor.Interval = 2 * time.Millisecond
	cfg.Sensor.RetryDelay = time.Millisecond
	cfg.Status.Interval = 5 * time.Millisecond
	return cfg
}

func TestNodeRun(t *testing.T) {
	fp := &fakePublisher{}
	sink := &recordSink{}
	n := New(testConfig(), Deps{
		Sensor:    &fakeSensor{m: env.Measurements{Temperature: 25.08, Pressure: 1006.53, Humidity: 50}},
		Network:   &fakeNetwork{},
		Publisher: fp,
		Sinks:     []StatusSink{sink},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(fp.messages()) < 3 || sink.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("published %d, reports %d", len(fp.messages()), sink.count())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}

	var prev uint64
	for _, m := range fp.messages() {
		var p env.Payload
		if err := json.Unmarshal(m.payload, &p); err != nil {
			t.Fatal(err)
		}
		if p.Count <= prev || p.DeviceID != "node-1" {
			t.Fatalf("payload %s after #%d", m.payload, prev)
		}
		prev = p.Count
	}
	st := n.State.Status()
	if !st.SensorActive || st.Published < 3 || st.Readings < prev {
		t.Fatalf("status = %+v", st)
	}
}

// pipeConsole feeds scripted input and collects the output.
type pipeConsole struct {
	io.Reader
	mu  sync.Mutex
	out strings.Builder
}

func (p *pipeConsole) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *pipeConsole) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func TestNodeConsoleOutlivesInput(t *testing.T) {
	pc := &pipeConsole{Reader: strings.NewReader("info\r")}
	n := New(testConfig(), Deps{
		Sensor:    DisabledSensor{},
		Network:   &fakeNetwork{},
		Publisher: &fakePublisher{},
		Console:   pc,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := n.Run(ctx); err == nil || ctx.Err() == nil {
		t.Fatalf("Run() = %v before the deadline", err)
	}
	if out := pc.String(); !strings.Contains(out, "node-1") {
		t.Fatalf("console output = %q", out)
	}
}

// blockingConsole never delivers input; its Read returns only once it is
// closed.
type blockingConsole struct {
	pr      *io.PipeReader
	pw      *io.PipeWriter
	readEnd chan error
}

func newBlockingConsole() *blockingConsole {
	pr, pw := io.Pipe()
	return &blockingConsole{pr: pr, pw: pw, readEnd: make(chan error, 1)}
}

func (c *blockingConsole) Read(b []byte) (int, error) {
	n, err := c.pr.Read(b)
	if err != nil {
		c.readEnd <- err
	}
	return n, err
}

func (c *blockingConsole) Write(b []byte) (int, error) { return len(b), nil }

func (c *blockingConsole) Close() error {
	c.pw.Close()
	return c.pr.Close()
}

func TestNodeRunReleasesConsoleReader(t *testing.T) {
	c := newBlockingConsole()
	n := New(testConfig(), Deps{
		Sensor:    DisabledSensor{},
		Network:   &fakeNetwork{},
		Publisher: &fakePublisher{},
		Console:   c,
		Closers:   []io.Closer{c},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = n.Run(ctx)

	select {
	case err := <-c.readEnd:
		if err != io.ErrClosedPipe {
			t.Fatalf("Read() = %v, want %v", err, io.ErrClosedPipe)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("console reader still blocked after Run returned")
	}
}

func TestStdioClose(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	s := stdio{in: r}
	done := make(chan error, 1)
	go func() {
		_, err := s.Read(make([]byte, 8))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := s.in.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, os.ErrClosed) {
			t.Fatalf("Read() = %v, want %v", err, os.ErrClosed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read still blocked after Close")
	}
}
