// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/relabs-tech/envnode/internal/env"
	"github.com/relabs-tech/envnode/internal/handoff"
	"github.com/relabs-tech/envnode/internal/publish"
)

const topic = "esp32/sensor/bme280"

func newPublication(n *fakeNetwork, p publish.Publisher) *Publication {
	return NewPublication(handoff.New[env.Reading](), NewState("node-1", time.Now()), n, p, topic, "node-1", nullLog())
}

func reading(count uint64) env.Reading {
	return env.Reading{
		Measurements: env.Measurements{Temperature: 25.08, Pressure: 1006.53, Humidity: 50},
		Count:        count,
		Time:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublishReading(t *testing.T) {
	fp := &fakePublisher{}
	p := newPublication(&fakeNetwork{}, fp)
	p.publish(context.Background(), reading(7))

	msgs := fp.messages()
	if len(msgs) != 1 || msgs[0].topic != topic {
		t.Fatalf("messages = %+v", msgs)
	}
	var got env.Payload
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatal(err)
	}
	want := env.NewPayload("node-1", reading(7))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload (-want +got):\n%s", diff)
	}
	st := p.State.Status()
	if st.Published != 1 || st.PublishFailures != 0 || !st.NetworkConnected {
		t.Fatalf("status = %+v", st)
	}
}

func TestPublishReusesSession(t *testing.T) {
	fp := &fakePublisher{}
	p := newPublication(&fakeNetwork{}, fp)
	for i := uint64(1); i <= 3; i++ {
		p.publish(context.Background(), reading(i))
	}
	if fp.connects != 1 || len(fp.messages()) != 3 {
		t.Fatalf("connects = %d, messages = %d", fp.connects, len(fp.messages()))
	}
}

func TestPublishFailureDropsReading(t *testing.T) {
	fp := &fakePublisher{publishErr: errors.New("broker gone")}
	p := newPublication(&fakeNetwork{}, fp)
	p.publish(context.Background(), reading(1))
	if st := p.State.Status(); st.PublishFailures != 1 || st.Published != 0 {
		t.Fatalf("status = %+v", st)
	}
	if fp.closed != 1 {
		t.Fatalf("session not closed after failure")
	}

	fp.publishErr = nil
	p.publish(context.Background(), reading(2))
	msgs := fp.messages()
	if len(msgs) != 1 || fp.connects != 2 {
		t.Fatalf("messages = %d, connects = %d", len(msgs), fp.connects)
	}
	var got env.Payload
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil || got.Count != 2 {
		t.Fatalf("published %s (%v), want reading #2", msgs[0].payload, err)
	}
}

func TestPublishConnectFailure(t *testing.T) {
	fp := &fakePublisher{connectErr: errors.New("connection refused")}
	p := newPublication(&fakeNetwork{}, fp)
	p.publish(context.Background(), reading(1))
	p.publish(context.Background(), reading(2))
	if st := p.State.Status(); st.PublishFailures != 2 {
		t.Fatalf("status = %+v", st)
	}
	if fp.connects != 2 {
		t.Fatalf("connects = %d, want one per reading", fp.connects)
	}
}

func TestPublishNetworkDown(t *testing.T) {
	n := &fakeNetwork{}
	n.down.Store(true)
	fp := &fakePublisher{}
	p := newPublication(n, fp)
	p.State.setNetworkConnected(true)
	p.publish(context.Background(), reading(1))
	if fp.connects != 0 {
		t.Fatal("connected without network")
	}
	if st := p.State.Status(); st.NetworkConnected || st.PublishFailures != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestPublishDisabled(t *testing.T) {
	p := newPublication(&fakeNetwork{}, publish.Disabled{})
	p.publish(context.Background(), reading(1))
	if st := p.State.Status(); st.PublishFailures != 0 || st.Published != 0 {
		t.Fatalf("status = %+v", st)
	}
}

// A blocked broker must neither stall acquisition nor queue stale readings.
func TestPublicationIsolatedFromAcquisition(t *testing.T) {
	fp := &fakePublisher{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	a := newAcquisition(&fakeSensor{})
	p := NewPublication(a.Out, a.State, &fakeNetwork{}, fp, topic, "node-1", nullLog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	a.step(ctx)
	select {
	case <-fp.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("publication never picked up reading #1")
	}

	stepped := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			a.step(ctx)
		}
		close(stepped)
	}()
	select {
	case <-stepped:
	case <-time.After(5 * time.Second):
		t.Fatal("acquisition blocked behind the broker")
	}

	close(fp.block)
	deadline := time.Now().Add(5 * time.Second)
	for len(fp.messages()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("published %d readings", len(fp.messages()))
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	var counts []uint64
	for _, m := range fp.messages() {
		var pl env.Payload
		if err := json.Unmarshal(m.payload, &pl); err != nil {
			t.Fatal(err)
		}
		counts = append(counts, pl.Count)
	}
	if diff := cmp.Diff([]uint64{1, 5}, counts); diff != "" {
		t.Fatalf("published counts (-want +got):\n%s", diff)
	}
}
