// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"testing"
	"time"
)

func TestMockSensor(t *testing.T) {
	m := NewMockSensor()
	now := m.start
	m.now = func() time.Time { return now }
	ctx := context.Background()
	if ok, err := m.CheckID(ctx); !ok || err != nil {
		t.Fatalf("CheckID() = %t, %v", ok, err)
	}
	for i := 0; i < 100; i++ {
		got, err := m.ReadMeasurements(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Plausible() || got.Humidity < 0 || got.Humidity > 100 || got.Missing != 0 {
			t.Fatalf("implausible simulated reading %+v", got)
		}
		now = now.Add(time.Minute)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.ReadMeasurements(canceled); err == nil {
		t.Fatal("expected error")
	}
}
