// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"math"
	"time"

	"github.com/relabs-tech/envnode/internal/env"
)

// MockSensor produces slowly drifting indoor conditions without hardware.
type MockSensor struct {
	start time.Time
	now   func() time.Time
}

// NewMockSensor returns a simulated sensor whose curves start now.
func NewMockSensor() *MockSensor {
	return &MockSensor{start: time.Now(), now: time.Now}
}

func (*MockSensor) String() string { return "BME280 (simulated)" }

func (*MockSensor) CheckID(ctx context.Context) (bool, error) { return ctx.Err() == nil, ctx.Err() }

func (*MockSensor) Init(ctx context.Context) error { return ctx.Err() }

// ReadMeasurements implements Sensor.
func (m *MockSensor) ReadMeasurements(ctx context.Context) (env.Measurements, error) {
	if err := ctx.Err(); err != nil {
		return env.Measurements{}, err
	}
	elapsed := m.now().Sub(m.start).Seconds()
	h := 50 + 10*math.Sin(elapsed/300)
	return env.Measurements{
		Temperature: math.Round((22+3*math.Sin(elapsed/600))*100) / 100,
		Pressure:    1013.25 + 2*math.Cos(elapsed/1800),
		Humidity:    math.Max(0, math.Min(100, h)),
	}, nil
}
