// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"

	"github.com/relabs-tech/envnode/internal/env"
)

// ErrSensorDisabled is returned by DisabledSensor.
var ErrSensorDisabled = errors.New("sensor disabled")

// Sensor is the acquisition side of the environmental sensor. *bme280.Dev
// implements it.
type Sensor interface {
	CheckID(ctx context.Context) (bool, error)
	Init(ctx context.Context) error
	ReadMeasurements(ctx context.Context) (env.Measurements, error)
}

// DisabledSensor is the sensor of a node built without one. It never
// identifies.
type DisabledSensor struct{}

func (DisabledSensor) String() string { return "disabled" }

func (DisabledSensor) CheckID(context.Context) (bool, error) { return false, ErrSensorDisabled }

func (DisabledSensor) Init(context.Context) error { return ErrSensorDisabled }

func (DisabledSensor) ReadMeasurements(context.Context) (env.Measurements, error) {
	return env.Measurements{}, ErrSensorDisabled
}
