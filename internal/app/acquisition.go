// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/envnode/internal/env"
	"github.com/relabs-tech/envnode/internal/handoff"
	"github.com/sirupsen/logrus"
)

var errWrongChip = errors.New("no BME280 answered")

// Acquisition brings the sensor up and samples it periodically. Every
// successful reading is counted and handed to Out, overwriting a reading
// that was not consumed yet.
type Acquisition struct {
	Sensor Sensor
	Out    *handoff.Signal[env.Reading]
	State  *State
	Log    *logrus.Entry

	Interval   time.Duration
	RetryDelay time.Duration
	// MaxConsecutiveErrors failed reads in a row mark the sensor inactive.
	MaxConsecutiveErrors int

	count  uint64
	errRun int
	now    func() time.Time
}

// Run never returns before ctx is done.
func (a *Acquisition) Run(ctx context.Context) error {
	if err := a.bringUp(ctx); err != nil {
		return err
	}
	a.Log.WithField("interval", a.Interval).Info("sampling started")

	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()
	for {
		a.step(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// bringUp identifies and configures the sensor, retrying forever.
func (a *Acquisition) bringUp(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := a.tryBringUp(ctx)
		if err == nil {
			a.State.setSensorActive(true)
			a.Log.WithField("attempt", attempt).Info("sensor ready")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrSensorDisabled) {
			a.Log.Info("sensor disabled, not sampling")
			<-ctx.Done()
			return ctx.Err()
		}
		a.Log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"retry":   a.RetryDelay,
		}).Warn("sensor bring-up failed")
		if err := sleep(ctx, a.RetryDelay); err != nil {
			return err
		}
	}
}

func (a *Acquisition) tryBringUp(ctx context.Context) error {
	ok, err := a.Sensor.CheckID(ctx)
	if err != nil {
		return fmt.Errorf("check id: %w", err)
	}
	if !ok {
		return errWrongChip
	}
	if err := a.Sensor.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return nil
}

// step runs one sampling cycle. A failed read leaves the counter alone.
func (a *Acquisition) step(ctx context.Context) {
	m, err := a.Sensor.ReadMeasurements(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.errRun++
		log := a.Log.WithError(err).WithField("consecutive", a.errRun)
		if a.errRun >= a.MaxConsecutiveErrors {
			a.State.setSensorActive(false)
			log.Error("sensor read failed, sensor inactive")
		} else {
			log.Warn("sensor read failed")
		}
		return
	}
	if a.errRun >= a.MaxConsecutiveErrors {
		a.Log.Info("sensor active again")
	}
	a.errRun = 0
	a.State.setSensorActive(true)

	a.count++
	r := env.Reading{Measurements: m, Count: a.count, Time: a.clock()}
	a.State.recordReading(r)
	a.Out.Signal(r)

	fields := logrus.Fields{"count": r.Count}
	if m.Has(env.Temperature) {
		fields["temperature"] = fmt.Sprintf("%.2f", m.Temperature)
	}
	if m.Has(env.Pressure) {
		fields["pressure"] = fmt.Sprintf("%.2f", m.Pressure)
	}
	if m.Has(env.Humidity) {
		fields["humidity"] = fmt.Sprintf("%.1f", m.Humidity)
	}
	if m.Missing != 0 {
		fields["missing"] = m.Missing.String()
	}
	a.Log.WithFields(fields).Info("reading")
}

func (a *Acquisition) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
