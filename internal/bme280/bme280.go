// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bme280 drives a Bosch BME280 temperature/pressure/humidity sensor
// over I²C and converts its raw codes with the factory calibration.
package bme280

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/envnode/internal/env"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var (
	// ErrNotIdentified is returned by Init when CheckID did not succeed first.
	ErrNotIdentified = errors.New("bme280: device not identified")
	// ErrNotReady is returned by reads before Init succeeded.
	ErrNotReady = errors.New("bme280: device not initialized")
)

// BusError reports a failed bus transaction.
type BusError struct {
	Op   string // "read" or "write"
	Addr uint16
	Reg  byte
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bme280: %s reg 0x%02X at 0x%02X: %v", e.Op, e.Reg, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// HumidityModel selects the humidity conversion.
type HumidityModel uint8

const (
	// Linear maps the raw code onto [0,100] %RH, see CompensateHumidity.
	Linear HumidityModel = iota
	// Full is the datasheet polynomial, see CompensateHumidityFull.
	Full
)

// Opts holds the configuration options for the device.
type Opts struct {
	// Addr is the 7 bit I²C address. 0 tries AddrPrimary then AddrSecondary.
	Addr uint16

	Temperature Oversampling
	Pressure    Oversampling
	Humidity    Oversampling

	Mode    Mode
	Filter  Filter
	Standby Standby

	HumidityModel HumidityModel

	// PollInterval is the wait between two status reads while a forced
	// conversion runs. PollAttempts bounds the number of status reads; the
	// data block is read anyway once it is exhausted.
	PollInterval time.Duration
	PollAttempts int
}

// DefaultOpts is x1 oversampling on every channel in forced mode, filter off.
var DefaultOpts = Opts{
	Addr:         AddrPrimary,
	Temperature:  O1x,
	Pressure:     O1x,
	Humidity:     O1x,
	Mode:         Forced,
	Filter:       NoFilter,
	PollInterval: time.Millisecond,
	PollAttempts: 100,
}

// State is the bring-up state of the driver.
type State uint8

const (
	Uninitialized State = iota
	Identified
	Ready
	Reading
	Faulted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Identified:
		return "identified"
	case Ready:
		return "ready"
	case Reading:
		return "reading"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// RawSample is one burst of raw ADC codes. Channels in Missing were skipped
// by the device and their codes hold the skipped pattern.
type RawSample struct {
	Temperature int32
	Pressure    int32
	Humidity    int32
	Missing     env.Channel
}

// Dev is a handle to a BME280. It owns the bus device and the calibration.
type Dev struct {
	d    i2c.Dev
	opts Opts

	mu    sync.Mutex
	state State
	cal   Calibration
}

// New returns a driver for the sensor on b. It does not touch the bus.
// opts can be nil.
func New(b i2c.Bus, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultOpts.PollInterval
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = DefaultOpts.PollAttempts
	}
	return &Dev{d: i2c.Dev{Bus: b, Addr: o.Addr}, opts: o}
}

func (d *Dev) String() string {
	return fmt.Sprintf("BME280{%s, 0x%02X}", d.d.Bus, d.d.Addr)
}

// Addr returns the address in use, which is only known after CheckID when
// auto-detection was requested.
func (d *Dev) Addr() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.d.Addr
}

// State returns the current bring-up state.
func (d *Dev) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Calibration returns a copy of the coefficients loaded by Init.
func (d *Dev) Calibration() Calibration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal
}

// CheckID reads the chip id register. It returns false when a device answers
// with another id and an error when the bus transaction fails.
func (d *Dev) CheckID(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if d.opts.Addr != 0 {
		return d.checkIDAt(d.opts.Addr)
	}
	ok, err := d.checkIDAt(AddrPrimary)
	if ok {
		return true, nil
	}
	ok2, err2 := d.checkIDAt(AddrSecondary)
	if ok2 || err2 == nil {
		return ok2, nil
	}
	if err != nil {
		return false, err
	}
	return false, err2
}

func (d *Dev) checkIDAt(addr uint16) (bool, error) {
	d.d.Addr = addr
	var id [1]byte
	if err := d.readReg(regChipID, id[:]); err != nil {
		return false, err
	}
	if id[0] != chipID {
		d.state = Uninitialized
		return false, nil
	}
	if d.state == Uninitialized {
		d.state = Identified
	}
	return true, nil
}

// Init loads the calibration and programs the acquisition registers. It is
// also the recovery path out of Faulted.
func (d *Dev) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.state == Uninitialized {
		return ErrNotIdentified
	}
	return d.init()
}

func (d *Dev) init() error {
	var tp [calibTPLen]byte
	if err := d.readReg(regCalib00, tp[:]); err != nil {
		return err
	}
	var h1 [1]byte
	if err := d.readReg(regCalibH1, h1[:]); err != nil {
		return err
	}
	var h [calibHLen]byte
	if err := d.readReg(regCalib26, h[:]); err != nil {
		return err
	}
	d.cal = parseCalibration(tp[:], h1[0], h[:])

	if err := d.writeReg(regConfig, d.configValue()); err != nil {
		return err
	}
	// ctrl_hum only takes effect after a write to ctrl_meas.
	if err := d.writeReg(regCtrlHum, byte(d.opts.Humidity)); err != nil {
		return err
	}
	if err := d.writeReg(regCtrlMeas, d.ctrlMeasValue()); err != nil {
		return err
	}
	d.state = Ready
	return nil
}

// ReadRaw triggers a conversion when in forced mode and reads the raw data
// block.
func (d *Dev) ReadRaw(ctx context.Context) (RawSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.prepare(ctx); err != nil {
		return RawSample{}, err
	}
	return d.readRaw(ctx)
}

// ReadMeasurements reads one raw sample and compensates it, temperature
// first since pressure and humidity need its fine temperature.
func (d *Dev) ReadMeasurements(ctx context.Context) (env.Measurements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.prepare(ctx); err != nil {
		return env.Measurements{}, err
	}
	raw, err := d.readRaw(ctx)
	if err != nil {
		return env.Measurements{}, err
	}
	return d.compensate(raw), nil
}

// Sense implements the periph physic.SenseEnv Sense method.
func (d *Dev) Sense(e *physic.Env) error {
	m, err := d.ReadMeasurements(context.Background())
	if err != nil {
		return err
	}
	if m.Has(env.Temperature) {
		e.Temperature = physic.Temperature(m.Temperature*float64(physic.Kelvin)) + physic.ZeroCelsius
	}
	if m.Has(env.Pressure) {
		e.Pressure = physic.Pressure(m.Pressure * 100 * float64(physic.Pascal))
	}
	if m.Has(env.Humidity) {
		e.Humidity = physic.RelativeHumidity(m.Humidity * float64(physic.PercentRH))
	}
	return nil
}

// prepare must be called with d.mu held.
func (d *Dev) prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch d.state {
	case Ready:
		return nil
	case Faulted:
		// Register contents cannot be trusted after a bus error.
		return d.init()
	}
	return ErrNotReady
}

// readRaw must be called with d.mu held.
func (d *Dev) readRaw(ctx context.Context) (RawSample, error) {
	d.state = Reading
	if d.opts.Mode == Forced {
		if err := d.writeReg(regCtrlHum, byte(d.opts.Humidity)); err != nil {
			return RawSample{}, err
		}
		if err := d.writeReg(regCtrlMeas, d.ctrlMeasValue()); err != nil {
			return RawSample{}, err
		}
		if err := d.waitIdle(ctx); err != nil {
			return RawSample{}, err
		}
	}
	var buf [dataLen]byte
	if err := d.readReg(regData, buf[:]); err != nil {
		return RawSample{}, err
	}
	d.state = Ready
	return decodeRaw(buf[:], d.opts), nil
}

func (d *Dev) waitIdle(ctx context.Context) error {
	var st [1]byte
	for i := 0; i < d.opts.PollAttempts; i++ {
		if err := d.readReg(regStatus, st[:]); err != nil {
			return err
		}
		if st[0]&(statusMeasuring|statusImUpdate) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			d.state = Ready
			return ctx.Err()
		case <-time.After(d.opts.PollInterval):
		}
	}
	return nil
}

func (d *Dev) compensate(raw RawSample) env.Measurements {
	m := env.Measurements{Missing: raw.Missing}
	var tFine int32
	if m.Has(env.Temperature) {
		m.Temperature, tFine = CompensateTemperature(raw.Temperature, &d.cal)
	} else {
		// Pressure and humidity need the fine temperature of this cycle.
		m.Missing |= env.Pressure | env.Humidity
	}
	if m.Has(env.Pressure) {
		m.Pressure = CompensatePressure(raw.Pressure, tFine, &d.cal)
	}
	if m.Has(env.Humidity) {
		if d.opts.HumidityModel == Full {
			m.Humidity = CompensateHumidityFull(raw.Humidity, tFine, &d.cal)
		} else {
			m.Humidity = CompensateHumidity(raw.Humidity, tFine)
		}
	}
	return m
}

// decodeRaw unpacks press_msb..hum_lsb: 20 bit pressure, 20 bit temperature
// and 16 bit humidity.
func decodeRaw(b []byte, o Opts) RawSample {
	r := RawSample{
		Pressure:    int32(b[0])<<12 | int32(b[1])<<4 | int32(b[2])>>4,
		Temperature: int32(b[3])<<12 | int32(b[4])<<4 | int32(b[5])>>4,
		Humidity:    int32(b[6])<<8 | int32(b[7]),
	}
	if r.Temperature == rawSkippedTP || o.Temperature == Off {
		r.Missing |= env.Temperature
	}
	if r.Pressure == rawSkippedTP || o.Pressure == Off {
		r.Missing |= env.Pressure
	}
	if r.Humidity == rawSkippedH || o.Humidity == Off {
		r.Missing |= env.Humidity
	}
	return r
}

func (d *Dev) ctrlMeasValue() byte {
	return byte(d.opts.Temperature)<<5 | byte(d.opts.Pressure)<<2 | byte(d.opts.Mode)
}

func (d *Dev) configValue() byte {
	return byte(d.opts.Standby)<<5 | byte(d.opts.Filter)<<2
}

func (d *Dev) readReg(reg byte, b []byte) error {
	if err := d.d.Tx([]byte{reg}, b); err != nil {
		d.fault()
		return &BusError{Op: "read", Addr: d.d.Addr, Reg: reg, Err: err}
	}
	return nil
}

func (d *Dev) writeReg(reg, v byte) error {
	if err := d.d.Tx([]byte{reg, v}, nil); err != nil {
		d.fault()
		return &BusError{Op: "write", Addr: d.d.Addr, Reg: reg, Err: err}
	}
	return nil
}

// fault records a bus failure. A device that never identified stays
// Uninitialized so that bring-up restarts from CheckID.
func (d *Dev) fault() {
	if d.state != Uninitialized {
		d.state = Faulted
	}
}
