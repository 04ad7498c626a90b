// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bme280

import (
	"math"
	"testing"
)

// sampleCal is the coefficient set published in the BME280 datasheet
// example.
// refTFine is the fine temperature of the datasheet example (25.08 °C).
// neutralTFine leaves the linear humidity unscaled.
const (
	refTFine     = 128422
	neutralTFine = 150000
)

var sampleCal = Calibration{
	T1: 27504, T2: 26435, T3: -1000,
	P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
	H1: 75, H2: 367, H3: 0, H4: 301, H5: 50, H6: 30,
}

func TestCompensateReference(t *testing.T) {
	temp, tFine := CompensateTemperature(519888, &sampleCal)
	if temp != 25.08 {
		t.Fatalf("temperature = %v, want 25.08", temp)
	}
	if tFine != 128422 {
		t.Fatalf("tFine = %d, want 128422", tFine)
	}
	p := CompensatePressure(415148, tFine, &sampleCal)
	if math.Abs(p-1006.5325) > 0.01 {
		t.Fatalf("pressure = %v, want ~1006.53", p)
	}
	if h := CompensateHumidityFull(30000, tFine, &sampleCal); h != 60.0771484375 {
		t.Fatalf("full humidity = %v", h)
	}
}

func TestCompensateDeterministic(t *testing.T) {
	t1, f1 := CompensateTemperature(519888, &sampleCal)
	t2, f2 := CompensateTemperature(519888, &sampleCal)
	if math.Float64bits(t1) != math.Float64bits(t2) || f1 != f2 {
		t.Fatalf("temperature not deterministic: %v/%d vs %v/%d", t1, f1, t2, f2)
	}
	p1 := CompensatePressure(415148, f1, &sampleCal)
	p2 := CompensatePressure(415148, f2, &sampleCal)
	if math.Float64bits(p1) != math.Float64bits(p2) {
		t.Fatalf("pressure not deterministic: %v vs %v", p1, p2)
	}
	for _, raw := range []int32{0, 29999, 41234, 65535} {
		if a, b := CompensateHumidity(raw, refTFine), CompensateHumidity(raw, refTFine); math.Float64bits(a) != math.Float64bits(b) {
			t.Fatalf("humidity(%d) not deterministic: %v vs %v", raw, a, b)
		}
	}
}

func TestCompensatePressureDependsOnFineTemperature(t *testing.T) {
	_, tFine := CompensateTemperature(519888, &sampleCal)
	want := CompensatePressure(415148, tFine, &sampleCal)
	if got := CompensatePressure(415148, tFine+1000, &sampleCal); got == want {
		t.Fatalf("pressure ignored tFine: %v", got)
	}
	// A stale fine temperature from a cooler cycle.
	_, stale := CompensateTemperature(519000, &sampleCal)
	if stale == tFine {
		t.Fatal("test needs two different fine temperatures")
	}
	if got := CompensatePressure(415148, stale, &sampleCal); got == want {
		t.Fatalf("pressure ignored stale tFine: %v", got)
	}
	if a, b := CompensateHumidityFull(30000, tFine, &sampleCal), CompensateHumidityFull(30000, tFine+5000, &sampleCal); a == b {
		t.Fatalf("full humidity ignored tFine: %v", a)
	}
	if a, b := CompensateHumidity(47500, tFine), CompensateHumidity(47500, stale); a == b {
		t.Fatalf("linear humidity ignored tFine: %v", a)
	}
	if a, b := CompensateHumidity(47500, tFine), CompensateHumidity(47500, tFine); a != b {
		t.Fatalf("linear humidity changed with the same tFine: %v vs %v", a, b)
	}
}

func TestCompensatePressureZeroDenominator(t *testing.T) {
	c := sampleCal
	c.P1 = 0
	_, tFine := CompensateTemperature(519888, &c)
	p := CompensatePressure(415148, tFine, &c)
	if p != 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		t.Fatalf("pressure = %v, want 0", p)
	}
}

func TestCompensateHumidityClamp(t *testing.T) {
	data := []struct {
		raw   int32
		tFine int32
		want  float64
	}{
		{0, refTFine, 0},
		{HumidityRawMin - 1, refTFine, 0},
		{HumidityRawMin, refTFine, 0},
		{47500, neutralTFine, 50},
		{HumidityRawMax, refTFine, 100},
		{HumidityRawMax + 1, refTFine, 100},
		{math.MaxUint16, refTFine, 100},
		// A warm cycle scales near-saturated codes past 100.
		{64000, 400000, 100},
	}
	for _, d := range data {
		if got := CompensateHumidity(d.raw, d.tFine); got != d.want {
			t.Errorf("CompensateHumidity(%d, %d) = %v, want %v", d.raw, d.tFine, got, d.want)
		}
	}
}

func TestCompensateHumidityTemperatureFactor(t *testing.T) {
	// 50 %RH scaled by 1 + (128422/50000 - 3)/100.
	if got := CompensateHumidity(47500, refTFine); math.Abs(got-49.78422) > 1e-9 {
		t.Fatalf("CompensateHumidity(47500, %d) = %v, want 49.78422", refTFine, got)
	}
	if cool, warm := CompensateHumidity(47500, 100000), CompensateHumidity(47500, 200000); cool >= warm {
		t.Fatalf("humidity not increasing with tFine: %v >= %v", cool, warm)
	}
}

func TestCompensateHumidityMonotonic(t *testing.T) {
	prev := CompensateHumidity(HumidityRawMin, refTFine)
	for raw := int32(HumidityRawMin + 1); raw < HumidityRawMax; raw++ {
		h := CompensateHumidity(raw, refTFine)
		if h <= prev {
			t.Fatalf("not strictly increasing at %d: %v <= %v", raw, h, prev)
		}
		if h < 0 || h > 100 {
			t.Fatalf("out of range at %d: %v", raw, h)
		}
		prev = h
	}
}

func TestCompensateHumidityFullClamp(t *testing.T) {
	_, tFine := CompensateTemperature(519888, &sampleCal)
	for _, raw := range []int32{0, 20000, 30000, 50000, 65535} {
		h := CompensateHumidityFull(raw, tFine, &sampleCal)
		if h < 0 || h > 100 {
			t.Errorf("CompensateHumidityFull(%d) = %v", raw, h)
		}
	}
}
