// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bme280

import "math"

// Linear humidity model bounds, in raw counts.
const (
	HumidityRawMin = 30000 // 0 %RH
	HumidityRawMax = 65000 // 100 %RH
)

// CompensateTemperature returns the temperature in °C and the fine
// temperature needed by the pressure and humidity compensation.
//
// raw has 20 bits of resolution. This is the 32 bit integer algorithm of the
// BME280 datasheet (section 4.2.3) which yields hundredths of a degree.
func CompensateTemperature(raw int32, c *Calibration) (float64, int32) {
	var1 := (((raw >> 3) - (int32(c.T1) << 1)) * int32(c.T2)) >> 11
	var2 := (((((raw >> 4) - int32(c.T1)) * ((raw >> 4) - int32(c.T1))) >> 12) * int32(c.T3)) >> 14
	tFine := var1 + var2
	t := (tFine*5 + 128) >> 8
	return float64(t) / 100, tFine
}

// CompensatePressure returns the pressure in hPa.
//
// raw has 20 bits of resolution and tFine must come from the temperature
// compensation of the same cycle. The 64 bit integer algorithm produces Pa in
// Q24.8. A zero denominator means the pressure is unavailable and 0 is
// returned.
func CompensatePressure(raw, tFine int32, c *Calibration) float64 {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * int64(c.P6)
	var2 += (var1 * int64(c.P5)) << 17
	var2 += int64(c.P4) << 35
	var1 = ((var1 * var1 * int64(c.P3)) >> 8) + ((var1 * int64(c.P2)) << 12)
	var1 = (((int64(1) << 47) + var1) * int64(c.P1)) >> 33
	if var1 == 0 {
		return 0
	}
	p := 1048576 - int64(raw)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(c.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(c.P8) * p) >> 19
	p = ((p + var1 + var2) >> 8) + (int64(c.P7) << 4)
	return float64(p) / 25600
}

// CompensateHumidity maps raw linearly from [HumidityRawMin, HumidityRawMax]
// onto [0, 100] %RH and scales the result by 1 + (tFine/50000 - 3)/100, a
// first order temperature correction that is neutral at tFine 150000. Codes
// outside the bounds give exactly 0 or 100; inside, the result is clamped to
// [0, 100].
//
// tFine must come from the temperature compensation of the same cycle. It
// ignores the humidity coefficients; CompensateHumidityFull implements the
// datasheet polynomial.
func CompensateHumidity(raw, tFine int32) float64 {
	if raw <= HumidityRawMin {
		return 0
	}
	if raw >= HumidityRawMax {
		return 100
	}
	h := float64(raw-HumidityRawMin) * 100 / (HumidityRawMax - HumidityRawMin)
	h *= 1 + (float64(tFine)/50000-3)*0.01
	return math.Max(0, math.Min(100, h))
}

// CompensateHumidityFull returns the humidity in %RH using the datasheet 32
// bit integer algorithm (Q22.10), clamped to [0, 100].
//
// raw has 16 bits of resolution and tFine must come from the temperature
// compensation of the same cycle.
func CompensateHumidityFull(raw, tFine int32, c *Calibration) float64 {
	x := tFine - 76800
	x = ((((raw << 14) - (int32(c.H4) << 20) - (int32(c.H5) * x)) + 16384) >> 15) *
		(((((((x*int32(c.H6))>>10)*(((x*int32(c.H3))>>11)+32768))>>10)+2097152)*int32(c.H2) + 8192) >> 14)
	x -= ((((x >> 15) * (x >> 15)) >> 7) * int32(c.H1)) >> 4
	if x < 0 {
		x = 0
	}
	if x > 419430400 {
		x = 419430400
	}
	return float64(uint32(x)>>12) / 1024
}
