// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

import (
	"strings"
	"time"
)

// Channel identifies one measurement channel of the environmental sensor.
type Channel uint8

const (
	Temperature Channel = 1 << iota
	Pressure
	Humidity
)

func (c Channel) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c&Temperature != 0 {
		parts = append(parts, "temperature")
	}
	if c&Pressure != 0 {
		parts = append(parts, "pressure")
	}
	if c&Humidity != 0 {
		parts = append(parts, "humidity")
	}
	return strings.Join(parts, "|")
}

// Measurements is one compensated sample in engineering units.
// Channels listed in Missing were not sampled; their values are meaningless.
type Measurements struct {
	Temperature float64 // °C
	Pressure    float64 // hPa
	Humidity    float64 // %RH, clamped to [0,100]
	Missing     Channel
}

// Has reports whether the channel carries a value.
func (m Measurements) Has(c Channel) bool {
	return m.Missing&c == 0
}

// Plausible reports whether the present channels are inside the sensor's
// operating range. Out-of-range values are only logged by consumers.
func (m Measurements) Plausible() bool {
	if m.Has(Temperature) && (m.Temperature < -40 || m.Temperature > 85) {
		return false
	}
	if m.Has(Pressure) && (m.Pressure < 300 || m.Pressure > 1100) {
		return false
	}
	return true
}

// Reading is a Measurements value stamped with the acquisition counter.
// It is what the acquisition loop hands to its consumers.
type Reading struct {
	Measurements
	Count uint64
	Time  time.Time
}

// Payload is the JSON schema published for every reading.
// Missing channels are omitted instead of being sent as zero.
type Payload struct {
	DeviceID    string   `json:"device_id,omitempty"`
	Sensor      string   `json:"sensor"`
	Count       uint64   `json:"count"`
	Temperature *float64 `json:"temperature,omitempty"` // °C
	Pressure    *float64 `json:"pressure,omitempty"`    // hPa
	Humidity    *float64 `json:"humidity,omitempty"`    // %RH
	Timestamp   string   `json:"timestamp"`             // RFC3339
}

// NewPayload maps a reading onto its wire form.
func NewPayload(deviceID string, r Reading) Payload {
	p := Payload{
		DeviceID:  deviceID,
		Sensor:    "BME280",
		Count:     r.Count,
		Timestamp: r.Time.UTC().Format(time.RFC3339),
	}
	if r.Has(Temperature) {
		t := r.Temperature
		p.Temperature = &t
	}
	if r.Has(Pressure) {
		v := r.Pressure
		p.Pressure = &v
	}
	if r.Has(Humidity) {
		h := r.Humidity
		p.Humidity = &h
	}
	return p
}

// DeviceStatus is the periodic diagnostic report of the node.
type DeviceStatus struct {
	DeviceID         string `json:"device_id,omitempty"`
	Status           string `json:"status"` // "online", "degraded"
	UptimeSeconds    uint64 `json:"uptime"`
	Readings         uint64 `json:"readings"`
	Published        uint64 `json:"published"`
	PublishFailures  uint64 `json:"publish_failures"`
	SensorActive     bool   `json:"sensor_active"`
	NetworkConnected bool   `json:"network_connected"`
	Timestamp        string `json:"timestamp"`
}
