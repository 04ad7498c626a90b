// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bme280

// I²C addresses. SDO low selects the primary address.
const (
	AddrPrimary   uint16 = 0x76
	AddrSecondary uint16 = 0x77
)

const chipID = 0x60

// Register addresses.
const (
	regCalib00  = 0x88 // dig_T1 LSB .. dig_P9 MSB (24 bytes)
	regCalibH1  = 0xA1
	regChipID   = 0xD0
	regReset    = 0xE0
	regCalib26  = 0xE1 // dig_H2 LSB .. dig_H6 (7 bytes)
	regCtrlHum  = 0xF2
	regStatus   = 0xF3
	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regData     = 0xF7 // press_msb .. hum_lsb (8 bytes)
)

const (
	calibTPLen = 24
	calibHLen  = 7
	dataLen    = 8
)

// Status register bits.
const (
	statusMeasuring = 1 << 3
	statusImUpdate  = 1 << 0
)

// Raw codes the sensor reports for a channel whose oversampling is skipped.
const (
	rawSkippedTP = 0x80000
	rawSkippedH  = 0x8000
)

// Oversampling is the oversampling factor of one channel, encoded as the
// ctrl register value.
type Oversampling uint8

const (
	Off  Oversampling = 0
	O1x  Oversampling = 1
	O2x  Oversampling = 2
	O4x  Oversampling = 3
	O8x  Oversampling = 4
	O16x Oversampling = 5
)

// Mode is the power mode written to ctrl_meas[1:0].
type Mode uint8

const (
	Sleep  Mode = 0
	Forced Mode = 1
	Normal Mode = 3
)

// Filter is the IIR filter coefficient code written to config[4:2].
type Filter uint8

const (
	NoFilter Filter = 0
	F2       Filter = 1
	F4       Filter = 2
	F8       Filter = 3
	F16      Filter = 4
)

// Standby is the inactive duration code written to config[7:5], only used in
// normal mode.
type Standby uint8

// BitField describes one field of a register.
type BitField struct {
	Bits        string
	Name        string
	Description string
	Values      string
}

// RegisterInfo describes one device register.
type RegisterInfo struct {
	Address     byte
	Name        string
	Description string
	Access      string // "R", "W", "RW"
	Default     string
	BitFields   []BitField
}

// RegisterMap returns metadata for the control and status registers dumped
// by `envnode registers`.
func RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: regChipID, Name: "id", Description: "Chip identification", Access: "R", Default: "0x60"},
		{Address: regReset, Name: "reset", Description: "Soft reset (write 0xB6)", Access: "W", Default: "0x00"},
		{Address: regCtrlHum, Name: "ctrl_hum", Description: "Humidity acquisition options", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "2:0", Name: "osrs_h", Description: "Humidity oversampling", Values: "0=skipped, 1=x1, 2=x2, 3=x4, 4=x8, 5=x16"},
			}},
		{Address: regStatus, Name: "status", Description: "Device status", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3", Name: "measuring", Description: "Conversion running", Values: "0=done, 1=running"},
				{Bits: "0", Name: "im_update", Description: "NVM data being copied", Values: "0=done, 1=copying"},
			}},
		{Address: regCtrlMeas, Name: "ctrl_meas", Description: "Pressure/temperature acquisition options", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:5", Name: "osrs_t", Description: "Temperature oversampling", Values: "0=skipped, 1=x1, 2=x2, 3=x4, 4=x8, 5=x16"},
				{Bits: "4:2", Name: "osrs_p", Description: "Pressure oversampling", Values: "0=skipped, 1=x1, 2=x2, 3=x4, 4=x8, 5=x16"},
				{Bits: "1:0", Name: "mode", Description: "Power mode", Values: "0=sleep, 1/2=forced, 3=normal"},
			}},
		{Address: regConfig, Name: "config", Description: "Rate, filter and interface options", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:5", Name: "t_sb", Description: "Standby in normal mode", Values: "0=0.5ms, 1=62.5ms, 2=125ms, 3=250ms, 4=500ms, 5=1000ms, 6=10ms, 7=20ms"},
				{Bits: "4:2", Name: "filter", Description: "IIR filter coefficient", Values: "0=off, 1=2, 2=4, 3=8, 4=16"},
				{Bits: "0", Name: "spi3w_en", Description: "3-wire SPI", Values: "0=disabled"},
			}},
	}
}
