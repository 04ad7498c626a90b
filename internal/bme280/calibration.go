// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bme280

import "encoding/binary"

// Calibration holds the factory trimming coefficients read once from the
// device NVM.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16 // 12 bits, sign extended
	H5 int16 // 12 bits, sign extended
	H6 int8
}

// parseCalibration decodes the 0x88..0x9F block (tp), register 0xA1 (h1) and
// the 0xE1..0xE7 block (h).
func parseCalibration(tp []byte, h1 byte, h []byte) Calibration {
	le := binary.LittleEndian
	c := Calibration{
		T1: le.Uint16(tp[0:]),
		T2: int16(le.Uint16(tp[2:])),
		T3: int16(le.Uint16(tp[4:])),
		P1: le.Uint16(tp[6:]),
		P2: int16(le.Uint16(tp[8:])),
		P3: int16(le.Uint16(tp[10:])),
		P4: int16(le.Uint16(tp[12:])),
		P5: int16(le.Uint16(tp[14:])),
		P6: int16(le.Uint16(tp[16:])),
		P7: int16(le.Uint16(tp[18:])),
		P8: int16(le.Uint16(tp[20:])),
		P9: int16(le.Uint16(tp[22:])),
		H1: h1,
		H2: int16(le.Uint16(h[0:])),
		H3: h[2],
		H6: int8(h[6]),
	}
	// 0xE4 holds H4[11:4], 0xE5[3:0] holds H4[3:0].
	// 0xE6 holds H5[11:4], 0xE5[7:4] holds H5[3:0].
	c.H4 = signExtend12(uint16(h[3])<<4 | uint16(h[4]&0x0F))
	c.H5 = signExtend12(uint16(h[5])<<4 | uint16(h[4]>>4))
	return c
}

func signExtend12(v uint16) int16 {
	if v&0x800 != 0 {
		return int16(v) - 0x1000
	}
	return int16(v)
}
