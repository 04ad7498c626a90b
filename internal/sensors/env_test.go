package sensors

import (
	"math"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func TestFromEnv(t *testing.T) {
	e := physic.Env{
		Temperature: physic.ZeroCelsius + 25*physic.Kelvin,
		Pressure:    100653 * physic.Pascal,
		Humidity:    50 * physic.PercentRH,
	}
	m := fromEnv(e)
	if math.Abs(m.Temperature-25) > 1e-6 {
		t.Errorf("temperature = %v", m.Temperature)
	}
	if math.Abs(m.Pressure-1006.53) > 1e-6 {
		t.Errorf("pressure = %v", m.Pressure)
	}
	if m.Humidity != 50 {
		t.Errorf("humidity = %v", m.Humidity)
	}
	if m.Missing != 0 {
		t.Errorf("missing = %s", m.Missing)
	}
}

func TestReferenceSenseBusError(t *testing.T) {
	// No scripted transactions: the chip id read fails.
	bus := &i2ctest.Playback{DontPanic: true}
	if _, err := ReferenceSense(bus, 0x76); err == nil {
		t.Fatal("expected error")
	}
}

func TestReferenceSenseBadAddress(t *testing.T) {
	bus := &i2ctest.Record{}
	if _, err := ReferenceSense(bus, 0x40); err == nil {
		t.Fatal("expected error")
	}
}
