package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/relabs-tech/envnode/internal/env"
)

// ReferenceSense reads one sample at addr with the periph bmxx80 driver,
// which compensates in its own code path. It reprograms the sensor, so it is
// only meant for one-shot checks of the node's own driver.
func ReferenceSense(bus i2c.Bus, addr uint16) (env.Measurements, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return env.Measurements{}, fmt.Errorf("bmxx80 at 0x%02X: %w", addr, err)
	}
	defer dev.Halt()

	var e physic.Env
	if err := dev.Sense(&e); err != nil {
		return env.Measurements{}, fmt.Errorf("bmxx80 sense: %w", err)
	}
	return fromEnv(e), nil
}

// fromEnv converts a periph sample to engineering units.
func fromEnv(e physic.Env) env.Measurements {
	return env.Measurements{
		Temperature: e.Temperature.Celsius(),
		Pressure:    float64(e.Pressure) / float64(physic.Pascal) / 100,
		Humidity:    float64(e.Humidity) / float64(physic.PercentRH),
	}
}
