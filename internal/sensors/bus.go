package sensors

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// initHost loads the periph host drivers once per process.
func initHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = fmt.Errorf("periph host init: %w", err)
		}
	})
	return hostErr
}

// OpenI2C opens the named I²C bus. An empty name opens the first bus
// registered on the host, "1" opens /dev/i2c-1.
func OpenI2C(name string) (i2c.BusCloser, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		if name == "" {
			name = "default"
		}
		return nil, fmt.Errorf("i2c open %s: %w", name, err)
	}
	return bus, nil
}

// I2CBuses lists the names of the registered I²C buses.
func I2CBuses() ([]string, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	var names []string
	for _, r := range i2creg.All() {
		names = append(names, r.Name)
	}
	return names, nil
}
