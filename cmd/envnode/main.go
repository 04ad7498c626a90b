// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/envnode/internal/app"
	"github.com/relabs-tech/envnode/internal/bme280"
	"github.com/relabs-tech/envnode/internal/config"
	"github.com/relabs-tech/envnode/internal/env"
	"github.com/relabs-tech/envnode/internal/sensors"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "envnode",
	Short:         "BME280 environmental node publishing over MQTT",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "sample the sensor and publish readings until interrupted",
	Long: `run starts the acquisition, publication, status and console tasks.
Configuration is read, by increasing precedence, from the built-in defaults,
the file given by --config or $ENVNODE_CONFIG, ENVNODE_* environment
variables and the command line flags.`,
	Example: `  envnode run --config /etc/envnode.yaml
  ENVNODE_MQTT_BROKER=tcp://10.0.0.2:1883 envnode run --interval 10s`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := load(cmd)
		if err != nil {
			return err
		}
		node, err := app.Build(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return node.Run(ctx)
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "identify the sensor and print its calibration and one reading",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := load(cmd)
		if err != nil {
			return err
		}
		return probe(cmd, cfg)
	},
}

var registersCmd = &cobra.Command{
	Use:   "registers",
	Short: "print the BME280 register map",
	Run: func(cmd *cobra.Command, _ []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDR\tNAME\tACCESS\tDESCRIPTION")
		for _, r := range bme280.RegisterMap() {
			fmt.Fprintf(w, "0x%02X\t%s\t%s\t%s\n", r.Address, r.Name, r.Access, r.Description)
		}
		w.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "inspect the configuration",
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "print the effective configuration as YAML",
	Example: `  envnode config print > /etc/envnode.yaml
  envnode config print --config /etc/envnode.yaml --broker tcp://10.0.0.2:1883`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := load(cmd)
		if err != nil {
			return err
		}
		b, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

func load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg.ConfigureLogging()
	return cfg, nil
}

func probe(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	if buses, err := sensors.I2CBuses(); err == nil {
		fmt.Fprintf(out, "I2C buses: %v\n", buses)
	}
	bus, err := sensors.OpenI2C(cfg.Sensor.Bus)
	if err != nil {
		return err
	}
	defer bus.Close()

	opts := cfg.SensorOpts()
	dev := bme280.New(bus, &opts)
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	ok, err := dev.CheckID(ctx)
	if err != nil {
		return fmt.Errorf("check id: %w", err)
	}
	if !ok {
		return fmt.Errorf("no BME280 at 0x%02X", dev.Addr())
	}
	fmt.Fprintf(out, "BME280 found at 0x%02X\n", dev.Addr())
	if err := dev.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	fmt.Fprintf(out, "calibration: %+v\n", dev.Calibration())

	m, err := dev.ReadMeasurements(ctx)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if m.Has(env.Temperature) {
		fmt.Fprintf(out, "temperature: %.2f °C\n", m.Temperature)
	}
	if m.Has(env.Pressure) {
		fmt.Fprintf(out, "pressure:    %.2f hPa\n", m.Pressure)
	}
	if m.Has(env.Humidity) {
		fmt.Fprintf(out, "humidity:    %.1f %%RH\n", m.Humidity)
	}
	if m.Missing != 0 {
		fmt.Fprintf(out, "missing:     %s\n", m.Missing)
	}

	// Cross-check the compensation against periph's own driver.
	ref, err := sensors.ReferenceSense(bus, dev.Addr())
	if err != nil {
		logrus.WithError(err).Warn("reference read failed")
		return nil
	}
	fmt.Fprintf(out, "periph bmxx80: %.2f °C  %.2f hPa  %.1f %%RH\n", ref.Temperature, ref.Pressure, ref.Humidity)
	return nil
}

func init() {
	def := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "configuration file (default $"+config.ConfigFileEnv+")")
	pf.String("device-id", def.DeviceID, "device id reported in payloads")
	pf.String("bus", def.Sensor.Bus, "I2C bus name, empty for the first bus")
	pf.Uint16("addr", def.Sensor.Addr, "BME280 address, 0x76, 0x77 or 0 to try both")
	pf.Duration("interval", def.Sensor.Interval, "sampling interval")
	pf.String("humidity-model", def.Sensor.HumidityModel, "humidity compensation, linear or full")
	pf.String("broker", def.MQTT.Broker, "MQTT broker URL")
	pf.String("topic", def.MQTT.Topic, "MQTT topic for readings")
	pf.String("console-port", def.Console.Port, "serial port of the console, empty for stdin/stdout")
	pf.String("log-level", def.Log.Level, "log level")

	configCmd.AddCommand(configPrintCmd)
	rootCmd.AddCommand(runCmd, probeCmd, registersCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("envnode failed")
	}
}
