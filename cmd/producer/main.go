// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/relabs-tech/envnode/internal/app"
	"github.com/relabs-tech/envnode/internal/config"
	"github.com/relabs-tech/envnode/internal/netlink"
	"github.com/relabs-tech/envnode/internal/publish"
)

// producer runs a node with a simulated sensor, for exercising the broker
// and the dashboard without hardware.
func main() {
	def := config.Default()
	fs := pflag.NewFlagSet("producer", pflag.ExitOnError)
	path := fs.String("config", "", "configuration file (default $"+config.ConfigFileEnv+")")
	fs.String("device-id", def.DeviceID+"-mock", "device id reported in payloads")
	fs.String("broker", def.MQTT.Broker, "MQTT broker URL")
	fs.String("topic", def.MQTT.Topic, "MQTT topic for readings")
	fs.Duration("interval", def.Sensor.Interval, "sampling interval")
	fs.String("log-level", def.Log.Level, "log level")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*path, fs)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	cfg.ConfigureLogging()
	logrus.Info("starting envnode MQTT producer (mock)")

	publish.SetLogger(logrus.WithField("task", "mqtt"))
	network := netlink.NewHost(cfg.Network.Interface, cfg.Network.DialTimeout)
	node := app.New(cfg, app.Deps{
		Sensor:  app.NewMockSensor(),
		Network: network,
		Publisher: &publish.MQTT{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID + "-mock",
			QoS:            cfg.MQTT.QoS,
			Retain:         cfg.MQTT.Retain,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			PublishTimeout: cfg.MQTT.PublishTimeout,
			Log:            logrus.WithField("task", "mqtt"),
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := node.Run(ctx); err != nil {
		logrus.WithError(err).Fatal("producer failed")
	}
}
