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
)

func main() {
	def := config.Default()
	fs := pflag.NewFlagSet("web", pflag.ExitOnError)
	path := fs.String("config", "", "configuration file (default $"+config.ConfigFileEnv+")")
	fs.String("broker", def.MQTT.Broker, "MQTT broker URL")
	fs.String("topic", def.MQTT.Topic, "MQTT topic for readings")
	fs.String("listen", def.Web.Listen, "dashboard listen address")
	fs.String("log-level", def.Log.Level, "log level")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*path, fs)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	cfg.ConfigureLogging()
	logrus.Info("starting envnode web dashboard (MQTT subscriber)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunWeb(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("web dashboard failed")
	}
}
