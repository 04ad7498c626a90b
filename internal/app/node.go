// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/envnode/internal/bme280"
	"github.com/relabs-tech/envnode/internal/config"
	"github.com/relabs-tech/envnode/internal/console"
	"github.com/relabs-tech/envnode/internal/display"
	"github.com/relabs-tech/envnode/internal/env"
	"github.com/relabs-tech/envnode/internal/handoff"
	"github.com/relabs-tech/envnode/internal/netlink"
	"github.com/relabs-tech/envnode/internal/publish"
	"github.com/relabs-tech/envnode/internal/sensors"
)

// Version is reported by the console.
var Version = "dev"

// Deps are the capabilities a node runs with.
type Deps struct {
	Sensor    Sensor
	Network   netlink.Provider
	Publisher publish.Publisher
	// Sinks receive the status report in addition to the log.
	Sinks []StatusSink
	// Console is nil when the console is disabled.
	Console io.ReadWriter
	// Closers are released when Run returns.
	Closers []io.Closer
}

// Node owns the tasks of a running node and the handoff between them.
type Node struct {
	State *State

	acquisition *Acquisition
	publication *Publication
	status      *Status
	console     *console.Console
	closers     []io.Closer
}

// New wires the tasks of a node around d.
func New(cfg *config.Config, d Deps) *Node {
	st := NewState(cfg.DeviceID, time.Now())
	readings := handoff.New[env.Reading]()

	n := &Node{State: st, closers: d.Closers}
	n.acquisition = &Acquisition{
		Sensor:               d.Sensor,
		Out:                  readings,
		State:                st,
		Log:                  logrus.WithField("task", "sensor"),
		Interval:             cfg.Sensor.Interval,
		RetryDelay:           cfg.Sensor.RetryDelay,
		MaxConsecutiveErrors: cfg.Sensor.MaxConsecutiveErrors,
	}
	n.publication = NewPublication(readings, st, d.Network, d.Publisher, cfg.MQTT.Topic, cfg.DeviceID,
		logrus.WithField("task", "mqtt"))

	statusLog := logrus.WithField("task", "status")
	sinks := append([]StatusSink{LogSink{Log: statusLog}}, d.Sinks...)
	n.status = &Status{
		State:    st,
		Network:  d.Network,
		Interval: cfg.Status.Interval,
		Sinks:    sinks,
		Log:      statusLog,
	}
	if d.Console != nil {
		n.console = console.New(d.Console, st, console.Info{
			DeviceID: cfg.DeviceID,
			Version:  Version,
			Sensor:   fmt.Sprintf("%v", d.Sensor),
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			Interval: cfg.Sensor.Interval,
		}, logrus.WithField("task", "console"))
	}
	return n
}

// Build opens the hardware and services selected by cfg and wires a node
// around them.
func Build(cfg *config.Config) (*Node, error) {
	var d Deps
	fail := func(err error) (*Node, error) {
		for _, c := range d.Closers {
			c.Close()
		}
		return nil, err
	}

	d.Sensor = DisabledSensor{}
	if cfg.Features.Sensor {
		bus, err := sensors.OpenI2C(cfg.Sensor.Bus)
		if err != nil {
			return fail(err)
		}
		d.Closers = append(d.Closers, bus)
		opts := cfg.SensorOpts()
		d.Sensor = bme280.New(bus, &opts)
	}

	d.Network = netlink.Disabled{}
	if cfg.Features.Network {
		d.Network = netlink.NewHost(cfg.Network.Interface, cfg.Network.DialTimeout)
	}

	d.Publisher = publish.Disabled{}
	if cfg.Features.MQTT && cfg.Features.Network {
		publish.SetLogger(logrus.WithField("task", "mqtt"))
		d.Publisher = &publish.MQTT{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			QoS:            cfg.MQTT.QoS,
			Retain:         cfg.MQTT.Retain,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			PublishTimeout: cfg.MQTT.PublishTimeout,
			Log:            logrus.WithField("task", "mqtt"),
		}
		if cfg.Status.Publish {
			s := NewBrokerSink(d.Network, d.Publisher, cfg.MQTT.StatusTopic)
			d.Sinks = append(d.Sinks, s)
			d.Closers = append(d.Closers, s)
		}
	}

	if cfg.Display.Enabled {
		bus, err := sensors.OpenI2C(cfg.Display.Bus)
		if err != nil {
			return fail(err)
		}
		d.Closers = append(d.Closers, bus)
		p, err := display.Open(bus, cfg.Display.Addr, cfg.DeviceID)
		if err != nil {
			return fail(err)
		}
		d.Sinks = append(d.Sinks, p)
	}

	if cfg.Features.Console {
		if cfg.Console.Port == "" {
			in := newStdio()
			d.Console = in
			d.Closers = append(d.Closers, in)
		} else {
			port, err := console.OpenSerial(cfg.Console.Port, cfg.Console.Baud)
			if err != nil {
				return fail(err)
			}
			d.Console = port
			d.Closers = append(d.Closers, port)
		}
	}
	return New(cfg, d), nil
}

// Run runs every task until ctx is done. Task failures never stop the
// others. The closers, the console among them, are closed on return, which
// ends the console's reader.
func (n *Node) Run(ctx context.Context) error {
	defer func() {
		for _, c := range n.closers {
			if err := c.Close(); err != nil {
				logrus.WithError(err).Debug("close failed")
			}
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.acquisition.Run(ctx) })
	g.Go(func() error { return n.publication.Run(ctx) })
	g.Go(func() error { return n.status.Run(ctx) })
	if n.console != nil {
		g.Go(func() error {
			// A closed or failing console leaves the node running without one.
			if err := n.console.Run(ctx); err != nil && ctx.Err() == nil {
				logrus.WithField("task", "console").WithError(err).Warn("console stopped")
			}
			<-ctx.Done()
			return ctx.Err()
		})
	}
	logrus.WithField("device_id", n.State.deviceID).Info("node started")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logrus.Info("node stopped")
	return err
}

// stdio is the console on the process's own terminal. Standard input is
// switched to non-blocking mode so that the runtime poller owns it and Close
// wakes the console's pending Read.
type stdio struct{ in *os.File }

func newStdio() stdio {
	if err := syscall.SetNonblock(syscall.Stdin, true); err != nil {
		return stdio{in: os.Stdin}
	}
	return stdio{in: os.NewFile(uintptr(syscall.Stdin), "/dev/stdin")}
}

func (s stdio) Read(b []byte) (int, error) { return s.in.Read(b) }

func (stdio) Write(b []byte) (int, error) { return os.Stdout.Write(b) }

// Close hands the terminal back in blocking mode.
func (s stdio) Close() error {
	_ = syscall.SetNonblock(syscall.Stdin, false)
	return s.in.Close()
}
