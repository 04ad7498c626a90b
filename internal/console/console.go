// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package console implements the interactive command console of the node,
// served over a serial port or stdin/stdout.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/envnode/internal/env"
)

const (
	// Prompt is printed before every command line.
	Prompt = "iot> "

	maxLine    = 128
	maxHistory = 10
)

// Source provides the live node state the commands report.
type Source interface {
	Status() env.DeviceStatus
	Latest() (env.Reading, bool)
}

// Info is the static node description shown by "info".
type Info struct {
	DeviceID string
	Version  string
	Sensor   string // e.g. "BME280 I2C 0x76"
	Broker   string
	Topic    string
	Interval time.Duration
}

// Console is a line editor with a fixed command table.
type Console struct {
	rw   io.ReadWriter
	src  Source
	info Info
	log  *logrus.Entry

	line    []byte
	echo    bool
	history []string

	processed uint64
	failed    uint64
}

// New returns a console talking over rw.
func New(rw io.ReadWriter, src Source, info Info, log *logrus.Entry) *Console {
	return &Console{rw: rw, src: src, info: info, log: log, echo: true}
}

// OpenSerial opens port at baud, 8N1.
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	p, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", port, err)
	}
	return p, nil
}

// Run serves commands until ctx is done or the input ends. The caller
// closes rw to unblock a pending read.
func (c *Console) Run(ctx context.Context) error {
	in := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := c.rw.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case in <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	c.write(banner + Prompt)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err == io.EOF {
				c.log.Info("console input closed")
				return nil
			}
			return fmt.Errorf("console read: %w", err)
		case chunk := <-in:
			for _, b := range chunk {
				if cmd, ok := c.feed(b); ok {
					c.write(c.Execute(cmd) + Prompt)
				}
			}
		}
	}
}

// feed runs the line editor on one input byte. It returns the command
// line once it is submitted.
func (c *Console) feed(b byte) (string, bool) {
	switch {
	case b == '\r' || b == '\n':
		if c.echo {
			c.write("\r\n")
		}
		cmd := string(c.line)
		c.line = c.line[:0]
		return cmd, true
	case b == 0x08 || b == 0x7F:
		if len(c.line) > 0 {
			c.line = c.line[:len(c.line)-1]
			if c.echo {
				c.write("\b \b")
			}
		}
	case b >= 0x20 && b <= 0x7E:
		if len(c.line) < maxLine-1 {
			c.line = append(c.line, b)
			if c.echo {
				c.write(string(b))
			}
		}
	}
	// Escape sequences and other control bytes are ignored.
	return "", false
}

// Execute runs one command line and returns the text to print.
func (c *Console) Execute(line string) string {
	cmd := strings.ToLower(strings.TrimSpace(line))
	if cmd == "" {
		return ""
	}
	c.processed++
	c.remember(cmd)
	switch cmd {
	case "help", "h", "?":
		return helpText
	case "status", "stat":
		return c.status()
	case "info", "i":
		return c.infoText()
	case "sensor":
		return c.sensor()
	case "readings":
		return c.readings()
	case "uptime":
		return c.uptime()
	case "history":
		return c.historyText()
	case "clear", "cls":
		return "\x1b[2J\x1b[H"
	case "echo on":
		c.echo = true
		return "Echo enabled\r\n"
	case "echo off":
		c.echo = false
		return "Echo disabled\r\n"
	}
	c.failed++
	c.log.WithField("command", cmd).Debug("unknown console command")
	return "Unknown command. Type 'help' for available commands.\r\n"
}

func (c *Console) remember(cmd string) {
	if n := len(c.history); n > 0 && c.history[n-1] == cmd {
		return
	}
	if len(c.history) == maxHistory {
		c.history = c.history[1:]
	}
	c.history = append(c.history, cmd)
}

func (c *Console) write(s string) {
	if s == "" {
		return
	}
	if _, err := io.WriteString(c.rw, s); err != nil {
		c.log.WithError(err).Debug("console write failed")
	}
}

const banner = "\r\n=== EnvNode console ===\r\nType 'help' for available commands\r\n\r\n"

const helpText = "Available commands:\r\n" +
	"  help, h, ?     - Show this help\r\n" +
	"  status, stat   - Show system status\r\n" +
	"  info, i        - Show system information\r\n" +
	"  sensor         - Show the latest reading\r\n" +
	"  readings       - Show reading statistics\r\n" +
	"  uptime         - Show uptime\r\n" +
	"  history        - Show command history\r\n" +
	"  clear, cls     - Clear screen\r\n" +
	"  echo on|off    - Enable/disable echo\r\n"

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

func (c *Console) status() string {
	st := c.src.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "=== System Status ===\r\n")
	fmt.Fprintf(&b, "Status:  %s\r\n", strings.ToUpper(st.Status))
	fmt.Fprintf(&b, "Sensor:  %s\r\n", onOff(st.SensorActive, "ACTIVE", "INACTIVE"))
	fmt.Fprintf(&b, "Network: %s\r\n", onOff(st.NetworkConnected, "CONNECTED", "DISCONNECTED"))
	fmt.Fprintf(&b, "MQTT:    %d published, %d failed\r\n", st.Published, st.PublishFailures)
	fmt.Fprintf(&b, "Console: %d commands, %d unknown\r\n", c.processed, c.failed)
	return b.String()
}

func (c *Console) infoText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== System Information ===\r\n")
	fmt.Fprintf(&b, "Device:   %s\r\n", c.info.DeviceID)
	fmt.Fprintf(&b, "Version:  %s\r\n", c.info.Version)
	fmt.Fprintf(&b, "Sensor:   %s\r\n", c.info.Sensor)
	fmt.Fprintf(&b, "Broker:   %s\r\n", c.info.Broker)
	fmt.Fprintf(&b, "Topic:    %s\r\n", c.info.Topic)
	fmt.Fprintf(&b, "Interval: %s\r\n", c.info.Interval)
	return b.String()
}

func (c *Console) sensor() string {
	r, ok := c.src.Latest()
	if !ok {
		return "=== Latest Sensor Reading ===\r\nNo data available yet\r\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "=== Latest Sensor Reading #%d ===\r\n", r.Count)
	if r.Has(env.Temperature) {
		fmt.Fprintf(&b, "Temperature: %.2f C\r\n", r.Temperature)
	} else {
		fmt.Fprintf(&b, "Temperature: n/a\r\n")
	}
	if r.Has(env.Pressure) {
		fmt.Fprintf(&b, "Pressure:    %.2f hPa\r\n", r.Pressure)
	} else {
		fmt.Fprintf(&b, "Pressure:    n/a\r\n")
	}
	if r.Has(env.Humidity) {
		fmt.Fprintf(&b, "Humidity:    %.1f %%\r\n", r.Humidity)
	} else {
		fmt.Fprintf(&b, "Humidity:    n/a\r\n")
	}
	fmt.Fprintf(&b, "Time:        %s\r\n", r.Time.UTC().Format(time.RFC3339))
	return b.String()
}

func (c *Console) readings() string {
	st := c.src.Status()
	if st.Readings == 0 {
		return "=== Sensor Reading Statistics ===\r\nNo readings collected yet\r\n"
	}
	return fmt.Sprintf("=== Sensor Reading Statistics ===\r\nReadings:  %d\r\nPublished: %d\r\nInterval:  %s\r\n",
		st.Readings, st.Published, c.info.Interval)
}

func (c *Console) uptime() string {
	up := time.Duration(c.src.Status().UptimeSeconds) * time.Second
	return fmt.Sprintf("=== System Uptime ===\r\n%s\r\n", up)
}

func (c *Console) historyText() string {
	var b strings.Builder
	b.WriteString("Recent commands:\r\n")
	for i, h := range c.history {
		fmt.Fprintf(&b, "%3d  %s\r\n", i+1, h)
	}
	return b.String()
}
