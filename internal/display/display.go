// Package display renders the node status on a 128x64 SSD1306 OLED.
package display

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/envnode/internal/env"
)

const (
	width      = 128
	height     = 64
	lineHeight = 13
	maxLines   = height / lineHeight
)

// drawer is the part of *ssd1306.Dev the panel uses.
type drawer interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// Panel shows the status report and the last reading.
type Panel struct {
	dev drawer
}

// defaultAddr is the address the ssd1306 driver talks to.
const defaultAddr = 0x3C

// addrBus redirects the driver's fixed address to the configured one.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(addr uint16, w, r []byte) error {
	if addr == defaultAddr {
		addr = b.addr
	}
	return b.Bus.Tx(addr, w, r)
}

// Open initializes the display at addr on bus and shows a splash screen.
// addr 0 means 0x3C.
func Open(bus i2c.Bus, addr uint16, deviceID string) (*Panel, error) {
	if addr != 0 && addr != defaultAddr {
		bus = &addrBus{Bus: bus, addr: addr}
	} else {
		addr = defaultAddr
	}
	opts := ssd1306.DefaultOpts
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		return nil, fmt.Errorf("ssd1306 at 0x%02X: %w", addr, err)
	}
	p := &Panel{dev: dev}
	if err := p.Show([]string{"", "  EnvNode", "  " + deviceID, "  starting..."}); err != nil {
		return nil, err
	}
	return p, nil
}

// Report implements the status sink of the node.
func (p *Panel) Report(_ context.Context, st env.DeviceStatus, last *env.Reading) error {
	return p.Show(Lines(st, last))
}

// Show draws up to four lines of text.
func (p *Panel) Show(lines []string) error {
	return p.dev.Draw(p.dev.Bounds(), Render(lines), image.Point{})
}

// Lines formats a status report for the panel.
func Lines(st env.DeviceStatus, last *env.Reading) []string {
	lines := make([]string, 0, maxLines)
	if last == nil {
		lines = append(lines, "Waiting...", "")
	} else {
		if last.Has(env.Temperature) {
			lines = append(lines, fmt.Sprintf("T:%6.2fC", last.Temperature))
		} else {
			lines = append(lines, "T:    --")
		}
		l := "P:  --"
		if last.Has(env.Pressure) {
			l = fmt.Sprintf("P:%7.1f", last.Pressure)
		}
		if last.Has(env.Humidity) {
			l += fmt.Sprintf(" H:%3.0f%%", last.Humidity)
		}
		lines = append(lines, l)
	}
	up := time.Duration(st.UptimeSeconds) * time.Second
	lines = append(lines, fmt.Sprintf("#%d up %s", st.Readings, up))
	net := "down"
	if st.NetworkConnected {
		net = "ok"
	}
	lines = append(lines, fmt.Sprintf("net:%s tx:%d", net, st.Published))
	return lines
}

// Render draws lines with the 7x13 font into a panel sized image.
func Render(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		if i == maxLines {
			break
		}
		d.Dot = fixed.P(0, (i+1)*lineHeight)
		d.DrawString(l)
	}
	return img
}
