package display

import (
	"context"
	"image"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/envnode/internal/env"
)

type fakeDev struct {
	frames []image.Image
}

func (f *fakeDev) Bounds() image.Rectangle { return image.Rect(0, 0, width, height) }

func (f *fakeDev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	f.frames = append(f.frames, src)
	return nil
}

func lit(img *image1bit.VerticalLSB) int {
	n := 0
	for _, b := range img.Pix {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func TestLines(t *testing.T) {
	st := env.DeviceStatus{UptimeSeconds: 90, Readings: 3, Published: 2, NetworkConnected: true}
	got := Lines(st, nil)
	if got[0] != "Waiting..." || got[2] != "#3 up 1m30s" || got[3] != "net:ok tx:2" {
		t.Fatalf("unexpected lines %q", got)
	}

	r := &env.Reading{Measurements: env.Measurements{Temperature: 25.08, Pressure: 1006.53, Missing: env.Humidity}}
	got = Lines(st, r)
	if got[0] != "T: 25.08C" || got[1] != "P: 1006.5" {
		t.Fatalf("unexpected lines %q", got)
	}
	for _, l := range got {
		if len(l) > width/7 {
			t.Errorf("line %q does not fit", l)
		}
	}
}

func TestRender(t *testing.T) {
	if n := lit(Render(nil)); n != 0 {
		t.Fatalf("blank frame has %d pixels lit", n)
	}
	one := lit(Render([]string{"T: 25.08C"}))
	if one == 0 {
		t.Fatal("nothing drawn")
	}
	// Lines past the fourth are not drawn.
	four := []string{"a", "b", "c", "d"}
	if lit(Render(four)) != lit(Render(append(four, strings.Repeat("x", 18)))) {
		t.Fatal("fifth line drawn")
	}
}

func TestPanelReport(t *testing.T) {
	f := &fakeDev{}
	p := &Panel{dev: f}
	if err := p.Report(context.Background(), env.DeviceStatus{UptimeSeconds: uint64(time.Hour / time.Second)}, nil); err != nil {
		t.Fatal(err)
	}
	if len(f.frames) != 1 {
		t.Fatalf("%d frames", len(f.frames))
	}
}

func TestOpen(t *testing.T) {
	bus := &i2ctest.Record{}
	if _, err := Open(bus, 0x3C, "node-1"); err != nil {
		t.Fatal(err)
	}
	if len(bus.Ops) == 0 {
		t.Fatal("nothing sent to the panel")
	}
	for _, op := range bus.Ops {
		if op.Addr != 0x3C {
			t.Fatalf("unexpected address %#x", op.Addr)
		}
	}
}

func TestOpenSecondaryAddress(t *testing.T) {
	bus := &i2ctest.Record{}
	if _, err := Open(bus, 0x3D, "node-1"); err != nil {
		t.Fatal(err)
	}
	for _, op := range bus.Ops {
		if op.Addr != 0x3D {
			t.Fatalf("unexpected address %#x", op.Addr)
		}
	}
}
