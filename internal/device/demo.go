package device

import (
	"bytes"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shaunagostinho/macropad-link/internal/protocol"
)

// DemoOpener produces simulated devices for development and testing
// without hardware attached.
type DemoOpener struct {
	Keyboard     bool // simulate the relay keyboard instead of the macropad
	ReportLength int
}

// NewDemoMacropad simulates the primary macropad.
func NewDemoMacropad() *DemoOpener {
	return &DemoOpener{ReportLength: protocol.ReportLength}
}

// NewDemoKeyboard simulates the relay keyboard.
func NewDemoKeyboard() *DemoOpener {
	return &DemoOpener{Keyboard: true, ReportLength: protocol.ReportLength}
}

func (o *DemoOpener) Describe() string {
	if o.Keyboard {
		return "demo keyboard"
	}
	return "demo macropad"
}

func (o *DemoOpener) Open() (Conn, error) {
	if o.Keyboard {
		return &demoKeyboard{}, nil
	}
	n := o.ReportLength
	if n <= 0 {
		n = protocol.ReportLength
	}
	return &DemoMacropad{reportLen: n}, nil
}

// demoScript is the request rotation a user paging through the macropad
// screens would produce.
var demoScript = []protocol.RequestType{
	protocol.PCPerformance,
	protocol.PCPerformance,
	protocol.NetworkSpeed,
	protocol.NetworkSpeed,
	protocol.CurrentSong,
	protocol.TimerRestart,
	protocol.TimerStatus,
	protocol.TimerPauseToggle,
	protocol.TimerStatus,
	protocol.TimerPauseToggle,
	protocol.TimerStatus,
}

// DemoMacropad answers every written report with the next scripted request
// and now and then emits a layer interrupt.
type DemoMacropad struct {
	mu        sync.Mutex
	closed    bool
	t         int // virtual tick
	reportLen int
	queue     [][]byte
	shown     []string
}

func (d *DemoMacropad) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}

	text := ""
	if len(p) > 1 {
		text = string(bytes.TrimRight(p[1:], "\x00"))
	}
	d.shown = append(d.shown, text)
	log.Debug().Str("component", "demo").Str("display", text).Msg("macropad display updated")

	req := demoScript[d.t%len(demoScript)]
	d.t++

	frame := make([]byte, d.reportLen)
	frame[0] = byte(req)
	d.queue = append(d.queue, frame)

	// Simulate the user switching layers on the macropad
	if rand.Intn(6) == 0 {
		irq := make([]byte, d.reportLen)
		irq[0] = byte(protocol.RGBRelay)
		irq[1] = byte(rand.Intn(4))
		d.queue = append(d.queue, irq)
	}
	return len(p), nil
}

func (d *DemoMacropad) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, ErrClosed
		}
		if len(d.queue) > 0 {
			frame := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return copy(p, frame), nil
		}
		d.mu.Unlock()

		if !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (d *DemoMacropad) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Shown returns every payload text written to the simulated display.
func (d *DemoMacropad) Shown() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.shown))
	copy(out, d.shown)
	return out
}

type demoKeyboard struct {
	mu     sync.Mutex
	closed bool
}

func (k *demoKeyboard) Write(p []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return 0, ErrClosed
	}
	if len(p) > 1 {
		log.Info().Str("component", "demo").Uint8("layer", p[1]).Msg("keyboard layer set")
	}
	return len(p), nil
}

func (k *demoKeyboard) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return 0, ErrClosed
	}
	return 0, nil
}

func (k *demoKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return nil
}
