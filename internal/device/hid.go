package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sstallion/go-hid"
)

// HIDOpener opens raw HID interfaces through hidapi.
// hid.Init must have been called by the process.
type HIDOpener struct {
	Filter Filter
}

// NewHID creates an opener for the given capability filter.
func NewHID(f Filter) *HIDOpener {
	return &HIDOpener{Filter: f}
}

func (o *HIDOpener) Describe() string {
	return fmt.Sprintf("hid %04x:%04x page=0x%04x usage=0x%02x",
		o.Filter.VendorID, o.Filter.ProductID, o.Filter.UsagePage, o.Filter.Usage)
}

// Open enumerates the vendor/product pair and opens the first interface
// whose usage page and usage match, in non-blocking mode.
func (o *HIDOpener) Open() (Conn, error) {
	path, err := o.find()
	if err != nil {
		return nil, err
	}

	d, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}
	if err := d.SetNonblock(true); err != nil {
		d.Close()
		return nil, fmt.Errorf("device: set non-blocking on %s: %w", path, err)
	}

	log.Debug().Str("component", "device").Str("path", path).Msg("hid interface opened")
	return &hidConn{dev: d, path: path}, nil
}

func (o *HIDOpener) find() (string, error) {
	var path string
	err := hid.Enumerate(o.Filter.VendorID, o.Filter.ProductID, func(info *hid.DeviceInfo) error {
		if path == "" && o.Filter.Matches(info.VendorID, info.ProductID, info.UsagePage, info.Usage) {
			path = info.Path
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("device: enumerate: %w", err)
	}
	if path == "" {
		return "", ErrNoDevice
	}
	return path, nil
}

type hidConn struct {
	mu     sync.Mutex
	dev    *hid.Device
	path   string
	closed bool
}

func (c *hidConn) Write(p []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	return c.dev.Write(p)
}

func (c *hidConn) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	n, err := c.dev.ReadWithTimeout(p, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return 0, nil
	}
	return n, err
}

func (c *hidConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.dev.Close()
}

func (c *hidConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
