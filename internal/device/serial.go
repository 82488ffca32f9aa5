package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialConfig holds connection configuration for firmwares that expose the
// report channel over a CDC-ACM serial port instead of raw HID.
type SerialConfig struct {
	PortPath  string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyACM0; empty = find by VID/PID
	BaudRate  int    `yaml:"baud_rate" json:"baudRate"`
	VendorID  uint16 `yaml:"vendor_id" json:"vendorId"`
	ProductID uint16 `yaml:"product_id" json:"productId"`
}

// SerialOpener opens the report channel on a serial port. Reports keep the
// same fixed-length layout as on HID.
type SerialOpener struct {
	cfg SerialConfig
}

// NewSerial creates a serial opener.
func NewSerial(cfg SerialConfig) *SerialOpener {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	return &SerialOpener{cfg: cfg}
}

func (o *SerialOpener) Describe() string {
	if o.cfg.PortPath != "" {
		return fmt.Sprintf("serial %s@%d", o.cfg.PortPath, o.cfg.BaudRate)
	}
	return fmt.Sprintf("serial usb %04x:%04x@%d", o.cfg.VendorID, o.cfg.ProductID, o.cfg.BaudRate)
}

// Open opens the configured port, or the first USB serial port whose
// VID/PID match when no port path is set.
func (o *SerialOpener) Open() (Conn, error) {
	path := o.cfg.PortPath
	if path == "" {
		found, err := o.findPort()
		if err != nil {
			return nil, err
		}
		path = found
	}

	mode := &serial.Mode{
		BaudRate: o.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("device: failed to open %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("device: reset input on %s: %w", path, err)
	}

	log.Debug().Str("component", "device").Str("port", path).Int("baud", o.cfg.BaudRate).Msg("serial port opened")
	return &serialConn{port: port, buf: make([]byte, 64)}, nil
}

func (o *SerialOpener) findPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("device: list serial ports: %w", err)
	}
	vid := fmt.Sprintf("%04X", o.cfg.VendorID)
	pid := fmt.Sprintf("%04X", o.cfg.ProductID)
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			return p.Name, nil
		}
	}
	return "", ErrNoDevice
}

type serialConn struct {
	port    serial.Port
	buf     []byte
	pending []byte // bytes of a report that arrived after the last deadline
}

func (c *serialConn) Write(p []byte) (int, error) {
	return c.port.Write(p)
}

// ReadTimeout accumulates bytes until a full report of len(p) is available
// or the deadline passes. Partial reports are kept for the next call.
func (c *serialConn) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for len(c.pending) < len(p) {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return 0, err
		}
		n, err := c.port.Read(c.buf)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
		c.pending = append(c.pending, c.buf[:n]...)
		if remaining == 0 {
			break
		}
	}
	if len(c.pending) < len(p) {
		return 0, nil
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *serialConn) Close() error {
	return c.port.Close()
}
