package device

import (
	"errors"
	"time"
)

var (
	// ErrNoDevice is returned by Open when no interface matches the filter.
	ErrNoDevice = errors.New("device: no matching interface found")
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("device: connection closed")
)

// Conn is an open raw report channel to one device interface.
// A Conn is owned by exactly one session.
type Conn interface {
	// Write sends one report. Byte 0 is the report id.
	Write(p []byte) (int, error)
	// ReadTimeout reads one report, waiting at most timeout.
	// A timeout is not an error: it returns 0, nil.
	ReadTimeout(p []byte, timeout time.Duration) (int, error)
	// Close releases the handle.
	Close() error
}

// Opener finds and opens the first interface matching its filter.
type Opener interface {
	// Open returns ErrNoDevice (possibly wrapped) when nothing matches.
	Open() (Conn, error)
	// Describe returns a short human-readable target description for logs.
	Describe() string
}

// Filter selects a raw HID interface by vendor/product and by the
// (usage page, usage) capability pair. Zero usage fields match anything.
type Filter struct {
	VendorID  uint16 `yaml:"vendor_id" json:"vendorId"`
	ProductID uint16 `yaml:"product_id" json:"productId"`
	UsagePage uint16 `yaml:"usage_page" json:"usagePage"`
	Usage     uint16 `yaml:"usage" json:"usage"`
}

// Matches reports whether an interface with the given identifiers passes the filter.
func (f Filter) Matches(vid, pid, usagePage, usage uint16) bool {
	if f.VendorID != 0 && vid != f.VendorID {
		return false
	}
	if f.ProductID != 0 && pid != f.ProductID {
		return false
	}
	if f.UsagePage != 0 && usagePage != f.UsagePage {
		return false
	}
	if f.Usage != 0 && usage != f.Usage {
		return false
	}
	return true
}
