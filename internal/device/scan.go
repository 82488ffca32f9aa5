package device

import (
	"fmt"

	"github.com/sstallion/go-hid"
)

// Info describes one enumerated HID interface.
type Info struct {
	Path         string `json:"path"`
	VendorID     uint16 `json:"vendorId"`
	ProductID    uint16 `json:"productId"`
	Product      string `json:"product"`
	Manufacturer string `json:"manufacturer"`
	UsagePage    uint16 `json:"usagePage"`
	Usage        uint16 `json:"usage"`
	Interface    int    `json:"interface"`
}

func (i Info) String() string {
	return fmt.Sprintf("VID: 0x%04x, PID: 0x%04x, UsagePage: 0x%04x, Usage: 0x%02x, Interface: %d, Product: %q, Path: %s",
		i.VendorID, i.ProductID, i.UsagePage, i.Usage, i.Interface, i.Product, i.Path)
}

// Scan enumerates every HID interface on the host and reports whether it
// passes any of the given filters.
func Scan(fn func(info Info, matched bool), filters ...Filter) error {
	return hid.Enumerate(0, 0, func(d *hid.DeviceInfo) error {
		info := Info{
			Path:         d.Path,
			VendorID:     d.VendorID,
			ProductID:    d.ProductID,
			Product:      d.ProductStr,
			Manufacturer: d.MfrStr,
			UsagePage:    d.UsagePage,
			Usage:        d.Usage,
			Interface:    d.InterfaceNbr,
		}
		matched := false
		for _, f := range filters {
			if f.Matches(d.VendorID, d.ProductID, d.UsagePage, d.Usage) {
				matched = true
				break
			}
		}
		fn(info, matched)
		return nil
	})
}
