package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// HexID is a 16-bit USB identifier written as 0xFEED or a plain integer.
type HexID uint16

// ParseHexID accepts "0xFEED", "FEED" or a decimal number.
func ParseHexID(s string) (HexID, error) {
	if n, err := strconv.ParseUint(s, 0, 16); err == nil {
		return HexID(n), nil
	}
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("config: invalid usb id %q", s)
	}
	return HexID(n), nil
}

func (h *HexID) UnmarshalYAML(node *yaml.Node) error {
	id, err := ParseHexID(node.Value)
	if err != nil {
		return err
	}
	*h = id
	return nil
}

func (h HexID) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("0x%04X", uint16(h)), nil
}

func (h HexID) String() string {
	return fmt.Sprintf("0x%04X", uint16(h))
}
