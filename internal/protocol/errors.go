package protocol

import "errors"

var (
	ErrInvalidCapacity = errors.New("protocol: report capacity must be > 0")
)
