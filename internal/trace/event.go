// Package trace describes the traffic exchanged with the devices and
// records it to rotating CSV files.
package trace

import (
	"time"

	"github.com/shaunagostinho/macropad-link/internal/protocol"
)

// Directions.
const (
	Out   = "out"   // report written to the macropad
	In    = "in"    // request read from the macropad
	Relay = "relay" // layer forwarded to the keyboard
	State = "state" // session lifecycle change
)

// Event is one observed frame or lifecycle change.
type Event struct {
	Direction  string `json:"direction"`
	Type       string `json:"type,omitempty"` // request type name
	Text       string `json:"text,omitempty"` // printable payload
	Generation uint64 `json:"generation"`
	Stamp      int64  `json:"stamp"` // Unix ms
}

// Sink consumes events. Implementations must not block.
type Sink interface {
	Record(Event)
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Record(e Event) {
	for _, s := range m {
		if s != nil {
			s.Record(e)
		}
	}
}

// Outbound describes a report written to the macropad.
func Outbound(report []byte, gen uint64, now time.Time) Event {
	_, payload := protocol.DefaultCodec.Decode(report)
	e := Event{Direction: Out, Text: string(payload), Generation: gen, Stamp: now.UnixMilli()}
	if len(payload) > 0 {
		e.Type = protocol.RequestType(payload[0] - '0').String()
	}
	return e
}

// Inbound describes a request frame read from the macropad.
func Inbound(frame []byte, gen uint64, now time.Time) Event {
	e := Event{Direction: In, Generation: gen, Stamp: now.UnixMilli()}
	if len(frame) > 0 {
		e.Type = protocol.ParseRequestType(frame[0]).String()
	}
	return e
}
