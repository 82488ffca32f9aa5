package protocol

import "strconv"

// Report geometry and request types shared with the macropad firmware.
// Outbound reports are ReportLength+1 bytes: the HID report id followed by
// the payload. Inbound reports are ReportLength bytes with the request type
// in byte 0.
const (
	// ReportLength is the default payload capacity of one report.
	ReportLength = 32

	// ReportID is written in byte 0 of every outbound report.
	ReportID = 0x00
)

// RequestType identifies the kind of a request (inbound) or response (outbound).
type RequestType byte

const (
	PCPerformance    RequestType = 1
	NetworkSpeed     RequestType = 2
	CurrentSong      RequestType = 3
	ResetNetworkTest RequestType = 4
	RGBRelay         RequestType = 5
	TimerStatus      RequestType = 6
	TimerPauseToggle RequestType = 7
	TimerRestart     RequestType = 8
	TimerReset       RequestType = 9
)

var requestNames = map[RequestType]string{
	PCPerformance:    "PC_PERFORMANCE",
	NetworkSpeed:     "NETWORK_SPEED",
	CurrentSong:      "CURRENT_SONG",
	ResetNetworkTest: "RESET_NETWORK_TEST",
	RGBRelay:         "RGB_RELAY",
	TimerStatus:      "TIMER_STATUS",
	TimerPauseToggle: "TIMER_PAUSE_TOGGLE",
	TimerRestart:     "TIMER_RESTART",
	TimerReset:       "TIMER_RESET",
}

func (t RequestType) String() string {
	if name, ok := requestNames[t]; ok {
		return name
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// Known reports whether t is part of the closed request enumeration.
func (t RequestType) Known() bool {
	_, ok := requestNames[t]
	return ok
}

// ParseRequestType maps a tag byte to a RequestType.
// Unknown tags fall back to PCPerformance.
func ParseRequestType(tag byte) RequestType {
	t := RequestType(tag)
	if !t.Known() {
		return PCPerformance
	}
	return t
}
