package protocol

import (
	"bytes"
	"strconv"
	"unicode/utf8"
)

// Codec encodes and decodes fixed-length reports.
// Layout: Tag(1) | Payload(Capacity), zero padded.
type Codec struct {
	Capacity int
}

// DefaultCodec uses the firmware's 32 byte payload.
var DefaultCodec = Codec{Capacity: ReportLength}

// Size is the total length of an encoded report.
func (c Codec) Size() int { return c.Capacity + 1 }

// Encode builds a report of exactly Capacity+1 bytes. The payload is
// truncated to Capacity; unused trailing bytes are 0x00.
func (c Codec) Encode(tag byte, payload []byte) ([]byte, error) {
	if c.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	report := make([]byte, c.Size())
	report[0] = tag
	copy(report[1:], payload)
	return report, nil
}

// Decode splits a report into its tag and payload with the trailing zero
// padding stripped. An empty report decodes to tag 0 and no payload.
func (c Codec) Decode(report []byte) (byte, []byte) {
	tag, raw := c.DecodeRaw(report)
	return tag, bytes.TrimRight(raw, "\x00")
}

// DecodeRaw is Decode without trimming the payload.
func (c Codec) DecodeRaw(report []byte) (byte, []byte) {
	if len(report) == 0 {
		return 0, nil
	}
	return report[0], report[1:]
}

// EncodeText builds an outbound report carrying "<tag digit><text>" behind
// the report id, cut on a rune boundary so the display never sees half a
// UTF-8 sequence.
func (c Codec) EncodeText(t RequestType, text string) ([]byte, error) {
	msg := FitText(strconv.Itoa(int(t))+text, c.Capacity)
	return c.Encode(ReportID, []byte(msg))
}

// FitText returns the longest prefix of s that is at most max bytes and
// ends on a rune boundary.
func FitText(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
