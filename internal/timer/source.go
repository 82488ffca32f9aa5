package timer

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNoDuration is returned when no usable duration is configured.
var ErrNoDuration = errors.New("timer: no duration configured")

// DurationSource supplies the countdown length. It is consulted on every
// status query so edits take effect without a restart.
type DurationSource interface {
	Duration() (time.Duration, error)
}

// FileSource reads a whole number of seconds from a text file.
type FileSource struct {
	Path string
}

func (f FileSource) Duration() (time.Duration, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoDuration, err)
	}
	secs, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNoDuration, f.Path, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("%w: %s: non-positive value %d", ErrNoDuration, f.Path, secs)
	}
	return time.Duration(secs) * time.Second, nil
}

// Fixed is a constant duration.
type Fixed time.Duration

func (f Fixed) Duration() (time.Duration, error) {
	if f <= 0 {
		return 0, ErrNoDuration
	}
	return time.Duration(f), nil
}
