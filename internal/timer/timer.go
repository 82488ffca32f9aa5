// Package timer implements the pausable pomodoro countdown shown on the
// macropad.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State of the countdown as rendered on the display.
type State int

const (
	Stopped State = iota
	Running
	Paused
	Completed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	case Completed:
		return "COMPLETED"
	}
	return "UNKNOWN"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the countdown.
type Status struct {
	State     State         `json:"state"`
	Remaining time.Duration `json:"remaining"`
}

// Clock formats Remaining as HH:MM:SS, rounding partial seconds down.
func (s Status) Clock() string {
	secs := int64(s.Remaining / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// Timer is safe for concurrent use. All mutation and the remaining-time
// computation happen under mu; helpers suffixed Locked expect it held.
type Timer struct {
	src DurationSource

	mu               sync.Mutex
	duration         time.Duration
	haveDuration     bool
	startedAt        time.Time
	pausedAt         time.Time
	accumulatedPause time.Duration
	running          bool
	paused           bool
	completed        bool
	onComplete       func()

	now func() time.Time
}

// New creates a stopped timer. The source is read once immediately.
func New(src DurationSource) *Timer {
	t := &Timer{src: src, now: time.Now}
	t.reload()
	return t
}

// OnComplete registers fn to run, in its own goroutine, each time the
// countdown reaches zero.
func (t *Timer) OnComplete(fn func()) {
	t.mu.Lock()
	t.onComplete = fn
	t.mu.Unlock()
}

// Start resumes a paused countdown or begins a fresh one. Without a
// duration it does nothing.
func (t *Timer) Start() {
	t.reload()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.startLocked()
}

// Pause freezes a running countdown. It reports whether anything changed.
func (t *Timer) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pauseLocked()
}

// TogglePause switches between running and paused. It does nothing if
// the timer was never started or has completed.
func (t *Timer) TogglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed || t.startedAt.IsZero() {
		return
	}
	switch {
	case t.paused:
		t.startLocked()
	case t.running:
		t.pauseLocked()
	}
}

// Reset returns to the never-started state.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startedAt = time.Time{}
	t.pausedAt = time.Time{}
	t.accumulatedPause = 0
	t.running = false
	t.paused = false
	t.completed = false
	log.Info().Str("component", "timer").Msg("timer reset")
}

// Status re-reads the duration and reports the remaining time. The call
// on which the remaining time first reaches zero marks the timer
// completed and fires the completion hook.
func (t *Timer) Status() Status {
	t.reload()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.startedAt.IsZero() || !t.haveDuration {
		return Status{State: Stopped}
	}

	end := t.now()
	if t.paused {
		end = t.pausedAt
	}
	elapsed := end.Sub(t.startedAt) - t.accumulatedPause
	remaining := t.duration - elapsed
	if remaining < 0 {
		remaining = 0
	}

	if remaining == 0 && !t.completed {
		t.completed = true
		t.running = false
		log.Info().Str("component", "timer").Dur("duration", t.duration).Msg("timer completed")
		if fn := t.onComplete; fn != nil {
			go fn()
		}
	}

	switch {
	case t.completed:
		return Status{State: Completed}
	case t.paused:
		return Status{State: Paused, Remaining: remaining}
	case t.running:
		return Status{State: Running, Remaining: remaining}
	}
	return Status{State: Stopped, Remaining: remaining}
}

func (t *Timer) startLocked() {
	if !t.haveDuration {
		log.Warn().Str("component", "timer").Msg("no duration loaded, timer not started")
		return
	}
	now := t.now()
	if t.paused {
		t.accumulatedPause += now.Sub(t.pausedAt)
		t.paused = false
		t.pausedAt = time.Time{}
		log.Info().Str("component", "timer").Msg("timer resumed")
	} else {
		t.startedAt = now
		t.accumulatedPause = 0
		t.completed = false
		log.Info().Str("component", "timer").Msg("timer started")
	}
	t.running = true
}

func (t *Timer) pauseLocked() bool {
	if !t.running || t.paused {
		return false
	}
	t.pausedAt = t.now()
	t.paused = true
	t.running = false
	log.Info().Str("component", "timer").Msg("timer paused")
	return true
}

// reload keeps the last good duration when the source fails.
func (t *Timer) reload() {
	d, err := t.src.Duration()
	if err == nil && d <= 0 {
		err = fmt.Errorf("%w: got %v", ErrNoDuration, d)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		log.Debug().Str("component", "timer").Err(err).Bool("have_previous", t.haveDuration).Msg("duration unavailable")
		return
	}
	if t.haveDuration && d != t.duration {
		log.Info().Str("component", "timer").Dur("from", t.duration).Dur("to", d).Msg("duration changed")
	}
	t.duration = d
	t.haveDuration = true
}
