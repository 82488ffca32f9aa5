package timer

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type varSource struct {
	mu  sync.Mutex
	d   time.Duration
	err error
}

func (s *varSource) Duration() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d, s.err
}

func (s *varSource) set(d time.Duration, err error) {
	s.mu.Lock()
	s.d, s.err = d, err
	s.mu.Unlock()
}

func newTestTimer(d time.Duration) (*Timer, *fakeClock, *varSource) {
	src := &varSource{d: d}
	clock := &fakeClock{t: time.Unix(5000, 0)}
	tm := New(src)
	tm.now = clock.now
	return tm, clock, src
}

func TestNeverStarted(t *testing.T) {
	tm, _, _ := newTestTimer(25 * time.Minute)
	st := tm.Status()
	if st.State != Stopped || st.Clock() != "00:00:00" {
		t.Errorf("status = %s %s", st.State, st.Clock())
	}
}

func TestRunningCountsDown(t *testing.T) {
	tm, clock, _ := newTestTimer(25 * time.Minute)
	tm.Start()
	clock.advance(time.Second)

	st := tm.Status()
	if st.State != Running || st.Clock() != "00:24:59" {
		t.Fatalf("status = %s %s", st.State, st.Clock())
	}

	prev := st.Remaining
	for i := 0; i < 10; i++ {
		clock.advance(700 * time.Millisecond)
		cur := tm.Status().Remaining
		if cur > prev {
			t.Fatalf("remaining increased: %v -> %v", prev, cur)
		}
		prev = cur
	}
}

func TestPauseFreezesRemaining(t *testing.T) {
	tm, clock, _ := newTestTimer(10 * time.Minute)
	tm.Start()
	clock.advance(time.Minute)

	if !tm.Pause() {
		t.Fatal("Pause refused while running")
	}
	if tm.Pause() {
		t.Error("second Pause reported a change")
	}
	frozen := tm.Status()
	clock.advance(5 * time.Minute)
	st := tm.Status()
	if st.State != Paused || st.Remaining != frozen.Remaining || st.Clock() != "00:09:00" {
		t.Fatalf("paused status = %s %s", st.State, st.Clock())
	}

	// Resume accumulates the pause instead of restarting.
	tm.Start()
	clock.advance(30 * time.Second)
	st = tm.Status()
	if st.State != Running || st.Clock() != "00:08:30" {
		t.Errorf("resumed status = %s %s", st.State, st.Clock())
	}
}

func TestTogglePause(t *testing.T) {
	tm, clock, _ := newTestTimer(time.Minute)

	tm.TogglePause()
	if tm.Status().State != Stopped {
		t.Fatal("toggle started a never-started timer")
	}

	tm.Start()
	tm.TogglePause()
	if tm.Status().State != Paused {
		t.Fatal("toggle did not pause")
	}
	clock.advance(10 * time.Second)
	tm.TogglePause()
	if st := tm.Status(); st.State != Running || st.Clock() != "00:01:00" {
		t.Fatalf("toggle did not resume: %s %s", st.State, st.Clock())
	}

	clock.advance(2 * time.Minute)
	if tm.Status().State != Completed {
		t.Fatal("timer did not complete")
	}
	tm.TogglePause()
	if tm.Status().State != Completed {
		t.Error("toggle changed a completed timer")
	}
}

func TestCompletesExactlyOnce(t *testing.T) {
	tm, clock, _ := newTestTimer(3 * time.Second)

	fired := make(chan struct{}, 4)
	tm.OnComplete(func() { fired <- struct{}{} })

	tm.Start()
	clock.advance(3 * time.Second)
	st := tm.Status()
	if st.State != Completed || st.Clock() != "00:00:00" {
		t.Fatalf("status = %s %s", st.State, st.Clock())
	}
	clock.advance(time.Hour)
	for i := 0; i < 3; i++ {
		if tm.Status().State != Completed {
			t.Fatal("left completed state without reset")
		}
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("completion hook not called")
	}
	select {
	case <-fired:
		t.Fatal("completion hook called twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRestartAfterCompletion(t *testing.T) {
	tm, clock, _ := newTestTimer(time.Minute)
	tm.Start()
	clock.advance(2 * time.Minute)
	tm.Status()

	tm.Start()
	if st := tm.Status(); st.State != Running || st.Clock() != "00:01:00" {
		t.Errorf("restart status = %s %s", st.State, st.Clock())
	}
}

func TestReset(t *testing.T) {
	tm, clock, _ := newTestTimer(time.Minute)
	tm.Start()
	clock.advance(10 * time.Second)
	tm.Pause()
	tm.Reset()

	if st := tm.Status(); st.State != Stopped || st.Clock() != "00:00:00" {
		t.Errorf("after reset = %s %s", st.State, st.Clock())
	}
	tm.TogglePause()
	if tm.Status().State != Stopped {
		t.Error("toggle after reset should be a no-op")
	}
}

func TestLiveDurationChange(t *testing.T) {
	tm, clock, src := newTestTimer(10 * time.Minute)
	tm.Start()
	clock.advance(time.Minute)

	src.set(20*time.Minute, nil)
	if st := tm.Status(); st.Clock() != "00:19:00" {
		t.Errorf("after lengthening = %s", st.Clock())
	}

	src.set(0, ErrNoDuration)
	if st := tm.Status(); st.Clock() != "00:19:00" {
		t.Errorf("failed reload should keep last duration, got %s", st.Clock())
	}

	src.set(30*time.Second, nil)
	if st := tm.Status(); st.State != Completed {
		t.Errorf("shortening below elapsed should complete, got %s", st.State)
	}
}

func TestNoDurationEverLoaded(t *testing.T) {
	tm, clock, src := newTestTimer(0)
	src.set(0, ErrNoDuration)
	tm.Start()
	clock.advance(time.Hour)
	if st := tm.Status(); st.State != Stopped || st.Clock() != "00:00:00" {
		t.Errorf("status = %s %s", st.State, st.Clock())
	}
}

func TestStartBeforeDurationAppears(t *testing.T) {
	src := &varSource{err: ErrNoDuration}
	clock := &fakeClock{t: time.Unix(5000, 0)}
	tm := New(src)
	tm.now = clock.now

	tm.Start()
	clock.advance(time.Hour)
	src.set(25*time.Minute, nil)

	if st := tm.Status(); st.State != Stopped || st.Clock() != "00:00:00" {
		t.Fatalf("after duration appears: %s %s, want STOPPED 00:00:00", st.State, st.Clock())
	}

	tm.Start()
	clock.advance(time.Minute)
	if st := tm.Status(); st.State != Running || st.Clock() != "00:24:00" {
		t.Errorf("after start: %s %s, want RUNNING 00:24:00", st.State, st.Clock())
	}
}

func TestNonPositiveDurationIgnored(t *testing.T) {
	tm, clock, src := newTestTimer(10 * time.Minute)
	tm.Start()
	clock.advance(time.Minute)

	src.set(0, nil)
	if st := tm.Status(); st.State != Running || st.Clock() != "00:09:00" {
		t.Errorf("zero duration: %s %s, want RUNNING 00:09:00", st.State, st.Clock())
	}
	src.set(-time.Minute, nil)
	if st := tm.Status(); st.State != Running || st.Clock() != "00:09:00" {
		t.Errorf("negative duration: %s %s, want RUNNING 00:09:00", st.State, st.Clock())
	}
}

func TestClockFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{999 * time.Millisecond, "00:00:00"},
		{59*time.Second + 900*time.Millisecond, "00:00:59"},
		{25 * time.Minute, "00:25:00"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "02:03:04"},
		{-time.Second, "00:00:00"},
	}
	for _, tt := range tests {
		if got := (Status{Remaining: tt.in}).Clock(); got != tt.want {
			t.Errorf("Clock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pomodoro_duration.txt")
	src := FileSource{Path: path}

	if _, err := src.Duration(); !errors.Is(err, ErrNoDuration) {
		t.Errorf("missing file err = %v", err)
	}

	tests := []struct {
		content string
		want    time.Duration
		wantErr bool
	}{
		{"1500\n", 25 * time.Minute, false},
		{"  90 ", 90 * time.Second, false},
		{"abc", 0, true},
		{"0", 0, true},
		{"-5", 0, true},
	}
	for _, tt := range tests {
		if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := src.Duration()
		if tt.wantErr {
			if !errors.Is(err, ErrNoDuration) {
				t.Errorf("%q: err = %v, want ErrNoDuration", tt.content, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q: got %v, %v; want %v", tt.content, got, err, tt.want)
		}
	}
}
