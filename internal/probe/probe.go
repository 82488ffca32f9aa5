// Package probe runs the network speed measurement as a single-flight
// background job whose progress is polled, never pushed.
package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Phase of the probe job.
type Phase int

const (
	Idle Phase = iota
	Running
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText lets Phase render as a word in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Result is one measurement in Mbps.
type Result struct {
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

// Status is a point-in-time snapshot. Elapsed is only set while Running,
// Result only while Completed.
type Status struct {
	Phase   Phase         `json:"phase"`
	Elapsed time.Duration `json:"elapsed"`
	Result  *Result       `json:"result,omitempty"`
}

// IsIdle reports whether a new run may be started on demand. A failed run
// left no result, so it counts as idle.
func (s Status) IsIdle() bool {
	return s.Phase == Idle || s.Phase == Failed
}

// Func performs one measurement.
type Func func(ctx context.Context) (Result, error)

// Runner owns the probe state.
type Runner struct {
	fn      Func
	timeout time.Duration

	mu          sync.Mutex
	phase       Phase
	startedAt   time.Time
	completedAt time.Time
	result      *Result
	lastErr     error

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// NewRunner creates an idle runner. A positive timeout bounds each run.
func NewRunner(fn Func, timeout time.Duration) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		fn:      fn,
		timeout: timeout,
		base:    ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// Start launches a run unless one is already in flight. It reports
// whether a run was started.
func (r *Runner) Start() bool {
	r.mu.Lock()
	if r.phase == Running {
		r.mu.Unlock()
		return false
	}
	r.phase = Running
	r.startedAt = r.now()
	r.result = nil
	r.lastErr = nil
	r.wg.Add(1)
	r.mu.Unlock()

	log.Info().Str("component", "probe").Msg("starting network speed test")
	go r.run()
	return true
}

// Reset clears the last result. It is refused while a run is in flight.
func (r *Runner) Reset() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == Running {
		return false
	}
	r.phase = Idle
	r.result = nil
	r.lastErr = nil
	r.completedAt = time.Time{}
	log.Debug().Str("component", "probe").Msg("network test results cleared")
	return true
}

// Status returns a snapshot.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{Phase: r.phase}
	switch r.phase {
	case Running:
		st.Elapsed = r.now().Sub(r.startedAt)
	case Completed:
		res := *r.result
		st.Result = &res
	}
	return st
}

// LastError returns the error of the most recent failed run.
func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Wait blocks until no run is in flight.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels an in-flight run and waits for it.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) run() {
	defer r.wg.Done()

	ctx := r.base
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.safeCall(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.phase = Failed
		r.result = nil
		r.lastErr = err
		log.Warn().Str("component", "probe").Err(err).Msg("speed test failed")
		return
	}
	r.phase = Completed
	r.result = &res
	r.completedAt = r.now()
	log.Info().Str("component", "probe").
		Float64("download_mbps", res.Download).
		Float64("upload_mbps", res.Upload).
		Dur("took", r.completedAt.Sub(r.startedAt)).
		Msg("speed test completed")
}

func (r *Runner) safeCall(ctx context.Context) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return r.fn(ctx)
}

type panicError struct{ value any }

func (e *panicError) Error() string {
	return fmt.Sprintf("probe: panic: %v", e.value)
}
