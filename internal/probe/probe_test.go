package probe

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	t atomic.Int64
}

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.t.Store(time.Unix(1000, 0).UnixNano())
	return c
}

func (c *fakeClock) now() time.Time          { return time.Unix(0, c.t.Load()) }
func (c *fakeClock) advance(d time.Duration) { c.t.Add(int64(d)) }

// gated returns a probe func that blocks until release is closed.
func gated(res Result, err error) (Func, chan struct{}, *atomic.Int32) {
	release := make(chan struct{})
	calls := &atomic.Int32{}
	fn := func(ctx context.Context) (Result, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		return res, err
	}
	return fn, release, calls
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	fn, release, calls := gated(Result{Download: 95.3, Upload: 20.1}, nil)
	clock := newFakeClock()
	r := NewRunner(fn, 0)
	r.now = clock.now

	if !r.Start() {
		t.Fatal("first Start did not launch a run")
	}
	started := r.startedAt
	clock.advance(time.Second)
	if r.Start() {
		t.Error("second Start launched a run while running")
	}
	if r.startedAt != started {
		t.Error("startedAt moved on repeated Start")
	}

	st := r.Status()
	if st.Phase != Running || st.Elapsed != time.Second || st.Result != nil {
		t.Errorf("status = %+v", st)
	}

	close(release)
	r.Wait()
	if n := calls.Load(); n != 1 {
		t.Errorf("probe calls = %d, want 1", n)
	}
}

func TestCompletedResult(t *testing.T) {
	fn, release, _ := gated(Result{Download: 95.3, Upload: 20.1}, nil)
	r := NewRunner(fn, 0)
	r.Start()
	close(release)
	r.Wait()

	st := r.Status()
	if st.Phase != Completed {
		t.Fatalf("phase = %s, want completed", st.Phase)
	}
	if st.Result == nil || st.Result.Download != 95.3 || st.Result.Upload != 20.1 {
		t.Errorf("result = %+v", st.Result)
	}
	if st.Elapsed != 0 {
		t.Errorf("elapsed = %v while completed", st.Elapsed)
	}
	if st.IsIdle() {
		t.Error("completed status reported idle")
	}
}

func TestResetRefusedWhileRunning(t *testing.T) {
	fn, release, _ := gated(Result{Download: 1, Upload: 1}, nil)
	r := NewRunner(fn, 0)
	r.Start()

	if r.Reset() {
		t.Error("Reset succeeded while running")
	}
	if r.Status().Phase != Running {
		t.Error("Reset disturbed a running probe")
	}

	close(release)
	r.Wait()
	if !r.Reset() {
		t.Fatal("Reset refused after completion")
	}
	st := r.Status()
	if st.Phase != Idle || st.Result != nil {
		t.Errorf("after reset = %+v", st)
	}
}

func TestFailureLeavesNoResult(t *testing.T) {
	boom := errors.New("no route")
	fn, release, _ := gated(Result{}, boom)
	r := NewRunner(fn, 0)
	r.Start()
	close(release)
	r.Wait()

	st := r.Status()
	if st.Phase != Failed || st.Result != nil {
		t.Fatalf("status = %+v", st)
	}
	if !st.IsIdle() {
		t.Error("failed status should count as idle")
	}
	if !errors.Is(r.LastError(), boom) {
		t.Errorf("last error = %v", r.LastError())
	}
}

func TestPanicIsRecordedAsFailure(t *testing.T) {
	r := NewRunner(func(context.Context) (Result, error) { panic("socket exploded") }, 0)
	r.Start()
	r.Wait()
	if r.Status().Phase != Failed || r.LastError() == nil {
		t.Errorf("phase = %s err = %v", r.Status().Phase, r.LastError())
	}
}

func TestStartClearsPreviousResult(t *testing.T) {
	first, release1, _ := gated(Result{Download: 10, Upload: 5}, nil)
	r := NewRunner(first, 0)
	r.Start()
	close(release1)
	r.Wait()

	second, release2, _ := gated(Result{Download: 20, Upload: 6}, nil)
	r.fn = second
	r.Start()
	if st := r.Status(); st.Phase != Running || st.Result != nil {
		t.Errorf("restart status = %+v", st)
	}
	close(release2)
	r.Wait()
	if st := r.Status(); st.Result == nil || st.Result.Download != 20 {
		t.Errorf("final status = %+v", st)
	}
}

func TestStatusNeverRunningAndCompleted(t *testing.T) {
	fn, release, _ := gated(Result{Download: 1, Upload: 2}, nil)
	r := NewRunner(fn, 0)
	r.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			st := r.Status()
			if st.Phase == Running && st.Result != nil {
				t.Error("running status carries a result")
				return
			}
			if st.Phase == Completed && st.Result == nil {
				t.Error("completed status without result")
				return
			}
		}
	}()
	close(release)
	<-done
	r.Wait()
}

func TestTimeoutFailsRun(t *testing.T) {
	fn, _, _ := gated(Result{}, nil)
	r := NewRunner(fn, 10*time.Millisecond)
	r.Start()
	r.Wait()
	if !errors.Is(r.LastError(), context.DeadlineExceeded) {
		t.Errorf("last error = %v, want deadline exceeded", r.LastError())
	}
}

func TestCloseCancelsRun(t *testing.T) {
	fn, _, _ := gated(Result{}, nil)
	r := NewRunner(fn, 0)
	r.Start()
	r.Close()
	if r.Status().Phase != Failed {
		t.Errorf("phase after close = %s", r.Status().Phase)
	}
}
