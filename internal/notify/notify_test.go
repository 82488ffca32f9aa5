package notify

import (
	"errors"
	"testing"
)

type recorder struct {
	summaries []string
	err       error
}

func (r *recorder) Notify(summary, body string) error {
	r.summaries = append(r.summaries, summary)
	return r.err
}

func TestTimerDone(t *testing.T) {
	r := &recorder{}
	TimerDone(r)()
	if len(r.summaries) != 1 || r.summaries[0] != "Pomodoro complete" {
		t.Errorf("summaries = %v", r.summaries)
	}
}

func TestTimerDoneSwallowsErrors(t *testing.T) {
	r := &recorder{err: errors.New("no daemon")}
	TimerDone(r)()
	if len(r.summaries) != 1 {
		t.Errorf("summaries = %v", r.summaries)
	}
}

func TestLogNotifier(t *testing.T) {
	if err := (Log{}).Notify("a", "b"); err != nil {
		t.Errorf("Log.Notify = %v", err)
	}
}
