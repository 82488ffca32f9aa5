// Package daemon drives the macropad: the exchange/dispatch cycle, the
// reconnect policy and the relay of layer interrupts to the keyboard.
package daemon

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shaunagostinho/macropad-link/internal/dispatch"
	"github.com/shaunagostinho/macropad-link/internal/probe"
	"github.com/shaunagostinho/macropad-link/internal/session"
	"github.com/shaunagostinho/macropad-link/internal/timer"
	"github.com/shaunagostinho/macropad-link/internal/trace"
)

// Relayer forwards layer bytes to the secondary keyboard.
type Relayer interface {
	Send(ctx context.Context, layer byte) error
	Connected() bool
	Sent() uint64
	Close() error
}

// Options tunes the main loop.
type Options struct {
	ServiceInterval time.Duration // pause between exchanges
	ErrorPause      time.Duration // pause after a failed cycle
	Sink            trace.Sink    // optional traffic observer
}

// Daemon owns the primary session for its lifetime.
type Daemon struct {
	sess  *session.Session
	relay Relayer // nil when the keyboard is disabled
	table *dispatch.Table
	opts  Options

	wg sync.WaitGroup
}

// New wires a daemon. relay may be nil.
func New(sess *session.Session, relay Relayer, table *dispatch.Table, opts Options) *Daemon {
	if opts.ServiceInterval <= 0 {
		opts.ServiceInterval = time.Second
	}
	if opts.ErrorPause <= 0 {
		opts.ErrorPause = 5 * time.Second
	}
	return &Daemon{sess: sess, relay: relay, table: table, opts: opts}
}

// Run blocks until ctx is done. It always closes both device handles
// before returning.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.cleanup()

	if err := d.sess.Connect(ctx); err != nil {
		return nil // cancelled while waiting for the device
	}
	d.emitState()

	d.wg.Add(1)
	go d.pumpRelay(ctx)

	out := d.table.Default(ctx)
	for {
		out = d.cycle(ctx, out)
		if !sleep(ctx, d.opts.ServiceInterval) {
			log.Info().Str("component", "daemon").Msg("shutting down")
			return nil
		}
	}
}

// Status is the snapshot served by the monitor.
type Status struct {
	Session    string       `json:"session"`
	Generation uint64       `json:"generation"`
	Probe      probe.Status `json:"probe"`
	Timer      timer.Status `json:"timer"`
	Clock      string       `json:"clock"`
	Relay      *RelayStatus `json:"relay,omitempty"`
}

type RelayStatus struct {
	Connected bool   `json:"connected"`
	Sent      uint64 `json:"sent"`
}

// Status reports the current state of the link and services.
func (d *Daemon) Status() Status {
	st := Status{
		Session:    d.sess.State(),
		Generation: d.sess.Generation(),
		Probe:      d.table.Probe.Status(),
		Timer:      d.table.Timer.Status(),
	}
	st.Clock = st.Timer.Clock()
	if d.relay != nil {
		st.Relay = &RelayStatus{Connected: d.relay.Connected(), Sent: d.relay.Sent()}
	}
	return st
}

// cycle performs one exchange and returns the next report to send. A
// panic anywhere in the cycle is logged and the same report is retried
// after ErrorPause.
func (d *Daemon) cycle(ctx context.Context, out []byte) (next []byte) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("component", "daemon").
				Str("panic", fmt.Sprint(p)).
				Bytes("stack", debug.Stack()).
				Msg("cycle failed")
			sleep(ctx, d.opts.ErrorPause)
			next = out
		}
	}()

	d.emit(trace.Outbound(out, d.sess.Generation(), time.Now()))
	res := d.sess.Exchange(ctx, out)

	switch res.Status {
	case session.Delivered:
		d.emit(trace.Inbound(res.Frame, d.sess.Generation(), time.Now()))
		return d.table.Handle(ctx, res.Frame)

	case session.TimedOut:
		log.Debug().Str("component", "daemon").Msg("no request within timeout")
		return d.table.Handle(ctx, nil)
	}

	log.Warn().Str("component", "daemon").Err(res.Err).Msg("lost connection, reconnecting")
	d.sess.Close()
	d.emitState()
	if err := d.sess.Connect(ctx); err != nil {
		return out
	}
	d.emitState()
	return d.table.Default(ctx)
}

// pumpRelay forwards listener interrupts to the keyboard. It is unordered
// with respect to the main exchange.
func (d *Daemon) pumpRelay(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case layer := <-d.sess.Interrupts():
			d.emit(trace.Event{
				Direction:  trace.Relay,
				Text:       fmt.Sprint(layer),
				Generation: d.sess.Generation(),
				Stamp:      time.Now().UnixMilli(),
			})
			if d.relay == nil {
				log.Debug().Str("component", "daemon").Uint8("layer", layer).Msg("keyboard disabled, layer dropped")
				continue
			}
			d.relay.Send(ctx, layer)
		}
	}
}

func (d *Daemon) cleanup() {
	d.wg.Wait()
	if d.relay != nil {
		if err := d.relay.Close(); err != nil {
			log.Warn().Str("component", "daemon").Err(err).Msg("close keyboard")
		}
	}
	if err := d.sess.Close(); err != nil {
		log.Warn().Str("component", "daemon").Err(err).Msg("close macropad")
	}
	log.Info().Str("component", "daemon").Msg("device handles closed")
}

func (d *Daemon) emit(e trace.Event) {
	if d.opts.Sink != nil {
		d.opts.Sink.Record(e)
	}
}

func (d *Daemon) emitState() {
	d.emit(trace.Event{
		Direction:  trace.State,
		Text:       d.sess.State(),
		Generation: d.sess.Generation(),
		Stamp:      time.Now().UnixMilli(),
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
