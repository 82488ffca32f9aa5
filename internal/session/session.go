// Package session owns the connection to the primary macropad: connect with
// fixed backoff, write-then-read exchanges, and one background reader per
// connection generation.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/shaunagostinho/macropad-link/internal/device"
	"github.com/shaunagostinho/macropad-link/internal/protocol"
)

// Lifecycle states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

const (
	evDial        = "dial"
	evEstablished = "established"
	evLost        = "lost"
)

var errShortWrite = errors.New("session: write reported zero bytes")

// Status is the outcome of one exchange.
type Status int

const (
	// Delivered means a reply frame arrived within the read timeout.
	Delivered Status = iota
	// TimedOut means nothing arrived; the connection is still considered healthy.
	TimedOut
	// Disconnected means the handle is stale and the caller must reconnect.
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case TimedOut:
		return "timed out"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Result carries the reply of an exchange.
type Result struct {
	Status Status
	Frame  []byte // set only when Delivered
	Err    error  // cause when Disconnected
}

// Config holds session timing.
type Config struct {
	ReportLength   int
	ReadTimeout    time.Duration // exchange reply deadline
	ListenTimeout  time.Duration // per-read deadline of the background reader
	ListenYield    time.Duration // pause between background reads
	ReconnectDelay time.Duration // backoff between connect attempts
}

// DefaultConfig matches the macropad firmware's cadence.
func DefaultConfig() Config {
	return Config{
		ReportLength:   protocol.ReportLength,
		ReadTimeout:    1000 * time.Millisecond,
		ListenTimeout:  100 * time.Millisecond,
		ListenYield:    10 * time.Millisecond,
		ReconnectDelay: 5 * time.Second,
	}
}

// Session is the primary device session.
type Session struct {
	opener device.Opener
	cfg    Config
	state  *fsm.FSM
	genID  *atomic.Uint64

	mu  sync.Mutex
	gen *generation

	interrupts chan byte
}

// New creates a disconnected session.
func New(opener device.Opener, cfg Config) *Session {
	def := DefaultConfig()
	if cfg.ReportLength <= 0 {
		cfg.ReportLength = def.ReportLength
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.ListenTimeout <= 0 {
		cfg.ListenTimeout = def.ListenTimeout
	}
	if cfg.ListenYield <= 0 {
		cfg.ListenYield = def.ListenYield
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}

	s := &Session{
		opener:     opener,
		cfg:        cfg,
		genID:      atomic.NewUint64(0),
		interrupts: make(chan byte, 16),
	}
	s.state = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: evDial, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: evEstablished, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: evLost, Src: []string{StateConnecting, StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug().Str("component", "session").Str("from", e.Src).Str("to", e.Dst).Msg("state changed")
			},
		},
	)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	return s.state.Current()
}

// Generation returns the id of the current connection generation
// (0 before the first connect).
func (s *Session) Generation() uint64 {
	return s.genID.Load()
}

// Interrupts delivers layer bytes from unsolicited relay frames.
func (s *Session) Interrupts() <-chan byte {
	return s.interrupts
}

// Connect blocks until a matching device is opened, retrying every
// ReconnectDelay. It only returns an error when ctx is done.
func (s *Session) Connect(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempt++
		s.transition(evDial)
		conn, err := s.opener.Open()
		if err == nil {
			g := s.attach(conn)
			s.transition(evEstablished)
			log.Info().
				Str("component", "session").
				Str("device", s.opener.Describe()).
				Uint64("generation", g.id).
				Int("attempt", attempt).
				Msg("connected")
			return nil
		}
		s.transition(evLost)

		if errors.Is(err, device.ErrNoDevice) {
			log.Info().Str("component", "session").Str("device", s.opener.Describe()).
				Dur("retry_in", s.cfg.ReconnectDelay).Msg("no device found")
		} else {
			log.Warn().Str("component", "session").Err(err).
				Dur("retry_in", s.cfg.ReconnectDelay).Msg("connect attempt failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// Exchange writes out and waits up to ReadTimeout for the next reply.
// Strict turn-taking: stale replies queued before the write are dropped.
func (s *Session) Exchange(ctx context.Context, out []byte) Result {
	g := s.current()
	if g == nil {
		return Result{Status: Disconnected, Err: device.ErrClosed}
	}
	select {
	case <-g.done:
		s.transition(evLost)
		return Result{Status: Disconnected, Err: g.cause()}
	default:
	}

	g.drain()

	n, err := g.conn.Write(out)
	if err == nil && n <= 0 {
		err = errShortWrite
	}
	if err != nil {
		g.fail(err)
		s.transition(evLost)
		log.Warn().Str("component", "session").Err(err).Uint64("generation", g.id).Msg("write failed")
		return Result{Status: Disconnected, Err: err}
	}

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()

	select {
	case frame := <-g.replies:
		return Result{Status: Delivered, Frame: frame}
	case <-g.done:
		s.transition(evLost)
		return Result{Status: Disconnected, Err: g.cause()}
	case <-timer.C:
		return Result{Status: TimedOut}
	case <-ctx.Done():
		return Result{Status: TimedOut, Err: ctx.Err()}
	}
}

// Close retires the current generation: the reader is stopped before the
// handle is released so two readers never share a handle.
func (s *Session) Close() error {
	s.mu.Lock()
	g := s.gen
	s.gen = nil
	s.mu.Unlock()

	s.transition(evLost)
	if g == nil {
		return nil
	}
	return s.retire(g)
}

func (s *Session) current() *generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Session) attach(conn device.Conn) *generation {
	g := newGeneration(s.genID.Inc(), conn)

	s.mu.Lock()
	prev := s.gen
	s.gen = g
	s.mu.Unlock()

	if prev != nil {
		s.retire(prev)
	}
	go s.listen(g)
	return g
}

func (s *Session) retire(g *generation) error {
	g.stopOnce.Do(func() { close(g.stop) })

	wait := s.cfg.ListenTimeout + s.cfg.ListenYield + time.Second
	select {
	case <-g.exited:
	case <-time.After(wait):
		log.Warn().Str("component", "session").Uint64("generation", g.id).Msg("reader did not stop in time")
	}

	err := g.conn.Close()
	g.fail(device.ErrClosed)
	return err
}

func (s *Session) transition(event string) {
	// Repeated or out-of-order events (e.g. lost while already disconnected)
	// are expected and ignored.
	_ = s.state.Event(context.Background(), event)
}
