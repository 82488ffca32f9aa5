// Package relay mirrors layer notifications to the secondary keyboard.
// Unlike the primary session it never blocks waiting for the device:
// reconnects are rate limited and a send fails fast when the keyboard is
// absent.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shaunagostinho/macropad-link/internal/device"
	"github.com/shaunagostinho/macropad-link/internal/protocol"
)

// ErrUnavailable is returned when the keyboard cannot be reached.
var ErrUnavailable = errors.New("relay: keyboard unavailable")

// Config holds relay retry policy.
type Config struct {
	ReportLength int
	RetryDelay   time.Duration // minimum gap between connect attempts
	Attempts     int           // in-call attempts per Send
	AttemptPause time.Duration // pause between in-call attempts
}

// DefaultConfig returns the stock retry policy.
func DefaultConfig() Config {
	return Config{
		ReportLength: protocol.ReportLength,
		RetryDelay:   2 * time.Second,
		Attempts:     3,
		AttemptPause: time.Second,
	}
}

// Session is a write-only connection to the keyboard.
type Session struct {
	opener device.Opener
	cfg    Config
	codec  protocol.Codec

	sendMu sync.Mutex // one Send at a time, retries included

	mu          sync.Mutex
	conn        device.Conn
	lastAttempt time.Time
	sent        uint64

	now func() time.Time
}

// New creates a relay session. Nothing is opened until the first Send.
func New(opener device.Opener, cfg Config) *Session {
	def := DefaultConfig()
	if cfg.ReportLength <= 0 {
		cfg.ReportLength = def.ReportLength
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &Session{
		opener: opener,
		cfg:    cfg,
		codec:  protocol.Codec{Capacity: cfg.ReportLength},
		now:    time.Now,
	}
}

// Send writes one layer byte to the keyboard, retrying up to Attempts times.
func (s *Session) Send(ctx context.Context, layer byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	var err error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		if err = s.sendOnce(layer); err == nil {
			log.Info().Str("component", "relay").Uint8("layer", layer).Int("attempt", attempt).Msg("layer sent to keyboard")
			return nil
		}
		log.Debug().Str("component", "relay").Uint8("layer", layer).Int("attempt", attempt).Err(err).Msg("send attempt failed")

		if attempt == s.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.AttemptPause):
		}
	}
	log.Warn().Str("component", "relay").Uint8("layer", layer).Err(err).Msg("failed to send layer to keyboard")
	return err
}

// Connected reports whether a keyboard handle is currently held.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Sent returns the number of layers delivered since start.
func (s *Session) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Close releases the keyboard handle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	log.Info().Str("component", "relay").Msg("keyboard connection closed")
	return err
}

func (s *Session) sendOnce(layer byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || !s.aliveLocked() {
		if err := s.connectLocked(); err != nil {
			return err
		}
	}

	report, err := s.codec.Encode(protocol.ReportID, []byte{layer})
	if err != nil {
		return err
	}
	n, err := s.conn.Write(report)
	if err == nil && n <= 0 {
		err = errors.New("zero bytes written")
	}
	if err != nil {
		s.dropLocked()
		return fmt.Errorf("%w: write: %v", ErrUnavailable, err)
	}
	s.sent++
	return nil
}

// aliveLocked probes the handle with a zero-timeout read.
func (s *Session) aliveLocked() bool {
	var probe [1]byte
	if _, err := s.conn.ReadTimeout(probe[:], 0); err != nil {
		log.Debug().Str("component", "relay").Err(err).Msg("keyboard handle went stale")
		s.dropLocked()
		return false
	}
	return true
}

func (s *Session) connectLocked() error {
	now := s.now()
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < s.cfg.RetryDelay {
		return fmt.Errorf("%w: reconnect suppressed for %v", ErrUnavailable, s.cfg.RetryDelay-now.Sub(s.lastAttempt))
	}
	s.lastAttempt = now

	conn, err := s.opener.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.conn = conn
	log.Info().Str("component", "relay").Str("device", s.opener.Describe()).Msg("connected to keyboard")
	return nil
}

func (s *Session) dropLocked() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		log.Debug().Str("component", "relay").Err(err).Msg("close stale keyboard handle")
	}
	s.conn = nil
}
