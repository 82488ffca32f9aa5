// Package dispatch maps a device request to the next outbound report.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/shaunagostinho/macropad-link/internal/media"
	"github.com/shaunagostinho/macropad-link/internal/probe"
	"github.com/shaunagostinho/macropad-link/internal/protocol"
	"github.com/shaunagostinho/macropad-link/internal/stats"
	"github.com/shaunagostinho/macropad-link/internal/timer"
)

const placeholder = "--|--"

// Prober is the network probe as seen by the table.
type Prober interface {
	Start() bool
	Reset() bool
	Status() probe.Status
}

// Countdown is the timer as seen by the table.
type Countdown interface {
	Start()
	TogglePause()
	Reset()
	Status() timer.Status
}

// Table holds the services a request can touch.
type Table struct {
	Codec protocol.Codec
	Stats stats.Source
	Media media.Provider
	Probe Prober
	Timer Countdown

	// TitleLimit caps the song title in runes.
	TitleLimit int
	// ArtistLimit caps the artist name in runes.
	ArtistLimit int
}

// New creates a table with the stock codec and text limits.
func New(st stats.Source, mp media.Provider, pr Prober, tm Countdown) *Table {
	return &Table{
		Codec:       protocol.DefaultCodec,
		Stats:       st,
		Media:       mp,
		Probe:       pr,
		Timer:       tm,
		TitleLimit:  20,
		ArtistLimit: 40,
	}
}

// Handle interprets an inbound frame and returns the next report. An
// empty frame or unknown type gets the PC performance page.
func (t *Table) Handle(ctx context.Context, in []byte) []byte {
	req := protocol.PCPerformance
	if len(in) > 0 {
		req = protocol.ParseRequestType(in[0])
	}
	return t.encode(req, t.Render(ctx, req))
}

// Default is the report sent after (re)connecting.
func (t *Table) Default(ctx context.Context) []byte {
	return t.Handle(ctx, nil)
}

// Render applies the request's side effects and returns the payload text
// without the type digit.
func (t *Table) Render(ctx context.Context, req protocol.RequestType) string {
	switch req {
	case protocol.NetworkSpeed:
		if t.Probe.Status().IsIdle() {
			t.Probe.Start()
		}
		return t.networkText()
	case protocol.ResetNetworkTest:
		t.Probe.Reset()
		t.Probe.Start()
		return t.networkText()
	case protocol.CurrentSong:
		return t.songText(ctx)
	case protocol.TimerStatus:
		return timerText(t.Timer.Status())
	case protocol.TimerPauseToggle:
		t.Timer.TogglePause()
		return timerText(t.Timer.Status())
	case protocol.TimerRestart:
		t.Timer.Start()
		return timerText(t.Timer.Status())
	case protocol.TimerReset:
		t.Timer.Reset()
		return timerText(t.Timer.Status())
	}
	return pcText(t.Stats.Snapshot(ctx))
}

// ReplyType is the type digit written for a request. Network requests
// and timer commands answer with their status page.
func ReplyType(req protocol.RequestType) protocol.RequestType {
	switch req {
	case protocol.NetworkSpeed, protocol.ResetNetworkTest:
		return protocol.NetworkSpeed
	case protocol.CurrentSong:
		return protocol.CurrentSong
	case protocol.TimerStatus, protocol.TimerPauseToggle, protocol.TimerRestart, protocol.TimerReset:
		return protocol.TimerStatus
	}
	return protocol.PCPerformance
}

func (t *Table) encode(req protocol.RequestType, text string) []byte {
	report, err := t.Codec.EncodeText(ReplyType(req), text)
	if err != nil {
		// Only a misconfigured codec gets here; config validation rejects it.
		log.Error().Str("component", "dispatch").Err(err).Msg("encode report")
		report, _ = protocol.DefaultCodec.EncodeText(ReplyType(req), text)
	}
	return report
}

func pcText(s stats.Snapshot) string {
	return fmt.Sprintf("%02d|%02d|%02d", s.RAM, s.CPU, s.Battery)
}

func (t *Table) networkText() string {
	st := t.Probe.Status()
	switch {
	case st.Phase == probe.Running:
		return fmt.Sprintf("testing|%ds", int(st.Elapsed.Seconds()))
	case st.Phase == probe.Completed && st.Result != nil:
		return fmt.Sprintf("%.1f|%.1f", st.Result.Download, st.Result.Upload)
	}
	return placeholder
}

func (t *Table) songText(ctx context.Context) string {
	track, err := t.Media.NowPlaying(ctx)
	if err != nil || track == nil {
		return placeholder
	}
	title := truncateRunes(track.Title, t.TitleLimit)
	artist := truncateRunes(strings.TrimSpace(track.FirstArtist()), t.ArtistLimit)
	return title + "|" + artist
}

func timerText(s timer.Status) string {
	return s.State.String() + "|" + s.Clock()
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
