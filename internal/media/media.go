// Package media answers "what is playing right now" for the CURRENT_SONG
// display page.
package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoCredentials is returned when the playback API is not configured.
var ErrNoCredentials = errors.New("media: playback api credentials not configured")

// Track is the currently playing item.
type Track struct {
	Title   string   `json:"title"`
	Artists []string `json:"artists"`
}

// FirstArtist returns the lead artist or "".
func (t *Track) FirstArtist() string {
	if t == nil || len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// Provider reports the playing track, or nil when nothing is playing.
type Provider interface {
	NowPlaying(ctx context.Context) (*Track, error)
}

// None always reports that nothing is playing.
type None struct{}

func (None) NowPlaying(context.Context) (*Track, error) { return nil, nil }

// Cache rate-limits an upstream provider. Only playing tracks are kept;
// "nothing playing" and errors are re-queried on the next call.
type Cache struct {
	upstream Provider
	ttl      time.Duration

	mu        sync.Mutex
	track     *Track
	fetchedAt time.Time

	now func() time.Time
}

// NewCache wraps upstream with a ttl (10s keeps well under API limits).
func NewCache(upstream Provider, ttl time.Duration) *Cache {
	return &Cache{upstream: upstream, ttl: ttl, now: time.Now}
}

func (c *Cache) NowPlaying(ctx context.Context) (*Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.track != nil && now.Sub(c.fetchedAt) < c.ttl {
		return c.track, nil
	}

	track, err := c.upstream.NowPlaying(ctx)
	if err != nil {
		log.Debug().Str("component", "media").Err(err).Msg("now playing lookup failed")
		return nil, err
	}
	c.track = track
	c.fetchedAt = now
	return track, nil
}
