package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// SpotifyConfig holds the app credentials and token location.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenFile    string
}

func (c SpotifyConfig) configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c SpotifyConfig) authenticator() *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithClientID(c.ClientID),
		spotifyauth.WithClientSecret(c.ClientSecret),
		spotifyauth.WithRedirectURL(c.RedirectURI),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
		),
	)
}

// Spotify queries the Web API player endpoint with a stored user token.
type Spotify struct {
	client    *spotify.Client
	tokenFile string

	mu        sync.Mutex
	lastToken string
}

// NewSpotify loads the stored token. It returns ErrNoCredentials when
// the app is not configured and an error when `macropadd auth` has not
// been run yet.
func NewSpotify(ctx context.Context, cfg SpotifyConfig) (*Spotify, error) {
	if !cfg.configured() {
		return nil, ErrNoCredentials
	}
	tok, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("media: load token (run `macropadd auth`): %w", err)
	}
	httpClient := cfg.authenticator().Client(ctx, tok)
	return &Spotify{
		client:    spotify.New(httpClient),
		tokenFile: cfg.TokenFile,
		lastToken: tok.AccessToken,
	}, nil
}

func (s *Spotify) NowPlaying(ctx context.Context) (*Track, error) {
	cp, err := s.client.PlayerCurrentlyPlaying(ctx)
	s.persistRefreshedToken()
	if err != nil {
		return nil, fmt.Errorf("media: currently playing: %w", err)
	}
	if cp == nil || !cp.Playing || cp.Item == nil {
		return nil, nil
	}

	t := &Track{Title: cp.Item.Name}
	for _, a := range cp.Item.Artists {
		t.Artists = append(t.Artists, a.Name)
	}
	return t, nil
}

// persistRefreshedToken writes the token back when the transport has
// refreshed it, so restarts do not need a new authorization.
func (s *Spotify) persistRefreshedToken() {
	tok, err := s.client.Token()
	if err != nil || tok == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.lastToken {
		return
	}
	if err := saveToken(s.tokenFile, tok); err != nil {
		log.Warn().Str("component", "media").Err(err).Msg("save refreshed token")
		return
	}
	s.lastToken = tok.AccessToken
	log.Debug().Str("component", "media").Msg("refreshed token saved")
}

func loadToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("%s holds no token", path)
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// NewProvider picks the playback backend for the given credentials,
// wrapped in a cache. Missing credentials or token degrade to None.
func NewProvider(ctx context.Context, cfg SpotifyConfig, ttl time.Duration) Provider {
	sp, err := NewSpotify(ctx, cfg)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			log.Info().Str("component", "media").Msg("spotify credentials not provided, song page disabled")
		} else {
			log.Warn().Str("component", "media").Err(err).Msg("spotify unavailable, song page disabled")
		}
		return None{}
	}
	log.Info().Str("component", "media").Msg("spotify client initialized")
	return NewCache(sp, ttl)
}
