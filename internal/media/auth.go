package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// Authorize runs the OAuth authorization-code flow: it serves the
// redirect URI locally, hands the consent URL to show and stores the
// resulting token in cfg.TokenFile.
func Authorize(ctx context.Context, cfg SpotifyConfig, show func(authURL string)) error {
	if !cfg.configured() {
		return ErrNoCredentials
	}
	redirect, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		return fmt.Errorf("media: redirect uri: %w", err)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	state, err := newState()
	if err != nil {
		return err
	}
	auth := cfg.authenticator()
	result := make(chan error, 1)
	report := func(err error) {
		select {
		case result <- err:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		tok, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "authorization failed", http.StatusForbidden)
			report(fmt.Errorf("media: exchange code: %w", err))
			return
		}
		if err := saveToken(cfg.TokenFile, tok); err != nil {
			http.Error(w, "could not store token", http.StatusInternalServerError)
			report(fmt.Errorf("media: save token: %w", err))
			return
		}
		fmt.Fprintln(w, "macropadd is authorized. You can close this tab.")
		report(nil)
	})

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("media: listen on %s: %w", redirect.Host, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", "media").Str("callback", cfg.RedirectURI).Msg("waiting for spotify authorization")
	show(auth.AuthURL(state))

	select {
	case err := <-result:
		if err == nil {
			log.Info().Str("component", "media").Str("token_file", cfg.TokenFile).Msg("spotify token stored")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("media: oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
