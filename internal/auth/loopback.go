package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
)

// LoopbackLogin runs a one-shot callback listener on the redirect URL's host,
// hands the authorize URL to open, and waits for the platform to redirect
// back. It returns once the code has been exchanged or ctx is done.
func LoopbackLogin(ctx context.Context, flow *LoginFlow, redirectURL string, open func(authURL string)) (TokenPair, error) {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("parse redirect url: %w", err)
	}
	listener, err := net.Listen("tcp", parsed.Host)
	if err != nil {
		return TokenPair{}, fmt.Errorf("listen for login callback on %s: %w", parsed.Host, err)
	}

	type result struct {
		pair TokenPair
		err  error
	}
	done := make(chan result, 1)
	report := func(res result) {
		select {
		case done <- res:
		default:
		}
	}

	router := chi.NewRouter()
	router.Get(parsed.Path, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if msg := query.Get("error"); msg != "" {
			http.Error(w, "Login failed: "+msg, http.StatusBadRequest)
			report(result{err: fmt.Errorf("authorization denied: %s %s", msg, query.Get("error_description"))})
			return
		}
		pair, err := flow.Complete(r.Context(), query.Get("state"), query.Get("code"))
		if err != nil {
			http.Error(w, "Login failed. Return to the terminal for details.", http.StatusBadRequest)
			report(result{err: err})
			return
		}
		_, _ = fmt.Fprintln(w, "Login complete. You can close this window.")
		report(result{pair: pair})
	})

	server := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(result{err: fmt.Errorf("login callback server: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL, _ := flow.Begin()
	if open != nil {
		open(authURL)
	}

	select {
	case <-ctx.Done():
		return TokenPair{}, ctx.Err()
	case res := <-done:
		return res.pair, res.err
	}
}
