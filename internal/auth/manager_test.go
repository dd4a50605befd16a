package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storyforge/internal/auth"
	"storyforge/internal/config"
	"storyforge/internal/services"
)

type tokenServer struct {
	*httptest.Server
	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32
	reject        atomic.Bool
	failStatus    atomic.Int32
	onRefresh     func()
	nextAccess    string
	nextRefresh   string

	mu       sync.Mutex
	lastForm url.Values
}

func newTokenServer(t *testing.T, nextAccess, nextRefresh string) *tokenServer {
	t.Helper()
	ts := &tokenServer{nextAccess: nextAccess, nextRefresh: nextRefresh}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		ts.mu.Lock()
		ts.lastForm = r.PostForm
		ts.mu.Unlock()

		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			ts.refreshCalls.Add(1)
		case "authorization_code":
			ts.exchangeCalls.Add(1)
		}
		if r.PostForm.Get("grant_type") == "refresh_token" && ts.onRefresh != nil {
			ts.onRefresh()
		}
		w.Header().Set("Content-Type", "application/json")
		if status := ts.failStatus.Load(); status != 0 {
			w.WriteHeader(int(status))
			_, _ = w.Write([]byte(`{"error":"temporarily_unavailable"}`))
			return
		}
		if ts.reject.Load() {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
			return
		}
		payload := map[string]any{
			"access_token": ts.nextAccess,
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if ts.nextRefresh != "" {
			payload["refresh_token"] = ts.nextRefresh
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) form() url.Values {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastForm
}

func newManager(t *testing.T, server *tokenServer, store auth.TokenStore) *auth.TokenManager {
	t.Helper()
	cfg := config.Default()
	cfg.Platform.ClientID = "client-123"
	cfg.Platform.TokenURL = server.URL + "/oauth/token"
	cfg.Platform.AuthURL = server.URL + "/authorize"
	cfg.Paths.StateDir = t.TempDir()
	mgr, err := auth.NewTokenManager(&cfg, auth.WithTokenStore(store), auth.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	return mgr
}

func TestAccessTokenReturnsValidTokenWithoutRefresh(t *testing.T) {
	server := newTokenServer(t, "unused", "")
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))
	valid := signedToken(t, time.Now().Add(time.Hour))
	if err := store.Save(auth.TokenPair{AccessToken: valid, RefreshToken: "r1"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	token, err := newManager(t, server, store).AccessToken(context.Background())
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if token != valid {
		t.Fatal("expected stored token to be returned")
	}
	if server.refreshCalls.Load() != 0 {
		t.Fatalf("expected no refresh, got %d", server.refreshCalls.Load())
	}
}

func TestAccessTokenRefreshesExpiredPairOnce(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	server := newTokenServer(t, fresh, "r2")
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))
	if err := store.Save(auth.TokenPair{AccessToken: signedToken(t, time.Now().Add(-time.Hour)), RefreshToken: "r1"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	mgr := newManager(t, server, store)

	for i := 0; i < 2; i++ {
		token, err := mgr.AccessToken(context.Background())
		if err != nil {
			t.Fatalf("access token call %d: %v", i, err)
		}
		if token != fresh {
			t.Fatalf("call %d returned stale token", i)
		}
	}
	if got := server.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if got := server.form().Get("refresh_token"); got != "r1" {
		t.Fatalf("expected stored refresh token in request, got %q", got)
	}
	if got := server.form().Get("client_id"); got != "client-123" {
		t.Fatalf("expected client id in request, got %q", got)
	}

	stored, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load after refresh: ok=%v err=%v", ok, err)
	}
	if stored.AccessToken != fresh || stored.RefreshToken != "r2" {
		t.Fatalf("unexpected stored pair: %#v", stored)
	}
}

func TestConcurrentEnsureValidRefreshesOnce(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	server := newTokenServer(t, fresh, "r2")
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))
	expired := auth.TokenPair{AccessToken: signedToken(t, time.Now().Add(-time.Hour)), RefreshToken: "r1"}
	if err := store.Save(expired); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	mgr := newManager(t, server, store)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, err := mgr.EnsureValid(context.Background(), expired)
			if err == nil && pair.AccessToken != fresh {
				err = errors.New("stale token returned")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ensure valid: %v", err)
		}
	}
	if got := server.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
}

func TestRefreshKeepsRefreshTokenWhenResponseOmitsIt(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	server := newTokenServer(t, fresh, "")
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))
	mgr := newManager(t, server, store)

	pair, err := mgr.Refresh(context.Background(), "keep-me")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.RefreshToken != "keep-me" {
		t.Fatalf("expected previous refresh token kept, got %q", pair.RefreshToken)
	}
}

func TestRejectedRefreshClearsStoreAndReturnsAuthError(t *testing.T) {
	server := newTokenServer(t, "", "")
	server.reject.Store(true)
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))
	if err := store.Save(auth.TokenPair{AccessToken: signedToken(t, time.Now().Add(-time.Hour)), RefreshToken: "revoked"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	mgr := newManager(t, server, store)

	_, err := mgr.AccessToken(context.Background())
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("expected auth error to be non-retryable")
	}
	if _, ok, loadErr := store.Load(); loadErr != nil || ok {
		t.Fatalf("expected store cleared, ok=%v err=%v", ok, loadErr)
	}

	if _, err := mgr.AccessToken(context.Background()); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error after clear, got %v", err)
	}
	if got := server.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected no silent retry, got %d refresh calls", got)
	}
}

func TestRefreshOutageKeepsStoredPair(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := newTokenServer(t, "", "")
			server.failStatus.Store(int32(status))
			store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))
			seeded := auth.TokenPair{AccessToken: signedToken(t, time.Now().Add(-time.Hour)), RefreshToken: "still-good"}
			if err := store.Save(seeded); err != nil {
				t.Fatalf("seed store: %v", err)
			}

			_, err := newManager(t, server, store).AccessToken(context.Background())
			if !errors.Is(err, services.ErrTransient) {
				t.Fatalf("expected transient error, got %v", err)
			}
			if errors.Is(err, services.ErrAuth) {
				t.Fatalf("outage must not be reported as an auth failure: %v", err)
			}
			got, ok, loadErr := store.Load()
			if loadErr != nil || !ok {
				t.Fatalf("expected stored pair kept, ok=%v err=%v", ok, loadErr)
			}
			if got.RefreshToken != "still-good" {
				t.Fatalf("stored refresh token = %q", got.RefreshToken)
			}
		})
	}
}

func TestRejectedRefreshKeepsPairRotatedElsewhere(t *testing.T) {
	server := newTokenServer(t, "", "")
	server.reject.Store(true)
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))
	if err := store.Save(auth.TokenPair{AccessToken: signedToken(t, time.Now().Add(-time.Hour)), RefreshToken: "r1"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	rotated := auth.TokenPair{AccessToken: signedToken(t, time.Now().Add(time.Hour)), RefreshToken: "r2"}
	server.onRefresh = func() {
		if err := store.Save(rotated); err != nil {
			t.Errorf("save rotated pair: %v", err)
		}
	}
	mgr := newManager(t, server, store)

	pair, err := mgr.Refresh(context.Background(), "r1")
	if err != nil {
		t.Fatalf("expected rotated pair, got error %v", err)
	}
	if pair.RefreshToken != "r2" {
		t.Fatalf("returned refresh token = %q, want r2", pair.RefreshToken)
	}
	got, ok, loadErr := store.Load()
	if loadErr != nil || !ok || got.RefreshToken != "r2" {
		t.Fatalf("expected rotated pair kept, got %+v ok=%v err=%v", got, ok, loadErr)
	}
}

func TestAccessTokenWithoutLoginFails(t *testing.T) {
	server := newTokenServer(t, "", "")
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))

	_, err := newManager(t, server, store).AccessToken(context.Background())
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestStatusAndLogout(t *testing.T) {
	server := newTokenServer(t, "", "")
	store := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "auth.json"))
	mgr := newManager(t, server, store)

	status, err := mgr.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.LoggedIn {
		t.Fatal("expected logged out status")
	}

	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	if err := store.Save(auth.TokenPair{AccessToken: signedToken(t, exp), RefreshToken: "r"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	status, err = mgr.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.LoggedIn || status.Expired || !status.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected status: %#v", status)
	}

	if err := mgr.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if status, _ := mgr.Status(); status.LoggedIn {
		t.Fatal("expected logged out after logout")
	}
}
