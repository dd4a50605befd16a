package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/services"
)

const phaseAuth = "auth"

// TokenManagerOption customises TokenManager construction.
type TokenManagerOption func(*TokenManager)

// WithHTTPClient overrides the HTTP client used for token endpoint calls.
func WithHTTPClient(client *http.Client) TokenManagerOption {
	return func(m *TokenManager) {
		m.httpClient = client
	}
}

// WithTokenStore injects a custom persistence layer.
func WithTokenStore(store TokenStore) TokenManagerOption {
	return func(m *TokenManager) {
		m.store = store
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) TokenManagerOption {
	return func(m *TokenManager) {
		m.logger = logger
	}
}

// TokenManager owns the platform token pair: it loads it from the store,
// refreshes it when expired, and hands out access tokens for single requests.
type TokenManager struct {
	oauth      *oauth2.Config
	audience   string
	httpClient *http.Client
	store      TokenStore
	leeway     time.Duration
	now        func() time.Time
	logger     *slog.Logger

	refreshMu sync.Mutex
}

// NewTokenManager builds a TokenManager using the provided configuration.
func NewTokenManager(cfg *config.Config, opts ...TokenManagerOption) (*TokenManager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	mgr := &TokenManager{
		oauth:      OAuthConfig(cfg),
		audience:   cfg.Platform.Audience,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout()},
		leeway:     cfg.TokenLeeway(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	if mgr.httpClient == nil {
		mgr.httpClient = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	if mgr.store == nil {
		mgr.store = NewFileTokenStore(cfg.TokenStatePath())
	}
	if mgr.now == nil {
		mgr.now = time.Now
	}
	mgr.logger = logging.NewComponentLogger(mgr.logger, "auth")
	return mgr, nil
}

// OAuthConfig describes the platform's authorization server as a public
// PKCE client.
func OAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID: cfg.Platform.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.Platform.AuthURL,
			TokenURL:  cfg.Platform.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: cfg.Platform.RedirectURL,
		Scopes:      append([]string(nil), cfg.Platform.Scopes...),
	}
}

// AccessToken returns a currently valid access token, refreshing the stored
// pair when needed.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	pair, ok, err := m.store.Load()
	if err != nil {
		return "", services.Wrap(services.ErrAuth, phaseAuth, "load tokens", "", err)
	}
	if !ok {
		return "", services.Wrap(services.ErrAuth, phaseAuth, "load tokens", "not logged in; run 'storyforge auth login'", nil)
	}
	pair, err = m.EnsureValid(ctx, pair)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// EnsureValid returns pair unchanged when its access token is still valid.
// Otherwise it refreshes once under a lock, reusing a pair another caller
// already refreshed into the store.
func (m *TokenManager) EnsureValid(ctx context.Context, pair TokenPair) (TokenPair, error) {
	if !IsExpired(pair.AccessToken, m.now(), m.leeway) {
		return pair, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	refreshToken := pair.RefreshToken
	stored, ok, err := m.store.Load()
	if err != nil {
		return TokenPair{}, services.Wrap(services.ErrAuth, phaseAuth, "load tokens", "", err)
	}
	if ok {
		if !IsExpired(stored.AccessToken, m.now(), m.leeway) {
			return stored, nil
		}
		if stored.RefreshToken != "" {
			refreshToken = stored.RefreshToken
		}
	}
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, services.Wrap(services.ErrAuth, phaseAuth, "refresh", "no refresh token; run 'storyforge auth login'", nil)
	}

	return m.Refresh(ctx, refreshToken)
}

// Refresh exchanges refreshToken for a new pair and stores it. Only a
// refresh the token endpoint rejects (400/401 or invalid_grant) clears the
// store; outages and rate limits leave the stored pair in place.
func (m *TokenManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	source := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if !errors.As(err, &retrieveErr) {
			return TokenPair{}, services.Wrap(services.ErrTransient, phaseAuth, "refresh", "token endpoint unreachable", err)
		}
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if !refreshRejected(status, retrieveErr.ErrorCode) {
			m.logger.Warn("token endpoint unavailable",
				logging.Int("status", status),
				logging.String("error_code", retrieveErr.ErrorCode),
				logging.Event("token_refresh_unavailable"),
				logging.Impact("stored session kept; retry later"),
			)
			return TokenPair{}, services.Wrap(services.ErrTransient, phaseAuth, "refresh", fmt.Sprintf("token endpoint returned %d", status), err)
		}
		return m.rejected(refreshToken, status, retrieveErr.ErrorCode, err)
	}

	pair := pairFromToken(token, refreshToken)
	if err := m.store.Save(pair); err != nil {
		return TokenPair{}, services.Wrap(services.ErrAuth, phaseAuth, "save tokens", "", err)
	}
	m.logger.Debug("access token refreshed", logging.Event("token_refreshed"))
	return pair, nil
}

// rejected handles a refresh token the platform refused. Another process
// sharing the state file may have rotated the pair in the meantime; its
// newer pair is kept.
func (m *TokenManager) rejected(refreshToken string, status int, code string, cause error) (TokenPair, error) {
	stored, ok, err := m.store.Load()
	if err == nil && ok && stored.RefreshToken != refreshToken {
		if !IsExpired(stored.AccessToken, m.now(), m.leeway) {
			m.logger.Info("session rotated by another process",
				logging.Event("token_rotated_elsewhere"),
			)
			return stored, nil
		}
		return TokenPair{}, services.Wrap(services.ErrTransient, phaseAuth, "refresh", "stored session changed during refresh; retry", cause)
	}

	if clearErr := m.store.Clear(); clearErr != nil {
		m.logger.Warn("clear rejected tokens failed",
			logging.Error(clearErr),
			logging.Event("token_clear_failed"),
			logging.Hint("delete the auth state file manually"),
		)
	}
	m.logger.Warn("refresh token rejected",
		logging.Int("status", status),
		logging.String("error_code", code),
		logging.Event("token_refresh_rejected"),
		logging.Hint("run 'storyforge auth login'"),
	)
	return TokenPair{}, services.Wrap(services.ErrAuth, phaseAuth, "refresh", "platform rejected refresh token; run 'storyforge auth login'", cause)
}

func refreshRejected(status int, code string) bool {
	if code == "invalid_grant" {
		return true
	}
	return status == http.StatusBadRequest || status == http.StatusUnauthorized
}

func (m *TokenManager) exchange(ctx context.Context, code, verifier string) (TokenPair, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return TokenPair{}, services.Wrap(services.ErrAuth, phaseAuth, "exchange code", "", err)
	}
	pair := pairFromToken(token, "")
	if err := m.store.Save(pair); err != nil {
		return TokenPair{}, services.Wrap(services.ErrAuth, phaseAuth, "save tokens", "", err)
	}
	m.logger.Info("platform login complete", logging.Event("login_complete"))
	return pair, nil
}

func pairFromToken(token *oauth2.Token, previousRefresh string) TokenPair {
	pair := TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	if pair.RefreshToken == "" {
		pair.RefreshToken = previousRefresh
	}
	return pair
}

// Status describes the stored session.
type Status struct {
	LoggedIn  bool      `json:"logged_in"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Expired   bool      `json:"expired"`
}

// Status reports whether a pair is stored and when its access token expires.
func (m *TokenManager) Status() (Status, error) {
	pair, ok, err := m.store.Load()
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{}, nil
	}
	status := Status{LoggedIn: true}
	if exp, ok := ExpiresAt(pair.AccessToken); ok {
		status.ExpiresAt = exp
	}
	status.Expired = IsExpired(pair.AccessToken, m.now(), m.leeway)
	return status, nil
}

// Logout removes the stored pair.
func (m *TokenManager) Logout() error {
	return m.store.Clear()
}
