package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"storyforge/internal/services"
)

const pendingLoginTTL = 10 * time.Minute

// LoginFlow drives the OAuth2 authorization-code flow with PKCE.
type LoginFlow struct {
	manager *TokenManager

	mu      sync.Mutex
	pending map[string]pendingLogin
}

type pendingLogin struct {
	verifier string
	created  time.Time
}

// NewLoginFlow creates a login flow that stores tokens through manager.
func NewLoginFlow(manager *TokenManager) *LoginFlow {
	return &LoginFlow{manager: manager, pending: make(map[string]pendingLogin)}
}

// Begin returns the authorize URL the user must visit and the state value
// the callback has to echo.
func (f *LoginFlow) Begin() (string, string) {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	f.mu.Lock()
	f.expireLocked()
	f.pending[state] = pendingLogin{verifier: verifier, created: f.manager.now()}
	f.mu.Unlock()

	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if f.manager.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", f.manager.audience))
	}
	return f.manager.oauth.AuthCodeURL(state, opts...), state
}

// Complete validates state and exchanges code for a token pair.
func (f *LoginFlow) Complete(ctx context.Context, state, code string) (TokenPair, error) {
	state = strings.TrimSpace(state)
	code = strings.TrimSpace(code)

	f.mu.Lock()
	f.expireLocked()
	login, ok := f.pending[state]
	if ok {
		delete(f.pending, state)
	}
	f.mu.Unlock()

	if !ok {
		return TokenPair{}, services.Wrap(services.ErrAuth, phaseAuth, "callback", "unknown or expired login state", nil)
	}
	if code == "" {
		return TokenPair{}, services.Wrap(services.ErrAuth, phaseAuth, "callback", "authorization code missing", nil)
	}
	return f.manager.exchange(ctx, code, login.verifier)
}

func (f *LoginFlow) expireLocked() {
	cutoff := f.manager.now().Add(-pendingLoginTTL)
	for state, login := range f.pending {
		if login.created.Before(cutoff) {
			delete(f.pending, state)
		}
	}
}
