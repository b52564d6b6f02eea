package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/linkctl/internal/api"
)

var (
	// ErrNoRefreshToken is returned by RefreshAccessToken when the session
	// holds no refresh token. No network call is made.
	ErrNoRefreshToken = errors.New("session: no refresh token")

	// ErrRefreshFailed wraps every refresh failure, whether the backend
	// rejected the token or could not be reached.
	ErrRefreshFailed = errors.New("session: token refresh failed")
)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 30 * time.Second

// Authenticator calls the backend's token-issuing endpoints.
// *api.AuthClient implements it.
type Authenticator interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.AuthResponse, error)
}

// Clock is an injectable time source to enable deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager owns the process-wide session.
//
// Thread-safety: all methods are safe for concurrent use. Reads are lock-free
// snapshots; writers are serialised so the persisted record always matches
// the last in-memory one.
type Manager struct {
	auth           Authenticator
	persist        Persister
	clock          Clock
	logger         *slog.Logger
	refreshTimeout time.Duration

	current atomic.Pointer[Session]
	mu      sync.Mutex
	flights singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithPersister sets where the session is saved. Without it the session
// lives in memory only.
func WithPersister(p Persister) Option {
	return func(m *Manager) { m.persist = p }
}

// WithClock sets the time source used for expiry checks.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRefreshTimeout bounds each refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refreshTimeout = d }
}

// New creates a Manager with an empty session. Call Load to restore a
// persisted one.
func New(auth Authenticator, opts ...Option) *Manager {
	m := &Manager{
		auth:           auth,
		persist:        nopPersister{},
		clock:          realClock{},
		logger:         slog.Default(),
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.current.Store(&Session{})
	return m
}

// Load replaces the in-memory session with the persisted one.
func (m *Manager) Load(ctx context.Context) error {
	s, err := m.persist.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	m.mu.Lock()
	m.current.Store(&s)
	m.mu.Unlock()
	m.logger.Debug("session restored", "authenticated", IsAuthenticated(s))
	return nil
}

// Snapshot returns the current session.
func (m *Manager) Snapshot() Session {
	return *m.current.Load()
}

// IsAuthenticated reports whether the current session holds an access token.
func (m *Manager) IsAuthenticated() bool {
	return IsAuthenticated(m.Snapshot())
}

// Identity returns the current session's Identity.
func (m *Manager) Identity() string {
	return m.Snapshot().Identity()
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// SetTokens replaces the access token, refresh token and expiry together.
// The user profile is kept.
func (m *Manager) SetTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	return m.update(ctx, func(s Session) Session {
		s.AccessToken = accessToken
		s.RefreshToken = refreshToken
		s.ExpiresAt = expiresAt
		return s
	})
}

// SetUser replaces the user profile.
func (m *Manager) SetUser(ctx context.Context, user *api.User) error {
	user = cloneUser(user)
	return m.update(ctx, func(s Session) Session {
		s.User = user
		return s
	})
}

// Logout clears the session. No network call is made.
func (m *Manager) Logout(ctx context.Context) error {
	return m.update(ctx, func(Session) Session { return Session{} })
}

// Login authenticates with the backend. On failure the backend error is
// returned unchanged and the session is not touched.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	resp, err := m.auth.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	return m.apply(ctx, resp)
}

// Register creates an account and logs into it, with the same contract as Login.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) error {
	resp, err := m.auth.Register(ctx, req)
	if err != nil {
		return err
	}
	return m.apply(ctx, resp)
}

// RefreshAccessToken exchanges the refresh token for a new token pair.
//
// With no refresh token it returns ErrNoRefreshToken without a network call.
// If the backend rejects the token or cannot be reached, the session is
// cleared and the error wraps ErrRefreshFailed.
//
// Concurrent callers holding the same refresh token share one backend call,
// since the backend rotates refresh tokens on use. If ctx ends first the
// caller gets ctx.Err() and the shared call carries on.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	token := m.Snapshot().RefreshToken
	if token == "" {
		return ErrNoRefreshToken
	}

	ch := m.flights.DoChan(token, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return nil, m.refresh(fctx, token)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("joined in-flight token refresh")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context, token string) error {
	resp, err := m.auth.Refresh(ctx, token)
	if err != nil {
		m.logger.Warn("token refresh failed, clearing session", "error", err)
		m.clearIfRefreshToken(ctx, token)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if err := m.apply(ctx, resp); err != nil {
		// The new tokens are live in memory; only the disk copy is stale.
		m.logger.Warn("refreshed session not persisted", "error", err)
	}
	m.logger.Debug("access token refreshed")
	return nil
}

// clearIfRefreshToken clears the session unless a login already replaced
// the refresh token that failed.
func (m *Manager) clearIfRefreshToken(ctx context.Context, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Load().RefreshToken != token {
		return
	}
	m.storeLocked(ctx, Session{})
}

// apply replaces the whole session from an auth response.
func (m *Manager) apply(ctx context.Context, resp *api.AuthResponse) error {
	expiresAt := resp.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = tokenExpiry(resp.Token)
	}
	next := Session{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         cloneUser(resp.User),
	}
	return m.update(ctx, func(Session) Session { return next })
}

func (m *Manager) update(ctx context.Context, fn func(Session) Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeLocked(ctx, fn(*m.current.Load()))
}

// storeLocked swaps in next and writes it through. The in-memory swap
// happens even if persisting fails. Callers hold m.mu.
func (m *Manager) storeLocked(ctx context.Context, next Session) error {
	m.current.Store(&next)
	if err := m.persist.SaveSession(ctx, next); err != nil {
		m.logger.Error("failed to persist session", "error", err)
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func cloneUser(u *api.User) *api.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
