// Package auth keeps the signed-in user's bearer token and profile in sync
// with durable storage and the backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kingrea/auralynx/internal/api"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	// ErrSessionInvalid is returned when a stored or fresh token cannot be
	// validated against the backend.
	ErrSessionInvalid = errors.New("auth: session is no longer valid")
)

// RegistrationError carries the backend's reason for rejecting a sign-up.
type RegistrationError struct {
	Detail string
	Err    error
}

func (e *RegistrationError) Error() string {
	return "auth: registration failed: " + e.Detail
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// TokenStore persists the bearer token across launches.
type TokenStore interface {
	LoadToken() (string, error)
	SaveToken(token string) error
	ClearToken() error
}

// Backend is the subset of the API client the manager needs.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (string, error)
	Register(ctx context.Context, reg api.Registration) error
	Me(ctx context.Context, token string) (*api.User, error)
}

// Manager owns the auth session. The user is only set while a token is set
// and has been confirmed by the backend.
type Manager struct {
	mu      sync.RWMutex
	backend Backend
	store   TokenStore
	clock   func() time.Time

	token string
	user  *api.User
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock injects a deterministic clock for token expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager wires a session manager. store may be nil for an in-memory
// session.
func NewManager(backend Backend, store TokenStore, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("auth: backend is required")
	}
	m := &Manager{backend: backend, store: store, clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Token returns the current bearer token, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (m *Manager) CurrentUser() *api.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// SignedIn reports whether a validated user is present.
func (m *Manager) SignedIn() bool {
	return m.CurrentUser() != nil
}

// Restore adopts a persisted token if the backend still accepts it. A
// missing token is not an error.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	token, err := m.store.LoadToken()
	if err != nil {
		return fmt.Errorf("auth: load token: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if m.expired(token) {
		m.clear()
		return fmt.Errorf("%w: token expired", ErrSessionInvalid)
	}
	m.mu.Lock()
	m.token = token
	m.user = nil
	m.mu.Unlock()

	user, err := m.backend.Me(ctx, token)
	if err != nil {
		m.clear()
		return fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	m.adopt(token, user)
	return nil
}

// Login exchanges credentials for a token and loads the user.
func (m *Manager) Login(ctx context.Context, username, password string) (*api.User, error) {
	token, err := m.backend.Login(ctx, api.Credentials{Username: strings.TrimSpace(username), Password: password})
	if err != nil {
		if api.StatusCode(err) != 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, api.Detail(err, "login rejected"))
		}
		return nil, fmt.Errorf("auth: login: %w", err)
	}
	if m.store != nil {
		if err := m.store.SaveToken(token); err != nil {
			return nil, fmt.Errorf("auth: save token: %w", err)
		}
	}
	m.mu.Lock()
	m.token = token
	m.user = nil
	m.mu.Unlock()

	user, err := m.backend.Me(ctx, token)
	if err != nil {
		m.clear()
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	m.adopt(token, user)
	return m.CurrentUser(), nil
}

// Register creates an account and signs into it.
func (m *Manager) Register(ctx context.Context, username, email, password string) (*api.User, error) {
	reg := api.Registration{Username: strings.TrimSpace(username), Email: strings.TrimSpace(email), Password: password}
	if err := m.backend.Register(ctx, reg); err != nil {
		var verr *api.ValidationError
		switch {
		case errors.As(err, &verr):
			return nil, &RegistrationError{Detail: verr.Error(), Err: err}
		case api.StatusCode(err) != 0:
			return nil, &RegistrationError{Detail: api.Detail(err, "registration failed"), Err: err}
		default:
			return nil, fmt.Errorf("auth: register: %w", err)
		}
	}
	return m.Login(ctx, reg.Username, password)
}

// Logout forgets the session locally. It never calls the backend.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	if err := m.store.ClearToken(); err != nil {
		return fmt.Errorf("auth: clear token: %w", err)
	}
	return nil
}

func (m *Manager) adopt(token string, user *api.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != token || user == nil {
		return
	}
	u := *user
	m.user = &u
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.mu.Unlock()
	if m.store != nil {
		_ = m.store.ClearToken()
	}
}

// expired reports whether token is a JWT whose exp claim has passed. Opaque
// tokens are never considered expired here; the backend decides.
func (m *Manager) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.Time.After(m.clock())
}
