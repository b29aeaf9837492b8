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

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// ProfileFetcher resolves the user behind the current token.
type ProfileFetcher interface {
	Profile(ctx context.Context) (*domain.User, error)
}

// DefaultSessionTTL bounds how long a resolved session is reused before the
// profile is fetched again.
const DefaultSessionTTL = 15 * time.Second

// Manager owns the session: it reads the token from a TokenStore and
// resolves it to a user through the API.
type Manager struct {
	store    TokenStore
	profiles ProfileFetcher
	logger   *slog.Logger
	now      func() time.Time
	skew     time.Duration
	ttl      time.Duration

	mu       sync.Mutex
	cached   *domain.Session
	cachedAt time.Time
}

func NewManager(store TokenStore, profiles ProfileFetcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, profiles: profiles, logger: logger, now: time.Now, ttl: DefaultSessionTTL}
}

// SetSessionTTL changes how long Current reuses a resolved session. Zero
// disables reuse.
func (m *Manager) SetSessionTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl = ttl
	m.cached = nil
}

// Invalidate drops the reused session so the next Current fetches the
// profile again.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
}

// Token implements the API client's token source.
func (m *Manager) Token(ctx context.Context) (string, error) {
	t, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(t), nil
}

// Current returns the signed-in session, or nil when there is none. An
// expired or rejected token is removed from the store. A session resolved
// for the same token within the TTL is reused without a profile fetch.
func (m *Manager) Current(ctx context.Context) (*domain.Session, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		m.Invalidate()
		return nil, nil
	}
	claims, perr := ParseClaims(token)
	if perr == nil && claims.Expired(m.now(), m.skew) {
		m.logger.Info("session token expired", "sub", claims.Subject)
		return nil, m.clear(ctx)
	}
	if s := m.reuse(token); s != nil {
		return s, nil
	}

	user, err := m.profiles.Profile(ctx)
	if err != nil {
		if unauthorized(err) {
			m.logger.Info("session token rejected; signing out")
			return nil, m.clear(ctx)
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	s := &domain.Session{Token: token, User: *user}
	if perr == nil {
		s.ExpiresAt = claims.ExpiresAt
		if s.User.Email == "" {
			s.User.Email = claims.Email
		}
	}
	m.remember(s)
	return s, nil
}

func (m *Manager) reuse(token string) *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil || m.cached.Token != token || m.now().Sub(m.cachedAt) >= m.ttl {
		return nil
	}
	s := *m.cached
	return &s
}

func (m *Manager) remember(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ttl <= 0 {
		return
	}
	cp := *s
	m.cached = &cp
	m.cachedAt = m.now()
}

func (m *Manager) clear(ctx context.Context) error {
	m.Invalidate()
	return m.store.Clear(ctx)
}

// SignIn stores token and resolves its session. A token the API rejects is
// not kept.
func (m *Manager) SignIn(ctx context.Context, token string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("empty token")
	}
	m.Invalidate()
	if err := m.store.Save(ctx, token); err != nil {
		return nil, err
	}
	s, err := m.Current(ctx)
	if err != nil {
		_ = m.clear(ctx)
		return nil, err
	}
	if s == nil {
		return nil, domain.ErrAuthRequired
	}
	return s, nil
}

func (m *Manager) SignOut(ctx context.Context) error {
	return m.clear(ctx)
}

func unauthorized(err error) bool {
	var apiErr *domain.APIError
	return errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}
