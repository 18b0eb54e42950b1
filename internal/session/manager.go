// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMissingSecret is returned when the manager has no signing secret.
	ErrMissingSecret = errors.New("session secret is not configured")

	// ErrEmptyUserID is returned when issuing a token without a user.
	ErrEmptyUserID = errors.New("user id is required")

	// ErrInvalidToken is returned for tokens that fail signature or claim checks.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrIdleTimeout is returned when a session saw no activity for too long.
	ErrIdleTimeout = errors.New("session idle timeout")
)

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Claims is the payload of a session token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Config holds configuration for the session manager.
type Config struct {
	// Secret signs tokens with HS256.
	Secret []byte

	// TokenTTL is how long an issued token is valid (default: 24 hours).
	TokenTTL time.Duration

	// IdleTimeout ends a session after this long without activity
	// (default: 15 minutes). Zero disables idle tracking.
	IdleTimeout time.Duration

	// Issuer is written to and required in every token.
	Issuer string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		TokenTTL:    24 * time.Hour,
		IdleTimeout: 15 * time.Minute,
		Issuer:      "cardiochat",
	}
}

// Manager issues and verifies session tokens and tracks per-session
// activity for the idle timeout.
type Manager struct {
	mu sync.Mutex

	secret      []byte
	ttl         time.Duration
	idleTimeout time.Duration
	issuer      string

	// Session tracking, keyed by token id.
	sessions map[string]*tracked

	now func() time.Time
}

type tracked struct {
	userID       string
	startTime    time.Time
	lastActivity time.Time
	expires      time.Time
	revoked      bool
}

// NewManager creates a new session manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	def := DefaultConfig()
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	return &Manager{
		secret:      cfg.Secret,
		ttl:         cfg.TokenTTL,
		idleTimeout: cfg.IdleTimeout,
		issuer:      cfg.Issuer,
		sessions:    make(map[string]*tracked),
		now:         time.Now,
	}, nil
}

// Issue creates a signed token for userID and starts tracking its session.
func (m *Manager) Issue(userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := m.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	m.mu.Lock()
	m.sessions[claims.ID] = &tracked{userID: userID, startTime: now, lastActivity: now, expires: now.Add(m.ttl)}
	m.mu.Unlock()

	return signed, nil
}

// Authenticate verifies token and records activity on its session.
// Tokens issued by another process start a fresh activity record.
func (m *Manager) Authenticate(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[claims.ID]
	if !ok {
		s = &tracked{userID: claims.UserID, startTime: now}
		if claims.ExpiresAt != nil {
			s.expires = claims.ExpiresAt.Time
		}
		m.sessions[claims.ID] = s
	} else if s.revoked {
		return Identity{}, fmt.Errorf("%w: session revoked", ErrInvalidToken)
	} else if m.idleTimeout > 0 && now.Sub(s.lastActivity) >= m.idleTimeout {
		delete(m.sessions, claims.ID)
		return Identity{}, ErrIdleTimeout
	}
	s.lastActivity = now

	return Identity{UserID: claims.UserID, SessionID: claims.ID}, nil
}

// Revoke ends a session. Its token is rejected afterwards.
func (m *Manager) Revoke(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.revoked = true
	}
}

// Prune forgets sessions idle past the timeout and returns how many were removed.
func (m *Manager) Prune() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		// Revoked tokens stay known until they expire.
		if s.revoked {
			if now.After(s.expires) {
				delete(m.sessions, id)
				removed++
			}
			continue
		}
		if now.Sub(s.lastActivity) >= m.idleTimeout {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status represents the current state of one session. Durations encode
// as nanoseconds.
type Status struct {
	SessionID     string        `json:"sessionId"`
	UserID        string        `json:"userId"`
	StartTime     time.Time     `json:"startTime"`
	IdleTime      time.Duration `json:"idleTime"`
	RemainingTime time.Duration `json:"remainingTime"`
	IsExpired     bool          `json:"isExpired"`
}

// GetStatus returns the status of a tracked session.
func (m *Manager) GetStatus(sessionID string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Status{}, false
	}

	idle := m.now().Sub(s.lastActivity)
	st := Status{
		SessionID: sessionID,
		UserID:    s.userID,
		StartTime: s.startTime,
		IdleTime:  idle,
	}
	if m.idleTimeout > 0 {
		st.RemainingTime = max(m.idleTimeout-idle, 0)
		st.IsExpired = idle >= m.idleTimeout
	}
	return st, true
}

// ActiveCount returns the number of tracked sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
