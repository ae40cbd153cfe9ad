// Package models holds the identity records tracked by the gateway. Storage
// lives behind the store interfaces; these types carry no behavior beyond
// construction and sanitization.
package models

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"d1gate/pkg/domain"
)

// SessionTTL is the fixed validity window for new sessions.
const SessionTTL = 7 * 24 * time.Hour

// User is the primary identity record. PasswordHash never leaves the auth
// packages; anything crossing the HTTP boundary goes through Sanitize.
type User struct {
	ID           domain.UserID `json:"id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	Role         domain.Role   `json:"role"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Principal is the sanitized user context attached to an authenticated
// request and surfaced to collaborators.
type Principal struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Role     domain.Role   `json:"role"`
	IsActive bool          `json:"is_active"`
}

// Sanitize strips the password hash, leaving only fields safe to expose.
func (u *User) Sanitize() Principal {
	return Principal{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		IsActive: u.IsActive,
	}
}

// Session is a login session. The ID is public (cookie value); the Token is
// the bearer credential and is only disclosed once, in the login response.
type Session struct {
	ID        domain.SessionID `json:"id"`
	UserID    domain.UserID    `json:"user_id"`
	Token     string           `json:"-"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
	UserAgent string           `json:"user_agent,omitempty"`
	IPAddress string           `json:"ip_address,omitempty"`
}

// NewSession builds a session for userID valid for SessionTTL from now, with
// a fresh ID and an independently generated bearer token.
func NewSession(userID domain.UserID, userAgent, ipAddress string, now time.Time) *Session {
	return &Session{
		ID:        domain.NewSessionID(),
		UserID:    userID,
		Token:     newToken(),
		ExpiresAt: now.Add(SessionTTL),
		CreatedAt: now,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}
}

// Expired reports whether the session is no longer valid at the given time.
// A session is valid only strictly before its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// newToken returns 256 bits from crypto/rand, base64url-encoded. The token
// deliberately uses a different shape and larger entropy than the UUID
// session ID.
func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process cannot mint credentials at
		// all; there is no reasonable degraded mode.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// AccessGrant authorizes one user at one permission level on one database.
// At most one grant exists per (user, database) pair.
type AccessGrant struct {
	ID         domain.GrantID    `json:"id"`
	UserID     domain.UserID     `json:"user_id"`
	DatabaseID string            `json:"database_id"`
	Permission domain.Permission `json:"permission"`
	GrantedAt  time.Time         `json:"granted_at"`
	GrantedBy  domain.UserID     `json:"granted_by"`
}

// SessionData is what a successful login or session validation yields: the
// sanitized user plus the session coordinates the boundary layer needs.
type SessionData struct {
	User      Principal        `json:"user"`
	SessionID domain.SessionID `json:"session_id"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// SessionSummary is the device-oriented view of a session returned by the
// session listing endpoint.
type SessionSummary struct {
	SessionID domain.SessionID `json:"session_id"`
	Device    string           `json:"device"`
	IPAddress string           `json:"ip_address,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	IsCurrent bool             `json:"is_current"`
}

// UserUpdate carries the optional fields of a partial user update. Nil means
// leave the field untouched.
type UserUpdate struct {
	Username *string      `json:"username"`
	Email    *string      `json:"email"`
	Password *string      `json:"password"`
	Role     *domain.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
}
