// Package domain holds the primitive identifier and enum types shared across
// the gateway. IDs are typed UUID wrappers so a session ID can never be
// passed where a user ID is expected; construct them from external input via
// the Parse functions, which enforce validity at the trust boundary.
package domain

import (
	"github.com/google/uuid"

	dErrors "d1gate/pkg/domain-errors"
)

type (
	// UserID identifies a user record.
	UserID uuid.UUID

	// SessionID identifies a session record. It is public to the browser
	// (cookie value) and distinct from the session's bearer token.
	SessionID uuid.UUID

	// GrantID identifies a database access grant.
	GrantID uuid.UUID
)

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewSessionID returns a fresh random session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewGrantID returns a fresh random grant ID.
func NewGrantID() GrantID { return GrantID(uuid.New()) }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "malformed id")
	}
	return u, nil
}

// ParseUserID validates external input as a user ID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseSessionID validates external input as a session ID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

// ParseGrantID validates external input as a grant ID.
func ParseGrantID(s string) (GrantID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return GrantID{}, err
	}
	return GrantID(u), nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id GrantID) String() string { return uuid.UUID(id).String() }
func (id GrantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// The wrappers marshal as canonical UUID strings, not as raw byte arrays.

func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *SessionID) UnmarshalText(text []byte) error {
	parsed, err := ParseSessionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id GrantID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *GrantID) UnmarshalText(text []byte) error {
	parsed, err := ParseGrantID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
