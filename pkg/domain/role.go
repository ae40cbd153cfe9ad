package domain

import dErrors "d1gate/pkg/domain-errors"

// Role is the account-wide privilege level. Admins bypass per-database
// grants entirely.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

var validRoles = map[Role]bool{
	RoleAdmin: true,
	RoleUser:  true,
}

// ParseRole constructs a Role from external input. An empty string defaults
// to RoleUser, matching the registration contract.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleUser, nil
	}
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeBadRequest, "role must be admin or user")
	}
	return r, nil
}

// IsValid checks the role against the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}
