package domain

import dErrors "d1gate/pkg/domain-errors"

// Permission is a database access level. Levels are totally ordered:
// read < write < admin. A grant at one level covers every level below it.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

// permissionRank defines the ordering used by Covers.
var permissionRank = map[Permission]int{
	PermissionRead:  1,
	PermissionWrite: 2,
	PermissionAdmin: 3,
}

// ParsePermission constructs a Permission from external input.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if _, ok := permissionRank[p]; !ok {
		return "", dErrors.New(dErrors.CodeBadRequest, "permission must be read, write, or admin")
	}
	return p, nil
}

// Covers reports whether a grant at level p satisfies a requirement of level
// required. Unknown values never cover anything.
func (p Permission) Covers(required Permission) bool {
	pr, ok := permissionRank[p]
	if !ok {
		return false
	}
	rr, ok := permissionRank[required]
	if !ok {
		return false
	}
	return pr >= rr
}

// IsValid checks the permission against the supported enum values.
func (p Permission) IsValid() bool {
	_, ok := permissionRank[p]
	return ok
}

func (p Permission) String() string {
	return string(p)
}
