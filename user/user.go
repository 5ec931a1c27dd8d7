// Package user holds the user record, role and status types consumed by the
// authentication engine, and the repository port it reads users through.
//
// Persistence is the caller's concern; nothing here talks to a database.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by repositories when no user matches.
var ErrNotFound = errors.New("user not found")

// Role is ordered: a higher value carries every privilege of a lower one.
type Role uint8

const (
	RoleUser Role = iota
	RoleModerator
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = [...]string{
	RoleUser:       "user",
	RoleModerator:  "moderator",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// ParseRole maps the wire name back to a Role.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return RoleUser, fmt.Errorf("unknown role %q", s)
}

// Status is the account lifecycle state.
type Status uint8

const (
	StatusActive Status = iota
	StatusInactive
	StatusSuspended
	StatusPending
	StatusBlocked
)

var statusNames = [...]string{
	StatusActive:    "active",
	StatusInactive:  "inactive",
	StatusSuspended: "suspended",
	StatusPending:   "pending",
	StatusBlocked:   "blocked",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// CanAuthenticate reports whether the account may log in or refresh.
func (s Status) CanAuthenticate() bool {
	return s == StatusActive
}

// ParseStatus maps the wire name back to a Status.
func ParseStatus(v string) (Status, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	return StatusInactive, fmt.Errorf("unknown status %q", v)
}

// User is the subset of the account record the engine needs.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	Status       Status
	MFAEnabled   bool
	MFASecret    string
}

// Repository resolves users. Implementations return ErrNotFound (possibly
// wrapped) when no user matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}
