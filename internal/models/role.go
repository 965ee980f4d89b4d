package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRole is returned for anything outside the three ranking partitions
var ErrInvalidRole = errors.New("invalid role")

// Role partitions the ranking space. Ranks are never compared across roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleSchool  Role = "school"
)

// Roles returns every role in display order
func Roles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleSchool}
}

// ParseRole normalises and validates a role name
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleSchool:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
