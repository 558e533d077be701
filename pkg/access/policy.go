// Package access decides whether a session may change a project.
package access

import (
	"strings"

	"campuscanvas/pkg/domain"
)

// IsAdmin reports whether the session carries the admin role.
func IsAdmin(s domain.Session) bool {
	return s.Role == domain.RoleAdmin
}

// CanMutate reports whether the session may edit or delete p.
// Admins may change anything. Students may change only their own projects;
// records that predate AuthorID fall back to matching the ID inside the
// author label, which can over-match short IDs.
func CanMutate(s domain.Session, p domain.Project) bool {
	if IsAdmin(s) {
		return true
	}
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return false
	}
	if p.AuthorID != "" {
		return p.AuthorID == id
	}
	return strings.Contains(p.Author, id)
}

// CanView reports whether the session may read p. Approved projects are public.
func CanView(s domain.Session, p domain.Project) bool {
	if p.Status == domain.StatusApproved {
		return true
	}
	return CanMutate(s, p)
}

// IsOwner reports whether p was authored by the session user, ignoring the admin bypass.
func IsOwner(s domain.Session, p domain.Project) bool {
	return CanMutate(domain.Session{ID: s.ID, Role: domain.RoleStudent}, p)
}
