// Package store persists users and projects behind the document store contract.
package store

import (
	"context"
	"errors"

	"campuscanvas/pkg/domain"
)

var (
	// ErrUserExists is returned by CreateUser when the username is already registered.
	ErrUserExists = errors.New("store: user already exists")
	// ErrNotFirstUser is returned by CreateFirstUser once any account exists.
	ErrNotFirstUser = errors.New("store: users already provisioned")
)

// Store defines persistence operations for the users and projects collections.
// Update and delete operations on a missing record return domain.ErrNotFound.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) error
	CreateUser(ctx context.Context, u domain.User) error
	CreateFirstUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, username string) (domain.User, bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UserCount(ctx context.Context) (int, error)

	// projects
	CreateProject(ctx context.Context, p domain.Project) (string, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	ListProjectsByStatus(ctx context.Context, status domain.ProjectStatus) ([]domain.Project, error)
	ListProjectsByAuthor(ctx context.Context, authorID string) ([]domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, bool, error)
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) error
	DeleteProject(ctx context.Context, id string) error
}

// ProjectPatch is a partial update applied in a single write. Nil fields are left unchanged.
type ProjectPatch struct {
	Status   *domain.ProjectStatus
	Gallery  *[]string
	ImageURL *string
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Status == nil && p.Gallery == nil && p.ImageURL == nil
}

func (p ProjectPatch) apply(project *domain.Project) {
	if p.Status != nil {
		project.Status = *p.Status
	}
	if p.Gallery != nil {
		project.Gallery = append([]string(nil), (*p.Gallery)...)
	}
	if p.ImageURL != nil {
		project.ImageURL = *p.ImageURL
	}
}

// SessionStore issues and resolves API access tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
