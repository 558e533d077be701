package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"campuscanvas/pkg/domain"
)

func TestMemoryStoreProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.CreateProject(ctx, domain.Project{Title: "first", AuthorID: "a", Status: domain.StatusPending, Gallery: []string{"g1"}})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := s.CreateProject(ctx, domain.Project{Title: "second", AuthorID: "b", Status: domain.StatusApproved})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first == "" || first == second {
		t.Fatalf("expected distinct ids, got %q and %q", first, second)
	}

	all, _ := s.ListProjects(ctx)
	if len(all) != 2 || all[0].ID != first || all[1].ID != second {
		t.Fatalf("expected insertion order, got %+v", all)
	}
	approved, _ := s.ListProjectsByStatus(ctx, domain.StatusApproved)
	if len(approved) != 1 || approved[0].ID != second {
		t.Fatalf("unexpected approved list %+v", approved)
	}
	mine, _ := s.ListProjectsByAuthor(ctx, "a")
	if len(mine) != 1 || mine[0].ID != first {
		t.Fatalf("unexpected author list %+v", mine)
	}

	gallery := []string{"g2", "g3"}
	cover := "g2"
	if err := s.UpdateProject(ctx, first, ProjectPatch{Gallery: &gallery, ImageURL: &cover}); err != nil {
		t.Fatalf("update: %v", err)
	}
	gallery[0] = "mutated"
	got, ok, _ := s.GetProject(ctx, first)
	if !ok || len(got.Gallery) != 2 || got.Gallery[0] != "g2" || got.ImageURL != "g2" {
		t.Fatalf("unexpected patched project %+v", got)
	}

	if err := s.DeleteProject(ctx, first); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteProject(ctx, first); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	status := domain.StatusRejected
	if err := s.UpdateProject(ctx, first, ProjectPatch{Status: &status}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if _, ok, _ := s.GetProject(ctx, first); ok {
		t.Fatalf("deleted project still readable")
	}
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	_ = s.SaveUser(ctx, domain.User{Username: "b", Role: domain.RoleStudent, CreatedAt: now})
	_ = s.SaveUser(ctx, domain.User{Username: "a", Role: domain.RoleAdmin, CreatedAt: now.Add(-time.Hour)})

	count, _ := s.UserCount(ctx)
	if count != 2 {
		t.Fatalf("expected 2 users, got %d", count)
	}
	users, _ := s.ListUsers(ctx)
	if users[0].Username != "a" || users[1].Username != "b" {
		t.Fatalf("expected users ordered by creation, got %+v", users)
	}
	u, ok, _ := s.GetUser(ctx, "a")
	if !ok || u.Role != domain.RoleAdmin {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, ok, _ := s.GetUser(ctx, "missing"); ok {
		t.Fatalf("expected missing user")
	}
}

func TestMemoryStoreCreateUserIsInsertOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateFirstUser(ctx, domain.User{Username: "root", PasswordHash: "h1", Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("first user: %v", err)
	}
	if err := s.CreateFirstUser(ctx, domain.User{Username: "other", Role: domain.RoleAdmin}); !errors.Is(err, ErrNotFirstUser) {
		t.Fatalf("expected ErrNotFirstUser, got %v", err)
	}
	if err := s.CreateUser(ctx, domain.User{Username: "root", PasswordHash: "h2"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	u, _, _ := s.GetUser(ctx, "root")
	if u.PasswordHash != "h1" {
		t.Fatalf("existing user overwritten: %+v", u)
	}
	if err := s.CreateUser(ctx, domain.User{Username: "student", Role: domain.RoleStudent}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}
