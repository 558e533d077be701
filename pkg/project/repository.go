// Package project owns project records: creation defaults, the moderation
// state machine, gallery replacement and deletion.
package project

import (
	"context"
	"net/url"
	"strings"
	"time"

	"campuscanvas/pkg/domain"
	"campuscanvas/pkg/media"
	"campuscanvas/pkg/store"
)

// Repository runs project operations against the document store.
// Callers are expected to have authorized the session before calling mutators.
type Repository struct {
	store  store.Store
	limits media.Limits
	now    func() time.Time
}

// NewRepository builds a repository. Zero limits fall back to the media defaults.
func NewRepository(s store.Store, limits media.Limits) *Repository {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = media.DefaultMaxFiles
	}
	if limits.MaxTotalBytes <= 0 {
		limits.MaxTotalBytes = media.DefaultMaxTotalBytes
	}
	return &Repository{
		store:  s,
		limits: limits,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create validates d and stores it as a Pending project.
func (r *Repository) Create(ctx context.Context, d domain.Draft) (domain.Project, error) {
	p, err := r.fromDraft(d)
	if err != nil {
		return domain.Project{}, err
	}
	id, err := r.store.CreateProject(ctx, p)
	if err != nil {
		return domain.Project{}, domain.Persistence("create project", err)
	}
	p.ID = id
	return p, nil
}

func (r *Repository) fromDraft(d domain.Draft) (domain.Project, error) {
	title := PlainText(d.Title)
	if title == "" {
		return domain.Project{}, domain.NewValidationError(domain.CodeInvalidField, "title", "title is required")
	}
	description := PlainText(d.Description)
	if description == "" {
		return domain.Project{}, domain.NewValidationError(domain.CodeInvalidField, "description", "description is required")
	}
	category, ok := domain.ParseCategory(strings.TrimSpace(string(d.Category)))
	if !ok {
		return domain.Project{}, domain.NewValidationError(domain.CodeInvalidField, "category", "unknown category %q", d.Category)
	}
	link, err := normalizeLink(d.Link)
	if err != nil {
		return domain.Project{}, err
	}
	authorID := strings.TrimSpace(d.AuthorID)
	if authorID == "" {
		return domain.Project{}, domain.NewValidationError(domain.CodeInvalidField, "authorId", "author id is required")
	}
	author := strings.TrimSpace(d.Author)
	if !strings.Contains(author, authorID) {
		return domain.Project{}, domain.NewValidationError(domain.CodeInvalidField, "author", "author must contain the author id")
	}
	if err := media.ValidateGallery(d.Gallery, r.limits); err != nil {
		return domain.Project{}, err
	}
	color := strings.TrimSpace(d.Color)
	if color == "" {
		color = domain.DefaultColor
	}
	icon := strings.TrimSpace(d.Icon)
	if icon == "" {
		icon = domain.DefaultIcon
	}
	now := r.now()
	gallery := append([]string{}, d.Gallery...)
	return domain.Project{
		Title:       title,
		Description: description,
		Category:    category,
		Link:        link,
		Author:      author,
		AuthorID:    authorID,
		Status:      domain.StatusPending,
		Gallery:     gallery,
		ImageURL:    coverOf(gallery),
		Views:       0,
		Color:       color,
		Icon:        icon,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func normalizeLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.NewValidationError(domain.CodeInvalidField, "link", "link must be an absolute http(s) URL")
	}
	return u.String(), nil
}

// ListAll returns every project regardless of status.
func (r *Repository) ListAll(ctx context.Context) ([]domain.Project, error) {
	projects, err := r.store.ListProjects(ctx)
	if err != nil {
		return nil, domain.Persistence("list projects", err)
	}
	return projects, nil
}

// ListApproved returns the publicly listed projects.
func (r *Repository) ListApproved(ctx context.Context) ([]domain.Project, error) {
	projects, err := r.store.ListProjectsByStatus(ctx, domain.StatusApproved)
	if err != nil {
		return nil, domain.Persistence("list approved projects", err)
	}
	return projects, nil
}

// ListByAuthor returns the projects submitted by authorID in any status.
func (r *Repository) ListByAuthor(ctx context.Context, authorID string) ([]domain.Project, error) {
	projects, err := r.store.ListProjectsByAuthor(ctx, authorID)
	if err != nil {
		return nil, domain.Persistence("list projects by author", err)
	}
	return projects, nil
}

// Get returns a project or domain.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (domain.Project, error) {
	p, ok, err := r.store.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, domain.Persistence("get project", err)
	}
	if !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	return p, nil
}

// SetStatus moves a project to Approved or Rejected. Re-applying the current
// status succeeds. Returning to Pending is not a legal transition.
func (r *Repository) SetStatus(ctx context.Context, id string, status domain.ProjectStatus) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(status) {
		return domain.NewValidationError(domain.CodeInvalidStatus, "status", "cannot move project from %s to %s", current.Status, status)
	}
	if err := r.store.UpdateProject(ctx, id, store.ProjectPatch{Status: &status}); err != nil {
		return domain.Persistence("set project status", err)
	}
	return nil
}

// ReplaceGallery overwrites the gallery and its cover image in one write.
func (r *Repository) ReplaceGallery(ctx context.Context, id string, gallery []string) error {
	if err := media.ValidateGallery(gallery, r.limits); err != nil {
		return err
	}
	next := append([]string{}, gallery...)
	cover := coverOf(next)
	if err := r.store.UpdateProject(ctx, id, store.ProjectPatch{Gallery: &next, ImageURL: &cover}); err != nil {
		return domain.Persistence("replace gallery", err)
	}
	return nil
}

// Delete removes a project permanently.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteProject(ctx, id); err != nil {
		return domain.Persistence("delete project", err)
	}
	return nil
}

// Stats counts projects per status.
func (r *Repository) Stats(ctx context.Context) (domain.Stats, error) {
	projects, err := r.ListAll(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	stats := domain.Stats{Total: len(projects)}
	for _, p := range projects {
		switch p.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusApproved:
			stats.Approved++
		case domain.StatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

func coverOf(gallery []string) string {
	if len(gallery) == 0 {
		return ""
	}
	return gallery[0]
}
