// Package app composes the access policy, the project repository and the
// media pipeline into the moderation workflow exposed to operators.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"campuscanvas/internal/util"
	"campuscanvas/pkg/access"
	"campuscanvas/pkg/domain"
	"campuscanvas/pkg/media"
	"campuscanvas/pkg/notify"
	"campuscanvas/pkg/project"
	"campuscanvas/pkg/session"
	"campuscanvas/pkg/store"
)

// Config holds the collaborators of the workflow.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	Limits   media.Limits
	Notifier notify.Notifier
}

// App is the moderation workflow. Every operation takes the acting session
// explicitly and re-evaluates authorization on each call.
type App struct {
	store    store.Store
	sessions store.SessionStore
	projects *project.Repository
	pipeline *media.Pipeline
	authn    *session.Manager
	notifier notify.Notifier
}

// New wires the workflow. Sessions may be nil for clients that never issue API tokens.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop
	}
	pipeline := media.NewPipeline(cfg.Limits)
	return &App{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		projects: project.NewRepository(cfg.Store, pipeline.Limits()),
		pipeline: pipeline,
		authn:    session.NewManager(cfg.Store, nil),
		notifier: notifier,
	}, nil
}

// Limits returns the media bounds applied to uploads.
func (a *App) Limits() media.Limits {
	return a.pipeline.Limits()
}

// Submission is the caller-editable part of a new project.
type Submission struct {
	Title       string
	Description string
	Category    domain.Category
	Link        string
	Color       string
	Icon        string
}

// Submit ingests files and stores a Pending project authored by s.
// Nothing is stored when ingestion fails.
func (a *App) Submit(ctx context.Context, s domain.Session, sub Submission, files []media.File) (domain.Project, error) {
	op := a.begin(ctx, notify.KindSubmitted, s, "", "Submitting project...")
	if s.Anonymous() {
		return domain.Project{}, op.fail(domain.ErrUnauthorized)
	}
	if len(files) == 0 {
		return domain.Project{}, op.fail(domain.NewValidationError(domain.CodeNoFiles, "images", "select at least one image"))
	}
	gallery, err := a.pipeline.Ingest(ctx, files)
	if err != nil {
		return domain.Project{}, op.fail(err)
	}
	p, err := a.projects.Create(ctx, domain.Draft{
		Title:       sub.Title,
		Description: sub.Description,
		Category:    sub.Category,
		Link:        sub.Link,
		Author:      authorLabel(s),
		AuthorID:    s.ID,
		Gallery:     gallery,
		Color:       sub.Color,
		Icon:        sub.Icon,
	})
	if err != nil {
		return domain.Project{}, op.fail(err)
	}
	op.projectID = p.ID
	op.done("Project submitted for review")
	return p, nil
}

func authorLabel(s domain.Session) string {
	name := strings.TrimSpace(s.DisplayName)
	if name == "" {
		return s.ID
	}
	return fmt.Sprintf("%s (%s)", name, s.ID)
}

// Approve publishes a project. Admin only.
func (a *App) Approve(ctx context.Context, s domain.Session, projectID string) error {
	return a.setStatus(ctx, s, projectID, domain.StatusApproved, notify.KindApproved)
}

// Reject hides a project from the public listing. Admin only.
func (a *App) Reject(ctx context.Context, s domain.Session, projectID string) error {
	return a.setStatus(ctx, s, projectID, domain.StatusRejected, notify.KindRejected)
}

func (a *App) setStatus(ctx context.Context, s domain.Session, projectID string, status domain.ProjectStatus, kind string) error {
	op := a.begin(ctx, kind, s, projectID, "Updating status...")
	if !access.IsAdmin(s) {
		return op.fail(domain.ErrUnauthorized)
	}
	if err := a.projects.SetStatus(ctx, projectID, status); err != nil {
		return op.fail(err)
	}
	op.done(fmt.Sprintf("Project %s", strings.ToLower(string(status))))
	return nil
}

// UpdateMedia replaces the gallery of a project the session may mutate.
// Replacing a non-empty gallery asks confirm first when confirm is non-nil.
func (a *App) UpdateMedia(ctx context.Context, s domain.Session, projectID string, files []media.File, confirm Confirmer) (domain.Project, error) {
	op := a.begin(ctx, notify.KindMediaUpdated, s, projectID, "Uploading images...")
	p, err := a.mutable(ctx, s, projectID)
	if err != nil {
		return domain.Project{}, op.fail(err)
	}
	if len(files) == 0 {
		return domain.Project{}, op.fail(domain.NewValidationError(domain.CodeNoFiles, "images", "select at least one image"))
	}
	if err := a.pipeline.Check(files); err != nil {
		return domain.Project{}, op.fail(err)
	}
	if len(p.Gallery) > 0 && confirm != nil {
		if err := ask(ctx, confirm, "Replace all current images?"); err != nil {
			return domain.Project{}, op.fail(err)
		}
	}
	gallery, err := a.pipeline.Ingest(ctx, files)
	if err != nil {
		return domain.Project{}, op.fail(err)
	}
	if err := a.projects.ReplaceGallery(ctx, projectID, gallery); err != nil {
		return domain.Project{}, op.fail(err)
	}
	p.Gallery = gallery
	p.ImageURL = gallery[0]
	op.done("Images updated")
	return p, nil
}

// Remove deletes a project after the confirmer agrees. A nil confirmer
// counts as a refusal.
func (a *App) Remove(ctx context.Context, s domain.Session, projectID string, confirm Confirmer) error {
	op := a.begin(ctx, notify.KindDeleted, s, projectID, "Deleting project...")
	if _, err := a.mutable(ctx, s, projectID); err != nil {
		return op.fail(err)
	}
	if err := ask(ctx, confirm, "Delete this project permanently?"); err != nil {
		return op.fail(err)
	}
	if err := a.projects.Delete(ctx, projectID); err != nil {
		return op.fail(err)
	}
	op.done("Project deleted")
	return nil
}

func (a *App) mutable(ctx context.Context, s domain.Session, projectID string) (domain.Project, error) {
	if s.Anonymous() {
		return domain.Project{}, domain.ErrUnauthorized
	}
	p, err := a.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if !access.CanMutate(s, p) {
		return domain.Project{}, domain.ErrUnauthorized
	}
	return p, nil
}

// ListApproved returns the public listing.
func (a *App) ListApproved(ctx context.Context) ([]domain.Project, error) {
	return a.projects.ListApproved(ctx)
}

// SearchApproved returns the approved projects that pass f.
func (a *App) SearchApproved(ctx context.Context, f project.Filter) ([]domain.Project, error) {
	projects, err := a.projects.ListApproved(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(projects), nil
}

// ListAll returns every project. Admin only.
func (a *App) ListAll(ctx context.Context, s domain.Session) ([]domain.Project, error) {
	if !access.IsAdmin(s) {
		return nil, domain.ErrUnauthorized
	}
	return a.projects.ListAll(ctx)
}

// ListMine returns the session owner's projects in any status.
func (a *App) ListMine(ctx context.Context, s domain.Session) ([]domain.Project, error) {
	if s.Anonymous() {
		return nil, domain.ErrUnauthorized
	}
	return a.projects.ListByAuthor(ctx, s.ID)
}

// Get returns a project the session may view.
func (a *App) Get(ctx context.Context, s domain.Session, projectID string) (domain.Project, error) {
	p, err := a.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if !access.CanView(s, p) {
		return domain.Project{}, domain.ErrUnauthorized
	}
	return p, nil
}

// Stats counts projects per status. Admin only.
func (a *App) Stats(ctx context.Context, s domain.Session) (domain.Stats, error) {
	if !access.IsAdmin(s) {
		return domain.Stats{}, domain.ErrUnauthorized
	}
	return a.projects.Stats(ctx)
}

// operation tracks the notifications of one workflow call.
type operation struct {
	app       *App
	ctx       context.Context
	kind      string
	actor     string
	projectID string
}

func (a *App) begin(ctx context.Context, kind string, s domain.Session, projectID, message string) *operation {
	op := &operation{app: a, ctx: ctx, kind: kind, actor: s.ID, projectID: projectID}
	op.emit(notify.Loading, message)
	return op
}

func (op *operation) emit(level notify.Level, message string) {
	op.app.notifier.Notify(op.ctx, notify.Event{
		Kind:      op.kind,
		Level:     level,
		Message:   message,
		ProjectID: op.projectID,
		Actor:     op.actor,
		Time:      now(),
	})
}

func (op *operation) fail(err error) error {
	op.emit(notify.Error, UserMessage(err))
	audit(op.ctx, op.kind, outcome(err), op.actor, op.projectID, "error", err)
	return err
}

func (op *operation) done(message string) {
	op.emit(notify.Success, message)
	audit(op.ctx, op.kind, "success", op.actor, op.projectID)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "forbidden"
	case errors.Is(err, domain.ErrNotConfirmed):
		return "cancelled"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case domain.IsValidation(err):
		return "rejected"
	default:
		return "error"
	}
}

func audit(ctx context.Context, action, result, userID, projectID string, attrs ...any) {
	logger := util.LoggerFromContext(ctx)
	level := slog.LevelInfo
	if result != "success" {
		level = slog.LevelWarn
	}
	base := []any{"action", action, "result", result, "user_id", userID}
	if projectID != "" {
		base = append(base, "project_id", projectID)
	}
	logger.Log(ctx, level, "audit", append(base, attrs...)...)
}

// UserMessage renders err for a human operator.
func UserMessage(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, domain.ErrUnauthorized):
		return "You are not allowed to do that"
	case errors.Is(err, domain.ErrNotFound):
		return "Project no longer exists, refresh and try again"
	case errors.Is(err, domain.ErrNotConfirmed):
		return "Cancelled"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return domain.ErrInvalidCredentials.Error()
	case domain.IsPersistence(err):
		return "Could not reach the project store, try again"
	default:
		return err.Error()
	}
}
