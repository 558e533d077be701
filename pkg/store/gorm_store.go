package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"campuscanvas/pkg/domain"
)

const (
	migrateLockID   int64 = 41731902
	bootstrapLockID int64 = 41731903
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &ProjectModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// Rows migrated from older schemas may carry a NULL gallery.
		if err := tx.Exec(`UPDATE project_models SET gallery = '[]'::jsonb WHERE gallery IS NULL`).Error; err != nil {
			return fmt.Errorf("backfill gallery: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	model.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "password_hash", "role", "updated_at"}),
	}).Create(&model).Error
}

// CreateUser inserts a user without touching an existing row.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	return createUser(s.db.WithContext(ctx), u)
}

// CreateFirstUser inserts u only while the users table is empty. Concurrent
// callers are serialized by a transaction-scoped advisory lock.
func (s *GormStore) CreateFirstUser(ctx context.Context, u domain.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", bootstrapLockID).Error; err != nil {
			return fmt.Errorf("acquire bootstrap lock: %w", err)
		}
		var count int64
		if err := tx.Model(&UserModel{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrNotFirstUser
		}
		return createUser(tx, u)
	})
}

func createUser(db *gorm.DB, u domain.User) error {
	model := userToModel(u)
	model.UpdatedAt = time.Now().UTC()
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserExists
	}
	return nil
}

// GetUser looks up a user by username.
func (s *GormStore) GetUser(ctx context.Context, username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).Order("created_at ASC, username ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateProject inserts a project under a new ID.
func (s *GormStore) CreateProject(ctx context.Context, p domain.Project) (string, error) {
	p.ID = NewID()
	model, err := projectToModel(p)
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", err
	}
	return p.ID, nil
}

// ListProjects returns all projects ordered by created_at.
func (s *GormStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.listProjects(ctx)
}

// ListProjectsByStatus returns projects with the given status.
func (s *GormStore) ListProjectsByStatus(ctx context.Context, status domain.ProjectStatus) ([]domain.Project, error) {
	return s.listProjects(ctx, "status = ?", string(status))
}

// ListProjectsByAuthor returns projects created by authorID.
func (s *GormStore) ListProjectsByAuthor(ctx context.Context, authorID string) ([]domain.Project, error) {
	return s.listProjects(ctx, "author_id = ?", authorID)
}

func (s *GormStore) listProjects(ctx context.Context, conds ...any) ([]domain.Project, error) {
	var models []ProjectModel
	tx := s.db.WithContext(ctx).Order("created_at ASC, id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		p, err := projectFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// GetProject retrieves a project.
func (s *GormStore) GetProject(ctx context.Context, id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	p, err := projectFromModel(model)
	if err != nil {
		return domain.Project{}, false, err
	}
	return p, true, nil
}

// UpdateProject writes every patched column in one UPDATE statement.
func (s *GormStore) UpdateProject(ctx context.Context, id string, patch ProjectPatch) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.Gallery != nil {
		raw, err := marshalGallery(*patch.Gallery)
		if err != nil {
			return err
		}
		updates["gallery"] = raw
	}
	if patch.ImageURL != nil {
		updates["image_url"] = *patch.ImageURL
	}
	res := s.db.WithContext(ctx).Model(&ProjectModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteProject removes a project.
func (s *GormStore) DeleteProject(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&ProjectModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		Username:     u.Username,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		Username:     m.Username,
		FullName:     m.FullName,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}

func projectToModel(p domain.Project) (ProjectModel, error) {
	gallery, err := marshalGallery(p.Gallery)
	if err != nil {
		return ProjectModel{}, err
	}
	return ProjectModel{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    string(p.Category),
		Link:        p.Link,
		Author:      p.Author,
		AuthorID:    p.AuthorID,
		Status:      string(p.Status),
		Gallery:     gallery,
		ImageURL:    p.ImageURL,
		Views:       p.Views,
		Color:       p.Color,
		Icon:        p.Icon,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func projectFromModel(m ProjectModel) (domain.Project, error) {
	var gallery []string
	if len(m.Gallery) > 0 {
		if err := json.Unmarshal(m.Gallery, &gallery); err != nil {
			return domain.Project{}, fmt.Errorf("decode gallery of %s: %w", m.ID, err)
		}
	}
	return domain.Project{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Category:    domain.Category(m.Category),
		Link:        m.Link,
		Author:      m.Author,
		AuthorID:    m.AuthorID,
		Status:      domain.ProjectStatus(m.Status),
		Gallery:     gallery,
		ImageURL:    m.ImageURL,
		Views:       m.Views,
		Color:       m.Color,
		Icon:        m.Icon,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func marshalGallery(gallery []string) (datatypes.JSON, error) {
	if gallery == nil {
		gallery = []string{}
	}
	raw, err := json.Marshal(gallery)
	if err != nil {
		return nil, fmt.Errorf("encode gallery: %w", err)
	}
	return datatypes.JSON(raw), nil
}
