package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"campuscanvas/pkg/domain"
)

// MemoryStore keeps users and projects in-process. Used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]domain.Project
	orders   []string
	users    map[string]domain.User // key: username
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]domain.Project),
		users:    make(map[string]domain.User),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
	return nil
}

// CreateUser inserts a user. It returns ErrUserExists when the username is taken.
func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return ErrUserExists
	}
	m.users[u.Username] = u
	return nil
}

// CreateFirstUser inserts u only while the store holds no users.
func (m *MemoryStore) CreateFirstUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.users) > 0 {
		return ErrNotFirstUser
	}
	m.users[u.Username] = u
	return nil
}

// GetUser looks up a user by username.
func (m *MemoryStore) GetUser(_ context.Context, username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	return u, ok, nil
}

// ListUsers returns all users ordered by creation time.
func (m *MemoryStore) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	sortUsers(res)
	return res, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// CreateProject stores a new project and returns its assigned ID.
func (m *MemoryStore) CreateProject(_ context.Context, p domain.Project) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = NewID()
	p.Gallery = append([]string(nil), p.Gallery...)
	m.projects[p.ID] = p
	m.orders = append(m.orders, p.ID)
	return p.ID, nil
}

// ListProjects returns projects in insertion order.
func (m *MemoryStore) ListProjects(_ context.Context) ([]domain.Project, error) {
	return m.filter(func(domain.Project) bool { return true }), nil
}

// ListProjectsByStatus returns projects with the given status.
func (m *MemoryStore) ListProjectsByStatus(_ context.Context, status domain.ProjectStatus) ([]domain.Project, error) {
	return m.filter(func(p domain.Project) bool { return p.Status == status }), nil
}

// ListProjectsByAuthor returns projects created by authorID.
func (m *MemoryStore) ListProjectsByAuthor(_ context.Context, authorID string) ([]domain.Project, error) {
	return m.filter(func(p domain.Project) bool { return p.AuthorID == authorID }), nil
}

func (m *MemoryStore) filter(keep func(domain.Project) bool) []domain.Project {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0, len(m.orders))
	for _, id := range m.orders {
		if p, ok := m.projects[id]; ok && keep(p) {
			res = append(res, clone(p))
		}
	}
	return res
}

// GetProject retrieves a project by ID.
func (m *MemoryStore) GetProject(_ context.Context, id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, false, nil
	}
	return clone(p), true, nil
}

// UpdateProject applies patch to the stored project.
func (m *MemoryStore) UpdateProject(_ context.Context, id string, patch ProjectPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.ErrNotFound
	}
	patch.apply(&p)
	p.UpdatedAt = time.Now().UTC()
	m.projects[id] = p
	return nil
}

// DeleteProject removes a project.
func (m *MemoryStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.projects, id)
	filtered := m.orders[:0]
	for _, item := range m.orders {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.orders = filtered
	return nil
}

func clone(p domain.Project) domain.Project {
	p.Gallery = append([]string(nil), p.Gallery...)
	return p
}

func sortUsers(users []domain.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}
