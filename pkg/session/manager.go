// Package session resolves credentials to a role-bearing identity and keeps
// that identity in a persisted slot across restarts.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"campuscanvas/pkg/auth"
	"campuscanvas/pkg/domain"
)

// Users looks up stored accounts. store.Store satisfies it.
type Users interface {
	GetUser(ctx context.Context, username string) (domain.User, bool, error)
}

// Slot is the single persisted key-value slot holding the active session.
type Slot interface {
	Save(ctx context.Context, s domain.Session) error
	// Load returns ok=false when no session is stored.
	Load(ctx context.Context) (domain.Session, bool, error)
	Clear(ctx context.Context) error
}

// ErrCorruptSlot is returned by Restore when the slot holds unreadable data.
var ErrCorruptSlot = errors.New("session slot is corrupt")

// Manager owns the current session. It is safe for concurrent use.
type Manager struct {
	users Users
	slot  Slot

	mu      sync.RWMutex
	current domain.Session
	active  bool
}

// NewManager builds a session manager. users may be nil for clients that only restore.
func NewManager(users Users, slot Slot) *Manager {
	return &Manager{users: users, slot: slot}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// Authenticate checks username and secret against the stored account.
func (m *Manager) Authenticate(ctx context.Context, username, secret string) (domain.Session, error) {
	if m.users == nil {
		return domain.Session{}, errors.New("session manager has no user source")
	}
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	user, ok, err := m.users.GetUser(ctx, username)
	if err != nil {
		return domain.Session{}, domain.Persistence("authenticate", err)
	}
	if !ok {
		// Unknown IDs still pay for one bcrypt comparison.
		dummyHashOnce.Do(func() { dummyHash, _ = auth.HashPassword("campuscanvas-dummy-secret") })
		auth.CheckPassword(secret, dummyHash)
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	if !auth.CheckPassword(secret, user.PasswordHash) || !user.Role.Valid() {
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	return domain.SessionFor(user), nil
}

// Login authenticates and persists the resulting session.
func (m *Manager) Login(ctx context.Context, username, secret string) (domain.Session, error) {
	s, err := m.Authenticate(ctx, username, secret)
	if err != nil {
		return domain.Session{}, err
	}
	if err := m.Persist(ctx, s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// Persist writes s to the slot and makes it current.
func (m *Manager) Persist(ctx context.Context, s domain.Session) error {
	if s.Anonymous() || !s.Role.Valid() {
		return errors.New("cannot persist an anonymous session")
	}
	if err := m.slot.Save(ctx, s); err != nil {
		return err
	}
	m.mu.Lock()
	m.current, m.active = s, true
	m.mu.Unlock()
	return nil
}

// Restore loads the session from the slot. ok is false when nobody is logged in.
func (m *Manager) Restore(ctx context.Context) (domain.Session, bool, error) {
	s, ok, err := m.slot.Load(ctx)
	if err != nil {
		return domain.Session{}, false, err
	}
	if ok && (s.Anonymous() || !s.Role.Valid()) {
		return domain.Session{}, false, ErrCorruptSlot
	}
	m.mu.Lock()
	m.current, m.active = s, ok
	m.mu.Unlock()
	return s, ok, nil
}

// Resume restores the slot and re-reads the account behind it, so the
// returned role is always the account's current one. ok is false when nobody
// is logged in or the account no longer exists.
func (m *Manager) Resume(ctx context.Context) (domain.Session, bool, error) {
	s, ok, err := m.Restore(ctx)
	if err != nil || !ok {
		return s, ok, err
	}
	if m.users == nil {
		return domain.Session{}, false, errors.New("session manager has no user source")
	}
	user, found, err := m.users.GetUser(ctx, s.ID)
	if err != nil {
		return domain.Session{}, false, domain.Persistence("resume session", err)
	}
	var fresh domain.Session
	if found && user.Role.Valid() {
		fresh = domain.SessionFor(user)
	}
	m.mu.Lock()
	m.current, m.active = fresh, !fresh.Anonymous()
	m.mu.Unlock()
	return fresh, !fresh.Anonymous(), nil
}

// Clear removes the stored session and forgets the current one.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.current, m.active = domain.Session{}, false
	m.mu.Unlock()
	return m.slot.Clear(ctx)
}

// Current returns the in-process session.
func (m *Manager) Current() (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.active
}
