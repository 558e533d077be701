package app

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"campuscanvas/pkg/access"
	"campuscanvas/pkg/auth"
	"campuscanvas/pkg/domain"
	"campuscanvas/pkg/notify"
	"campuscanvas/pkg/project"
	"campuscanvas/pkg/store"
)

var now = func() time.Time { return time.Now().UTC() }

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ErrNoSessions is returned by token operations when the app was built without a session store.
var ErrNoSessions = errors.New("session store not configured")

// NewUser describes an account to provision.
type NewUser struct {
	Username string
	FullName string
	Password string
	Role     domain.UserRole
}

// RegisterUser creates an account. Only admins may do so, except that the
// first account of an empty store is created without a session and always as admin.
func (a *App) RegisterUser(ctx context.Context, s domain.Session, in NewUser) (domain.User, error) {
	op := a.begin(ctx, notify.KindUserCreated, s, "", "Creating account...")
	count, err := a.store.UserCount(ctx)
	if err != nil {
		return domain.User{}, op.fail(domain.Persistence("count users", err))
	}
	first := count == 0
	role := in.Role
	if role == "" {
		role = domain.RoleStudent
	}
	if first {
		role = domain.RoleAdmin
	} else if !access.IsAdmin(s) {
		return domain.User{}, op.fail(domain.ErrUnauthorized)
	}
	if !role.Valid() {
		return domain.User{}, op.fail(domain.NewValidationError(domain.CodeInvalidField, "role", "unknown role %q", in.Role))
	}
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return domain.User{}, op.fail(domain.NewValidationError(domain.CodeInvalidField, "username",
			"username must be 1-64 letters, digits, dots, dashes or underscores"))
	}
	fullName := project.PlainText(in.FullName)
	if fullName == "" {
		return domain.User{}, op.fail(domain.NewValidationError(domain.CodeInvalidField, "fullName", "full name is required"))
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, op.fail(domain.NewValidationError(domain.CodeWeakPassword, "password", "%s", err.Error()))
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, op.fail(domain.NewValidationError(domain.CodeWeakPassword, "password", "%s", err.Error()))
	}
	user := domain.User{
		Username:     username,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now(),
	}
	// The empty-store check above is only a hint; the store re-checks it
	// atomically with the insert.
	if first {
		err = a.store.CreateFirstUser(ctx, user)
	} else {
		err = a.store.CreateUser(ctx, user)
	}
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFirstUser):
		return domain.User{}, op.fail(domain.ErrUnauthorized)
	case errors.Is(err, store.ErrUserExists):
		return domain.User{}, op.fail(domain.NewValidationError(domain.CodeDuplicate, "username", "username %q is taken", username))
	default:
		return domain.User{}, op.fail(domain.Persistence("create user", err))
	}
	op.done("Account " + username + " created")
	return user, nil
}

// ListUsers returns every account. Admin only.
func (a *App) ListUsers(ctx context.Context, s domain.Session) ([]domain.User, error) {
	if !access.IsAdmin(s) {
		return nil, domain.ErrUnauthorized
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return nil, domain.Persistence("list users", err)
	}
	return users, nil
}

// Authenticate checks credentials without issuing a token.
func (a *App) Authenticate(ctx context.Context, username, password string) (domain.Session, error) {
	s, err := a.authn.Authenticate(ctx, username, password)
	if err != nil {
		audit(ctx, "login", outcome(err), strings.TrimSpace(username), "")
		return domain.Session{}, err
	}
	return s, nil
}

// Login validates credentials and issues an API access token.
func (a *App) Login(ctx context.Context, username, password string) (domain.Session, string, error) {
	if a.sessions == nil {
		return domain.Session{}, "", ErrNoSessions
	}
	s, err := a.Authenticate(ctx, username, password)
	if err != nil {
		return domain.Session{}, "", err
	}
	token, err := a.sessions.NewSession(s.ID)
	if err != nil {
		audit(ctx, "login", "error", s.ID, "", "error", err)
		return domain.Session{}, "", err
	}
	audit(ctx, "login", "success", s.ID, "")
	return s, token, nil
}

// Logout revokes an access token.
func (a *App) Logout(ctx context.Context, token string) error {
	if a.sessions == nil {
		return ErrNoSessions
	}
	return a.sessions.DeleteSession(token)
}

// SessionFromToken resolves the session behind an access token. The account
// is re-read from the store so role changes apply immediately.
func (a *App) SessionFromToken(ctx context.Context, token string) (domain.Session, bool) {
	if a.sessions == nil {
		return domain.Session{}, false
	}
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.Session{}, false
	}
	user, found, err := a.store.GetUser(ctx, uid)
	if err != nil || !found || !user.Role.Valid() {
		return domain.Session{}, false
	}
	return domain.SessionFor(user), true
}
