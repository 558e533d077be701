package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"campuscanvas/pkg/domain"
	"campuscanvas/pkg/notify"
	"campuscanvas/pkg/store"
)

const strongPassword = "Correct-Horse-42"

func TestRegisterUserBootstrapsAdmin(t *testing.T) {
	ctx := context.Background()
	a, _, rec := newTestApp(t)

	first, err := a.RegisterUser(ctx, domain.Session{}, NewUser{Username: "admin01", FullName: "Dr. Admin", Password: strongPassword, Role: domain.RoleStudent})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if first.Role != domain.RoleAdmin || first.PasswordHash == "" || first.PasswordHash == strongPassword {
		t.Fatalf("unexpected bootstrap user %+v", first)
	}
	expectOneTerminal(t, rec, notify.Success)

	if _, err := a.RegisterUser(ctx, domain.Session{}, NewUser{Username: "23bsccs01", FullName: "Ayesha", Password: strongPassword}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	expectOneTerminal(t, rec, notify.Error)

	adminSession := domain.SessionFor(first)
	student, err := a.RegisterUser(ctx, adminSession, NewUser{Username: "23bsccs01", FullName: "<b>Ayesha</b> Khan", Password: strongPassword})
	if err != nil {
		t.Fatalf("register student: %v", err)
	}
	if student.Role != domain.RoleStudent || student.FullName != "Ayesha Khan" {
		t.Fatalf("unexpected student %+v", student)
	}
	rec.Reset()

	cases := []struct {
		in   NewUser
		code string
	}{
		{NewUser{Username: "23bsccs01", FullName: "Again", Password: strongPassword}, domain.CodeDuplicate},
		{NewUser{Username: "bad name", FullName: "X", Password: strongPassword}, domain.CodeInvalidField},
		{NewUser{Username: "weak", FullName: "X", Password: "short"}, domain.CodeWeakPassword},
		{NewUser{Username: "verbose", FullName: "X", Password: strongPassword + strings.Repeat("x", 60)}, domain.CodeWeakPassword},
		{NewUser{Username: "nameless", Password: strongPassword}, domain.CodeInvalidField},
		{NewUser{Username: "guest", FullName: "G", Password: strongPassword, Role: "guest"}, domain.CodeInvalidField},
	}
	for _, tc := range cases {
		_, err := a.RegisterUser(ctx, adminSession, tc.in)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Code != tc.code {
			t.Fatalf("%+v: expected %s, got %v", tc.in, tc.code, err)
		}
		expectOneTerminal(t, rec, notify.Error)
	}

	users, err := a.ListUsers(ctx, adminSession)
	if err != nil || len(users) != 2 {
		t.Fatalf("list users = %v, %v", users, err)
	}
	if _, err := a.ListUsers(ctx, domain.SessionFor(student)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("list users must be admin only")
	}
}

func registerConcurrently(a *App, s domain.Session, users ...NewUser) []error {
	errs := make([]error, len(users))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u NewUser) {
			defer wg.Done()
			<-start
			_, errs[i] = a.RegisterUser(context.Background(), s, u)
		}(i, u)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestRegisterUserConcurrentBootstrapKeepsOneAdmin(t *testing.T) {
	for run := 0; run < 5; run++ {
		mem := store.NewMemoryStore()
		a, err := New(Config{Store: mem})
		if err != nil {
			t.Fatalf("new app: %v", err)
		}
		passwords := []string{"First-Secret-01", "Second-Secret-02"}
		errs := registerConcurrently(a, domain.Session{},
			NewUser{Username: "admin01", FullName: "One", Password: passwords[0]},
			NewUser{Username: "admin01", FullName: "Two", Password: passwords[1]},
		)
		winner := -1
		for i, err := range errs {
			switch {
			case err == nil:
				if winner >= 0 {
					t.Fatalf("run %d: both bootstrap calls succeeded", run)
				}
				winner = i
			case !errors.Is(err, domain.ErrUnauthorized):
				t.Fatalf("run %d: expected unauthorized for the loser, got %v", run, err)
			}
		}
		if winner < 0 {
			t.Fatalf("run %d: no bootstrap call succeeded: %v", run, errs)
		}
		if _, err := a.Authenticate(context.Background(), "admin01", passwords[winner]); err != nil {
			t.Fatalf("run %d: winner's password no longer valid: %v", run, err)
		}
		if _, err := a.Authenticate(context.Background(), "admin01", passwords[1-winner]); err == nil {
			t.Fatalf("run %d: loser's password replaced the winner's", run)
		}
		if n, _ := mem.UserCount(context.Background()); n != 1 {
			t.Fatalf("run %d: expected one account, got %d", run, n)
		}
	}
}

func TestRegisterUserConcurrentDuplicateIsRejected(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestApp(t)
	root, err := a.RegisterUser(ctx, domain.Session{}, NewUser{Username: "admin01", FullName: "Dr. Admin", Password: strongPassword})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	errs := registerConcurrently(a, domain.SessionFor(root),
		NewUser{Username: "23bsccs01", FullName: "Ayesha", Password: "First-Secret-01"},
		NewUser{Username: "23bsccs01", FullName: "Ayesha", Password: "Second-Secret-02"},
	)
	var ok, dup int
	for _, err := range errs {
		var ve *domain.ValidationError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &ve) && ve.Code == domain.CodeDuplicate:
			dup++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("expected one success and one duplicate, got errs=%v", errs)
	}
}

func TestLoginIssuesRevocableToken(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore(strings.Repeat("s", 32), time.Hour, store.NewMemoryRevocationList(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	a, err := New(Config{Store: mem, Sessions: sessions})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := a.RegisterUser(ctx, domain.Session{}, NewUser{Username: "admin01", FullName: "Dr. Admin", Password: strongPassword}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if _, _, err := a.Login(ctx, "admin01", "Wrong-Password-1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := a.Login(ctx, "nobody", strongPassword); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	s, token, err := a.Login(ctx, " admin01 ", strongPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.ID != "admin01" || s.Role != domain.RoleAdmin || token == "" {
		t.Fatalf("unexpected session %+v", s)
	}
	resolved, ok := a.SessionFromToken(ctx, token)
	if !ok || resolved != s {
		t.Fatalf("token did not resolve: %+v %v", resolved, ok)
	}
	if err := a.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := a.SessionFromToken(ctx, token); ok {
		t.Fatalf("revoked token still resolves")
	}
}

func TestLoginWithoutSessionStore(t *testing.T) {
	a, _, _ := newTestApp(t)
	if _, _, err := a.Login(context.Background(), "x", "y"); !errors.Is(err, ErrNoSessions) {
		t.Fatalf("expected ErrNoSessions, got %v", err)
	}
}
