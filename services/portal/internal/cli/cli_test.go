package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"campuscanvas/pkg/domain"
	"campuscanvas/pkg/notify"
	"campuscanvas/pkg/session"
	"campuscanvas/pkg/store"
	"campuscanvas/services/portal/internal/app"
)

const testPassword = "Correct-Horse-42"

type harness struct {
	store    *store.MemoryStore
	core     *app.App
	slotPath string
	events   bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: store.NewMemoryStore(), slotPath: filepath.Join(t.TempDir(), "session.json")}
	core, err := app.New(app.Config{Store: h.store, Notifier: notify.NewWriterNotifier(&h.events)})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	h.core = core
	return h
}

// run executes one command the way a fresh process would: a new manager
// restores from the slot file each time.
func (h *harness) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	sessions := session.NewManager(h.store, session.NewFileSlot(h.slotPath))
	c := New(h.core, sessions, strings.NewReader(input), &out)
	err := c.Run(context.Background(), args)
	return out.String(), err
}

func stubPassword(t *testing.T) {
	t.Helper()
	prev := readPassword
	readPassword = func() ([]byte, error) { return []byte(testPassword), nil }
	t.Cleanup(func() { readPassword = prev })
}

func writeImage(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := make([]byte, size)
	copy(data, "\x89PNG\r\n\x1a\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestOperatorSession(t *testing.T) {
	stubPassword(t)
	h := newHarness(t)

	if _, err := h.run(t, "", "useradd", "-username", "admin01", "-name", "Dr. Admin"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if _, err := h.run(t, "", "whoami"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected not logged in, got %v", err)
	}
	if _, err := h.run(t, "", "login", "admin01"); err != nil {
		t.Fatalf("login admin: %v", err)
	}
	out, err := h.run(t, "", "whoami")
	if err != nil || !strings.HasPrefix(out, "admin01\tDr. Admin\tadmin") {
		t.Fatalf("whoami = %q, %v", out, err)
	}
	if _, err := h.run(t, "", "useradd", "-username", "23bsccs01", "-name", "Ayesha Khan"); err != nil {
		t.Fatalf("add student: %v", err)
	}
	if _, err := h.run(t, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := os.Stat(h.slotPath); !os.IsNotExist(err) {
		t.Fatalf("slot file survives logout: %v", err)
	}

	if _, err := h.run(t, "", "login", "23bsccs01"); err != nil {
		t.Fatalf("login student: %v", err)
	}
	out, err = h.run(t, "", "submit", "-title", "Smart Attendance", "-description", "Face recognition", "-category", "AI / ML",
		writeImage(t, "a.png", 2048), writeImage(t, "b.png", 4096))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	fields := strings.Split(strings.TrimSpace(out), "\t")
	if len(fields) != 2 || fields[1] != string(domain.StatusPending) {
		t.Fatalf("unexpected submit output %q", out)
	}
	id := fields[0]

	if out, _ := h.run(t, "", "list", "-scope", "mine"); !strings.Contains(out, id) {
		t.Fatalf("own submission missing from list: %q", out)
	}
	if _, err := h.run(t, "", "approve", id); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("student approve: expected unauthorized, got %v", err)
	}

	h.run(t, "", "logout")
	if _, err := h.run(t, "", "login", "admin01"); err != nil {
		t.Fatalf("login admin: %v", err)
	}
	if _, err := h.run(t, "", "approve", id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out, _ := h.run(t, "", "list"); !strings.Contains(out, id) {
		t.Fatalf("approved project missing: %q", out)
	}
	if out, _ := h.run(t, "", "stats"); !strings.Contains(out, "approved 1") {
		t.Fatalf("unexpected stats %q", out)
	}

	out, err = h.run(t, "n\n", "delete", id)
	if !errors.Is(err, domain.ErrNotConfirmed) || !strings.Contains(out, "[y/N]") {
		t.Fatalf("declined delete = %q, %v", out, err)
	}
	if _, err := h.run(t, "y\n", "delete", id); err != nil {
		t.Fatalf("confirmed delete: %v", err)
	}
	if _, err := h.run(t, "", "show", id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if !strings.Contains(h.events.String(), "ok: Project deleted") || !strings.Contains(h.events.String(), "error: Cancelled") {
		t.Fatalf("unexpected notifications:\n%s", h.events.String())
	}
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, ""); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if _, err := h.run(t, "", "frobnicate"); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	out, err := h.run(t, "", "approve")
	if !errors.Is(err, ErrUsage) || !strings.Contains(out, "usage: canvas approve <project-id>") {
		t.Fatalf("approve usage = %q, %v", out, err)
	}
}

func TestUseraddRejectsMismatchedPasswords(t *testing.T) {
	h := newHarness(t)
	prev := readPassword
	answers := []string{testPassword, "Different-Pass-9"}
	readPassword = func() ([]byte, error) {
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
	t.Cleanup(func() { readPassword = prev })
	if _, err := h.run(t, "", "useradd", "-username", "admin01", "-name", "A"); err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	stubPassword(t)
	h := newHarness(t)
	if _, err := h.run(t, "", "useradd", "-username", "admin01", "-name", "Dr. Admin"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if _, err := h.run(t, "", "login", "admin01"); err != nil {
		t.Fatalf("login: %v", err)
	}
	ids := map[string]string{}
	for _, p := range []struct{ title, category string }{
		{"Campus Map", "Web App"},
		{"Maze Runner", "Game"},
	} {
		out, err := h.run(t, "", "submit", "-title", p.title, "-description", "demo", "-category", p.category, writeImage(t, "shot.png", 512))
		if err != nil {
			t.Fatalf("submit %s: %v", p.title, err)
		}
		id := strings.Split(strings.TrimSpace(out), "\t")[0]
		if _, err := h.run(t, "", "approve", id); err != nil {
			t.Fatalf("approve %s: %v", p.title, err)
		}
		ids[p.title] = id
	}

	out, err := h.run(t, "", "list", "-category", "Game")
	if err != nil || !strings.Contains(out, ids["Maze Runner"]) || strings.Contains(out, ids["Campus Map"]) {
		t.Fatalf("list -category Game = %q, %v", out, err)
	}
	out, err = h.run(t, "", "list", "-q", "MAP")
	if err != nil || !strings.Contains(out, ids["Campus Map"]) || strings.Contains(out, ids["Maze Runner"]) {
		t.Fatalf("list -q MAP = %q, %v", out, err)
	}
	out, err = h.run(t, "", "list", "-scope", "all", "-q", "ma")
	if err != nil || !strings.Contains(out, ids["Campus Map"]) || !strings.Contains(out, ids["Maze Runner"]) {
		t.Fatalf("list -scope all -q ma = %q, %v", out, err)
	}
	_, err = h.run(t, "", "list", "-category", "Blockchain")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "category" {
		t.Fatalf("expected category validation error, got %v", err)
	}
}

func TestEditedSlotCannotRaiseRole(t *testing.T) {
	stubPassword(t)
	h := newHarness(t)
	if _, err := h.run(t, "", "useradd", "-username", "admin01", "-name", "Dr. Admin"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	h.run(t, "", "login", "admin01")
	if _, err := h.run(t, "", "useradd", "-username", "23bsccs01", "-name", "Ayesha Khan"); err != nil {
		t.Fatalf("add student: %v", err)
	}
	if _, err := h.run(t, "", "login", "23bsccs01"); err != nil {
		t.Fatalf("login student: %v", err)
	}

	forged := domain.Session{ID: "23bsccs01", DisplayName: "Ayesha Khan", Role: domain.RoleAdmin}
	if err := session.NewFileSlot(h.slotPath).Save(context.Background(), forged); err != nil {
		t.Fatalf("rewrite slot: %v", err)
	}
	if _, err := h.run(t, "", "stats"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stats with edited slot: expected unauthorized, got %v", err)
	}
	out, err := h.run(t, "", "whoami")
	if err != nil || !strings.Contains(out, "\tstudent") {
		t.Fatalf("whoami = %q, %v", out, err)
	}
}
