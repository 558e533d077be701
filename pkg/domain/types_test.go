package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ProjectStatus
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusApproved, StatusRejected, true},
		{StatusRejected, StatusApproved, true},
		{StatusApproved, StatusApproved, true},
		{StatusRejected, StatusRejected, true},
		{StatusApproved, StatusPending, false},
		{StatusRejected, StatusPending, false},
		{StatusPending, StatusPending, false},
		{ProjectStatus("Archived"), StatusApproved, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	if c, ok := ParseCategory(""); !ok || c != DefaultCategory {
		t.Fatalf("empty category = %q %v, want default", c, ok)
	}
	if c, ok := ParseCategory("AI / ML"); !ok || c != CategoryAIML {
		t.Fatalf("AI / ML = %q %v", c, ok)
	}
	if _, ok := ParseCategory("Blockchain"); ok {
		t.Fatalf("unknown category should be rejected")
	}
}

func TestPersistenceKeepsTypedErrors(t *testing.T) {
	if err := Persistence("op", nil); err != nil {
		t.Fatalf("nil should stay nil, got %v", err)
	}
	wrapped := fmt.Errorf("get project: %w", ErrNotFound)
	if err := Persistence("op", wrapped); !errors.Is(err, ErrNotFound) || IsPersistence(err) {
		t.Fatalf("not found should pass through, got %v", err)
	}
	err := Persistence("update project", errors.New("connection reset"))
	if !IsPersistence(err) {
		t.Fatalf("expected persistence error, got %T", err)
	}
	if err.Error() != "update project: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestSessionForUser(t *testing.T) {
	s := SessionFor(User{Username: "23bsccs01", FullName: "Asha", Role: RoleStudent})
	if s.ID != "23bsccs01" || s.DisplayName != "Asha" || s.Role != RoleStudent {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.Anonymous() {
		t.Fatalf("session with id should not be anonymous")
	}
	if !(Session{}).Anonymous() {
		t.Fatalf("empty session should be anonymous")
	}
}
