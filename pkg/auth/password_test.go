package auth

import (
	"strings"
	"testing"
)

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == "s3cret" {
		t.Fatalf("expected opaque hash, got %q", hash)
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected password check to fail")
	}
	if CheckPassword("s3cret", "") {
		t.Fatalf("empty hash must never match")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("Str0ng#Password!"); err != nil {
		t.Fatalf("expected valid password, got: %v", err)
	}
	cases := map[string]string{
		"short":     "short1!A",
		"uppercase": "alllowercase123!",
		"lowercase": "ALLUPPERCASE123!",
		"digits":    "NoDigitsHere!!!",
		"specials":  "NoSpecials1234",
		"padding":   " Str0ng#Password",
		"too long":  "Str0ng#" + strings.Repeat("p", 66),
	}
	for name, pw := range cases {
		if err := ValidatePassword(pw); err == nil {
			t.Fatalf("%s: expected %q to fail", name, pw)
		}
	}
}
