package auth

import (
	"strings"
	"testing"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "valid", raw: "Admin.User", want: "admin.user"},
		{name: "trim", raw: "  a-user  ", want: "a-user"},
		{name: "invalid chars", raw: "bad space", wantErr: true},
		{name: "trailing dot", raw: "ops.", wantErr: true},
		{name: "too long", raw: strings.Repeat("a", maxUsernameLength+1), wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeUsername(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeUsername(%q)=%q want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short"); err == nil {
		t.Fatal("expected short password to fail")
	}
	if err := ValidatePassword(strings.Repeat("x", maxPasswordLength+1)); err == nil {
		t.Fatal("expected oversized password to fail")
	}
	if err := ValidatePassword("volunteer-2024"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("password-123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !VerifyPassword(hash, "password-123") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("expected wrong password to fail")
	}
	if VerifyPassword("", "password-123") {
		t.Fatal("expected empty hash to fail")
	}
}

func TestTokensEqual(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		presented  string
		want       bool
	}{
		{name: "match", configured: "s3cret", presented: "s3cret", want: true},
		{name: "mismatch", configured: "s3cret", presented: "s3cre7"},
		{name: "prefix", configured: "s3cret", presented: "s3c"},
		{name: "unconfigured", configured: "", presented: ""},
		{name: "empty presented", configured: "s3cret", presented: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokensEqual(tt.configured, tt.presented); got != tt.want {
				t.Fatalf("TokensEqual(%q, %q) = %v, want %v", tt.configured, tt.presented, got, tt.want)
			}
		})
	}
}
