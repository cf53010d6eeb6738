package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/moviedb/internal/server/dto"
)

func TestAuthHandler_Login(t *testing.T) {
	e := newTestEnv(t, nil)
	e.addUser(t, "Alice", "s3cret")

	t.Run("ok", func(t *testing.T) {
		resp, err := e.auth.Login(t.Context(), &dto.LoginRequest{Username: "alice", Password: "s3cret"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if resp.User.Username != "Alice" {
			t.Errorf("got %q, want %q", resp.User.Username, "Alice")
		}
		cookies := resp.Cookies()
		if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != resp.Token || !cookies[0].HttpOnly {
			t.Errorf("unexpected cookies %+v", cookies)
		}
		u, err := e.auth.Authenticate(t.Context(), resp.Token)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if u.Username != "Alice" {
			t.Errorf("got %q, want %q", u.Username, "Alice")
		}
	})
	for _, tc := range []struct{ name, user, pass string }{
		{"wrong password", "alice", "nope"},
		{"unknown user", "bob", "s3cret"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.auth.Login(t.Context(), &dto.LoginRequest{Username: tc.user, Password: tc.pass})
			wantStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestAuthHandler_Authenticate(t *testing.T) {
	e := newTestEnv(t, nil)
	e.addUser(t, "alice", "pw")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.auth.now = func() time.Time { return now }

	valid, _, err := e.auth.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	ghost, _, err := e.auth.GenerateToken("ghost")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	other := &AuthHandler{users: e.svc.Users, jwtSecret: []byte("another secret, also 32 bytes!!!"), now: e.auth.now}
	forged, _, err := other.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.auth.Authenticate(t.Context(), valid); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
	for name, tok := range map[string]string{
		"garbage":      "abc.def.ghi",
		"wrong secret": forged,
		"alg none":     unsigned,
		"unknown user": ghost,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := e.auth.Authenticate(t.Context(), tok); err == nil {
				t.Error("expected error")
			}
		})
	}
	t.Run("expired", func(t *testing.T) {
		e.auth.now = func() time.Time { return now.Add(tokenExpiration + time.Minute) }
		defer func() { e.auth.now = func() time.Time { return now } }()
		if _, err := e.auth.Authenticate(t.Context(), valid); err == nil {
			t.Error("expected error")
		}
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	e := newTestEnv(t, nil)
	resp, err := e.auth.Logout(t.Context(), &dto.EmptyRequest{})
	if err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	c := resp.Cookies()
	if len(c) != 1 || c[0].Name != CookieName || c[0].MaxAge >= 0 {
		t.Errorf("unexpected cookies %+v", c)
	}
}
