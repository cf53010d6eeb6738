// Handles user authentication and session tokens.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/moviedb/internal/models"
	"github.com/maruel/moviedb/internal/server/dto"
	"github.com/maruel/moviedb/internal/server/reqctx"
	"github.com/maruel/moviedb/internal/storage"
)

const (
	tokenExpiration = 24 * time.Hour

	// CookieName is the cookie carrying the session token.
	CookieName = "token"
)

var (
	errInvalidToken  = errors.New("invalid token")
	errInvalidClaims = errors.New("invalid claims")
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	users     *storage.UserService
	jwtSecret []byte
	now       func() time.Time
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users *storage.UserService, jwtSecret []byte) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, now: time.Now}
}

// Login verifies credentials and returns a session token, also set as a cookie.
func (h *AuthHandler) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			slog.WarnContext(ctx, "Login failed", "user", req.Username, "ip", reqctx.ClientIP(ctx))
			return nil, dto.Unauthorized("Invalid credentials")
		}
		return nil, storeError(err)
	}
	token, expires, err := h.GenerateToken(user.Username)
	if err != nil {
		return nil, dto.InternalWithError("Failed to generate token", err)
	}
	slog.InfoContext(ctx, "Login", "user", user.Username, "ip", reqctx.ClientIP(ctx))
	return dto.NewLoginResponse(token, expires, &dto.UserResponse{Username: user.Username}, SessionCookie(token, expires)), nil
}

// Logout clears the session cookie. Tokens are stateless and stay valid
// until they expire.
func (h *AuthHandler) Logout(_ context.Context, _ *dto.EmptyRequest) (*dto.LogoutResponse, error) {
	return dto.NewLogoutResponse(ClearCookie()), nil
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(_ context.Context, user *models.User, _ *dto.EmptyRequest) (*dto.UserResponse, error) {
	return &dto.UserResponse{Username: user.Username}, nil
}

// GenerateToken returns a signed token for username and its expiry.
func (h *AuthHandler) GenerateToken(username string) (string, time.Time, error) {
	now := h.now()
	expires := now.Add(tokenExpiration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	s, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, expires, nil
}

// Authenticate validates a token and returns the user it was issued to. The
// user must still exist.
func (h *AuthHandler) Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(h.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %w", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, errInvalidClaims
	}
	user, err := h.users.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SessionCookie returns the cookie carrying token.
func SessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(tokenExpiration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie returns a cookie deleting the session cookie.
func ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
