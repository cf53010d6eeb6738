package storage

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/maruel/moviedb/internal/jsondb"
	"github.com/maruel/moviedb/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles user management and authentication.
type UserService struct {
	coll *jsondb.Collection[models.User]
	cost int
	now  func() time.Time
}

// NewUserService creates a new user service over the document at path.
//
// The document holds password hashes so new files are created 0o600 unless
// opts says otherwise.
func NewUserService(path string, opts *jsondb.Options) (*UserService, error) {
	o := jsondb.Options{Perm: 0o600}
	if opts != nil {
		o = *opts
		if o.Perm == 0 {
			o.Perm = 0o600
		}
	}
	coll, err := jsondb.Open[models.User](path, &o)
	if err != nil {
		return nil, err
	}
	return &UserService{coll: coll, cost: bcrypt.DefaultCost, now: time.Now}, nil
}

// Authenticate returns the user when password matches. The username is matched
// case-insensitively.
//
// Entries still carrying a plaintext password are upgraded to a bcrypt hash on
// success.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	users := s.coll.Load(ctx)
	i := findUser(users, username)
	if i < 0 {
		// Burn comparable time so unknown users can't be told apart.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	u := users[i]
	if u.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidCredentials
		}
		return publicUser(&u), nil
	}
	if u.Password == "" || subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
		return nil, ErrInvalidCredentials
	}
	if err := s.upgrade(ctx, u.Username, password); err != nil {
		slog.WarnContext(ctx, "Failed to upgrade legacy password", "user", u.Username, "err", err)
	}
	return publicUser(&u), nil
}

func (s *UserService) upgrade(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.coll.Modify(ctx, func(users []models.User) ([]models.User, error) {
		i := findUser(users, username)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		users[i].PasswordHash = string(hash)
		users[i].Password = ""
		users[i].Modified = s.now()
		return users, nil
	})
}

// SetPassword creates the user or replaces its password.
func (s *UserService) SetPassword(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	var out models.User
	err = s.coll.Modify(ctx, func(users []models.User) ([]models.User, error) {
		i := findUser(users, username)
		if i < 0 {
			users = append(users, models.User{Username: username, Created: now})
			i = len(users) - 1
		}
		users[i].PasswordHash = string(hash)
		users[i].Password = ""
		users[i].Modified = now
		out = users[i]
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return publicUser(&out), nil
}

// Get returns the user without its secrets.
func (s *UserService) Get(ctx context.Context, username string) (*models.User, error) {
	users := s.coll.Load(ctx)
	i := findUser(users, username)
	if i < 0 {
		return nil, ErrUserNotFound
	}
	return publicUser(&users[i]), nil
}

// List returns all users without their secrets.
func (s *UserService) List(ctx context.Context) []models.User {
	users := s.coll.Load(ctx)
	out := make([]models.User, 0, len(users))
	for i := range users {
		out = append(out, *publicUser(&users[i]))
	}
	return out
}

// Delete removes a user.
func (s *UserService) Delete(ctx context.Context, username string) error {
	return s.coll.Modify(ctx, func(users []models.User) ([]models.User, error) {
		i := findUser(users, username)
		if i < 0 {
			return nil, ErrUserNotFound
		}
		return slices.Delete(users, i, i+1), nil
	})
}

// dummyHash is a bcrypt hash of a random string.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z2E7Rn7s0e0ag3fHU0aQnYyW")

func findUser(users []models.User, username string) int {
	return slices.IndexFunc(users, func(u models.User) bool { return strings.EqualFold(u.Username, username) })
}

func publicUser(u *models.User) *models.User {
	c := *u
	c.PasswordHash = ""
	c.Password = ""
	return &c
}
