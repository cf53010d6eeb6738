// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/maruel/moviedb/internal/storage"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeUser uses the authenticated username as the rate limit key.
	ScopeUser
)

func (s Scope) String() string {
	switch s {
	case ScopeIP:
		return "ip"
	case ScopeUser:
		return "user"
	default:
		return "unknown"
	}
}

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds rate limiters for different tiers. A nil tier is unlimited.
type Config struct {
	Auth       *Tier // login, per IP
	Write      *Tier // mutations, per user
	Search     *Tier // TMDB lookups, per user
	ReadAuth   *Tier // authenticated reads, per user
	ReadUnauth *Tier // unauthenticated reads, per IP
}

// Check consumes a token from the bucket of id, an IP address or a username
// depending on the tier's scope.
func (t *Tier) Check(id string) Result {
	return t.Limiter.Allow(t.Scope.String() + ":" + id + ":" + t.Name)
}

// NewConfig builds the tiers from per-minute limits. A zero limit disables
// the tier.
func NewConfig(l storage.RateLimits) *Config {
	return &Config{
		Auth:       newTier("auth", l.AuthRatePerMin, ScopeIP),
		Write:      newTier("write", l.WriteRatePerMin, ScopeUser),
		Search:     newTier("search", l.SearchRatePerMin, ScopeUser),
		ReadAuth:   newTier("read", l.ReadRatePerMin, ScopeUser),
		ReadUnauth: newTier("read", l.ReadRatePerMin, ScopeIP),
	}
}

func newTier(name string, perMin int, scope Scope) *Tier {
	if perMin <= 0 {
		return nil
	}
	// Allow short bursts of a sixth of the per-minute budget.
	return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, max(perMin/6, 1)), Scope: scope}
}

// MatchUnauth returns the tier for unauthenticated requests.
// Returns nil for paths that should not be rate limited.
func (c *Config) MatchUnauth(method, path string) *Tier {
	if c == nil || path == "/api/health" {
		return nil
	}
	if method == http.MethodPost && path == "/api/auth/login" {
		return c.Auth
	}
	if method == http.MethodGet {
		return c.ReadUnauth
	}
	return nil
}

// MatchAuth returns the tier for authenticated requests.
// Returns nil for paths that should not be rate limited.
func (c *Config) MatchAuth(method, path string) *Tier {
	if c == nil || path == "/api/health" {
		return nil
	}
	if path == "/api/search" || strings.HasPrefix(path, "/api/tmdb/") {
		return c.Search
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return c.Write
	case http.MethodGet:
		return c.ReadAuth
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	if c == nil {
		return
	}
	for _, t := range []*Tier{c.Auth, c.Write, c.Search, c.ReadAuth, c.ReadUnauth} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}
