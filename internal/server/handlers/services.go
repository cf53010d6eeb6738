// Defines shared service dependencies for handlers.

package handlers

import (
	"github.com/maruel/moviedb/internal/history"
	"github.com/maruel/moviedb/internal/metrics"
	"github.com/maruel/moviedb/internal/models"
	"github.com/maruel/moviedb/internal/storage"
	"github.com/maruel/moviedb/internal/tmdb"
)

// Services holds all service dependencies for handlers.
type Services struct {
	Movies  *storage.MovieService
	Users   *storage.UserService
	Push    *storage.PushSubscriptionService
	TMDB    *tmdb.Client
	History *history.Repo    // may be nil
	Metrics *metrics.Metrics // may be nil
}

// Config holds configuration values needed by handlers.
type Config struct {
	storage.ServerConfig

	Version   string
	GoVersion string
	Revision  string
	Dirty     bool
}

// GitAuthor returns the history author for user.
func GitAuthor(user *models.User) history.Author {
	if user == nil {
		return history.Author{}
	}
	return history.Author{Name: user.Username, Email: user.Username + "@moviedb"}
}
