// Maps domain errors to API errors.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maruel/moviedb/internal/jsondb"
	"github.com/maruel/moviedb/internal/models"
	"github.com/maruel/moviedb/internal/server/dto"
	"github.com/maruel/moviedb/internal/storage"
	"github.com/maruel/moviedb/internal/tmdb"
)

// storeError converts an error from the storage layer.
func storeError(err error) error {
	var werr *jsondb.WriteError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrMovieNotFound):
		return dto.NotFound("movie")
	case errors.Is(err, storage.ErrMovieExists):
		return dto.Conflict("Movie already added")
	case errors.Is(err, storage.ErrTitleRequired):
		return dto.MissingField("title")
	case errors.Is(err, models.ErrInvalidRating):
		return dto.InvalidField("rating", "must be between 0 and 10")
	case errors.Is(err, storage.ErrUserNotFound):
		return dto.NotFound("user")
	case errors.Is(err, storage.ErrSubscriptionNotFound):
		return dto.NotFound("subscription")
	case errors.Is(err, jsondb.ErrUnreadable):
		return dto.Storage(err)
	case errors.Is(err, jsondb.ErrLockTimeout):
		return dto.LockTimeout(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dto.NewAPIError(http.StatusServiceUnavailable, dto.ErrorCodeLockTimeout, "Request cancelled").Wrap(err)
	case errors.As(err, &werr):
		return dto.Storage(err).WithDetail("stage", string(werr.Stage)).WithDetail("restored", werr.Restored)
	default:
		return dto.InternalWithError("Internal error", err)
	}
}

// tmdbError converts an error from the TMDB client.
func tmdbError(err error) error {
	var apiErr *tmdb.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tmdb.ErrNotConfigured):
		return dto.Unavailable("TMDB")
	case errors.As(err, &apiErr):
		return dto.Upstream(apiErr.StatusCode, err)
	default:
		return dto.Upstream(http.StatusBadGateway, err)
	}
}

// writeErrorResponse writes an APIError as a JSON response.
// Use this in raw http.HandlerFunc handlers that don't use server.Wrap.
func writeErrorResponse(w http.ResponseWriter, err error) {
	statusCode, response := dto.ToResponse(err)
	if statusCode >= 500 {
		slog.Error("Request failed", "code", response.Error.Code, "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
