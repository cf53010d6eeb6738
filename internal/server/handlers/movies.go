// Handles the movie list.

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/maruel/moviedb/internal/models"
	"github.com/maruel/moviedb/internal/server/dto"
	"github.com/maruel/moviedb/internal/server/reqctx"
	"gopkg.in/yaml.v3"
)

// MovieHandler handles movie requests.
type MovieHandler struct {
	svc    *Services
	notify *Notifier
}

// NewMovieHandler creates a new movie handler. notify may be nil.
func NewMovieHandler(svc *Services, notify *Notifier) *MovieHandler {
	return &MovieHandler{svc: svc, notify: notify}
}

// List returns all movies. It is public; a logged in caller also gets its own
// ratings.
func (h *MovieHandler) List(ctx context.Context, _ *dto.EmptyRequest) (*dto.ListMoviesResponse, error) {
	var username string
	if u := reqctx.User(ctx); u != nil {
		username = u.Username
	}
	movies := h.svc.Movies.List(ctx)
	resp := &dto.ListMoviesResponse{Movies: make([]*dto.MovieResponse, 0, len(movies)), User: username}
	for i := range movies {
		resp.Movies = append(resp.Movies, dto.NewMovieResponse(&movies[i], username))
	}
	return resp, nil
}

// Get returns a single movie.
func (h *MovieHandler) Get(ctx context.Context, user *models.User, req *dto.MovieIDRequest) (*dto.MovieResponse, error) {
	m, err := h.svc.Movies.Get(ctx, models.MovieID(req.ID))
	if err != nil {
		return nil, storeError(err)
	}
	return dto.NewMovieResponse(m, user.Username), nil
}

// Create adds a manually entered movie.
func (h *MovieHandler) Create(ctx context.Context, user *models.User, req *dto.CreateMovieRequest) (*dto.CreatedMovieResponse, error) {
	m, err := h.svc.Movies.Create(ctx, req.Title, req.Notes, req.Thumbnail)
	if err != nil {
		return nil, storeError(err)
	}
	slog.InfoContext(ctx, "Movie created", "id", m.ID, "user", user.Username)
	h.notify.MovieAdded(ctx, user.Username, m)
	return &dto.CreatedMovieResponse{MovieResponse: dto.NewMovieResponse(m, user.Username)}, nil
}

// AddFromTMDB adds a movie picked from the search results.
func (h *MovieHandler) AddFromTMDB(ctx context.Context, user *models.User, req *dto.AddFromTMDBRequest) (*dto.CreatedMovieResponse, error) {
	id := models.MovieID(strconv.FormatInt(req.ID, 10))
	m, err := h.svc.Movies.AddFromTMDB(ctx, id, req.Title, req.Thumbnail)
	if err != nil {
		return nil, storeError(err)
	}
	slog.InfoContext(ctx, "Movie added", "id", m.ID, "user", user.Username)
	h.notify.MovieAdded(ctx, user.Username, m)
	return &dto.CreatedMovieResponse{MovieResponse: dto.NewMovieResponse(m, user.Username)}, nil
}

// Update edits the descriptive fields of a movie.
func (h *MovieHandler) Update(ctx context.Context, user *models.User, req *dto.UpdateMovieRequest) (*dto.MovieResponse, error) {
	m, err := h.svc.Movies.Update(ctx, models.MovieID(req.ID), req.Title, req.Notes, req.Thumbnail)
	if err != nil {
		return nil, storeError(err)
	}
	return dto.NewMovieResponse(m, user.Username), nil
}

// Delete removes a movie.
func (h *MovieHandler) Delete(ctx context.Context, user *models.User, req *dto.MovieIDRequest) (*dto.OkResponse, error) {
	if err := h.svc.Movies.Delete(ctx, models.MovieID(req.ID)); err != nil {
		return nil, storeError(err)
	}
	slog.InfoContext(ctx, "Movie deleted", "id", req.ID, "user", user.Username)
	return &dto.OkResponse{Ok: true}, nil
}

// Rate records the caller's rating.
func (h *MovieHandler) Rate(ctx context.Context, user *models.User, req *dto.RateMovieRequest) (*dto.RateMovieResponse, error) {
	m, isNew, err := h.svc.Movies.Rate(ctx, models.MovieID(req.ID), user.Username, *req.Rating)
	if err != nil {
		return nil, storeError(err)
	}
	return &dto.RateMovieResponse{Movie: dto.NewMovieResponse(m, user.Username), IsNewReview: isNew}, nil
}

// History lists the commits that touched the movie list.
func (h *MovieHandler) History(ctx context.Context, _ *models.User, req *dto.HistoryRequest) (*dto.HistoryResponse, error) {
	if h.svc.History == nil {
		return nil, dto.Unavailable("History")
	}
	commits, err := h.svc.History.Log(ctx, h.svc.Movies.Path(), req.Limit)
	if err != nil {
		return nil, dto.InternalWithError("Failed to read history", err)
	}
	return &dto.HistoryResponse{History: commits}, nil
}

// Version returns the movie list as it was at a past commit.
func (h *MovieHandler) Version(ctx context.Context, user *models.User, req *dto.VersionRequest) (*dto.ListMoviesResponse, error) {
	if h.svc.History == nil {
		return nil, dto.Unavailable("History")
	}
	data, err := h.svc.History.FileAt(ctx, req.Hash, h.svc.Movies.Path())
	if err != nil {
		slog.DebugContext(ctx, "Version lookup failed", "hash", req.Hash, "err", err)
		return nil, dto.NotFound("version")
	}
	var movies []models.Movie
	if err := json.Unmarshal(data, &movies); err != nil {
		return nil, dto.InternalWithError("Failed to decode past version", err)
	}
	resp := &dto.ListMoviesResponse{Movies: make([]*dto.MovieResponse, 0, len(movies)), User: user.Username}
	for i := range movies {
		resp.Movies = append(resp.Movies, dto.NewMovieResponse(&movies[i], user.Username))
	}
	return resp, nil
}

// Export writes the whole movie list as a download, in JSON or YAML.
//
// This is a raw handler since the body is not a JSON API response.
func (h *MovieHandler) Export(w http.ResponseWriter, r *http.Request, _ *models.User) {
	req := dto.ExportRequest{Format: r.URL.Query().Get("format")}
	if err := req.Validate(); err != nil {
		writeErrorResponse(w, err)
		return
	}
	movies := h.svc.Movies.List(r.Context())
	name := "movies-" + time.Now().UTC().Format("20060102")
	var data []byte
	var err error
	if req.Format == "yaml" {
		data, err = yaml.Marshal(movies)
		name += ".yaml"
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		data, err = json.MarshalIndent(movies, "", "  ")
		name += ".json"
		w.Header().Set("Content-Type", "application/json")
	}
	if err != nil {
		writeErrorResponse(w, dto.InternalWithError("Failed to encode export", err))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write export", "err", err)
	}
}

// movieSchema is computed once; the record type doesn't change at runtime.
var movieSchema = func() []byte {
	r := jsonschema.Reflector{ExpandedStruct: true}
	s := r.Reflect(&models.Movie{})
	s.Title = "Movie"
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic(err)
	}
	return b
}()

// Schema serves the JSON schema of a stored movie record.
func Schema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(movieSchema); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write schema", "err", err)
	}
}
