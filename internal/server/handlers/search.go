package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/maruel/moviedb/internal/models"
	"github.com/maruel/moviedb/internal/server/dto"
)

// SearchHandler handles TMDB lookups.
type SearchHandler struct {
	svc *Services
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(svc *Services) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Search queries TMDB and flags the results already in the movie list.
func (h *SearchHandler) Search(ctx context.Context, _ *models.User, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return &dto.SearchResponse{Results: []dto.SearchResult{}}, nil
	}
	found, err := h.svc.TMDB.SearchMovies(ctx, q)
	if err != nil {
		slog.WarnContext(ctx, "TMDB search failed", "query", q, "err", err)
		return nil, tmdbError(err)
	}
	ids := h.svc.Movies.IDs(ctx)
	resp := &dto.SearchResponse{Results: make([]dto.SearchResult, 0, len(found.Results))}
	for _, m := range found.Results {
		_, added := ids[models.MovieID(strconv.FormatInt(m.ID, 10))]
		resp.Results = append(resp.Results, dto.SearchResult{Movie: m, IsAdded: added})
	}
	return resp, nil
}

// Details passes the TMDB details document through unchanged.
func (h *SearchHandler) Details(w http.ResponseWriter, r *http.Request) {
	req := dto.TMDBDetailsRequest{ID: r.PathValue("id")}
	if err := req.Validate(); err != nil {
		writeErrorResponse(w, err)
		return
	}
	id, _ := strconv.ParseInt(req.ID, 10, 64)
	data, err := h.svc.TMDB.MovieDetails(r.Context(), id)
	if err != nil {
		slog.WarnContext(r.Context(), "TMDB details failed", "id", id, "err", err)
		writeErrorResponse(w, tmdbError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write details", "err", err)
	}
}
