package handlers

import (
	"context"

	"github.com/maruel/moviedb/internal/jsondb"
	"github.com/maruel/moviedb/internal/server/dto"
)

// HealthHandler reports the server state.
type HealthHandler struct {
	svc *Services
	cfg *Config
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc *Services, cfg *Config) *HealthHandler {
	return &HealthHandler{svc: svc, cfg: cfg}
}

// Health returns "ok", or "degraded" when the movie list had to be read from
// its backup or could not be read at all.
func (h *HealthHandler) Health(ctx context.Context, _ *dto.EmptyRequest) (*dto.HealthResponse, error) {
	snap := h.svc.Movies.Health(ctx)
	resp := &dto.HealthResponse{
		Status:    "ok",
		Version:   h.cfg.Version,
		GoVersion: h.cfg.GoVersion,
		Revision:  h.cfg.Revision,
		Dirty:     h.cfg.Dirty,
		Store:     snap.Source.String(),
		Movies:    len(snap.Records),
		TMDB:      h.svc.TMDB.Configured(),
	}
	switch snap.Source {
	case jsondb.SourceBackup, jsondb.SourceEmpty, jsondb.SourceUnreadable:
		resp.Status = "degraded"
	}
	if snap.Err != nil {
		resp.StoreError = snap.Err.Error()
	}
	return resp, nil
}
