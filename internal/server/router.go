// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/moviedb/internal/server/dto"
	"github.com/maruel/moviedb/internal/server/handlers"
	"github.com/maruel/moviedb/internal/server/ipgeo"
	"github.com/maruel/moviedb/internal/server/ratelimit"
)

// Options holds the optional router dependencies.
type Options struct {
	// PublicDir holds the PWA files. Empty disables static serving.
	PublicDir string
	// Geo annotates the access log with the client country.
	Geo *ipgeo.Checker
	// Limiters defaults to no rate limiting.
	Limiters *ratelimit.Config
	// Notifier sends Web Push messages when movies are added.
	Notifier *handlers.Notifier
}

// NewRouter creates and configures the HTTP router.
// Serves API endpoints at /api/*, metrics at /metrics and the PWA at /.
func NewRouter(svc *handlers.Services, cfg *handlers.Config, opts *Options) http.Handler {
	if opts == nil {
		opts = &Options{}
	}
	d := &deps{
		svc:      svc,
		cfg:      cfg,
		auth:     handlers.NewAuthHandler(svc.Users, cfg.JWTSecret),
		limiters: opts.Limiters,
	}
	mux := &http.ServeMux{}
	hh := handlers.NewHealthHandler(svc, cfg)
	mh := handlers.NewMovieHandler(svc, opts.Notifier)
	sh := handlers.NewSearchHandler(svc)
	ph := handlers.NewPushHandler(svc.Push, cfg.VAPID)

	// Health check
	mux.Handle("GET /api/health", Wrap(hh.Health, d))

	// Auth endpoints
	mux.Handle("POST /api/auth/login", Wrap(d.auth.Login, d))
	mux.Handle("POST /api/auth/logout", Wrap(d.auth.Logout, d))
	mux.Handle("GET /api/auth/me", WrapAuth(d.auth.Me, d))

	// Movies
	mux.Handle("GET /api/movies", Wrap(mh.List, d))
	mux.Handle("POST /api/movies", WrapAuth(mh.Create, d))
	mux.Handle("POST /api/movies/tmdb", WrapAuth(mh.AddFromTMDB, d))
	mux.Handle("GET /api/movies/export", WrapAuthRaw(mh.Export, d))
	mux.Handle("GET /api/movies/{id}", WrapAuth(mh.Get, d))
	mux.Handle("PUT /api/movies/{id}", WrapAuth(mh.Update, d))
	mux.Handle("DELETE /api/movies/{id}", WrapAuth(mh.Delete, d))
	mux.Handle("POST /api/movies/{id}/rate", WrapAuth(mh.Rate, d))
	mux.Handle("GET /api/history", WrapAuth(mh.History, d))
	mux.Handle("GET /api/history/{hash}", WrapAuth(mh.Version, d))
	mux.Handle("GET /api/schema/movie", WrapRaw(handlers.Schema, d))

	// TMDB
	mux.Handle("GET /api/search", WrapAuth(sh.Search, d))
	mux.Handle("GET /api/tmdb/movies/{id}", WrapRaw(sh.Details, d))

	// Web Push
	mux.Handle("GET /api/push/vapid-public-key", WrapAuth(ph.VAPIDPublicKey, d))
	mux.Handle("POST /api/push/subscribe", WrapAuth(ph.Subscribe, d))
	mux.Handle("POST /api/push/unsubscribe", WrapAuth(ph.Unsubscribe, d))

	if svc.Metrics != nil {
		mux.Handle("GET /metrics", svc.Metrics.Handler())
	}
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, dto.NotFound("endpoint"))
	})
	if opts.PublicDir != "" {
		mux.Handle("/", staticHandler(opts.PublicDir))
	}
	return accessLog(mux, opts.Geo, svc.Metrics)
}
