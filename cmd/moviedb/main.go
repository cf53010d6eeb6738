// Package main is the entry point for the moviedb server.
//
// moviedb keeps a shared list of movies rated by a small group of users. The
// list lives in JSON documents in the data directory and is served over a
// JSON HTTP API along with the PWA front end. Configuration is read from CLI
// flags, a .env file in the data directory, the process environment and
// server_config.json (JWT secret, VAPID keys, rate limits).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/maruel/moviedb/internal/history"
	"github.com/maruel/moviedb/internal/jsondb"
	"github.com/maruel/moviedb/internal/metrics"
	"github.com/maruel/moviedb/internal/server"
	"github.com/maruel/moviedb/internal/server/handlers"
	"github.com/maruel/moviedb/internal/server/ipgeo"
	"github.com/maruel/moviedb/internal/server/ratelimit"
	"github.com/maruel/moviedb/internal/storage"
	"github.com/maruel/moviedb/internal/tmdb"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "moviedb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:3000", "Address to listen on (e.g., localhost:3000, :3000, 0.0.0.0:3000). Use 0.0.0.0:port to listen on all interfaces.")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	geoDB := flag.String("geo-db", "", "Path to MaxMind MMDB file for IP geolocation (optional)")
	publicDir := flag.String("public-dir", "./public", "Directory holding the PWA files; empty disables them")
	tmdbToken := flag.String("tmdb-token", "", "TMDB API read access token")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// .env values win over the process environment; flags win over both.
	dotEnv, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}
	getenv := func(key string) string {
		if v := dotEnv[key]; v != "" {
			return v
		}
		return os.Getenv(key)
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := getenv("HTTP"); v != "" {
			*httpAddr = v
		} else if v := getenv("PORT"); v != "" {
			if _, err := strconv.ParseUint(v, 10, 16); err != nil {
				return fmt.Errorf("invalid PORT %q", v)
			}
			*httpAddr = net.JoinHostPort("0.0.0.0", v)
		}
	}
	if !set["log-level"] {
		if v := getenv("LOG_LEVEL"); v != "" {
			*logLevel = v
		}
	}
	if !set["geo-db"] {
		if v := getenv("GEO_DB"); v != "" {
			*geoDB = v
		}
	}
	if !set["public-dir"] {
		if v := getenv("PUBLIC_DIR"); v != "" {
			*publicDir = v
		}
	}
	if !set["tmdb-token"] {
		*tmdbToken = getenv("TMDB_READ_ACCESS_TOKEN")
		if *tmdbToken == "" {
			// Older deployments used this misspelled name.
			*tmdbToken = getenv("TMBD_READ_ACCESS_TOKEN")
		}
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	// Normalize addr: ":3000" becomes "localhost:3000"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	serverCfg, err := storage.LoadServerConfig(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", storage.ServerConfigFile, err)
	}
	if v := getenv("SECRET_KEY"); v != "" {
		if len(v) < 32 {
			slog.WarnContext(ctx, "SECRET_KEY is shorter than 32 bytes")
		}
		serverCfg.JWTSecret = []byte(v)
	}

	m := metrics.New()
	opts := &jsondb.Options{
		LockTimeout: time.Duration(serverCfg.LockTimeoutMs) * time.Millisecond,
		Observer:    m,
	}
	moviesFile := "movies.json"
	if getenv("ENVIRONMENT") == "development" {
		moviesFile = "movies.test.json"
	}
	movies, err := storage.NewMovieService(filepath.Join(*dataDir, moviesFile), opts)
	if err != nil {
		return fmt.Errorf("failed to initialize movie service: %w", err)
	}
	users, err := storage.NewUserService(filepath.Join(*dataDir, "users.json"), opts)
	if err != nil {
		return fmt.Errorf("failed to initialize user service: %w", err)
	}
	push, err := storage.NewPushSubscriptionService(filepath.Join(*dataDir, "push_subscriptions.json"), opts)
	if err != nil {
		return fmt.Errorf("failed to initialize push subscription service: %w", err)
	}
	if snap := movies.Health(ctx); snap.Err != nil {
		slog.WarnContext(ctx, "Movie list degraded", "source", snap.Source.String(), "err", snap.Err)
	}
	if len(users.List(ctx)) == 0 {
		slog.WarnContext(ctx, "No users; create one with moviedb-user", "data-dir", *dataDir)
	}

	svc := &handlers.Services{
		Movies:  movies,
		Users:   users,
		Push:    push,
		TMDB:    tmdb.NewClient(*tmdbToken, nil),
		Metrics: m,
	}
	if !svc.TMDB.Configured() {
		slog.WarnContext(ctx, "TMDB_READ_ACCESS_TOKEN not set, search is disabled")
	}
	if serverCfg.History {
		if svc.History, err = history.Open(*dataDir, history.Author{Name: "moviedb", Email: "moviedb@localhost"}); err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		slog.InfoContext(ctx, "History enabled", "dir", *dataDir)
	}

	// Open IP geolocation database if configured
	var geoChecker *ipgeo.Checker
	if *geoDB != "" {
		geoChecker, err = ipgeo.Open(*geoDB)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = geoChecker.Close() }()
		slog.InfoContext(ctx, "IP geolocation enabled", "db", *geoDB)
	}
	if *publicDir != "" {
		if fi, err := os.Stat(*publicDir); err != nil || !fi.IsDir() {
			slog.WarnContext(ctx, "Public directory not found, not serving the PWA", "dir", *publicDir)
			*publicDir = ""
		}
	}

	limiters := ratelimit.NewConfig(serverCfg.RateLimits)
	defer limiters.Close()
	notifier := handlers.NewNotifier(push, serverCfg.VAPID, m)
	defer notifier.Wait()

	buildVersion, buildGoVersion, buildRevision, buildDirty := getBuildInfo()
	cfg := &handlers.Config{
		ServerConfig: *serverCfg,
		Version:      buildVersion,
		GoVersion:    buildGoVersion,
		Revision:     buildRevision,
		Dirty:        buildDirty,
	}

	if err := watchExecutable(ctx, stop); err != nil {
		slog.WarnContext(ctx, "Could not watch executable", "err", err)
	}

	httpServer := &http.Server{
		Addr: addr,
		Handler: server.NewRouter(svc, cfg, &server.Options{
			PublicDir: *publicDir,
			Geo:       geoChecker,
			Limiters:  limiters,
			Notifier:  notifier,
		}),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", buildVersion, "movies", movies.Path())
		serverErr <- httpServer.ListenAndServe()
	}()

	// Wait for either context cancellation or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// newLogger returns a colored logger on stderr that drops empty attributes.
func newLogger(level slog.Leveler) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:       level,
		TimeFormat:  "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:     !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: replaceAttr(underSystemd),
	}))
}

func replaceAttr(underSystemd bool) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
			return slog.Attr{}
		}
		// Drop localhost IPs (not useful in logs).
		if a.Key == "ip" {
			if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
				return slog.Attr{}
			}
		}
		skip := false
		switch t := a.Value.Any().(type) {
		case string:
			skip = t == ""
		case bool:
			skip = !t
		case uint64:
			skip = t == 0
		case int64:
			skip = t == 0
		case float64:
			skip = t == 0
		case time.Time:
			skip = t.IsZero()
		case time.Duration:
			skip = t == 0
		case nil:
			skip = true
		}
		if skip {
			return slog.Attr{}
		}
		return a
	}
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("moviedb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

// loadDotEnv reads KEY=VALUE lines from dataDir/.env. Values may be wrapped in
// double quotes using Go escaping. A missing file yields an empty map.
func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		val = strings.TrimSpace(val)

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", key)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", key)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected. This enables seamless
// restarts during development.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
