package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maruel/moviedb/internal/metrics"
	"github.com/maruel/moviedb/internal/server/ipgeo"
	"github.com/maruel/moviedb/internal/server/reqctx"
)

// statusRecorder captures the response status and size.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// accessLog logs every request and records it in m. geo and m may be nil.
func accessLog(next http.Handler, geo *ipgeo.Checker, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := reqctx.GetClientIP(r)
		cc := geo.CountryCode(ip)
		ctx := reqctx.WithCountryCode(r.Context(), cc)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		d := time.Since(start)
		if m != nil {
			m.ObserveHTTP(r.Method, rec.status, d)
		}
		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		} else if !strings.HasPrefix(r.URL.Path, "/api/") {
			level = slog.LevelDebug
		}
		slog.Log(ctx, level, "http",
			"m", r.Method,
			"p", r.URL.Path,
			"s", rec.status,
			"size", rec.size,
			"d", d.Round(time.Millisecond/10),
			"ip", ip,
			"cc", cc,
		)
	})
}
