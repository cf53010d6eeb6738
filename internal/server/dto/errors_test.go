package dto

import (
	"errors"
	"net/http"
	"testing"
)

func TestAPIError(t *testing.T) {
	t.Run("NewAPIError", func(t *testing.T) {
		err := NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "resource not found")
		if err.StatusCode() != http.StatusNotFound {
			t.Errorf("got %d, want %d", err.StatusCode(), http.StatusNotFound)
		}
		if err.Code() != ErrorCodeNotFound {
			t.Errorf("got %s, want %s", err.Code(), ErrorCodeNotFound)
		}
		if err.Error() != "resource not found" {
			t.Errorf("got %q, want %q", err.Error(), "resource not found")
		}
		if err.Details() == nil {
			t.Error("Details() returned nil")
		}
	})
	t.Run("WithDetail initializes nil map", func(t *testing.T) {
		err := (&APIError{statusCode: http.StatusBadRequest, code: ErrorCodeValidationFailed, message: "x"}).WithDetail("key", "value")
		if err.Details()["key"] != "value" {
			t.Errorf("got %v", err.Details())
		}
	})
	t.Run("Wrap", func(t *testing.T) {
		orig := errors.New("disk full")
		err := Storage(orig)
		if !errors.Is(err, orig) {
			t.Error("Storage error does not unwrap to its cause")
		}
		if err.Error() != "Failed to save changes: disk full" {
			t.Errorf("got %q", err.Error())
		}
		if err.Message() != "Failed to save changes" {
			t.Errorf("got %q", err.Message())
		}
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		status int
		code   ErrorCode
	}{
		{"NotFound", NotFound("movie"), http.StatusNotFound, ErrorCodeNotFound},
		{"BadRequest", BadRequest("x"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{"MissingField", MissingField("title"), http.StatusBadRequest, ErrorCodeMissingField},
		{"InvalidField", InvalidField("rating", "bad"), http.StatusBadRequest, ErrorCodeInvalidFormat},
		{"Conflict", Conflict("x"), http.StatusConflict, ErrorCodeConflict},
		{"Unauthorized", Unauthorized(""), http.StatusUnauthorized, ErrorCodeUnauthorized},
		{"InternalWithError", InternalWithError("x", errors.New("y")), http.StatusInternalServerError, ErrorCodeInternal},
		{"LockTimeout", LockTimeout(errors.New("x")), http.StatusServiceUnavailable, ErrorCodeLockTimeout},
		{"Unavailable", Unavailable("TMDB"), http.StatusServiceUnavailable, ErrorCodeUnavailable},
		{"Upstream", Upstream(http.StatusNotFound, errors.New("x")), http.StatusNotFound, ErrorCodeUpstream},
		{"Upstream odd status", Upstream(302, errors.New("x")), http.StatusBadGateway, ErrorCodeUpstream},
		{"PayloadTooLarge", PayloadTooLarge(10), http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge},
		{"RateLimitExceeded", RateLimitExceeded(3), http.StatusTooManyRequests, ErrorCodeRateLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode() != tt.status {
				t.Errorf("status = %d, want %d", tt.err.StatusCode(), tt.status)
			}
			if tt.err.Code() != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code(), tt.code)
			}
		})
	}
	if got := MissingField("title").Details()["field"]; got != "title" {
		t.Errorf("field detail = %v", got)
	}
}

func TestRequestValidation(t *testing.T) {
	rating := func(v float64) *float64 { return &v }
	tests := []struct {
		name string
		req  Validatable
		code ErrorCode
	}{
		{"login ok", &LoginRequest{Username: "a", Password: "b"}, ""},
		{"login no user", &LoginRequest{Password: "b"}, ErrorCodeMissingField},
		{"login no password", &LoginRequest{Username: "a"}, ErrorCodeMissingField},
		{"create ok", &CreateMovieRequest{Title: "x"}, ""},
		{"create blank title", &CreateMovieRequest{Title: "  "}, ErrorCodeMissingField},
		{"update no id", &UpdateMovieRequest{Title: "x"}, ErrorCodeMissingField},
		{"rate ok", &RateMovieRequest{ID: "1", Rating: rating(0)}, ""},
		{"rate missing", &RateMovieRequest{ID: "1"}, ErrorCodeMissingField},
		{"rate too high", &RateMovieRequest{ID: "1", Rating: rating(10.5)}, ErrorCodeInvalidFormat},
		{"rate negative", &RateMovieRequest{ID: "1", Rating: rating(-1)}, ErrorCodeInvalidFormat},
		{"tmdb ok", &AddFromTMDBRequest{ID: 550, Title: "x"}, ""},
		{"tmdb no id", &AddFromTMDBRequest{Title: "x"}, ErrorCodeMissingField},
		{"tmdb negative id", &AddFromTMDBRequest{ID: -1, Title: "x"}, ErrorCodeInvalidFormat},
		{"export yaml", &ExportRequest{Format: "yaml"}, ""},
		{"export csv", &ExportRequest{Format: "csv"}, ErrorCodeInvalidFormat},
		{"details bad id", &TMDBDetailsRequest{ID: "abc"}, ErrorCodeInvalidFormat},
		{"details ok", &TMDBDetailsRequest{ID: "550"}, ""},
		{"subscribe http", &SubscribeRequest{Endpoint: "http://x"}, ErrorCodeInvalidFormat},
		{"history negative", &HistoryRequest{Limit: -1}, ErrorCodeInvalidFormat},
		{"version ok", &VersionRequest{Hash: "0123456789abcdef0123456789abcdef01234567"}, ""},
		{"version short", &VersionRequest{Hash: "0123abc"}, ErrorCodeInvalidFormat},
		{"version upper", &VersionRequest{Hash: "0123456789ABCDEF0123456789ABCDEF01234567"}, ErrorCodeInvalidFormat},
		{"version missing", &VersionRequest{}, ErrorCodeMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.code == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("got %v, want *APIError", err)
			}
			if apiErr.Code() != tt.code {
				t.Errorf("code = %s, want %s", apiErr.Code(), tt.code)
			}
		})
	}
}
