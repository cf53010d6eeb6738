// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/maruel/moviedb/internal/models"
	"github.com/maruel/moviedb/internal/server/dto"
	"github.com/maruel/moviedb/internal/server/handlers"
	"github.com/maruel/moviedb/internal/server/ratelimit"
	"github.com/maruel/moviedb/internal/server/reqctx"
)

var errNoToken = errors.New("no token")

// deps is what every wrapped handler needs.
type deps struct {
	svc      *handlers.Services
	cfg      *handlers.Config
	auth     *handlers.AuthHandler
	limiters *ratelimit.Config
}

// addRequestMetadataToContext adds client IP and User-Agent to the context.
func addRequestMetadataToContext(ctx context.Context, r *http.Request) context.Context {
	ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r))
	ctx = reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}

// isMutating returns true for HTTP methods that modify state.
func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

// commitDBIfMutating records the movie list in the history repository after a
// mutating movie request.
//
// It always attempts the commit regardless of handler outcome: a failed write
// may still have left a repaired document behind. When the file didn't change
// Commit is a no-op.
func commitDBIfMutating(ctx context.Context, r *http.Request, d *deps, user *models.User) {
	if d.svc.History == nil || !isMutating(r.Method) || !strings.HasPrefix(r.URL.Path, "/api/movies") {
		return
	}
	msg := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
	if err := d.svc.History.Commit(ctx, handlers.GitAuthor(user), msg, d.svc.Movies.Path()); err != nil {
		slog.ErrorContext(ctx, "Failed to commit movie list", "err", err)
	}
}

// tokenFromRequest returns the bearer token, falling back to the session
// cookie. fromCookie is true when the cookie was used.
func tokenFromRequest(r *http.Request) (token string, fromCookie bool, err error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || tok == "" {
			return "", false, errors.New("invalid authorization header")
		}
		return tok, false, nil
	}
	if c, err := r.Cookie(handlers.CookieName); err == nil && c.Value != "" {
		return c.Value, true, nil
	}
	return "", false, errNoToken
}

// authenticate validates the request's token. On failure with a cookie, the
// cookie is cleared so the browser stops sending it.
func authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, d *deps) (*models.User, error) {
	tok, fromCookie, err := tokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	user, err := d.auth.Authenticate(ctx, tok)
	if err != nil {
		if fromCookie {
			http.SetCookie(w, handlers.ClearCookie())
		}
		slog.DebugContext(ctx, "Rejected token", "err", err)
		return nil, err
	}
	return user, nil
}

// rateLimit applies the tier matching the request. The decision is exposed in
// the response headers; a refused request has been answered when it returns
// false.
func rateLimit(w http.ResponseWriter, r *http.Request, d *deps, user *models.User) bool {
	var tier *ratelimit.Tier
	id := reqctx.GetClientIP(r)
	if user == nil {
		tier = d.limiters.MatchUnauth(r.Method, r.URL.Path)
	} else {
		tier = d.limiters.MatchAuth(r.Method, r.URL.Path)
		if tier != nil && tier.Scope == ratelimit.ScopeUser {
			id = strings.ToLower(user.Username)
		}
	}
	if tier == nil {
		return true
	}
	result := tier.Check(id)
	result.SetHeaders(w.Header())
	if !result.Allowed {
		writeError(r.Context(), w, dto.RateLimitExceeded(result.RetrySeconds()))
		return false
	}
	return true
}

// limitBody caps the request body size.
func limitBody(w http.ResponseWriter, r *http.Request, d *deps) {
	if d.cfg != nil && d.cfg.MaxRequestBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, d.cfg.MaxRequestBodyBytes)
	}
}

// readAndDecodeBody reads the request body with size limit and decodes JSON into input.
// Returns false if an error occurred and was written to the response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In, d *deps) bool {
	limitBody(w, r, d)
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(ctx, w, dto.PayloadTooLarge(maxBytesErr.Limit))
			return false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeError(ctx, w, dto.BadRequest("Failed to read request body"))
		return false
	}

	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(input); err != nil {
			slog.WarnContext(ctx, "Failed to decode request body", "err", err)
			writeError(ctx, w, dto.BadRequest("Invalid request body"))
			return false
		}
	}
	return true
}

// decodeInput decodes, binds and validates the request into a new In.
func decodeInput[In any, PtrIn interface {
	*In
	dto.Validatable
}](ctx context.Context, w http.ResponseWriter, r *http.Request, d *deps) (PtrIn, bool) {
	input := new(In)
	if !readAndDecodeBody(ctx, w, r, input, d) {
		return nil, false
	}
	populatePathParams(r, input)
	if err := populateQueryParams(r, input); err != nil {
		writeError(ctx, w, err)
		return nil, false
	}
	if err := PtrIn(input).Validate(); err != nil {
		writeError(ctx, w, err)
		return nil, false
	}
	return PtrIn(input), true
}

// writeJSONResponse writes a JSON response or error response.
//
// Responses implementing dto.CookieSetter set cookies, and those implementing
// dto.StatusCoder choose their status.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, r *http.Request, output *Out, err error) {
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var out any = output
	if cs, ok := out.(dto.CookieSetter); ok {
		for _, c := range cs.Cookies() {
			c.Secure = r.TLS != nil
			http.SetCookie(w, c)
		}
	}
	status := http.StatusOK
	if sc, ok := out.(dto.StatusCoder); ok {
		status = sc.HTTPStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// Wrap wraps a public handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Path parameters can be extracted by tagging struct fields with `path:"name"`
// and query parameters with `query:"name"`.
// *In must implement dto.Validatable.
//
// A valid token is optional; when present the user is available through
// reqctx.User.
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), d *deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)
		user, _ := authenticate(ctx, w, r, d)
		if user != nil {
			ctx = reqctx.WithUser(ctx, user)
		}
		if !rateLimit(w, r, d, user) {
			return
		}
		input, ok := decodeInput[In, PtrIn](ctx, w, r, d)
		if !ok {
			return
		}
		output, err := fn(ctx, input)
		writeJSONResponse(ctx, w, r, output, err)
	})
}

// WrapAuth wraps an authenticated handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *models.User, *In) (*Out, error)
// *In must implement dto.Validatable.
func WrapAuth[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, *models.User, PtrIn) (*Out, error), d *deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)
		user, err := authenticate(ctx, w, r, d)
		if err != nil {
			writeError(ctx, w, dto.Unauthorized(""))
			return
		}
		ctx = reqctx.WithUser(ctx, user)
		if !rateLimit(w, r, d, user) {
			return
		}
		input, ok := decodeInput[In, PtrIn](ctx, w, r, d)
		if !ok {
			return
		}
		output, err := fn(ctx, user, input)
		commitDBIfMutating(ctx, r, d, user)
		writeJSONResponse(ctx, w, r, output, err)
	})
}

// WrapAuthRaw wraps an authenticated raw handler, for responses that are not
// JSON API objects.
func WrapAuthRaw(fn func(http.ResponseWriter, *http.Request, *models.User), d *deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)
		user, err := authenticate(ctx, w, r, d)
		if err != nil {
			writeError(ctx, w, dto.Unauthorized(""))
			return
		}
		ctx = reqctx.WithUser(ctx, user)
		if !rateLimit(w, r, d, user) {
			return
		}
		limitBody(w, r, d)
		fn(w, r.WithContext(ctx), user)
		commitDBIfMutating(ctx, r, d, user)
	})
}

// WrapRaw wraps a public raw handler with rate limiting.
func WrapRaw(fn http.HandlerFunc, d *deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)
		if !rateLimit(w, r, d, nil) {
			return
		}
		fn(w, r.WithContext(ctx))
	})
}

// populatePathParams sets string fields tagged `path:"name"` from the route.
func populatePathParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" {
			continue
		}
		paramValue := r.PathValue(tag)
		if paramValue == "" {
			continue
		}
		if field.Type.Kind() == reflect.String {
			elem.Field(i).SetString(paramValue)
		}
	}
}

// populateQueryParams sets string and int fields tagged `query:"name"` from
// the URL query. A malformed int is reported as an invalid field.
func populateQueryParams(r *http.Request, input any) error {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return nil
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return nil
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		paramValue := query.Get(tag)
		if paramValue == "" {
			continue
		}
		switch field.Type.Kind() {
		case reflect.String:
			elem.Field(i).SetString(paramValue)
		case reflect.Int:
			v, err := strconv.Atoi(paramValue)
			if err != nil {
				return dto.InvalidField(tag, "must be an integer")
			}
			elem.Field(i).SetInt(int64(v))
		}
	}
	return nil
}

// writeError writes err as a JSON error response.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode, response := dto.ToResponse(err)
	switch {
	case statusCode >= 500:
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", statusCode, "code", response.Error.Code)
	case statusCode != http.StatusUnauthorized && statusCode != http.StatusNotFound:
		slog.WarnContext(ctx, "Request rejected", "err", err, "statusCode", statusCode, "code", response.Error.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(ctx, "Failed to encode error response", "err", err)
	}
}
