package dto

import (
	"math"
	"strconv"
	"strings"
)

// --- Auth ---

// LoginRequest is a request to log in.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate validates the login request fields.
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return MissingField("username")
	}
	if r.Password == "" {
		return MissingField("password")
	}
	return nil
}

// EmptyRequest is used by endpoints that take no input.
type EmptyRequest struct{}

// Validate is a no-op.
func (r *EmptyRequest) Validate() error {
	return nil
}

// --- Movies ---

// MovieIDRequest addresses a single movie.
type MovieIDRequest struct {
	ID string `path:"id"`
}

// Validate validates the movie id.
func (r *MovieIDRequest) Validate() error {
	return validateMovieID(r.ID)
}

// CreateMovieRequest adds a movie by hand.
type CreateMovieRequest struct {
	Title     string `json:"title"`
	Notes     string `json:"notes"`
	Thumbnail string `json:"thumbnail"`
}

// Validate validates the create request fields.
func (r *CreateMovieRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return MissingField("title")
	}
	return nil
}

// UpdateMovieRequest edits the descriptive fields of a movie.
type UpdateMovieRequest struct {
	ID        string `path:"id"`
	Title     string `json:"title"`
	Notes     string `json:"notes"`
	Thumbnail string `json:"thumbnail"`
}

// Validate validates the update request fields.
func (r *UpdateMovieRequest) Validate() error {
	if err := validateMovieID(r.ID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Title) == "" {
		return MissingField("title")
	}
	return nil
}

// RateMovieRequest records the caller's rating of a movie.
type RateMovieRequest struct {
	ID     string   `path:"id"`
	Rating *float64 `json:"rating"`
}

// Validate validates the rating.
func (r *RateMovieRequest) Validate() error {
	if err := validateMovieID(r.ID); err != nil {
		return err
	}
	if r.Rating == nil {
		return MissingField("rating")
	}
	if v := *r.Rating; math.IsNaN(v) || v < 0 || v > 10 {
		return InvalidField("rating", "must be between 0 and 10").WithDetail("min", 0).WithDetail("max", 10)
	}
	return nil
}

// AddFromTMDBRequest adds a movie found through search.
type AddFromTMDBRequest struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Validate validates the add request fields.
func (r *AddFromTMDBRequest) Validate() error {
	if r.ID == 0 {
		return MissingField("id")
	}
	if r.ID < 0 {
		return InvalidField("id", "must be positive")
	}
	if strings.TrimSpace(r.Title) == "" {
		return MissingField("title")
	}
	return nil
}

// ExportRequest selects the export encoding.
type ExportRequest struct {
	Format string `query:"format"`
}

// Validate validates the format.
func (r *ExportRequest) Validate() error {
	switch r.Format {
	case "", "json", "yaml":
		return nil
	default:
		return InvalidField("format", "must be json or yaml")
	}
}

// --- TMDB ---

// SearchRequest is a TMDB search.
type SearchRequest struct {
	Query string `query:"query"`
}

// Validate is a no-op; an empty query yields no results.
func (r *SearchRequest) Validate() error {
	return nil
}

// TMDBDetailsRequest fetches TMDB details of a movie.
type TMDBDetailsRequest struct {
	ID string `path:"id"`
}

// Validate validates the TMDB id.
func (r *TMDBDetailsRequest) Validate() error {
	if r.ID == "" {
		return MissingField("id")
	}
	if _, err := strconv.ParseUint(r.ID, 10, 63); err != nil {
		return InvalidField("id", "must be a TMDB movie id")
	}
	return nil
}

// --- History ---

// HistoryRequest lists past versions of the movie list.
type HistoryRequest struct {
	Limit int `query:"limit"`
}

// Validate validates the limit.
func (r *HistoryRequest) Validate() error {
	if r.Limit < 0 {
		return InvalidField("limit", "must be non-negative")
	}
	return nil
}

// VersionRequest addresses a past version of the movie list.
type VersionRequest struct {
	Hash string `path:"hash"`
}

// Validate validates the commit hash.
func (r *VersionRequest) Validate() error {
	if r.Hash == "" {
		return MissingField("hash")
	}
	if len(r.Hash) != 40 || strings.Trim(r.Hash, "0123456789abcdef") != "" {
		return InvalidField("hash", "must be a full commit hash")
	}
	return nil
}

// --- Push ---

// SubscribeRequest registers a Web Push subscription.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Validate validates the subscription fields.
func (r *SubscribeRequest) Validate() error {
	if !strings.HasPrefix(r.Endpoint, "https://") {
		return InvalidField("endpoint", "must be an https URL")
	}
	if r.Keys.P256dh == "" {
		return MissingField("keys.p256dh")
	}
	if r.Keys.Auth == "" {
		return MissingField("keys.auth")
	}
	return nil
}

// UnsubscribeRequest removes a Web Push subscription.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Validate validates the endpoint.
func (r *UnsubscribeRequest) Validate() error {
	if r.Endpoint == "" {
		return MissingField("endpoint")
	}
	return nil
}

func validateMovieID(id string) error {
	if id == "" {
		return MissingField("id")
	}
	if len(id) > 128 {
		return InvalidField("id", "too long")
	}
	return nil
}
