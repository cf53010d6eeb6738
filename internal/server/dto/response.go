package dto

import (
	"net/http"
	"time"

	"github.com/maruel/moviedb/internal/history"
	"github.com/maruel/moviedb/internal/models"
	"github.com/maruel/moviedb/internal/tmdb"
)

// OkResponse is a simple success response.
type OkResponse struct {
	Ok bool `json:"ok"`
}

// --- Health ---

// HealthResponse reports the server and store state.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	// Store is "primary", "backup", "empty", "unreadable" or "missing".
	Store      string `json:"store"`
	StoreError string `json:"store_error,omitempty"`
	Movies     int    `json:"movies"`
	TMDB       bool   `json:"tmdb"`
}

// --- Auth ---

// UserResponse is the public view of a user.
type UserResponse struct {
	Username string `json:"username"`
}

// LoginResponse is a response from logging in. The token is also set as the
// "token" cookie.
type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *UserResponse `json:"user"`

	cookie *http.Cookie
}

// NewLoginResponse returns a response that also sets cookie.
func NewLoginResponse(token string, expiresAt time.Time, user *UserResponse, cookie *http.Cookie) *LoginResponse {
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, User: user, cookie: cookie}
}

// Cookies implements CookieSetter.
func (r *LoginResponse) Cookies() []*http.Cookie {
	return []*http.Cookie{r.cookie}
}

// LogoutResponse clears the session cookie.
type LogoutResponse struct {
	OkResponse

	cookie *http.Cookie
}

// NewLogoutResponse returns a response that also sets cookie.
func NewLogoutResponse(cookie *http.Cookie) *LogoutResponse {
	return &LogoutResponse{OkResponse: OkResponse{Ok: true}, cookie: cookie}
}

// Cookies implements CookieSetter.
func (r *LogoutResponse) Cookies() []*http.Cookie {
	return []*http.Cookie{r.cookie}
}

// CookieSetter is implemented by responses that set cookies.
type CookieSetter interface {
	Cookies() []*http.Cookie
}

// StatusCoder is implemented by responses with a status other than 200.
type StatusCoder interface {
	HTTPStatus() int
}

// --- Movies ---

// MovieResponse is a movie with its rating rounded for display.
type MovieResponse struct {
	ID           models.MovieID     `json:"id"`
	Title        string             `json:"title"`
	Notes        string             `json:"notes,omitempty"`
	Thumbnail    string             `json:"thumbnail,omitempty"`
	Rating       float64            `json:"rating"`
	TotalReviews int                `json:"total_reviews"`
	Ratings      map[string]float64 `json:"ratings,omitempty"`
	MyRating     *float64           `json:"my_rating,omitempty"`
	Manual       bool               `json:"manual,omitempty"`
	Created      time.Time          `json:"created,omitzero"`
	Modified     time.Time          `json:"modified,omitzero"`
}

// NewMovieResponse converts m for the user viewing it. user may be empty.
func NewMovieResponse(m *models.Movie, user string) *MovieResponse {
	r := &MovieResponse{
		ID:           m.ID,
		Title:        m.Title,
		Notes:        m.Notes,
		Thumbnail:    m.Thumbnail,
		Rating:       m.RoundedRating(),
		TotalReviews: m.TotalReviews,
		Ratings:      m.Ratings,
		Manual:       m.ID.IsManual(),
		Created:      m.Created,
		Modified:     m.Modified,
	}
	if v, ok := m.Ratings[user]; ok && user != "" {
		r.MyRating = &v
	}
	return r
}

// CreatedMovieResponse is returned with 201 Created.
type CreatedMovieResponse struct {
	*MovieResponse
}

// HTTPStatus implements StatusCoder.
func (CreatedMovieResponse) HTTPStatus() int {
	return http.StatusCreated
}

// ListMoviesResponse is the movie list.
type ListMoviesResponse struct {
	Movies []*MovieResponse `json:"movies"`
	User   string           `json:"user,omitempty"`
}

// RateMovieResponse is returned after rating a movie.
type RateMovieResponse struct {
	Movie       *MovieResponse `json:"movie"`
	IsNewReview bool           `json:"is_new_review"`
}

// --- TMDB ---

// SearchResult is a TMDB search result annotated with whether it is listed.
type SearchResult struct {
	tmdb.Movie
	IsAdded bool `json:"is_added"`
}

// SearchResponse lists TMDB search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// --- History ---

// HistoryResponse lists past versions of the movie list.
type HistoryResponse struct {
	History []history.Commit `json:"history"`
}

// --- Push ---

// VAPIDPublicKeyResponse returns the key used for Web Push subscriptions.
type VAPIDPublicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

// SubscribeResponse is returned after registering a Web Push subscription.
type SubscribeResponse struct {
	ID string `json:"id"`
}
