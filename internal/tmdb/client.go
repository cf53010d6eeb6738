// Package tmdb is a small client for The Movie Database API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the TMDB API base URL.
	BaseURL = "https://api.themoviedb.org/3"
	// ImageBaseURL prefixes poster paths.
	ImageBaseURL = "https://image.tmdb.org/t/p/w500"
)

// ErrNotConfigured is returned when the client has no access token.
var ErrNotConfigured = errors.New("tmdb access token is not configured")

// Error is a non-2xx TMDB response.
type Error struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"status_code"`
	Message    string `json:"status_message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tmdb: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("tmdb: HTTP %d: %s", e.StatusCode, e.Message)
}

// Options configures a Client. The zero value is usable.
type Options struct {
	// BaseURL defaults to BaseURL.
	BaseURL string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// RequestsPerSecond throttles outgoing requests. Defaults to 20.
	RequestsPerSecond float64
}

// Client is a rate-limited TMDB API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new client. An empty token yields a client whose calls
// fail with ErrNotConfigured.
func NewClient(token string, opts *Options) *Client {
	c := &Client{token: token, baseURL: BaseURL}
	rps := 20.
	if opts != nil {
		if opts.BaseURL != "" {
			c.baseURL = opts.BaseURL
		}
		c.httpClient = opts.HTTPClient
		if opts.RequestsPerSecond > 0 {
			rps = opts.RequestsPerSecond
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	return c
}

// Configured reports whether the client has a token.
func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

// Movie is a search result.
type Movie struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title,omitempty"`
	OriginalLanguage string  `json:"original_language,omitempty"`
	Overview         string  `json:"overview,omitempty"`
	PosterPath       string  `json:"poster_path,omitempty"`
	BackdropPath     string  `json:"backdrop_path,omitempty"`
	ReleaseDate      string  `json:"release_date,omitempty"`
	GenreIDs         []int   `json:"genre_ids,omitempty"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Adult            bool    `json:"adult"`
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

// SearchMovies returns the first page of movies matching query.
func (c *Client) SearchMovies(ctx context.Context, query string) (*SearchResponse, error) {
	v := url.Values{}
	v.Set("query", query)
	v.Set("include_adult", "false")
	v.Set("language", "en-US")
	v.Set("page", "1")
	data, err := c.do(ctx, "/search/movie?"+v.Encode())
	if err != nil {
		return nil, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return &resp, nil
}

// MovieDetails returns the raw details document of a movie.
func (c *Client) MovieDetails(ctx context.Context, id int64) (json.RawMessage, error) {
	data, err := c.do(ctx, "/movie/"+strconv.FormatInt(id, 10)+"?language=en-US")
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, errors.New("failed to parse movie details: invalid JSON")
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return nil, apiErr
	}
	return body, nil
}
