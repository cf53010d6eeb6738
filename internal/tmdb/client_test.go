package tmdb

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("tok", &Options{BaseURL: srv.URL, HTTPClient: srv.Client(), RequestsPerSecond: 1000})
}

func TestSearchMovies(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/search/movie" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string]string{"query": "fight club", "include_adult": "false", "language": "en-US", "page": "1"}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("%s = %q, want %q", k, q.Get(k), v)
			}
		}
		_, _ = w.Write([]byte(`{"page":1,"results":[{"id":550,"title":"Fight Club","poster_path":"/p.jpg","vote_average":8.4}],"total_pages":1,"total_results":1}`))
	})
	resp, err := c.SearchMovies(t.Context(), "fight club")
	if err != nil {
		t.Fatalf("SearchMovies failed: %v", err)
	}
	want := []Movie{{ID: 550, Title: "Fight Club", PosterPath: "/p.jpg", VoteAverage: 8.4}}
	if diff := cmp.Diff(want, resp.Results); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
}

func TestMovieDetails(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/movie/550":
			if r.URL.Query().Get("language") != "en-US" {
				t.Errorf("query = %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"id":550,"runtime":139}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status_code":34,"status_message":"The resource you requested could not be found."}`))
		}
	})
	raw, err := c.MovieDetails(t.Context(), 550)
	if err != nil {
		t.Fatalf("MovieDetails failed: %v", err)
	}
	var d struct{ Runtime int }
	if err := json.Unmarshal(raw, &d); err != nil || d.Runtime != 139 {
		t.Errorf("details = %s, %v", raw, err)
	}

	_, err = c.MovieDetails(t.Context(), 1)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *Error", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != 34 {
		t.Errorf("got %+v", apiErr)
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("", nil)
	if c.Configured() {
		t.Error("Configured() = true")
	}
	if _, err := c.SearchMovies(t.Context(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("got %v, want ErrNotConfigured", err)
	}
}
