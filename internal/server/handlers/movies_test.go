package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/moviedb/internal/history"
	"github.com/maruel/moviedb/internal/server/dto"
	"github.com/maruel/moviedb/internal/server/reqctx"
	"gopkg.in/yaml.v3"
)

func ptr[T any](v T) *T { return &v }

func TestMovieHandler(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.addUser(t, "alice", "pw")
	bob := e.addUser(t, "bob", "pw")
	h := NewMovieHandler(e.svc, nil)
	ctx := t.Context()

	created, err := h.Create(ctx, alice, &dto.CreateMovieRequest{Title: "  Heat ", Notes: "Mann"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.HTTPStatus() != http.StatusCreated || created.Title != "Heat" || !created.Manual {
		t.Errorf("got %+v", created.MovieResponse)
	}
	id := string(created.ID)

	added, err := h.AddFromTMDB(ctx, alice, &dto.AddFromTMDBRequest{ID: 550, Title: "Fight Club", Thumbnail: "/p.jpg"})
	if err != nil {
		t.Fatalf("AddFromTMDB failed: %v", err)
	}
	if added.ID != "550" || added.Manual {
		t.Errorf("got %+v", added.MovieResponse)
	}
	_, err = h.AddFromTMDB(ctx, bob, &dto.AddFromTMDBRequest{ID: 550, Title: "Fight Club"})
	wantStatus(t, err, http.StatusConflict)

	r1, err := h.Rate(ctx, alice, &dto.RateMovieRequest{ID: id, Rating: ptr(8.0)})
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if !r1.IsNewReview || r1.Movie.Rating != 8 || r1.Movie.TotalReviews != 1 {
		t.Errorf("got %+v", r1)
	}
	r2, err := h.Rate(ctx, bob, &dto.RateMovieRequest{ID: id, Rating: ptr(7.0)})
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if !r2.IsNewReview || r2.Movie.Rating != 7.5 || r2.Movie.TotalReviews != 2 || *r2.Movie.MyRating != 7 {
		t.Errorf("got %+v", r2)
	}
	r3, err := h.Rate(ctx, bob, &dto.RateMovieRequest{ID: id, Rating: ptr(10.0)})
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if r3.IsNewReview || r3.Movie.Rating != 9 || r3.Movie.TotalReviews != 2 {
		t.Errorf("got %+v", r3)
	}

	upd, err := h.Update(ctx, bob, &dto.UpdateMovieRequest{ID: id, Title: "Heat (1995)"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if upd.Title != "Heat (1995)" || upd.Notes != "" || upd.Rating != 9 {
		t.Errorf("got %+v", upd)
	}

	// Anonymous listing has no personal rating; a logged in one does.
	list, err := h.List(ctx, &dto.EmptyRequest{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list.Movies) != 2 || list.User != "" || list.Movies[0].MyRating != nil {
		t.Errorf("got %+v", list)
	}
	list, err = h.List(reqctx.WithUser(ctx, alice), &dto.EmptyRequest{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.User != "alice" || list.Movies[0].MyRating == nil || *list.Movies[0].MyRating != 8 {
		t.Errorf("got %+v", list.Movies[0])
	}

	if _, err := h.Delete(ctx, alice, &dto.MovieIDRequest{ID: id}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, err = h.Get(ctx, alice, &dto.MovieIDRequest{ID: id})
	wantStatus(t, err, http.StatusNotFound)
	_, err = h.Rate(ctx, alice, &dto.RateMovieRequest{ID: id, Rating: ptr(1.0)})
	wantStatus(t, err, http.StatusNotFound)
	_, err = h.Delete(ctx, alice, &dto.MovieIDRequest{ID: id})
	wantStatus(t, err, http.StatusNotFound)

	got, err := h.Get(ctx, bob, &dto.MovieIDRequest{ID: "550"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Fight Club" {
		t.Errorf("got %q, want %q", got.Title, "Fight Club")
	}
}

func TestMovieHandler_Export(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.addUser(t, "alice", "pw")
	h := NewMovieHandler(e.svc, nil)
	if _, err := h.AddFromTMDB(t.Context(), alice, &dto.AddFromTMDBRequest{ID: 550, Title: "Fight Club"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Rate(t.Context(), alice, &dto.RateMovieRequest{ID: "550", Rating: ptr(9.0)}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		format      string
		contentType string
		decode      func([]byte, any) error
	}{
		{"", "application/json", json.Unmarshal},
		{"json", "application/json", json.Unmarshal},
		{"yaml", "application/yaml", yaml.Unmarshal},
	}
	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/movies/export?format="+tt.format, nil)
			h.Export(w, r, alice)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body)
			}
			if got := w.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("got %q, want %q", got, tt.contentType)
			}
			if !strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;") {
				t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
			}
			var out []struct {
				Title        string             `json:"title" yaml:"title"`
				TotalReviews int                `json:"total_reviews" yaml:"total_reviews"`
				Ratings      map[string]float64 `json:"ratings" yaml:"ratings"`
			}
			if err := tt.decode(w.Body.Bytes(), &out); err != nil {
				t.Fatalf("decode failed: %v\n%s", err, w.Body)
			}
			want := []struct {
				Title        string             `json:"title" yaml:"title"`
				TotalReviews int                `json:"total_reviews" yaml:"total_reviews"`
				Ratings      map[string]float64 `json:"ratings" yaml:"ratings"`
			}{{Title: "Fight Club", TotalReviews: 1, Ratings: map[string]float64{"alice": 9}}}
			if diff := cmp.Diff(want, out); diff != "" {
				t.Errorf("export (-want +got):\n%s", diff)
			}
		})
	}

	w := httptest.NewRecorder()
	h.Export(w, httptest.NewRequest(http.MethodGet, "/api/movies/export?format=xml", nil), alice)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSchema(t *testing.T) {
	w := httptest.NewRecorder()
	Schema(w, httptest.NewRequest(http.MethodGet, "/api/schema/movie", nil))
	var s struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("invalid schema: %v", err)
	}
	for _, k := range []string{"id", "title", "rating", "total_reviews", "ratings"} {
		if _, ok := s.Properties[k]; !ok {
			t.Errorf("missing property %q", k)
		}
	}
}

func TestMovieHandler_History(t *testing.T) {
	e := newTestEnv(t, nil)
	alice := e.addUser(t, "alice", "pw")
	h := NewMovieHandler(e.svc, nil)
	_, err := h.History(t.Context(), alice, &dto.HistoryRequest{})
	wantStatus(t, err, http.StatusServiceUnavailable)

	repo, err := history.Open(e.dir, history.Author{Name: "moviedb", Email: "moviedb@localhost"})
	if err != nil {
		t.Fatalf("history.Open failed: %v", err)
	}
	e.svc.History = repo
	if _, err := h.Create(t.Context(), alice, &dto.CreateMovieRequest{Title: "Heat"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Commit(t.Context(), GitAuthor(alice), "POST /api/movies", e.svc.Movies.Path()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	resp, err := h.History(t.Context(), alice, &dto.HistoryRequest{Limit: 10})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(resp.History) != 1 || resp.History[0].Message != "POST /api/movies" || resp.History[0].Author != "alice" {
		t.Errorf("got %+v", resp.History)
	}

	first := resp.History[0].Hash
	if _, err := h.Create(t.Context(), alice, &dto.CreateMovieRequest{Title: "Ronin"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Commit(t.Context(), GitAuthor(alice), "POST /api/movies", e.svc.Movies.Path()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	old, err := h.Version(t.Context(), alice, &dto.VersionRequest{Hash: first})
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if len(old.Movies) != 1 || old.Movies[0].Title != "Heat" {
		t.Errorf("got %+v", old.Movies)
	}
	_, err = h.Version(t.Context(), alice, &dto.VersionRequest{Hash: strings.Repeat("0", 40)})
	wantStatus(t, err, http.StatusNotFound)
}
