package models

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMovie_Rate(t *testing.T) {
	type step struct {
		user      string
		rating    float64
		wantNew   bool
		wantMean  float64
		wantCount int
	}
	tests := []struct {
		name  string
		movie Movie
		steps []step
	}{
		{
			name:  "first ratings",
			movie: Movie{ID: "1"},
			steps: []step{
				{"alice", 8, true, 8, 1},
				{"bob", 6, true, 7, 2},
				{"carol", 10, true, 8, 3},
			},
		},
		{
			name:  "re-rate replaces previous value",
			movie: Movie{ID: "1"},
			steps: []step{
				{"alice", 8, true, 8, 1},
				{"bob", 6, true, 7, 2},
				{"bob", 9, false, 8.5, 2},
				{"alice", 9, false, 9, 2},
			},
		},
		{
			name:  "zero rating counts",
			movie: Movie{ID: "1"},
			steps: []step{
				{"alice", 0, true, 0, 1},
				{"alice", 4, false, 4, 1},
			},
		},
		{
			name:  "legacy count without map",
			movie: Movie{ID: "2", Rating: 7, TotalReviews: 3},
			steps: []step{
				{"alice", 5, true, 5, 1},
			},
		},
		{
			name:  "legacy mean drifted from map",
			movie: Movie{ID: "3", Rating: 2.5, TotalReviews: 1, Ratings: map[string]float64{"alice": 4, "bob": 8}},
			steps: []step{
				{"carol", 9, true, 7, 3},
			},
		},
		{
			name:  "manual entry with edited rating",
			movie: Movie{ID: "MANUAL-x", Rating: 6},
			steps: []step{
				{"alice", 3, true, 3, 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.movie.Clone()
			for i, s := range tt.steps {
				if got := m.Rate(s.user, s.rating); got != s.wantNew {
					t.Errorf("step %d: Rate() = %v, want %v", i, got, s.wantNew)
				}
				if math.Abs(m.Rating-s.wantMean) > 1e-9 {
					t.Errorf("step %d: Rating = %v, want %v", i, m.Rating, s.wantMean)
				}
				if m.TotalReviews != s.wantCount {
					t.Errorf("step %d: TotalReviews = %d, want %d", i, m.TotalReviews, s.wantCount)
				}
				if m.TotalReviews != len(m.Ratings) {
					t.Errorf("step %d: TotalReviews = %d but %d ratings", i, m.TotalReviews, len(m.Ratings))
				}
			}
		})
	}
}

func TestMovie_RateMatchesMean(t *testing.T) {
	m := &Movie{ID: "1"}
	ratings := map[string]float64{"a": 3.5, "b": 7, "c": 9.5, "d": 1, "e": 10}
	sum := 0.
	for u, r := range ratings {
		m.Rate(u, r)
		sum += r
	}
	want := sum / float64(len(ratings))
	if math.Abs(m.Rating-want) > 1e-9 {
		t.Errorf("Rating = %v, want mean %v", m.Rating, want)
	}
	if m.RoundedRating() != 6.2 {
		t.Errorf("RoundedRating() = %v, want 6.2", m.RoundedRating())
	}
}

func TestMovie_Clone(t *testing.T) {
	m := &Movie{ID: "1", Ratings: map[string]float64{"alice": 5}}
	c := m.Clone()
	c.Ratings["bob"] = 7
	c.Title = "changed"
	if len(m.Ratings) != 1 || m.Title != "" {
		t.Errorf("Clone shares state with the original: %+v", m)
	}
}

func TestValidateRating(t *testing.T) {
	tests := []struct {
		r    float64
		want error
	}{
		{0, nil},
		{10, nil},
		{7.5, nil},
		{-0.1, ErrInvalidRating},
		{10.5, ErrInvalidRating},
		{math.NaN(), ErrInvalidRating},
		{math.Inf(1), ErrInvalidRating},
	}
	for _, tt := range tests {
		if got := ValidateRating(tt.r); !errors.Is(got, tt.want) {
			t.Errorf("ValidateRating(%v) = %v, want %v", tt.r, got, tt.want)
		}
	}
}

func TestMovieID_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want MovieID
		out  string
	}{
		{"tmdb number", `550`, "550", `550`},
		{"manual string", `"MANUAL-ABCDE-FGHIJ"`, "MANUAL-ABCDE-FGHIJ", `"MANUAL-ABCDE-FGHIJ"`},
		{"numeric string", `"550"`, "550", `550`},
		{"leading zero string", `"0550"`, "0550", `"0550"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id MovieID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if id != tt.want {
				t.Errorf("got %q, want %q", id, tt.want)
			}
			b, err := json.Marshal(id)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(b) != tt.out {
				t.Errorf("Marshal = %s, want %s", b, tt.out)
			}
		})
	}

	for _, bad := range []string{`1.5`, `-3`, `true`, `{}`} {
		var id MovieID
		if err := json.Unmarshal([]byte(bad), &id); err == nil {
			t.Errorf("Unmarshal(%s) succeeded with %q, want error", bad, id)
		}
	}
}

func TestMovie_LegacyDocument(t *testing.T) {
	// Entries as written by the first version of the application.
	doc := `[
  {"id": 550, "title": "Fight Club", "total_reviews": 0, "total_rating": 0, "thumbnail": "/p.jpg"},
  {"id": "MANUAL-QW3RT-Y7UIO", "title": "Home video", "notes": "n", "rating": 7.3, "total_reviews": 2, "ratings": {"a": 8, "b": 6.6}}
]`
	var movies []Movie
	if err := json.Unmarshal([]byte(doc), &movies); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := []Movie{
		{ID: "550", Title: "Fight Club", Thumbnail: "/p.jpg"},
		{ID: "MANUAL-QW3RT-Y7UIO", Title: "Home video", Notes: "n", Rating: 7.3, TotalReviews: 2, Ratings: map[string]float64{"a": 8, "b": 6.6}},
	}
	if diff := cmp.Diff(want, movies); diff != "" {
		t.Errorf("decoded movies (-want +got):\n%s", diff)
	}
	b, err := json.Marshal(movies[0])
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b); !strings.HasPrefix(got, `{"id":550,`) {
		t.Errorf("numeric id not preserved: %s", got)
	}
}

func TestNewManualID(t *testing.T) {
	a, b := NewManualID(), NewManualID()
	if !a.IsManual() || !b.IsManual() {
		t.Errorf("ids %q, %q lack the manual prefix", a, b)
	}
	if a == b {
		t.Errorf("NewManualID returned %q twice", a)
	}
	if a.IsNumeric() {
		t.Errorf("%q reported as numeric", a)
	}
}
