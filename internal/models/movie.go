package models

import (
	"errors"
	"maps"
	"math"
	"time"
)

const (
	// MinRating is the lowest rating a user can give.
	MinRating = 0
	// MaxRating is the highest rating a user can give.
	MaxRating = 10
)

// ErrInvalidRating is returned for ratings outside [MinRating, MaxRating].
var ErrInvalidRating = errors.New("rating must be between 0 and 10")

// Movie is one entry of the movie list.
type Movie struct {
	ID        MovieID `json:"id" yaml:"id"`
	Title     string  `json:"title" yaml:"title" jsonschema:"description=Display title"`
	Notes     string  `json:"notes,omitempty" yaml:"notes,omitempty" jsonschema:"description=Free-form notes"`
	Thumbnail string  `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty" jsonschema:"description=Poster path or URL"`
	// Rating is the mean of Ratings. It is stored unrounded.
	Rating       float64 `json:"rating" yaml:"rating" jsonschema:"description=Mean of all user ratings,minimum=0,maximum=10"`
	TotalReviews int     `json:"total_reviews" yaml:"total_reviews" jsonschema:"description=Number of users who rated the movie,minimum=0"`
	// Ratings maps a username to the rating that user gave.
	Ratings  map[string]float64 `json:"ratings,omitempty" yaml:"ratings,omitempty" jsonschema:"description=Rating per username"`
	Created  time.Time          `json:"created,omitzero" yaml:"created,omitempty"`
	Modified time.Time          `json:"modified,omitzero" yaml:"modified,omitempty"`
}

// Clone returns a deep copy.
func (m *Movie) Clone() *Movie {
	c := *m
	c.Ratings = maps.Clone(m.Ratings)
	return &c
}

// ValidateRating checks that r is a usable rating.
func ValidateRating(r float64) error {
	if math.IsNaN(r) || r < MinRating || r > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// Rate records user's rating r and updates the running mean. It returns true
// when this is the user's first rating of the movie.
//
// A first rating uses the incremental mean m' = m + (r - m)/n with the new
// count n. A repeated rating replaces the user's previous value p:
// m' = m + (r - p)/n.
func (m *Movie) Rate(user string, r float64) bool {
	m.normalize()
	if m.Ratings == nil {
		m.Ratings = make(map[string]float64)
	}
	prev, seen := m.Ratings[user]
	m.Ratings[user] = r
	if seen {
		m.Rating += (r - prev) / float64(m.TotalReviews)
		return false
	}
	m.TotalReviews++
	m.Rating += (r - m.Rating) / float64(m.TotalReviews)
	return true
}

// RoundedRating returns Rating rounded to one decimal.
func (m *Movie) RoundedRating() float64 {
	return math.Round(m.Rating*10) / 10
}

// normalize recomputes the aggregate from Ratings when the stored count does
// not match it. Older documents carry counts and means that drifted from the
// per-user map.
func (m *Movie) normalize() {
	if m.TotalReviews == len(m.Ratings) {
		return
	}
	m.TotalReviews = len(m.Ratings)
	if m.TotalReviews == 0 {
		m.Rating = 0
		return
	}
	sum := 0.
	for _, r := range m.Ratings {
		sum += r
	}
	m.Rating = sum / float64(m.TotalReviews)
}
