package storage

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/maruel/moviedb/internal/jsondb"
	"github.com/maruel/moviedb/internal/models"
)

// MovieService manages the movie list.
type MovieService struct {
	coll *jsondb.Collection[models.Movie]
	now  func() time.Time
}

// NewMovieService returns a service over the movie document at path.
func NewMovieService(path string, opts *jsondb.Options) (*MovieService, error) {
	coll, err := jsondb.Open[models.Movie](path, opts)
	if err != nil {
		return nil, err
	}
	return &MovieService{coll: coll, now: time.Now}, nil
}

// Path returns the primary document path.
func (s *MovieService) Path() string {
	return s.coll.Path()
}

// List returns all movies in stored order.
func (s *MovieService) List(ctx context.Context) []models.Movie {
	return s.coll.Load(ctx)
}

// Health returns the current snapshot of the document.
func (s *MovieService) Health(ctx context.Context) *jsondb.Snapshot[models.Movie] {
	return s.coll.Read(ctx)
}

// Get returns the movie with the given id.
func (s *MovieService) Get(ctx context.Context, id models.MovieID) (*models.Movie, error) {
	movies := s.coll.Load(ctx)
	i := indexOf(movies, id)
	if i < 0 {
		return nil, ErrMovieNotFound
	}
	return movies[i].Clone(), nil
}

// IDs returns the set of listed movie ids.
func (s *MovieService) IDs(ctx context.Context) map[models.MovieID]struct{} {
	movies := s.coll.Load(ctx)
	ids := make(map[models.MovieID]struct{}, len(movies))
	for i := range movies {
		ids[movies[i].ID] = struct{}{}
	}
	return ids
}

// Create adds a manually entered movie.
func (s *MovieService) Create(ctx context.Context, title, notes, thumbnail string) (*models.Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	now := s.now()
	m := models.Movie{
		ID:        models.NewManualID(),
		Title:     title,
		Notes:     notes,
		Thumbnail: thumbnail,
		Created:   now,
		Modified:  now,
	}
	err := s.coll.Modify(ctx, func(movies []models.Movie) ([]models.Movie, error) {
		return append(movies, m), nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// AddFromTMDB adds a movie found on TMDB. It fails with ErrMovieExists when the
// id is already listed.
func (s *MovieService) AddFromTMDB(ctx context.Context, id models.MovieID, title, thumbnail string) (*models.Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	now := s.now()
	m := models.Movie{ID: id, Title: title, Thumbnail: thumbnail, Created: now, Modified: now}
	err := s.coll.Modify(ctx, func(movies []models.Movie) ([]models.Movie, error) {
		if indexOf(movies, id) >= 0 {
			return nil, ErrMovieExists
		}
		return append(movies, m), nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Update replaces the descriptive fields of a movie. The rating aggregate is
// only changed through Rate.
func (s *MovieService) Update(ctx context.Context, id models.MovieID, title, notes, thumbnail string) (*models.Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	var out *models.Movie
	err := s.coll.Modify(ctx, func(movies []models.Movie) ([]models.Movie, error) {
		i := indexOf(movies, id)
		if i < 0 {
			return nil, ErrMovieNotFound
		}
		m := &movies[i]
		m.Title = title
		m.Notes = notes
		m.Thumbnail = thumbnail
		m.Modified = s.now()
		out = m.Clone()
		return movies, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rate records user's rating of a movie. isNew is true when the user had not
// rated it before.
func (s *MovieService) Rate(ctx context.Context, id models.MovieID, user string, rating float64) (m *models.Movie, isNew bool, err error) {
	if err := models.ValidateRating(rating); err != nil {
		return nil, false, err
	}
	err = s.coll.Modify(ctx, func(movies []models.Movie) ([]models.Movie, error) {
		i := indexOf(movies, id)
		if i < 0 {
			return nil, ErrMovieNotFound
		}
		isNew = movies[i].Rate(user, rating)
		movies[i].Modified = s.now()
		m = movies[i].Clone()
		return movies, nil
	})
	if err != nil {
		return nil, false, err
	}
	return m, isNew, nil
}

// Delete removes a movie.
func (s *MovieService) Delete(ctx context.Context, id models.MovieID) error {
	return s.coll.Modify(ctx, func(movies []models.Movie) ([]models.Movie, error) {
		i := indexOf(movies, id)
		if i < 0 {
			return nil, ErrMovieNotFound
		}
		return slices.Delete(movies, i, i+1), nil
	})
}

func indexOf(movies []models.Movie, id models.MovieID) int {
	return slices.IndexFunc(movies, func(m models.Movie) bool { return m.ID == id })
}
