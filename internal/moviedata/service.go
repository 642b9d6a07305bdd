package moviedata

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/movieapi"
	"github.com/UkralStul/watchedit/internal/storage"
)

// MovieClient - то, что сервису нужно от внешнего API.
type MovieClient interface {
	Movie(ctx context.Context, externalID string) (*movieapi.MovieResponse, error)
	Search(ctx context.Context, title string) (*movieapi.SearchResponse, error)
	Autocomplete(ctx context.Context, title string) (*movieapi.SearchResponse, error)
}

// Service объединяет внешнее API и локальные рецензии.
type Service struct {
	client  MovieClient
	store   storage.Storage
	timeout time.Duration
}

func New(client MovieClient, store storage.Storage, queryTimeout time.Duration) *Service {
	return &Service{client: client, store: store, timeout: queryTimeout}
}

// Fallback - фильм-заглушка для страниц, когда API недоступно.
func Fallback() *movieapi.MovieResponse {
	return &movieapi.MovieResponse{
		Data: &movieapi.Movie{
			ID:            1,
			OriginalTitle: "The Shining",
			Summary:       "A horror and a thriller movie about the shining",
			Poster:        &movieapi.Poster{FileLocation: "/icons/shining-poster.png"},
		},
	}
}

func (s *Service) GetMovieData(ctx context.Context, externalID string) (*movieapi.MovieResponse, error) {
	return s.client.Movie(ctx, externalID)
}

func (s *Service) GetByTitle(ctx context.Context, title string) (*movieapi.SearchResponse, error) {
	return s.client.Search(ctx, title)
}

func (s *Service) GetAutocompleteMovie(ctx context.Context, title string) (*movieapi.SearchResponse, error) {
	return s.client.Autocomplete(ctx, title)
}

// GetMovieStarRatingByTitle считает среднюю оценку по рецензиям с таким названием.
// Среднее округляется до ближайшего целого, половины от нуля.
func (s *Service) GetMovieStarRatingByTitle(ctx context.Context, title string) (domain.StarRating, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stars, err := s.store.GetStarsByMovie(ctx, domain.NormalizeMovie(title))
	if err != nil {
		return domain.StarRating{}, fmt.Errorf("failed to get stars for %q: %w", title, err)
	}
	if len(stars) == 0 {
		return domain.StarRating{}, nil
	}

	sum := 0
	for _, st := range stars {
		sum += st
	}
	avg := float64(sum) / float64(len(stars))
	return domain.StarRating{Stars: int(math.Round(avg)), ReviewCount: len(stars)}, nil
}

// GetMovieStarRating находит название фильма по внешнему id и считает оценку по нему.
func (s *Service) GetMovieStarRating(ctx context.Context, externalID string) (domain.StarRating, error) {
	movie, err := s.client.Movie(ctx, externalID)
	if err != nil {
		return domain.StarRating{}, err
	}
	if movie == nil || movie.Data == nil || movie.Data.OriginalTitle == "" {
		return domain.StarRating{}, fmt.Errorf("%w: movie %s has no original title", movieapi.ErrSchema, externalID)
	}
	return s.GetMovieStarRatingByTitle(ctx, movie.Data.OriginalTitle)
}

// GetMovieReviews возвращает рецензии на фильм как есть, без автора и лайков.
func (s *Service) GetMovieReviews(ctx context.Context, title string) ([]*domain.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	posts, err := s.store.GetPostsByMovie(ctx, domain.NormalizeMovie(title))
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews for %q: %w", title, err)
	}
	return posts, nil
}
