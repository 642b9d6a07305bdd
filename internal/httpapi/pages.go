package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/moviedata"
)

// queryID читает положительный id из query. 0, если параметра нет или он битый.
func queryID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

type pageOptions struct {
	allReviews bool
}

// pageData собирает данные страницы параллельно: текущий пользователь,
// пользователь из ?userid, рецензия из ?postid и фильм из ?movieid.
func (s *server) pageData(r *http.Request, opts pageOptions) (*PageData, error) {
	ctx := r.Context()
	identity := auth.FromContext(ctx)
	data := &PageData{CurrentUserID: identity.PersonID()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.Users.GetAllData(gctx, identity)
		data.CurrentUser = u
		return err
	})
	if id := queryID(r, "userid"); id > 0 {
		g.Go(func() error {
			u, err := s.Users.GetAllDataByUserID(gctx, id)
			data.QueryUser = u
			return err
		})
	}
	if id := queryID(r, "postid"); id > 0 {
		g.Go(func() error {
			p, err := s.Posts.GetPostData(gctx, id)
			data.QueryReview = p
			return err
		})
	}
	if raw := r.URL.Query().Get("movieid"); raw != "" {
		g.Go(func() error {
			movie, err := s.Movies.GetMovieData(gctx, raw)
			if err != nil || movie == nil || movie.Data == nil {
				log.Warn().Err(err).Str("movie_id", raw).Msg("movie api unavailable, using fallback movie")
				movie = moviedata.Fallback()
			}
			data.MovieData = movie
			return nil
		})
	}
	if opts.allReviews {
		g.Go(func() error {
			all, err := s.Posts.GetAllPosts(gctx)
			data.AllReviews = all
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *server) renderPage(w http.ResponseWriter, r *http.Request, name string, opts pageOptions) {
	data, err := s.pageData(r, opts)
	if err != nil {
		s.pageError(w, r, name, err)
		return
	}
	s.render.page(w, http.StatusOK, name, data)
}

func (s *server) pageError(w http.ResponseWriter, r *http.Request, name string, err error) {
	log.Error().Err(err).Str("page", name).Str("path", r.URL.Path).Msg("failed to load page data")
	s.render.page(w, http.StatusInternalServerError, "error", &PageData{})
}

func (s *server) simplePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r, name, pageOptions{})
	}
}

func (s *server) homePage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "home", pageOptions{allReviews: true})
}

func (s *server) watcheditPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "watchedit", pageOptions{allReviews: queryID(r, "userid") == 0})
}

func (s *server) reviewPage(w http.ResponseWriter, r *http.Request) {
	data, err := s.pageData(r, pageOptions{})
	if err != nil {
		s.pageError(w, r, "review", err)
		return
	}
	status := http.StatusOK
	if data.QueryReview == nil {
		status = http.StatusNotFound
	}
	s.render.page(w, status, "review", data)
}

// moviePage показывает фильм, его рейтинг и рецензии на него.
func (s *server) moviePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("movieid") == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data, err := s.pageData(r, pageOptions{})
	if err != nil {
		s.pageError(w, r, "movie", err)
		return
	}

	if err := s.movieReviews(r.Context(), data); err != nil {
		s.pageError(w, r, "movie", err)
		return
	}
	s.render.page(w, http.StatusOK, "movie", data)
}

func (s *server) movieReviews(ctx context.Context, data *PageData) error {
	title := data.MovieData.Data.OriginalTitle

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reviews, err := s.Posts.GetMovieReviews(gctx, title)
		data.AllReviews = reviews
		return err
	})
	g.Go(func() error {
		rating, err := s.Movies.GetMovieStarRatingByTitle(gctx, title)
		data.MovieRating = rating
		return err
	})
	return g.Wait()
}
