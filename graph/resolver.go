package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/events"
	"github.com/UkralStul/watchedit/internal/moviedata"
	"github.com/UkralStul/watchedit/internal/postdata"
	"github.com/UkralStul/watchedit/internal/userdata"
)

// Resolver - корневой резолвер, держит зависимости запросов и подписок.
type Resolver struct {
	Users  *userdata.Accessor
	Posts  *postdata.Accessor
	Movies *moviedata.Service
	Hub    *events.Hub
}

// fieldResolver вычисляет одно поле Query по его аргументам.
type fieldResolver func(ctx context.Context, args map[string]any) (any, error)

func (r *Resolver) queries() map[string]fieldResolver {
	return map[string]fieldResolver{
		"me":                r.me,
		"user":              r.user,
		"posts":             r.posts,
		"post":              r.post,
		"movie":             r.movie,
		"movieRating":       r.movieRating,
		"movieSearch":       r.movieSearch,
		"movieAutocomplete": r.movieAutocomplete,
		"reviews":           r.reviews,
		"rawReviews":        r.rawReviews,
	}
}

func (r *Resolver) me(ctx context.Context, _ map[string]any) (any, error) {
	data, err := r.Users.GetAllData(ctx, auth.FromContext(ctx))
	if err != nil || data == nil {
		return nil, err
	}
	return data, nil
}

// user отдает null, если пользователя нет.
func (r *Resolver) user(ctx context.Context, args map[string]any) (any, error) {
	id, err := idArg(args, "id")
	if err != nil {
		return nil, err
	}
	data, err := r.Users.GetAllDataByUserID(ctx, id)
	if err != nil || data == nil || data.Email == "" {
		return nil, err
	}
	return data, nil
}

func (r *Resolver) posts(ctx context.Context, _ map[string]any) (any, error) {
	return r.Posts.GetAllPosts(ctx)
}

func (r *Resolver) post(ctx context.Context, args map[string]any) (any, error) {
	id, err := idArg(args, "id")
	if err != nil {
		return nil, err
	}
	post, err := r.Posts.GetPostData(ctx, id)
	if err != nil || post == nil {
		return nil, err
	}
	return post, nil
}

func (r *Resolver) movie(ctx context.Context, args map[string]any) (any, error) {
	resp, err := r.Movies.GetMovieData(ctx, stringArg(args, "id"))
	if err != nil || resp.Data == nil {
		return nil, err
	}
	return resp.Data, nil
}

func (r *Resolver) movieRating(ctx context.Context, args map[string]any) (any, error) {
	return r.Movies.GetMovieStarRating(ctx, stringArg(args, "id"))
}

func (r *Resolver) movieSearch(ctx context.Context, args map[string]any) (any, error) {
	title, err := titleArg(args)
	if err != nil {
		return nil, err
	}
	res, err := r.Movies.GetByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (r *Resolver) movieAutocomplete(ctx context.Context, args map[string]any) (any, error) {
	title, err := titleArg(args)
	if err != nil {
		return nil, err
	}
	res, err := r.Movies.GetAutocompleteMovie(ctx, title)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// reviews - рецензии на фильм с авторами, лайками и комментариями.
func (r *Resolver) reviews(ctx context.Context, args map[string]any) (any, error) {
	title, err := titleArg(args)
	if err != nil {
		return nil, err
	}
	return r.Posts.GetMovieReviews(ctx, title)
}

// rawReviews - те же рецензии без автора и лайков.
func (r *Resolver) rawReviews(ctx context.Context, args map[string]any) (any, error) {
	title, err := titleArg(args)
	if err != nil {
		return nil, err
	}
	return r.Movies.GetMovieReviews(ctx, title)
}

// subscribe подписывает на события поста postId (или всех постов без аргумента).
func (r *Resolver) subscribe(ctx context.Context, args map[string]any) (<-chan events.Event, error) {
	if r.Hub == nil {
		return nil, errors.New("event stream is disabled")
	}
	postID := events.AllPosts
	if v, ok := args["postId"]; ok && v != nil {
		id, err := idArg(args, "postId")
		if err != nil {
			return nil, err
		}
		postID = id
	}
	return r.Hub.Subscribe(ctx, postID), nil
}

func titleArg(args map[string]any) (string, error) {
	title := strings.TrimSpace(stringArg(args, "title"))
	if title == "" {
		return "", fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	return title, nil
}
