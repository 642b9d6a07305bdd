// Package postdata собирает посты вместе с автором, лайками и комментариями
// и выполняет действия пользователей над постами.
package postdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/UkralStul/watchedit/internal/dataloader"
	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/events"
	"github.com/UkralStul/watchedit/internal/storage"
)

const (
	// hydrateLimit - сколько постов собирается одновременно.
	hydrateLimit   = 8
	publishTimeout = 2 * time.Second
)

type Accessor struct {
	store     storage.Storage
	publisher events.Publisher
	timeout   time.Duration
}

// New создает аксессор. publisher может быть nil.
func New(store storage.Storage, publisher events.Publisher, queryTimeout time.Duration) *Accessor {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Accessor{store: store, publisher: publisher, timeout: queryTimeout}
}

func (a *Accessor) loaders(ctx context.Context) *dataloader.Loaders {
	if l := dataloader.For(ctx); l != nil {
		return l
	}
	return dataloader.New(a.store)
}

// GetPost возвращает пост или nil, если его нет.
func (a *Accessor) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.loaders(ctx).Post(ctx, id)
}

func (a *Accessor) GetPostComments(ctx context.Context, id int64) ([]*domain.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.GetCommentsByPostID(ctx, id)
}

func (a *Accessor) GetPostLikes(ctx context.Context, id int64) ([]*domain.PostLike, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.GetLikesByPostID(ctx, id)
}

// GetPostAuthor находит профиль автора поста. nil, если нет поста или профиля.
func (a *Accessor) GetPostAuthor(ctx context.Context, id int64) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	loaders := a.loaders(ctx)
	post, err := loaders.Post(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		log.Debug().Int64("post_id", id).Msg("post not found while resolving author")
		return nil, nil
	}
	return a.author(ctx, loaders, post)
}

func (a *Accessor) author(ctx context.Context, loaders *dataloader.Loaders, post *domain.Post) (*domain.Profile, error) {
	profile, err := loaders.Profile(ctx, post.PersonID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		log.Warn().Int64("post_id", post.ID).Int64("person_id", post.PersonID).Msg("post author has no profile")
	}
	return profile, nil
}

// GetPostData собирает пост целиком. nil, если id некорректен, поста нет
// или не найден автор.
func (a *Accessor) GetPostData(ctx context.Context, id int64) (*domain.PostData, error) {
	if id <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.postData(ctx, a.loaders(ctx), id)
}

func (a *Accessor) postData(ctx context.Context, loaders *dataloader.Loaders, id int64) (*domain.PostData, error) {
	post, err := loaders.Post(ctx, id)
	if err != nil || post == nil {
		return nil, err
	}

	author, err := a.author(ctx, loaders, post)
	if err != nil || author == nil {
		return nil, err
	}

	likes, err := a.store.GetLikesByPostID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get likes of post %d: %w", id, err)
	}
	comments, err := a.store.GetCommentsByPostID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments of post %d: %w", id, err)
	}

	return &domain.PostData{
		Author:       author,
		Post:         post,
		Likes:        likes,
		LikeCount:    len(likes),
		Comments:     comments,
		CommentCount: len(comments),
	}, nil
}

// GetMovieReviews собирает все рецензии на фильм.
func (a *Accessor) GetMovieReviews(ctx context.Context, title string) ([]*domain.PostData, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	posts, err := a.store.GetPostsByMovie(ctx, domain.NormalizeMovie(title))
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for %q: %w", title, err)
	}
	return a.hydrate(ctx, posts)
}

// GetAllPosts собирает все посты.
func (a *Accessor) GetAllPosts(ctx context.Context) ([]*domain.PostData, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	posts, err := a.store.GetAllPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return a.hydrate(ctx, posts)
}

// hydrate собирает агрегаты параллельно и сортирует их по вовлеченности.
// Посты, исчезнувшие между выборкой и сборкой, пропускаются.
func (a *Accessor) hydrate(ctx context.Context, posts []*domain.Post) ([]*domain.PostData, error) {
	loaders := a.loaders(ctx)
	results := make([]*domain.PostData, len(posts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateLimit)
	for i, p := range posts {
		i, p := i, p
		g.Go(func() error {
			data, err := a.postData(gctx, loaders, p.ID)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*domain.PostData, 0, len(results))
	for _, d := range results {
		if d != nil {
			out = append(out, d)
		}
	}
	SortByEngagement(out)
	return out, nil
}

// SortByEngagement упорядочивает по возрастанию лайков+комментариев, при равенстве - по id.
func SortByEngagement(items []*domain.PostData) {
	sort.SliceStable(items, func(i, j int) bool {
		ei, ej := items[i].Engagement(), items[j].Engagement()
		if ei != ej {
			return ei < ej
		}
		return items[i].Post.ID < items[j].Post.ID
	})
}

// === Writes ===

func (a *Accessor) CreatePost(ctx context.Context, personID int64, movie string, stars int, review string) (*domain.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	post, err := a.store.CreatePost(ctx, &domain.Post{PersonID: personID, Movie: movie, Stars: stars, Review: review})
	if err != nil {
		return nil, err
	}
	a.publish(ctx, events.Event{Type: events.PostCreated, PostID: post.ID, PersonID: personID, Movie: post.Movie})
	return post, nil
}

func (a *Accessor) CreateComment(ctx context.Context, personID, postID int64, content string) (*domain.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	comment, err := a.store.CreateComment(ctx, &domain.Comment{PostID: postID, PersonID: personID, Content: content})
	if err != nil {
		return nil, err
	}
	a.publish(ctx, events.Event{Type: events.CommentCreated, PostID: postID, PersonID: personID})
	return comment, nil
}

func (a *Accessor) LikePost(ctx context.Context, personID, postID int64) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.store.LikePost(ctx, postID, personID); err != nil {
		return err
	}
	a.publish(ctx, events.Event{Type: events.PostLiked, PostID: postID, PersonID: personID})
	return nil
}

func (a *Accessor) UnlikePost(ctx context.Context, personID, postID int64) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.UnlikePost(ctx, postID, personID)
}

// ToggleLike ставит лайк, а если он уже стоит - снимает. Возвращает новое состояние.
func (a *Accessor) ToggleLike(ctx context.Context, personID, postID int64) (bool, error) {
	likes, err := a.GetPostLikes(ctx, postID)
	if err != nil {
		return false, err
	}
	for _, l := range likes {
		if l.PersonID == personID {
			return false, a.UnlikePost(ctx, personID, postID)
		}
	}
	return true, a.LikePost(ctx, personID, postID)
}

func (a *Accessor) LikeComment(ctx context.Context, personID, commentID int64) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.LikeComment(ctx, commentID, personID)
}

func (a *Accessor) Favourite(ctx context.Context, personID, postID int64) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.AddFavourite(ctx, personID, postID)
}

func (a *Accessor) Unfavourite(ctx context.Context, personID, postID int64) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.RemoveFavourite(ctx, personID, postID)
}

// publish отправляет событие. Ошибки только логируются.
func (a *Accessor) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := a.publisher.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Int64("post_id", e.PostID).Msg("failed to publish event")
	}
}
