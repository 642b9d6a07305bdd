// Package userdata собирает данные пользователя для страниц и API.
package userdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/dataloader"
	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/storage"
)

type Accessor struct {
	store   storage.Storage
	timeout time.Duration
}

func New(store storage.Storage, queryTimeout time.Duration) *Accessor {
	return &Accessor{store: store, timeout: queryTimeout}
}

// GetUserData возвращает email, аватар и имя. nil, если пользователя нет.
func (a *Accessor) GetUserData(ctx context.Context, personID int64) (*domain.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.userData(ctx, personID)
}

func (a *Accessor) userData(ctx context.Context, personID int64) (*domain.UserProfile, error) {
	profile, err := a.store.GetUserProfile(ctx, personID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", personID, err)
	}
	return profile, nil
}

// GetUserPosts возвращает посты пользователя в укороченном виде.
func (a *Accessor) GetUserPosts(ctx context.Context, personID int64) ([]*domain.PostSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.userPosts(ctx, personID)
}

func (a *Accessor) userPosts(ctx context.Context, personID int64) ([]*domain.PostSummary, error) {
	posts, err := a.store.GetPostsByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to get posts of user %d: %w", personID, err)
	}

	summaries := make([]*domain.PostSummary, 0, len(posts))
	for _, p := range posts {
		summaries = append(summaries, &domain.PostSummary{ID: p.ID, Movie: p.Movie, Stars: p.Stars, Review: p.Review})
	}
	return summaries, nil
}

// GetUserFavourites возвращает избранные посты пользователя.
// Избранное, указывающее на удаленный пост, пропускается.
func (a *Accessor) GetUserFavourites(ctx context.Context, personID int64) ([]*domain.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.userFavourites(ctx, personID)
}

func (a *Accessor) userFavourites(ctx context.Context, personID int64) ([]*domain.Post, error) {
	favs, err := a.store.GetFavourites(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to get favourites of user %d: %w", personID, err)
	}
	if len(favs) == 0 {
		return []*domain.Post{}, nil
	}

	ids := make([]int64, len(favs))
	for i, f := range favs {
		ids[i] = f.PostID
	}

	loaders := dataloader.For(ctx)
	if loaders == nil {
		loaders = dataloader.New(a.store)
	}
	posts, err := loaders.Posts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load favourite posts of user %d: %w", personID, err)
	}

	if len(posts) != len(ids) {
		found := make(map[int64]struct{}, len(posts))
		for _, p := range posts {
			found[p.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				log.Warn().Int64("person_id", personID).Int64("post_id", id).Msg("favourite points to a missing post")
			}
		}
	}
	return posts, nil
}

// GetAllDataByUserID объединяет профиль, посты и избранное. nil для id <= 0.
func (a *Accessor) GetAllDataByUserID(ctx context.Context, personID int64) (*domain.UserData, error) {
	if personID <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	profile, err := a.userData(ctx, personID)
	if err != nil {
		return nil, err
	}
	posts, err := a.userPosts(ctx, personID)
	if err != nil {
		return nil, err
	}
	favs, err := a.userFavourites(ctx, personID)
	if err != nil {
		return nil, err
	}

	data := &domain.UserData{Posts: posts, Favs: favs}
	if profile != nil {
		data.Email = profile.Email
		data.PfpLink = profile.PfpLink
		data.DisplayName = profile.DisplayName
	}
	return data, nil
}

// GetAllData - то же для текущего пользователя. nil для анонима.
func (a *Accessor) GetAllData(ctx context.Context, id auth.Identity) (*domain.UserData, error) {
	if !id.IsAuthenticated() {
		return nil, nil
	}
	return a.GetAllDataByUserID(ctx, id.PersonID())
}
