package dataloader

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/storage"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения. Живут один запрос.
type Loaders struct {
	PostByID    *dataloader.Loader
	ProfileByID *dataloader.Loader
}

// New создает набор лоадеров поверх хранилища.
func New(store storage.Storage) *Loaders {
	postsFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids, bad := parseKeys(keys)
		if bad != nil {
			return failAll(len(keys), bad)
		}

		// Один запрос к хранилищу на весь батч
		postsMap, err := store.GetPostsByIDs(ctx, ids)
		if err != nil {
			return failAll(len(keys), err)
		}

		// Формируем результат в том же порядке, что и ключи
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			results[i] = &dataloader.Result{Data: postsMap[id]}
		}
		return results
	}

	profilesFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids, bad := parseKeys(keys)
		if bad != nil {
			return failAll(len(keys), bad)
		}

		profilesMap, err := store.GetProfilesByIDs(ctx, ids)
		if err != nil {
			return failAll(len(keys), err)
		}

		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			results[i] = &dataloader.Result{Data: profilesMap[id]}
		}
		return results
	}

	return &Loaders{
		PostByID:    dataloader.NewBatchedLoader(postsFn, dataloader.WithWait(time.Millisecond*1)),
		ProfileByID: dataloader.NewBatchedLoader(profilesFn, dataloader.WithWait(time.Millisecond*1)),
	}
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store storage.Storage, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithLoaders(r.Context(), New(store))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithLoaders кладет лоадеры в контекст.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, key, l)
}

// For извлекает лоадеры из контекста. Вне HTTP-запроса вернет nil.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(key).(*Loaders)
	return l
}

// Post возвращает пост по id или nil, если его нет.
func (l *Loaders) Post(ctx context.Context, id int64) (*domain.Post, error) {
	v, err := l.PostByID.Load(ctx, Key(id))()
	if err != nil {
		return nil, err
	}
	post, _ := v.(*domain.Post)
	return post, nil
}

// Profile возвращает профиль по id или nil, если его нет.
func (l *Loaders) Profile(ctx context.Context, id int64) (*domain.Profile, error) {
	v, err := l.ProfileByID.Load(ctx, Key(id))()
	if err != nil {
		return nil, err
	}
	profile, _ := v.(*domain.Profile)
	return profile, nil
}

// Posts загружает несколько постов одним батчем. Отсутствующие пропускаются.
func (l *Loaders) Posts(ctx context.Context, ids []int64) ([]*domain.Post, error) {
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = Key(id)
	}

	values, errs := l.PostByID.LoadMany(ctx, keys)()
	posts := make([]*domain.Post, 0, len(values))
	for i, v := range values {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		if post, ok := v.(*domain.Post); ok && post != nil {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

// Key превращает числовой id в ключ лоадера.
func Key(id int64) dataloader.Key {
	return dataloader.StringKey(strconv.FormatInt(id, 10))
}

func parseKeys(keys dataloader.Keys) ([]int64, error) {
	ids := make([]int64, len(keys))
	for i, k := range keys {
		id, err := strconv.ParseInt(k.String(), 10, 64)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func failAll(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}
