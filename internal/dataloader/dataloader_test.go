package dataloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/graph-gophers/dataloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/storage/inmemory"
	"github.com/UkralStul/watchedit/internal/storage/storagetest"
)

// countingStore считает батч-запросы к хранилищу.
type countingStore struct {
	*inmemory.Store
	mu         sync.Mutex
	postCalls  int
	failOnLoad error
}

func (s *countingStore) GetPostsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Post, error) {
	s.mu.Lock()
	s.postCalls++
	s.mu.Unlock()
	if s.failOnLoad != nil {
		return nil, s.failOnLoad
	}
	return s.Store.GetPostsByIDs(ctx, ids)
}

func TestLoaders_BatchesConcurrentLoads(t *testing.T) {
	store := &countingStore{Store: inmemory.New()}
	person := storagetest.NewPerson(t, store, "loader@example.com")
	p1 := storagetest.NewPost(t, store, person.ID, "alien", 5)
	p2 := storagetest.NewPost(t, store, person.ID, "heat", 4)

	loaders := New(store)
	ctx := context.Background()

	// Все ключи ставятся в очередь до того, как первый thunk будет вызван
	thunks := []dataloader.Thunk{
		loaders.PostByID.Load(ctx, Key(p1.ID)),
		loaders.PostByID.Load(ctx, Key(p2.ID)),
		loaders.PostByID.Load(ctx, Key(p1.ID)),
	}
	for i, want := range []int64{p1.ID, p2.ID, p1.ID} {
		v, err := thunks[i]()
		require.NoError(t, err)
		assert.Equal(t, want, v.(*domain.Post).ID)
	}

	assert.Equal(t, 1, store.postCalls)
}

func TestLoaders_MissingRowsAreNil(t *testing.T) {
	store := inmemory.New()
	loaders := New(store)
	ctx := context.Background()

	post, err := loaders.Post(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, post)

	profile, err := loaders.Profile(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestLoaders_PostsSkipsMissing(t *testing.T) {
	store := inmemory.New()
	person := storagetest.NewPerson(t, store, "many@example.com")
	post := storagetest.NewPost(t, store, person.ID, "alien", 5)

	posts, err := New(store).Posts(context.Background(), []int64{post.ID, 999})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, post.ID, posts[0].ID)
}

func TestLoaders_ErrorIsPropagated(t *testing.T) {
	boom := errors.New("db is down")
	store := &countingStore{Store: inmemory.New(), failOnLoad: boom}

	_, err := New(store).Post(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestMiddleware_InjectsLoaders(t *testing.T) {
	var got *Loaders
	handler := Middleware(inmemory.New(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = For(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, got)
	assert.NotNil(t, got.PostByID)
	assert.Nil(t, For(context.Background()))
}
