package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/events"
	"github.com/UkralStul/watchedit/internal/moviedata"
	"github.com/UkralStul/watchedit/internal/movieapi"
	"github.com/UkralStul/watchedit/internal/postdata"
	"github.com/UkralStul/watchedit/internal/storage/inmemory"
	"github.com/UkralStul/watchedit/internal/storage/storagetest"
	"github.com/UkralStul/watchedit/internal/userdata"
)

type fakeMovies struct {
	movies map[string]*movieapi.Movie
	err    error
}

func (f *fakeMovies) Movie(_ context.Context, id string) (*movieapi.MovieResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.movies[id]
	if !ok {
		return nil, &movieapi.StatusError{Code: http.StatusNotFound, Path: "/movie"}
	}
	return &movieapi.MovieResponse{Data: m}, nil
}

func (f *fakeMovies) Search(_ context.Context, title string) (*movieapi.SearchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &movieapi.SearchResponse{}
	for _, m := range f.movies {
		if strings.Contains(strings.ToLower(m.OriginalTitle), strings.ToLower(title)) {
			res.Data = append(res.Data, m)
		}
	}
	return res, nil
}

func (f *fakeMovies) Autocomplete(ctx context.Context, title string) (*movieapi.SearchResponse, error) {
	return f.Search(ctx, title)
}

type testEnv struct {
	handler http.Handler
	store   *inmemory.Store
	movies  *fakeMovies
	hub     *events.Hub
}

func newTestEnv(t *testing.T, limiter *IPRateLimiter) *testEnv {
	t.Helper()
	store := inmemory.New()
	hub := events.NewHub(8)
	movies := &fakeMovies{movies: map[string]*movieapi.Movie{
		"42": {ID: 42, OriginalTitle: "Alien", Summary: "In space no one can hear you scream"},
	}}

	d := Deps{
		Store:       store,
		Users:       userdata.New(store, time.Second),
		Posts:       postdata.New(store, hub, time.Second),
		Movies:      moviedata.New(movies, store, time.Second),
		Auth:        auth.NewService(store, auth.NewHasher(bcrypt.MinCost), hub, time.Second),
		Sessions:    auth.NewSessions("test-secret", time.Hour, false, auth.NewMemoryRevocations()),
		Hub:         hub,
		RateLimiter: limiter,
	}
	h, err := NewRouter(d)
	require.NoError(t, err)
	return &testEnv{handler: h, store: store, movies: movies, hub: hub}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (e *testEnv) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies...)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func (e *testEnv) register(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := e.post("/register", url.Values{
		"username":       {email},
		"password":       {password},
		"repeatpassword": {password},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/user", rec.Header().Get("Location"))
	return sessionCookie(t, rec)
}

func TestPages_Public(t *testing.T) {
	env := newTestEnv(t, nil)
	person := storagetest.NewPerson(t, env.store, "author@example.com")
	post := storagetest.NewPost(t, env.store, person.ID, "the thing", 4)

	home := env.get("/")
	require.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), "The Thing")
	assert.Equal(t, "DENY", home.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, home.Header().Get("Content-Security-Policy"))

	review := env.get(fmt.Sprintf("/review?postid=%d", post.ID))
	require.Equal(t, http.StatusOK, review.Code)
	assert.Contains(t, review.Body.String(), "review of the thing")

	missing := env.get("/review?postid=999")
	assert.Equal(t, http.StatusNotFound, missing.Code)

	byUser := env.get(fmt.Sprintf("/watchedit?userid=%d", person.ID))
	require.Equal(t, http.StatusOK, byUser.Code)
	assert.Contains(t, byUser.Body.String(), domain.DefaultDisplayName(person.ID))

	for _, path := range []string{"/login", "/register", "/watchedit"} {
		assert.Equal(t, http.StatusOK, env.get(path).Code, path)
	}
}

func TestPages_RequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/user", "/user-settings"} {
		rec := env.get(path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}

	rec := env.post("/posts", url.Values{"movie": {"alien"}, "stars": {"5"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestMoviePage(t *testing.T) {
	env := newTestEnv(t, nil)
	person := storagetest.NewPerson(t, env.store, "critic@example.com")
	storagetest.NewPost(t, env.store, person.ID, "Alien", 5)
	storagetest.NewPost(t, env.store, person.ID, "alien", 2)
	storagetest.NewPost(t, env.store, person.ID, "heat", 1)

	rec := env.get("/movie?movieid=42")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "In space no one can hear you scream")
	assert.Contains(t, body, "(2 reviews)")
	assert.NotContains(t, body, "review of heat")

	env.movies.err = fmt.Errorf("%w: connection refused", movieapi.ErrTransport)
	rec = env.get("/movie?movieid=42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The Shining")
}

func TestRegisterLoginLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.register(t, "New@Example.com", "secret")

	rec := env.get("/user", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "new@example.com")

	rec = env.post("/login", url.Values{"username": {"new@example.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wrong email or password")

	rec = env.post("/login", url.Values{"username": {"new@example.com"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loginCookie := sessionCookie(t, rec)

	rec = env.get("/logout", loginCookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	// Отозванная сессия больше не пускает
	rec = env.get("/user", loginCookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRegister_Rejected(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "taken@example.com", "pw")

	rec := env.post("/register", url.Values{
		"username": {"other@example.com"}, "password": {"a"}, "repeatpassword": {"b"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Passwords do not match")

	rec = env.post("/register", url.Values{
		"username": {"TAKEN@example.com"}, "password": {"pw"}, "repeatpassword": {"pw"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestForms_PostsAndSettings(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.register(t, "writer@example.com", "pw")
	ctx := context.Background()

	rec := env.post("/posts", url.Values{"movie": {" Heat "}, "stars": {"4"}, "review": {"tense"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/review?postid="))

	posts, err := env.store.GetPostsByMovie(ctx, "heat")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	postID := posts[0].ID

	rec = env.post(fmt.Sprintf("/posts/%d/like", postID), nil, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	likes, err := env.store.GetLikesByPostID(ctx, postID)
	require.NoError(t, err)
	assert.Len(t, likes, 1)

	rec = env.post(fmt.Sprintf("/posts/%d/like", postID), nil, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	likes, err = env.store.GetLikesByPostID(ctx, postID)
	require.NoError(t, err)
	assert.Empty(t, likes)

	rec = env.post(fmt.Sprintf("/posts/%d/comments", postID), url.Values{"content": {"agreed"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	comments, err := env.store.GetCommentsByPostID(ctx, postID)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	rec = env.post(fmt.Sprintf("/posts/%d/favourite", postID), nil, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.post("/posts", url.Values{"movie": {"heat"}, "stars": {"9"}}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post("/posts/abc/like", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post("/change-display-name", url.Values{"password": {"pw"}, "displayname": {"Critic"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/user-settings", rec.Header().Get("Location"))

	rec = env.post("/change-display-name", url.Values{"password": {"nope"}, "displayname": {"Hacker"}}, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var me struct {
		Data struct {
			Me domain.UserData `json:"me"`
		} `json:"data"`
	}
	rec = env.graphql(`{ me { displayname posts { movie } favs { movie } } }`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "Critic", me.Data.Me.DisplayName)
	require.Len(t, me.Data.Me.Posts, 1)
	require.Len(t, me.Data.Me.Favs, 1)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.register(t, "leaving@example.com", "pw")
	rec := env.post("/login", url.Values{"username": {"leaving@example.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	otherDevice := sessionCookie(t, rec)

	rec = env.post("/delete-account", url.Values{"password": {"pw"}}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/delete-account-permanent")

	rec = env.post("/delete-account-permanent", url.Values{"password": {"wrong"}}, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.post("/delete-account-permanent", url.Values{"password": {"pw"}}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	_, err := env.store.GetPersonByEmail(context.Background(), "leaving@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Сессия с другого устройства тоже отозвана
	rec = env.get("/user", otherDevice)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestChangePassword_RevokesOtherSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.register(t, "rotate@example.com", "old")
	rec := env.post("/login", url.Values{"username": {"rotate@example.com"}, "password": {"old"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	otherDevice := sessionCookie(t, rec)

	rec = env.post("/change-password", url.Values{
		"oldpassword": {"old"}, "newpassword": {"new"}, "repeatpassword": {"new"},
	}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/user-settings", rec.Header().Get("Location"))
	reissued := sessionCookie(t, rec)

	for name, c := range map[string]*http.Cookie{"old cookie": cookie, "other device": otherDevice} {
		rec = env.get("/user", c)
		assert.Equal(t, http.StatusSeeOther, rec.Code, name)
		assert.Equal(t, "/login", rec.Header().Get("Location"), name)
	}

	rec = env.get("/user", reissued)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Неверный старый пароль сессии не трогает
	rec = env.post("/change-password", url.Values{
		"oldpassword": {"wrong"}, "newpassword": {"x"}, "repeatpassword": {"x"},
	}, reissued)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, http.StatusOK, env.get("/user", reissued).Code)
}

func (e *testEnv) graphql(query string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"query": query})
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req, cookies...)
}

func TestGraphQL(t *testing.T) {
	env := newTestEnv(t, nil)
	person := storagetest.NewPerson(t, env.store, "api@example.com")
	post := storagetest.NewPost(t, env.store, person.ID, "alien", 4)
	storagetest.NewPost(t, env.store, person.ID, "alien", 1)

	rec := env.get("/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = env.graphql(fmt.Sprintf(`{
		me { email }
		user(id: %d) { email }
		post(id: %d) { post { movie } likeCount }
		movieRating(id: "42") { stars reviewCount }
		reviews(title: "ALIEN") { post { stars } }
	}`, person.ID, post.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Me          *domain.UserData   `json:"me"`
			User        *domain.UserData   `json:"user"`
			Post        *domain.PostData   `json:"post"`
			MovieRating *domain.StarRating `json:"movieRating"`
			Reviews     []json.RawMessage  `json:"reviews"`
		} `json:"data"`
		Errors []json.RawMessage `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.Empty(t, resp.Errors)
	assert.Nil(t, resp.Data.Me)
	require.NotNil(t, resp.Data.User)
	assert.Equal(t, "api@example.com", resp.Data.User.Email)
	require.NotNil(t, resp.Data.Post)
	assert.Equal(t, "alien", resp.Data.Post.Post.Movie)
	assert.Equal(t, &domain.StarRating{Stars: 3, ReviewCount: 2}, resp.Data.MovieRating)
	assert.Len(t, resp.Data.Reviews, 2)

	// Старые JSON-маршруты убраны
	assert.Equal(t, http.StatusNotFound, env.get("/api/posts").Code)
}

func TestAPI_HealthCheckFailure(t *testing.T) {
	store := inmemory.New()
	h, err := NewRouter(Deps{
		Store:       store,
		Sessions:    auth.NewSessions("s", time.Hour, false, auth.NewMemoryRevocations()),
		HealthCheck: func(context.Context) error { return errors.New("db down") },
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestLoginRateLimit(t *testing.T) {
	limiter := NewIPRateLimiter(0.001, 2)
	env := newTestEnv(t, limiter)
	form := url.Values{"username": {"nobody@example.com"}, "password": {"x"}}

	assert.Equal(t, http.StatusUnauthorized, env.post("/login", form).Code)
	assert.Equal(t, http.StatusUnauthorized, env.post("/login", form).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.post("/login", form).Code)

	// Страницы лимит не трогает
	assert.Equal(t, http.StatusOK, env.get("/login").Code)
}
