package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/dataloader"
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
}

func (f *fakeMovies) Movie(_ context.Context, id string) (*movieapi.MovieResponse, error) {
	m, ok := f.movies[id]
	if !ok {
		return nil, &movieapi.StatusError{Code: http.StatusNotFound, Path: "/movie"}
	}
	return &movieapi.MovieResponse{Data: m}, nil
}

func (f *fakeMovies) Search(_ context.Context, title string) (*movieapi.SearchResponse, error) {
	res := &movieapi.SearchResponse{Data: []*movieapi.Movie{}}
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
	hub     *events.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := inmemory.New()
	hub := events.NewHub(4)
	movies := &fakeMovies{movies: map[string]*movieapi.Movie{
		"42": {ID: 42, OriginalTitle: "Alien", Summary: "In space", Poster: &movieapi.Poster{FileLocation: "/alien.jpg"}},
	}}

	r := &Resolver{
		Users:  userdata.New(store, time.Second),
		Posts:  postdata.New(store, hub, time.Second),
		Movies: moviedata.New(movies, store, time.Second),
		Hub:    hub,
	}
	return &testEnv{handler: dataloader.Middleware(store, NewHandler(r)), store: store, hub: hub}
}

type gqlError struct {
	Message string `json:"message"`
	Path    []any  `json:"path"`
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []gqlError                 `json:"errors"`
	raw    string
}

func (e *testEnv) query(t *testing.T, id auth.Identity, query string, vars map[string]any) gqlResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), id))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp gqlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	resp.raw = rec.Body.String()
	return resp
}

func TestQuery_PostsKeepSelectionOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := storagetest.NewPerson(t, env.store, "author@example.com")
	fan := storagetest.NewPerson(t, env.store, "fan@example.com")
	post := storagetest.NewPost(t, env.store, author.ID, "alien", 4)
	require.NoError(t, env.store.LikePost(ctx, post.ID, fan.ID))
	_, err := env.store.CreateComment(ctx, &domain.Comment{PostID: post.ID, PersonID: fan.ID, Content: "agreed"})
	require.NoError(t, err)

	resp := env.query(t, auth.Anonymous(), `{
		posts {
			__typename
			post { stars id movie }
			author { displayname }
			likeCount
			comments { content }
		}
	}`, nil)
	require.Empty(t, resp.Errors)

	assert.JSONEq(t, fmt.Sprintf(`[{
		"__typename": "PostData",
		"post": {"stars": 4, "id": "%d", "movie": "alien"},
		"author": {"displayname": %q},
		"likeCount": 1,
		"comments": [{"content": "agreed"}]
	}]`, post.ID, domain.DefaultDisplayName(author.ID)), string(resp.Data["posts"]))
	assert.True(t, strings.HasPrefix(string(resp.Data["posts"]), `[{"__typename":"PostData","post":{"stars":4,`), resp.raw)
}

func TestQuery_AliasesAndVariables(t *testing.T) {
	env := newTestEnv(t)
	person := storagetest.NewPerson(t, env.store, "critic@example.com")
	post := storagetest.NewPost(t, env.store, person.ID, "heat", 5)

	resp := env.query(t, auth.Anonymous(), `query($id: ID!) {
		found: post(id: $id) { post { movie } }
		missing: post(id: "999") { post { movie } }
		user(id: $id) { email posts { movie } }
	}`, map[string]any{"id": fmt.Sprint(post.ID)})
	require.Empty(t, resp.Errors)

	assert.JSONEq(t, `{"post": {"movie": "heat"}}`, string(resp.Data["found"]))
	assert.Equal(t, "null", string(resp.Data["missing"]))
	assert.JSONEq(t, `{"email": "critic@example.com", "posts": [{"movie": "heat"}]}`, string(resp.Data["user"]))
}

func TestQuery_Me(t *testing.T) {
	env := newTestEnv(t)
	person := storagetest.NewPerson(t, env.store, "me@example.com")

	resp := env.query(t, auth.Anonymous(), `{ me { email } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, "null", string(resp.Data["me"]))

	resp = env.query(t, auth.Authenticated(person.ID), `{ me { email favs { id } } }`, nil)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"email": "me@example.com", "favs": []}`, string(resp.Data["me"]))
}

func TestQuery_Movies(t *testing.T) {
	env := newTestEnv(t)
	person := storagetest.NewPerson(t, env.store, "critic@example.com")
	storagetest.NewPost(t, env.store, person.ID, "alien", 5)
	storagetest.NewPost(t, env.store, person.ID, "Alien", 2)

	resp := env.query(t, auth.Anonymous(), `{
		movie(id: "42") { id original_title poster { file_location } }
		movieRating(id: 42) { stars reviewCount }
		movieSearch(title: "ali") { original_title }
		reviews(title: "ALIEN") { post { stars } }
		rawReviews(title: "alien") { person_id }
	}`, nil)
	require.Empty(t, resp.Errors, resp.raw)

	assert.JSONEq(t, `{"id": "42", "original_title": "Alien", "poster": {"file_location": "/alien.jpg"}}`, string(resp.Data["movie"]))
	assert.JSONEq(t, `{"stars": 4, "reviewCount": 2}`, string(resp.Data["movieRating"]))
	assert.JSONEq(t, `[{"original_title": "Alien"}]`, string(resp.Data["movieSearch"]))

	var reviews []map[string]any
	require.NoError(t, json.Unmarshal(resp.Data["reviews"], &reviews))
	assert.Len(t, reviews, 2)
	assert.JSONEq(t, fmt.Sprintf(`[{"person_id": "%d"}, {"person_id": "%d"}]`, person.ID, person.ID), string(resp.Data["rawReviews"]))
}

func TestQuery_FieldErrors(t *testing.T) {
	env := newTestEnv(t)
	person := storagetest.NewPerson(t, env.store, "author@example.com")
	storagetest.NewPost(t, env.store, person.ID, "alien", 4)

	resp := env.query(t, auth.Anonymous(), `{
		post(id: "abc") { post { id } }
		movie(id: "7") { id }
		movieSearch(title: "  ") { id }
		posts { likeCount }
	}`, nil)

	require.Len(t, resp.Errors, 3, resp.raw)
	messages := map[string]string{}
	for _, e := range resp.Errors {
		require.Len(t, e.Path, 1)
		messages[e.Path[0].(string)] = e.Message
	}
	assert.Contains(t, messages["post"], "id must be a positive integer")
	assert.Equal(t, "Movie service is unavailable", messages["movie"])
	assert.Contains(t, messages["movieSearch"], "title is required")

	assert.Equal(t, "null", string(resp.Data["post"]))
	assert.Equal(t, "null", string(resp.Data["movie"]))
	assert.JSONEq(t, `[{"likeCount": 0}]`, string(resp.Data["posts"]))
}

func TestQuery_RejectsInvalidDocuments(t *testing.T) {
	env := newTestEnv(t)

	resp := env.query(t, auth.Anonymous(), `{ posts { nope } }`, nil)
	assert.NotEmpty(t, resp.Errors)
	assert.Nil(t, resp.Data["posts"])

	resp = env.query(t, auth.Anonymous(), `{ __schema { types { name } } }`, nil)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, []string{"", "null"}, string(resp.Data["__schema"]))
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.NotEqual(t, "error", msg.Type, string(msg.Payload))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestSubscription_PostEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	dialer := websocket.Dialer{Subprotocols: []string{"graphql-ws"}}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/query", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "connection_init", Payload: json.RawMessage(`{}`)}))
	readUntil(t, conn, "connection_ack")

	require.NoError(t, conn.WriteJSON(wsMessage{
		ID:      "1",
		Type:    "start",
		Payload: json.RawMessage(`{"query": "subscription { postEvents(postId: 7) { type postId personId movie } }"}`),
	}))
	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, env.hub.Publish(ctx, events.Event{Type: events.PostLiked, PostID: 8, PersonID: 2, At: time.Now()}))
	require.NoError(t, env.hub.Publish(ctx, events.Event{Type: events.CommentCreated, PostID: 7, PersonID: 3, At: time.Now()}))

	msg := readUntil(t, conn, "data")
	assert.Equal(t, "1", msg.ID)
	assert.JSONEq(t, `{"data": {"postEvents": {"type": "comment_created", "postId": "7", "personId": "3", "movie": null}}}`, string(msg.Payload))

	conn.Close()
	assert.Eventually(t, func() bool { return env.hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSubscription_WithoutHub(t *testing.T) {
	srv := NewHandler(&Resolver{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query": "{ __typename }"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"data": {"__typename": "Query"}}`, rec.Body.String())

	_, err := (&Resolver{}).subscribe(context.Background(), nil)
	assert.Error(t, err)
}
