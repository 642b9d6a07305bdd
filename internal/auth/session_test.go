package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestIdentity(t *testing.T) {
	assert.False(t, Anonymous().IsAuthenticated())
	assert.False(t, Authenticated(0).IsAuthenticated())
	assert.False(t, Authenticated(-3).IsAuthenticated())

	id := Authenticated(7)
	assert.True(t, id.IsAuthenticated())
	assert.Equal(t, int64(7), id.PersonID())

	ctx := WithIdentity(context.Background(), id)
	assert.Equal(t, id, FromContext(ctx))
	assert.False(t, FromContext(context.Background()).IsAuthenticated())
}

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.True(t, h.Compare(hash, "secret123"))
	assert.False(t, h.Compare(hash, "secret124"))
	assert.False(t, h.Compare("not-a-hash", "secret123"))

	assert.Equal(t, DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.MinCost, NewHasher(1).cost)
}

func TestSessions_IssueAndParse(t *testing.T) {
	s := NewSessions("test-secret", time.Hour, false, nil)
	ctx := context.Background()

	token, issued, err := s.Issue(ctx, 42)
	require.NoError(t, err)

	claims, err := s.Parse(ctx, token)
	require.NoError(t, err)
	personID, err := claims.PersonID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), personID)
	assert.Equal(t, issued.ID, claims.ID)
	assert.NotEmpty(t, claims.ID)
}

func TestSessions_RejectsBadTokens(t *testing.T) {
	s := NewSessions("test-secret", time.Hour, false, nil)
	ctx := context.Background()

	other := NewSessions("other-secret", time.Hour, false, nil)
	foreign, _, err := other.Issue(ctx, 1)
	require.NoError(t, err)
	_, err = s.Parse(ctx, foreign)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = s.Parse(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidSession)

	// Токен без срока действия не принимается
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1"}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = s.Parse(ctx, noExp)
	assert.ErrorIs(t, err, ErrInvalidSession)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "abc",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = s.Parse(ctx, badSubject)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessions_Expiry(t *testing.T) {
	s := NewSessions("test-secret", time.Hour, false, nil)
	token, _, err := s.Issue(context.Background(), 5)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Parse(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessions_Revoke(t *testing.T) {
	s := NewSessions("test-secret", time.Hour, false, NewMemoryRevocations())
	ctx := context.Background()

	token, claims, err := s.Issue(ctx, 5)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, claims))

	_, err = s.Parse(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMemoryRevocations_Expire(t *testing.T) {
	m := NewMemoryRevocations()
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Revoke(ctx, "a", time.Minute))
	require.NoError(t, m.Revoke(ctx, "b", 0))

	revoked, err := m.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = m.IsRevoked(ctx, "b")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = m.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevocations_FailClosed(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	store := NewRedisRevocations(rdb)
	assert.Equal(t, "watchedit:revoked:abc", store.key("abc"))

	_, err := store.IsRevoked(context.Background(), "abc")
	assert.Error(t, err)

	_, err = store.Generation(context.Background(), 1)
	assert.Error(t, err)

	// Без доступа к Redis сессия не принимается
	issuer := NewSessions("test-secret", time.Hour, false, nil)
	token, _, err := issuer.Issue(context.Background(), 1)
	require.NoError(t, err)

	s := NewSessions("test-secret", time.Hour, false, store)
	_, err = s.Parse(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.ErrorIs(t, err, ErrSessionStoreUnavailable)

	_, _, err = s.Issue(context.Background(), 1)
	assert.ErrorIs(t, err, ErrSessionStoreUnavailable)
}

func TestSessions_RevokeAll(t *testing.T) {
	s := NewSessions("test-secret", time.Hour, false, NewMemoryRevocations())
	ctx := context.Background()

	first, _, err := s.Issue(ctx, 5)
	require.NoError(t, err)
	second, _, err := s.Issue(ctx, 5)
	require.NoError(t, err)
	other, _, err := s.Issue(ctx, 6)
	require.NoError(t, err)

	require.NoError(t, s.RevokeAll(ctx, 5))

	for _, token := range []string{first, second} {
		_, err = s.Parse(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	}
	_, err = s.Parse(ctx, other)
	assert.NoError(t, err)

	fresh, claims, err := s.Issue(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.Generation)
	_, err = s.Parse(ctx, fresh)
	assert.NoError(t, err)
}

type flakyRevocations struct {
	*MemoryRevocations
	down bool
}

func (f *flakyRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if f.down {
		return false, errors.New("connection refused")
	}
	return f.MemoryRevocations.IsRevoked(ctx, jti)
}

func TestMiddleware_KeepsCookieWhenStoreIsDown(t *testing.T) {
	store := &flakyRevocations{MemoryRevocations: NewMemoryRevocations()}
	s := NewSessions("test-secret", time.Hour, false, store)
	token, _, err := s.Issue(context.Background(), 4)
	require.NoError(t, err)

	var got Identity
	handler := Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	store.down = true
	rec := serve()
	assert.False(t, got.IsAuthenticated())
	assert.Empty(t, rec.Result().Cookies())

	store.down = false
	serve()
	assert.Equal(t, Authenticated(4), got)
}

func TestSessions_LoginAndLogoutCookies(t *testing.T) {
	s := NewSessions("test-secret", time.Hour, true, nil)

	rec := httptest.NewRecorder()
	require.NoError(t, s.Login(context.Background(), rec, 9))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookies[0])
	out := httptest.NewRecorder()
	require.NoError(t, s.Logout(out, req))
	cleared := out.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "", cleared[0].Value)

	_, err := s.Parse(context.Background(), cookies[0].Value)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMiddleware(t *testing.T) {
	s := NewSessions("test-secret", time.Hour, false, nil)
	var got Identity
	handler := Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	token, _, err := s.Issue(context.Background(), 3)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, Authenticated(3), got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "broken"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.False(t, got.IsAuthenticated())
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, got.IsAuthenticated())
}

func TestRequireAuth(t *testing.T) {
	handler := RequireAuth("/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	req = req.WithContext(WithIdentity(req.Context(), Authenticated(1)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
