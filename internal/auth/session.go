package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "watchedit_session"
	DefaultTTL = 24 * time.Hour
)

var (
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionStoreUnavailable - хранилище отзывов не ответило, токен проверить нельзя.
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
)

// Claims - содержимое токена сессии. Subject - id пользователя,
// Generation - поколение сессий пользователя на момент выдачи.
type Claims struct {
	jwt.RegisteredClaims
	Generation int64 `json:"gen,omitempty"`
}

// PersonID разбирает Subject.
func (c *Claims) PersonID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidSession, c.Subject)
	}
	return id, nil
}

// Sessions выдает и проверяет JWT-сессии в cookie.
type Sessions struct {
	secret  []byte
	ttl     time.Duration
	secure  bool
	revoked RevocationStore
	now     func() time.Time
}

func NewSessions(secret string, ttl time.Duration, secureCookie bool, revoked RevocationStore) *Sessions {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	return &Sessions{
		secret:  []byte(secret),
		ttl:     ttl,
		secure:  secureCookie,
		revoked: revoked,
		now:     time.Now,
	}
}

// Issue подписывает новый токен для пользователя.
func (s *Sessions) Issue(ctx context.Context, personID int64) (string, *Claims, error) {
	gen, err := s.revoked.Generation(ctx, personID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrSessionStoreUnavailable, err)
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(personID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Generation: gen,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, claims, nil
}

// Parse проверяет подпись, срок и отзыв токена.
func (s *Sessions) Parse(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	personID, err := claims.PersonID()
	if err != nil {
		return nil, err
	}

	// Хранилище отзывов недоступно: сессию в этом запросе не принимаем
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrInvalidSession, ErrSessionStoreUnavailable, err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidSession)
	}

	gen, err := s.revoked.Generation(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrInvalidSession, ErrSessionStoreUnavailable, err)
	}
	if claims.Generation != gen {
		return nil, fmt.Errorf("%w: sessions of person %d were revoked", ErrInvalidSession, personID)
	}
	return claims, nil
}

// RevokeAll отзывает все выданные пользователю сессии.
func (s *Sessions) RevokeAll(ctx context.Context, personID int64) error {
	if _, err := s.revoked.NextGeneration(ctx, personID); err != nil {
		return err
	}
	return nil
}

// Revoke отзывает сессию до конца ее срока.
func (s *Sessions) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Sub(s.now()))
}

// Login выдает токен и кладет его в cookie.
func (s *Sessions) Login(ctx context.Context, w http.ResponseWriter, personID int64) error {
	token, claims, err := s.Issue(ctx, personID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout отзывает сессию из запроса и стирает cookie.
func (s *Sessions) Logout(w http.ResponseWriter, r *http.Request) error {
	defer s.ClearCookie(w)

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	claims, err := s.Parse(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return s.Revoke(r.Context(), claims)
}

func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
