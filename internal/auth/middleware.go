package auth

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Middleware превращает cookie сессии в Identity в контексте запроса.
// Битая, истекшая или отозванная сессия - аноним, cookie стирается.
// Если хранилище отзывов недоступно, запрос анонимный, но cookie сохраняется.
func Middleware(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Anonymous()

			if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
				claims, err := sessions.Parse(r.Context(), cookie.Value)
				switch {
				case errors.Is(err, ErrSessionStoreUnavailable):
					// Cookie остается: после восстановления хранилища сессия снова действует
					log.Warn().Err(err).Msg("cannot verify session, treating request as anonymous")
				case err != nil:
					log.Debug().Err(err).Msg("dropping session cookie")
					sessions.ClearCookie(w)
				default:
					personID, _ := claims.PersonID()
					id = Authenticated(personID)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuth перенаправляет анонимов на redirect.
func RequireAuth(redirect string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !FromContext(r.Context()).IsAuthenticated() {
				http.Redirect(w, r, redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
