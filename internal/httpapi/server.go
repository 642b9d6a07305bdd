package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/UkralStul/watchedit/graph"
	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/dataloader"
	"github.com/UkralStul/watchedit/internal/events"
	"github.com/UkralStul/watchedit/internal/moviedata"
	"github.com/UkralStul/watchedit/internal/postdata"
	"github.com/UkralStul/watchedit/internal/storage"
	"github.com/UkralStul/watchedit/internal/userdata"
)

// Deps - все, что нужно роутеру.
type Deps struct {
	Store       storage.Storage
	Users       *userdata.Accessor
	Posts       *postdata.Accessor
	Movies      *moviedata.Service
	Auth        *auth.Service
	Sessions    *auth.Sessions
	Hub         *events.Hub
	RateLimiter *IPRateLimiter
	StaticDir   string
	// HealthCheck проверяет хранилище, nil - всегда здорово.
	HealthCheck func(ctx context.Context) error
}

type server struct {
	Deps
	render *renderer
}

// NewRouter собирает chi-роутер со страницами, формами и GraphQL API.
func NewRouter(d Deps) (http.Handler, error) {
	rnd, err := newRenderer()
	if err != nil {
		return nil, err
	}
	s := &server{Deps: d, render: rnd}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(auth.Middleware(d.Sessions))
	r.Use(func(next http.Handler) http.Handler {
		return dataloader.Middleware(d.Store, next)
	})

	r.Get("/", s.homePage)
	r.Get("/login", s.simplePage("login"))
	r.Get("/register", s.simplePage("register"))
	r.Get("/watchedit", s.watcheditPage)
	r.Get("/review", s.reviewPage)
	r.Get("/movie", s.moviePage)

	r.Post("/search", s.search)
	r.Get("/logout", s.logout)
	r.Post("/logout", s.logout)
	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(RateLimit(d.RateLimiter))
		}
		r.Post("/login", s.login)
		r.Post("/register", s.register)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth("/login"))

		r.Get("/user", s.simplePage("user"))
		r.Get("/user-settings", s.simplePage("user-settings"))

		r.Post("/change-display-name", s.changeDisplayName)
		r.Post("/change-photo", s.changePhoto)
		r.Post("/change-email", s.changeEmail)
		r.Post("/change-password", s.changePassword)
		r.Post("/delete-account", s.deleteAccountWarning)
		r.Post("/delete-account-permanent", s.deleteAccount)

		r.Post("/posts", s.createPost)
		r.Post("/posts/{id}/like", s.likePost)
		r.Post("/posts/{id}/favourite", s.favouritePost)
		r.Post("/posts/{id}/comments", s.createComment)
		r.Post("/comments/{id}/like", s.likeComment)
	})

	r.Get("/api/health", s.apiHealth)

	// Чтение данных и поток событий - GraphQL, подписки по websocket на том же пути
	r.Handle("/query", graph.NewHandler(&graph.Resolver{
		Users:  d.Users,
		Posts:  d.Posts,
		Movies: d.Movies,
		Hub:    d.Hub,
	}))

	if d.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(d.StaticDir)))
	}

	return r, nil
}
