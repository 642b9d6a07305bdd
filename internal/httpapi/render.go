package httpapi

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/movieapi"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"home", "login", "register", "watchedit", "review", "movie",
	"user", "user-settings", "search", "warning", "error",
}

// PageData - данные, которые получает каждый шаблон.
type PageData struct {
	CurrentUser   *domain.UserData
	CurrentUserID int64
	QueryUser     *domain.UserData
	QueryReview   *domain.PostData
	MovieData     *movieapi.MovieResponse
	MovieRating   domain.StarRating
	AllReviews    []*domain.PostData
	Search        []*movieapi.Movie
	SearchQuery   string
	Error         string
}

var templateFuncs = template.FuncMap{
	"stars": func(n int) string {
		if n < 0 {
			n = 0
		}
		if n > domain.MaxStars {
			n = domain.MaxStars
		}
		return strings.Repeat("★", n) + strings.Repeat("☆", domain.MaxStars-n)
	},
	"poster": func(m *movieapi.Movie) string {
		if m == nil || m.Poster == nil || m.Poster.FileLocation == "" {
			return "/icons/shining-poster.png"
		}
		return m.Poster.FileLocation
	},
	"starChoices": func() []int {
		out := make([]int, 0, domain.MaxStars-domain.MinStars+1)
		for i := domain.MaxStars; i >= domain.MinStars; i-- {
			out = append(out, i)
		}
		return out
	},
	"title": func(s string) string {
		words := strings.Fields(s)
		for i, w := range words {
			r := []rune(w)
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
		return strings.Join(words, " ")
	},
}

type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// page рендерит шаблон в буфер, чтобы ошибка не оставила полстраницы.
func (r *renderer) page(w http.ResponseWriter, status int, name string, data *PageData) {
	t, ok := r.pages[name]
	if !ok {
		log.Error().Str("page", name).Msg("unknown template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Error().Err(err).Str("page", name).Msg("failed to render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}
