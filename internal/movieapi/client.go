// Package movieapi - клиент внешнего API постеров и метаданных фильмов.
package movieapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	DefaultBaseURL = "https://api.movieposterdb.com/v1"
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrTransport - сеть, таймаут или отмена контекста.
	ErrTransport = errors.New("movie api: transport error")
	// ErrSchema - тело ответа не разбирается или в нем нет обязательных полей.
	ErrSchema = errors.New("movie api: unexpected response schema")
)

// StatusError - API ответило кодом вне 2xx.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("movie api: %s returned status %d", e.Path, e.Code)
}

// Poster - файл постера.
type Poster struct {
	FileLocation string `json:"file_location"`
}

// Movie - фильм или сериал в ответе API.
type Movie struct {
	ID            int64   `json:"id"`
	OriginalTitle string  `json:"original_title"`
	Title         string  `json:"title,omitempty"`
	Year          int     `json:"year,omitempty"`
	Summary       string  `json:"summary"`
	Poster        *Poster `json:"poster,omitempty"`
}

// MovieResponse - ответ GET /movie.
type MovieResponse struct {
	Data *Movie `json:"data"`
}

// SearchResponse - ответ поиска и автодополнения.
type SearchResponse struct {
	Data []*Movie `json:"data"`
}

// Options - настройки клиента.
type Options struct {
	BaseURL string
	Key     string
	Timeout time.Duration
	// Dial подменяет сетевое соединение, nil - обычный TCP.
	Dial fasthttp.DialFunc
}

// Client ходит во внешнее API через fasthttp.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	key     string
	timeout time.Duration
}

// New создает клиента. Пустые поля Options заменяются значениями по умолчанию.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		http: &fasthttp.Client{
			Name:                "watchedit",
			Dial:                opts.Dial,
			MaxIdleConnDuration: time.Minute,
		},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		key:     opts.Key,
		timeout: opts.Timeout,
	}
}

// Movie возвращает фильм по внешнему id.
func (c *Client) Movie(ctx context.Context, externalID string) (*MovieResponse, error) {
	var resp MovieResponse
	if err := c.get(ctx, "/movie", "id", externalID, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.OriginalTitle == "" {
		return nil, fmt.Errorf("%w: missing data.original_title", ErrSchema)
	}
	return &resp, nil
}

// Search ищет фильмы и сериалы по названию.
func (c *Client) Search(ctx context.Context, title string) (*SearchResponse, error) {
	return c.list(ctx, "/search/movies", title)
}

// Autocomplete возвращает подсказки по началу названия (API отдает до пяти).
func (c *Client) Autocomplete(ctx context.Context, title string) (*SearchResponse, error) {
	return c.list(ctx, "/autocomplete/movies", title)
}

func (c *Client) list(ctx context.Context, path, title string) (*SearchResponse, error) {
	var raw struct {
		Data *[]*Movie `json:"data"`
	}
	if err := c.get(ctx, path, "title", title, &raw); err != nil {
		return nil, err
	}
	if raw.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrSchema)
	}
	return &SearchResponse{Data: *raw.Data}, nil
}

func (c *Client) get(ctx context.Context, path, param, value string, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.URI().QueryArgs().Set(param, value)
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.key)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// fasthttp не знает о контексте: запрос идет в горутине, отмена ctx возвращает управление сразу
	done := make(chan error, 1)
	go func() { done <- c.http.DoDeadline(req, resp, deadline) }()

	select {
	case <-ctx.Done():
		// req и resp освобождаются только после возврата DoDeadline
		go func() {
			<-done
			release()
		}()
		return fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
	case err := <-done:
		defer release()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return &StatusError{Code: code, Path: path}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}
