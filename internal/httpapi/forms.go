package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/movieapi"
)

// statusFor переводит ошибку в HTTP-статус и текст, который можно показать пользователю.
func statusFor(err error) (int, string) {
	var statusErr *movieapi.StatusError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrPasswordMismatch):
		return http.StatusBadRequest, "Passwords do not match"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Wrong email or password"
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "This email is already registered"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, movieapi.ErrTransport), errors.Is(err, movieapi.ErrSchema), errors.As(err, &statusErr):
		return http.StatusBadGateway, "Movie service is unavailable"
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}

// formError показывает ошибку пользователя на странице формы.
// Внутренние ошибки логируются, клиент уходит на главную.
func (s *server) formError(w http.ResponseWriter, r *http.Request, page string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("form submission failed")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	log.Info().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("form rejected")
	data, derr := s.pageData(r, pageOptions{})
	if derr != nil {
		s.pageError(w, r, page, derr)
		return
	}
	data.Error = msg
	s.render.page(w, status, page, data)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", domain.ErrInvalidInput, chi.URLParam(r, "id"))
	}
	return id, nil
}

func currentPersonID(r *http.Request) int64 {
	return auth.FromContext(r.Context()).PersonID()
}

func reviewURL(postID int64) string {
	return "/review?postid=" + strconv.FormatInt(postID, 10)
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.PostFormValue("searching"))
	if query == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	res, err := s.Movies.GetByTitle(r.Context(), query)
	if err != nil {
		s.formError(w, r, "search", err)
		return
	}

	data, err := s.pageData(r, pageOptions{})
	if err != nil {
		s.pageError(w, r, "search", err)
		return
	}
	data.SearchQuery = query
	data.Search = res.Data
	s.render.page(w, http.StatusOK, "search", data)
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	person, err := s.Auth.Register(r.Context(),
		r.PostFormValue("username"), r.PostFormValue("password"), r.PostFormValue("repeatpassword"))
	if err != nil {
		s.formError(w, r, "register", err)
		return
	}
	if err := s.Sessions.Login(r.Context(), w, person.ID); err != nil {
		s.formError(w, r, "register", err)
		return
	}
	http.Redirect(w, r, "/user", http.StatusSeeOther)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	person, err := s.Auth.Authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		s.formError(w, r, "login", err)
		return
	}
	if err := s.Sessions.Login(r.Context(), w, person.ID); err != nil {
		s.formError(w, r, "login", err)
		return
	}
	log.Info().Int64("person_id", person.ID).Msg("user logged in")
	http.Redirect(w, r, "/user", http.StatusSeeOther)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Logout(w, r); err != nil {
		log.Warn().Err(err).Msg("failed to revoke session")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) changeDisplayName(w http.ResponseWriter, r *http.Request) {
	err := s.Auth.ChangeDisplayName(r.Context(), currentPersonID(r), r.PostFormValue("password"), r.PostFormValue("displayname"))
	s.settingsResult(w, r, err)
}

func (s *server) changePhoto(w http.ResponseWriter, r *http.Request) {
	err := s.Auth.ChangePhoto(r.Context(), currentPersonID(r), r.PostFormValue("password"), r.PostFormValue("pfplink"))
	s.settingsResult(w, r, err)
}

func (s *server) changeEmail(w http.ResponseWriter, r *http.Request) {
	err := s.Auth.ChangeEmail(r.Context(), currentPersonID(r), r.PostFormValue("password"), r.PostFormValue("username"))
	s.settingsResult(w, r, err)
}

// changePassword отзывает все сессии пользователя и выдает текущему браузеру новую.
func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	personID := currentPersonID(r)
	err := s.Auth.ChangePassword(r.Context(), personID,
		r.PostFormValue("oldpassword"), r.PostFormValue("newpassword"), r.PostFormValue("repeatpassword"))
	if err != nil {
		s.formError(w, r, "user-settings", err)
		return
	}
	if err := s.Sessions.RevokeAll(r.Context(), personID); err != nil {
		log.Error().Err(err).Int64("person_id", personID).Msg("failed to revoke sessions after password change")
	}
	if err := s.Sessions.Login(r.Context(), w, personID); err != nil {
		log.Warn().Err(err).Int64("person_id", personID).Msg("failed to reissue session")
		s.Sessions.ClearCookie(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/user-settings", http.StatusSeeOther)
}

func (s *server) settingsResult(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.formError(w, r, "user-settings", err)
		return
	}
	http.Redirect(w, r, "/user-settings", http.StatusSeeOther)
}

// deleteAccountWarning проверяет пароль и показывает предупреждение перед удалением.
func (s *server) deleteAccountWarning(w http.ResponseWriter, r *http.Request) {
	if err := s.Auth.VerifyPassword(r.Context(), currentPersonID(r), r.PostFormValue("password")); err != nil {
		s.formError(w, r, "user-settings", err)
		return
	}
	s.renderPage(w, r, "warning", pageOptions{})
}

func (s *server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	personID := currentPersonID(r)
	if err := s.Auth.DeleteAccount(r.Context(), personID, r.PostFormValue("password")); err != nil {
		s.formError(w, r, "warning", err)
		return
	}
	if err := s.Sessions.RevokeAll(r.Context(), personID); err != nil {
		log.Error().Err(err).Int64("person_id", personID).Msg("failed to revoke sessions of deleted account")
	}
	if err := s.Sessions.Logout(w, r); err != nil {
		log.Warn().Err(err).Msg("failed to revoke session of deleted account")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) createPost(w http.ResponseWriter, r *http.Request) {
	stars, err := strconv.Atoi(r.PostFormValue("stars"))
	if err != nil {
		s.formError(w, r, "watchedit", fmt.Errorf("%w: stars must be a number", domain.ErrInvalidInput))
		return
	}
	post, err := s.Posts.CreatePost(r.Context(), currentPersonID(r), r.PostFormValue("movie"), stars, r.PostFormValue("review"))
	if err != nil {
		s.formError(w, r, "watchedit", err)
		return
	}
	http.Redirect(w, r, reviewURL(post.ID), http.StatusSeeOther)
}

func (s *server) likePost(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r)
	if err != nil {
		s.formError(w, r, "review", err)
		return
	}
	if _, err := s.Posts.ToggleLike(r.Context(), currentPersonID(r), postID); err != nil {
		s.formError(w, r, "review", err)
		return
	}
	http.Redirect(w, r, reviewURL(postID), http.StatusSeeOther)
}

func (s *server) favouritePost(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r)
	if err != nil {
		s.formError(w, r, "review", err)
		return
	}
	if r.PostFormValue("action") == "remove" {
		err = s.Posts.Unfavourite(r.Context(), currentPersonID(r), postID)
	} else {
		err = s.Posts.Favourite(r.Context(), currentPersonID(r), postID)
	}
	if err != nil {
		s.formError(w, r, "review", err)
		return
	}
	http.Redirect(w, r, reviewURL(postID), http.StatusSeeOther)
}

func (s *server) createComment(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r)
	if err != nil {
		s.formError(w, r, "review", err)
		return
	}
	if _, err := s.Posts.CreateComment(r.Context(), currentPersonID(r), postID, r.PostFormValue("content")); err != nil {
		s.formError(w, r, "review", err)
		return
	}
	http.Redirect(w, r, reviewURL(postID), http.StatusSeeOther)
}

func (s *server) likeComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r)
	if err != nil {
		s.formError(w, r, "review", err)
		return
	}
	if err := s.Posts.LikeComment(r.Context(), currentPersonID(r), commentID); err != nil {
		s.formError(w, r, "review", err)
		return
	}

	target := "/watchedit"
	if postID, err := strconv.ParseInt(r.PostFormValue("postid"), 10, 64); err == nil && postID > 0 {
		target = reviewURL(postID)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
