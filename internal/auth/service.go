package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/events"
	"github.com/UkralStul/watchedit/internal/storage"
)

// publishTimeout ограничивает отправку события после удаления аккаунта.
const publishTimeout = 2 * time.Second

var (
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Service - регистрация, вход и изменение учетной записи.
type Service struct {
	store     storage.Storage
	hasher    *Hasher
	publisher events.Publisher
	timeout   time.Duration
}

func NewService(store storage.Storage, hasher *Hasher, publisher events.Publisher, queryTimeout time.Duration) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{store: store, hasher: hasher, publisher: publisher, timeout: queryTimeout}
}

// NormalizeEmail - email хранится в нижнем регистре без пробелов по краям.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создает пользователя вместе с профилем по умолчанию.
func (s *Service) Register(ctx context.Context, email, password, repeat string) (*domain.Person, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}
	if password != repeat {
		return nil, ErrPasswordMismatch
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.store.GetPersonByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	person, profile, err := s.store.CreatePersonWithProfile(ctx, email, hash)
	if errors.Is(err, domain.ErrConflict) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}

	log.Info().Int64("person_id", person.ID).Str("display_name", profile.DisplayName).Msg("user has been registered")
	return person, nil
}

// Authenticate проверяет email и пароль. Любая неудача - ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.Person, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	person, err := s.store.GetPersonByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Compare(person.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return person, nil
}

// VerifyPassword проверяет текущий пароль пользователя.
func (s *Service) VerifyPassword(ctx context.Context, personID int64, password string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.verify(ctx, personID, password)
}

func (s *Service) verify(ctx context.Context, personID int64, password string) error {
	person, err := s.store.GetPersonByID(ctx, personID)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if !s.hasher.Compare(person.Password, password) {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) ChangeDisplayName(ctx context.Context, personID int64, password, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("%w: display name cannot be empty", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.verify(ctx, personID, password); err != nil {
		return err
	}
	return s.store.UpdateDisplayName(ctx, personID, displayName)
}

func (s *Service) ChangePhoto(ctx context.Context, personID int64, password, pfpLink string) error {
	pfpLink = strings.TrimSpace(pfpLink)
	if pfpLink == "" {
		pfpLink = domain.DefaultPfpLink
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.verify(ctx, personID, password); err != nil {
		return err
	}
	return s.store.UpdatePfpLink(ctx, personID, pfpLink)
}

func (s *Service) ChangeEmail(ctx context.Context, personID int64, password, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email cannot be empty", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.verify(ctx, personID, password); err != nil {
		return err
	}
	err := s.store.UpdateEmail(ctx, personID, email)
	if errors.Is(err, domain.ErrConflict) {
		return ErrEmailTaken
	}
	return err
}

// ChangePassword проверяет старый пароль и сохраняет хеш нового.
func (s *Service) ChangePassword(ctx context.Context, personID int64, oldPassword, newPassword, repeat string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password cannot be empty", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.verify(ctx, personID, oldPassword); err != nil {
		return err
	}
	if newPassword != repeat {
		return ErrPasswordMismatch
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, personID, hash)
}

// DeleteAccount удаляет пользователя со всеми его данными после проверки пароля.
func (s *Service) DeleteAccount(ctx context.Context, personID int64, password string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.verify(ctx, personID, password); err != nil {
		return err
	}
	if err := s.store.DeletePerson(ctx, personID); err != nil {
		return fmt.Errorf("failed to delete account %d: %w", personID, err)
	}

	e := events.Event{Type: events.AccountDeleted, PersonID: personID, At: time.Now().UTC()}
	pubCtx, cancelPub := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancelPub()
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		log.Warn().Err(err).Int64("person_id", personID).Msg("failed to publish account deletion")
	}
	log.Info().Int64("person_id", personID).Msg("account deleted")
	return nil
}
