package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/storage"
)

// seedPassword - пароль обоих демо-пользователей.
const seedPassword = "password"

// seed заполняет хранилище демо-данными. Повторный запуск ничего не меняет.
func seed(ctx context.Context, s storage.Storage, hasher *auth.Hasher) error {
	_, err := s.GetPersonByEmail(ctx, "critic@watchedit.local")
	switch {
	case err == nil:
		log.Info().Msg("demo data already present")
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	hash, err := hasher.Hash(seedPassword)
	if err != nil {
		return err
	}

	critic, _, err := s.CreatePersonWithProfile(ctx, "critic@watchedit.local", hash)
	if err != nil {
		return fmt.Errorf("failed to create critic: %w", err)
	}
	fan, _, err := s.CreatePersonWithProfile(ctx, "fan@watchedit.local", hash)
	if err != nil {
		return fmt.Errorf("failed to create fan: %w", err)
	}
	if err := s.UpdateDisplayName(ctx, critic.ID, "Critic"); err != nil {
		return err
	}

	shining, err := s.CreatePost(ctx, &domain.Post{
		PersonID: critic.ID,
		Movie:    "The Shining",
		Stars:    5,
		Review:   "All work and no play. Still the scariest hotel on film.",
	})
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	alien, err := s.CreatePost(ctx, &domain.Post{
		PersonID: fan.ID,
		Movie:    "Alien",
		Stars:    4,
		Review:   "Slow first act, unforgettable second.",
	})
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	if _, err := s.CreateComment(ctx, &domain.Comment{PostID: shining.ID, PersonID: fan.ID, Content: "Redrum!"}); err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	if err := s.LikePost(ctx, shining.ID, fan.ID); err != nil {
		return err
	}
	if err := s.AddFavourite(ctx, critic.ID, alien.ID); err != nil {
		return err
	}

	log.Info().Int64("post_id", shining.ID).Int64("post_id_2", alien.ID).Msg("demo data filled")
	return nil
}
