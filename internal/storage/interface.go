package storage

import (
	"context"

	"github.com/UkralStul/watchedit/internal/domain"
)

// Storage определяет контракт для хранилищ.
// Отсутствие одиночной записи - domain.ErrNotFound, пустые выборки - пустой срез.
type Storage interface {
	// Пользователи
	CreatePersonWithProfile(ctx context.Context, email, passwordHash string) (*domain.Person, *domain.Profile, error)
	GetPersonByID(ctx context.Context, id int64) (*domain.Person, error)
	GetPersonByEmail(ctx context.Context, email string) (*domain.Person, error)
	GetUserProfile(ctx context.Context, personID int64) (*domain.UserProfile, error)
	GetProfile(ctx context.Context, personID int64) (*domain.Profile, error)
	UpdateDisplayName(ctx context.Context, personID int64, displayName string) error
	UpdatePfpLink(ctx context.Context, personID int64, pfpLink string) error
	UpdateEmail(ctx context.Context, personID int64, email string) error
	UpdatePassword(ctx context.Context, personID int64, passwordHash string) error
	DeletePerson(ctx context.Context, personID int64) error

	// Посты
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id int64) (*domain.Post, error)
	GetPostsByPerson(ctx context.Context, personID int64) ([]*domain.Post, error)
	GetPostsByMovie(ctx context.Context, movie string) ([]*domain.Post, error)
	GetAllPosts(ctx context.Context) ([]*domain.Post, error)
	GetStarsByMovie(ctx context.Context, movie string) ([]int, error)

	// Комментарии и лайки
	CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error)
	GetCommentByID(ctx context.Context, id int64) (*domain.Comment, error)
	GetCommentsByPostID(ctx context.Context, postID int64) ([]*domain.Comment, error)
	GetLikesByPostID(ctx context.Context, postID int64) ([]*domain.PostLike, error)
	LikePost(ctx context.Context, postID, personID int64) error
	UnlikePost(ctx context.Context, postID, personID int64) error
	LikeComment(ctx context.Context, commentID, personID int64) error
	GetCommentLikes(ctx context.Context, commentID int64) ([]*domain.CommentLike, error)

	// Избранное
	AddFavourite(ctx context.Context, personID, postID int64) error
	RemoveFavourite(ctx context.Context, personID, postID int64) error
	GetFavourites(ctx context.Context, personID int64) ([]*domain.Favourite, error)

	// Методы для Dataloader'ов
	GetPostsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Post, error)
	GetProfilesByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Profile, error)
}
