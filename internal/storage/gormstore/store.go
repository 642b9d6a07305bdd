package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/storage"
)

var _ storage.Storage = (*Store)(nil)

// Store реализует интерфейс Storage поверх GORM (PostgreSQL, SQLite, MySQL).
type Store struct {
	db *gorm.DB
}

// New создает хранилище поверх уже открытого соединения и мигрирует схему.
func New(db *gorm.DB) (*Store, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate создает таблицы приложения, если их еще нет.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Person{},
		&domain.Profile{},
		&domain.Post{},
		&domain.Comment{},
		&domain.PostLike{},
		&domain.CommentLike{},
		&domain.Favourite{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// translate приводит ошибки GORM к доменным.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, domain.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// === Person Methods ===

// CreatePersonWithProfile создает person и person_data в одной транзакции:
// профиль никогда не остается без учетной записи и наоборот.
func (s *Store) CreatePersonWithProfile(ctx context.Context, email, passwordHash string) (*domain.Person, *domain.Profile, error) {
	person := &domain.Person{Email: email, Password: passwordHash}
	profile := &domain.Profile{PfpLink: domain.DefaultPfpLink}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&domain.Person{}).Where("email = ?", email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("email %s: %w", email, domain.ErrConflict)
		}

		if err := tx.Create(person).Error; err != nil {
			return err
		}

		// Имя по умолчанию зависит от id, поэтому профиль создается вторым
		profile.ID = person.ID
		profile.DisplayName = domain.DefaultDisplayName(person.ID)
		return tx.Create(profile).Error
	})
	if err != nil {
		return nil, nil, translate(err, "create person")
	}
	return person, profile, nil
}

func (s *Store) GetPersonByID(ctx context.Context, id int64) (*domain.Person, error) {
	var person domain.Person
	if err := s.db.WithContext(ctx).First(&person, "id = ?", id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("person %d", id))
	}
	return &person, nil
}

func (s *Store) GetPersonByEmail(ctx context.Context, email string) (*domain.Person, error) {
	var person domain.Person
	if err := s.db.WithContext(ctx).First(&person, "email = ?", email).Error; err != nil {
		return nil, translate(err, "person by email")
	}
	return &person, nil
}

func (s *Store) GetUserProfile(ctx context.Context, personID int64) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	err := s.db.WithContext(ctx).
		Table("person pe").
		Select("pe.email, da.pfplink, da.displayname").
		Joins("JOIN person_data da ON pe.id = da.id").
		Where("pe.id = ?", personID).
		Take(&profile).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("user profile %d", personID))
	}
	return &profile, nil
}

func (s *Store) GetProfile(ctx context.Context, personID int64) (*domain.Profile, error) {
	var profile domain.Profile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", personID).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("profile %d", personID))
	}
	return &profile, nil
}

func (s *Store) UpdateDisplayName(ctx context.Context, personID int64, displayName string) error {
	return s.updateColumn(ctx, &domain.Profile{}, personID, "displayname", displayName)
}

func (s *Store) UpdatePfpLink(ctx context.Context, personID int64, pfpLink string) error {
	return s.updateColumn(ctx, &domain.Profile{}, personID, "pfplink", pfpLink)
}

func (s *Store) UpdateEmail(ctx context.Context, personID int64, email string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		err := tx.Model(&domain.Person{}).Where("email = ? AND id <> ?", email, personID).Count(&taken).Error
		if err != nil {
			return translate(err, "update email")
		}
		if taken > 0 {
			return fmt.Errorf("email %s: %w", email, domain.ErrConflict)
		}
		return s.updateColumnTx(tx, &domain.Person{}, personID, "email", email)
	})
}

func (s *Store) UpdatePassword(ctx context.Context, personID int64, passwordHash string) error {
	return s.updateColumn(ctx, &domain.Person{}, personID, "password", passwordHash)
}

func (s *Store) updateColumn(ctx context.Context, model any, id int64, column string, value any) error {
	return s.updateColumnTx(s.db.WithContext(ctx), model, id, column, value)
}

func (s *Store) updateColumnTx(tx *gorm.DB, model any, id int64, column string, value any) error {
	res := tx.Model(model).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return translate(res.Error, "update "+column)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s of %d: %w", column, id, domain.ErrNotFound)
	}
	return nil
}

// DeletePerson удаляет учетную запись и все зависимые строки одной транзакцией.
// Кроме собственных строк пользователя удаляются чужие лайки, комментарии и избранное,
// ссылающиеся на его посты, чтобы не оставлять сирот.
func (s *Store) DeletePerson(ctx context.Context, personID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&domain.Person{}).Where("id = ?", personID).Count(&exists).Error; err != nil {
			return translate(err, "delete person")
		}
		if exists == 0 {
			return fmt.Errorf("person %d: %w", personID, domain.ErrNotFound)
		}

		ownPosts := tx.Model(&domain.Post{}).Select("id").Where("person_id = ?", personID)
		doomedComments := tx.Model(&domain.Comment{}).Select("id").
			Where("person_id = ? OR post_id IN (?)", personID, ownPosts)

		steps := []struct {
			name  string
			model any
			where []any
		}{
			{"comment_like", &domain.CommentLike{}, []any{"person_id = ? OR comment_id IN (?)", personID, doomedComments}},
			{"post_like", &domain.PostLike{}, []any{"person_id = ? OR post_id IN (?)", personID, ownPosts}},
			{"favourites", &domain.Favourite{}, []any{"person_id = ? OR post_id IN (?)", personID, ownPosts}},
			{"comment", &domain.Comment{}, []any{"person_id = ? OR post_id IN (?)", personID, ownPosts}},
			{"post", &domain.Post{}, []any{"person_id = ?", personID}},
			{"person_data", &domain.Profile{}, []any{"id = ?", personID}},
			{"person", &domain.Person{}, []any{"id = ?", personID}},
		}
		for _, step := range steps {
			if err := tx.Where(step.where[0], step.where[1:]...).Delete(step.model).Error; err != nil {
				return fmt.Errorf("delete from %s: %w", step.name, err)
			}
		}
		return nil
	})
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := domain.ValidatePost(post); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner int64
		if err := tx.Model(&domain.Person{}).Where("id = ?", post.PersonID).Count(&owner).Error; err != nil {
			return err
		}
		if owner == 0 {
			return fmt.Errorf("person %d: %w", post.PersonID, domain.ErrNotFound)
		}
		return tx.Create(post).Error
	})
	if err != nil {
		return nil, translate(err, "create post")
	}
	return post, nil
}

func (s *Store) GetPostByID(ctx context.Context, id int64) (*domain.Post, error) {
	var post domain.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("post %d", id))
	}
	return &post, nil
}

func (s *Store) GetPostsByPerson(ctx context.Context, personID int64) ([]*domain.Post, error) {
	posts := make([]*domain.Post, 0)
	err := s.db.WithContext(ctx).Where("person_id = ?", personID).Order("id").Find(&posts).Error
	return posts, translate(err, "posts by person")
}

func (s *Store) GetPostsByMovie(ctx context.Context, movie string) ([]*domain.Post, error) {
	posts := make([]*domain.Post, 0)
	err := s.db.WithContext(ctx).Where("movie = ?", movie).Order("id").Find(&posts).Error
	return posts, translate(err, "posts by movie")
}

func (s *Store) GetAllPosts(ctx context.Context) ([]*domain.Post, error) {
	posts := make([]*domain.Post, 0)
	err := s.db.WithContext(ctx).Order("id").Find(&posts).Error
	return posts, translate(err, "all posts")
}

func (s *Store) GetStarsByMovie(ctx context.Context, movie string) ([]int, error) {
	stars := make([]int, 0)
	err := s.db.WithContext(ctx).Model(&domain.Post{}).Where("movie = ?", movie).Pluck("stars", &stars).Error
	return stars, translate(err, "stars by movie")
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	if err := domain.ValidateComment(comment); err != nil {
		return nil, err
	}

	// Проверяем существование поста и создаем комментарий в одной транзакции
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post int64
		if err := tx.Model(&domain.Post{}).Where("id = ?", comment.PostID).Count(&post).Error; err != nil {
			return err
		}
		if post == 0 {
			return fmt.Errorf("post %d: %w", comment.PostID, domain.ErrNotFound)
		}
		return tx.Create(comment).Error
	})
	if err != nil {
		return nil, translate(err, "create comment")
	}
	return comment, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id int64) (*domain.Comment, error) {
	var comment domain.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("comment %d", id))
	}
	return &comment, nil
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID int64) ([]*domain.Comment, error) {
	comments := make([]*domain.Comment, 0)
	err := s.db.WithContext(ctx).Where("post_id = ?", postID).Order("id").Find(&comments).Error
	return comments, translate(err, "comments by post")
}

func (s *Store) GetLikesByPostID(ctx context.Context, postID int64) ([]*domain.PostLike, error) {
	likes := make([]*domain.PostLike, 0)
	err := s.db.WithContext(ctx).Where("post_id = ?", postID).Order("person_id").Find(&likes).Error
	return likes, translate(err, "likes by post")
}

func (s *Store) LikePost(ctx context.Context, postID, personID int64) error {
	return s.insertJoinRow(ctx, &domain.Post{}, postID, &domain.PostLike{PostID: postID, PersonID: personID})
}

func (s *Store) UnlikePost(ctx context.Context, postID, personID int64) error {
	err := s.db.WithContext(ctx).
		Where("post_id = ? AND person_id = ?", postID, personID).
		Delete(&domain.PostLike{}).Error
	return translate(err, "unlike post")
}

func (s *Store) LikeComment(ctx context.Context, commentID, personID int64) error {
	return s.insertJoinRow(ctx, &domain.Comment{}, commentID, &domain.CommentLike{CommentID: commentID, PersonID: personID})
}

func (s *Store) GetCommentLikes(ctx context.Context, commentID int64) ([]*domain.CommentLike, error) {
	likes := make([]*domain.CommentLike, 0)
	err := s.db.WithContext(ctx).Where("comment_id = ?", commentID).Order("person_id").Find(&likes).Error
	return likes, translate(err, "likes by comment")
}

// === Favourite Methods ===

func (s *Store) AddFavourite(ctx context.Context, personID, postID int64) error {
	return s.insertJoinRow(ctx, &domain.Post{}, postID, &domain.Favourite{PersonID: personID, PostID: postID})
}

func (s *Store) RemoveFavourite(ctx context.Context, personID, postID int64) error {
	err := s.db.WithContext(ctx).
		Where("person_id = ? AND post_id = ?", personID, postID).
		Delete(&domain.Favourite{}).Error
	return translate(err, "remove favourite")
}

func (s *Store) GetFavourites(ctx context.Context, personID int64) ([]*domain.Favourite, error) {
	favs := make([]*domain.Favourite, 0)
	err := s.db.WithContext(ctx).Where("person_id = ?", personID).Order("post_id").Find(&favs).Error
	return favs, translate(err, "favourites")
}

// insertJoinRow вставляет строку связи, если цель существует. Повторная вставка игнорируется.
func (s *Store) insertJoinRow(ctx context.Context, target any, targetID int64, row any) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(target).Where("id = ?", targetID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("target %d: %w", targetID, domain.ErrNotFound)
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	})
	return translate(err, "insert join row")
}

// === Dataloader Methods ===

func (s *Store) GetPostsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Post, error) {
	var posts []*domain.Post
	// Загружаем все посты одним запросом
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&posts).Error; err != nil {
		return nil, translate(err, "posts by ids")
	}

	result := make(map[int64]*domain.Post, len(posts))
	for _, p := range posts {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) GetProfilesByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Profile, error) {
	var profiles []*domain.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, translate(err, "profiles by ids")
	}

	result := make(map[int64]*domain.Profile, len(profiles))
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}
