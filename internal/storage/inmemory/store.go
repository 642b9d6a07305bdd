package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/storage"
)

type likeKey struct{ target, person int64 }

type favKey struct{ person, post int64 }

var _ storage.Storage = (*Store)(nil)

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu           sync.RWMutex
	nextID       map[string]int64
	persons      map[int64]*domain.Person
	emails       map[string]int64 // map[lower(email)]personID
	profiles     map[int64]*domain.Profile
	posts        map[int64]*domain.Post
	comments     map[int64]*domain.Comment
	postLikes    map[likeKey]struct{}
	commentLikes map[likeKey]struct{}
	favourites   map[favKey]struct{}
}

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		nextID:       make(map[string]int64),
		persons:      make(map[int64]*domain.Person),
		emails:       make(map[string]int64),
		profiles:     make(map[int64]*domain.Profile),
		posts:        make(map[int64]*domain.Post),
		comments:     make(map[int64]*domain.Comment),
		postLikes:    make(map[likeKey]struct{}),
		commentLikes: make(map[likeKey]struct{}),
		favourites:   make(map[favKey]struct{}),
	}
}

func (s *Store) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// === Person Methods ===

func (s *Store) CreatePersonWithProfile(ctx context.Context, email, passwordHash string) (*domain.Person, *domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := s.emails[key]; ok {
		return nil, nil, fmt.Errorf("email %s: %w", email, domain.ErrConflict)
	}

	person := &domain.Person{ID: s.id("person"), Email: email, Password: passwordHash}
	profile := &domain.Profile{
		ID:          person.ID,
		DisplayName: domain.DefaultDisplayName(person.ID),
		PfpLink:     domain.DefaultPfpLink,
	}
	s.persons[person.ID] = person
	s.emails[key] = person.ID
	s.profiles[profile.ID] = profile

	p, pr := *person, *profile
	return &p, &pr, nil
}

func (s *Store) GetPersonByID(ctx context.Context, id int64) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	person, ok := s.persons[id]
	if !ok {
		return nil, fmt.Errorf("person %d: %w", id, domain.ErrNotFound)
	}
	p := *person
	return &p, nil
}

func (s *Store) GetPersonByEmail(ctx context.Context, email string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("person %s: %w", email, domain.ErrNotFound)
	}
	p := *s.persons[id]
	return &p, nil
}

func (s *Store) GetUserProfile(ctx context.Context, personID int64) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	person, ok := s.persons[personID]
	if !ok {
		return nil, fmt.Errorf("person %d: %w", personID, domain.ErrNotFound)
	}
	profile, ok := s.profiles[personID]
	if !ok {
		return nil, fmt.Errorf("profile %d: %w", personID, domain.ErrNotFound)
	}
	return &domain.UserProfile{
		Email:       person.Email,
		PfpLink:     profile.PfpLink,
		DisplayName: profile.DisplayName,
	}, nil
}

func (s *Store) GetProfile(ctx context.Context, personID int64) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[personID]
	if !ok {
		return nil, fmt.Errorf("profile %d: %w", personID, domain.ErrNotFound)
	}
	p := *profile
	return &p, nil
}

func (s *Store) UpdateDisplayName(ctx context.Context, personID int64, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[personID]
	if !ok {
		return fmt.Errorf("profile %d: %w", personID, domain.ErrNotFound)
	}
	profile.DisplayName = displayName
	return nil
}

func (s *Store) UpdatePfpLink(ctx context.Context, personID int64, pfpLink string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[personID]
	if !ok {
		return fmt.Errorf("profile %d: %w", personID, domain.ErrNotFound)
	}
	profile.PfpLink = pfpLink
	return nil
}

func (s *Store) UpdateEmail(ctx context.Context, personID int64, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	person, ok := s.persons[personID]
	if !ok {
		return fmt.Errorf("person %d: %w", personID, domain.ErrNotFound)
	}
	key := strings.ToLower(email)
	if owner, taken := s.emails[key]; taken && owner != personID {
		return fmt.Errorf("email %s: %w", email, domain.ErrConflict)
	}
	delete(s.emails, strings.ToLower(person.Email))
	person.Email = email
	s.emails[key] = personID
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, personID int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	person, ok := s.persons[personID]
	if !ok {
		return fmt.Errorf("person %d: %w", personID, domain.ErrNotFound)
	}
	person.Password = passwordHash
	return nil
}

// DeletePerson удаляет пользователя и все зависящие от него записи под одной блокировкой,
// включая чужие лайки, комментарии и избранное, ссылающиеся на его посты.
func (s *Store) DeletePerson(ctx context.Context, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	person, ok := s.persons[personID]
	if !ok {
		return fmt.Errorf("person %d: %w", personID, domain.ErrNotFound)
	}

	ownPosts := make(map[int64]struct{})
	for id, p := range s.posts {
		if p.PersonID == personID {
			ownPosts[id] = struct{}{}
		}
	}
	doomedComments := make(map[int64]struct{})
	for id, c := range s.comments {
		_, onOwnPost := ownPosts[c.PostID]
		if c.PersonID == personID || onOwnPost {
			doomedComments[id] = struct{}{}
		}
	}

	for k := range s.commentLikes {
		if _, ok := doomedComments[k.target]; ok || k.person == personID {
			delete(s.commentLikes, k)
		}
	}
	for k := range s.postLikes {
		if _, ok := ownPosts[k.target]; ok || k.person == personID {
			delete(s.postLikes, k)
		}
	}
	for k := range s.favourites {
		if _, ok := ownPosts[k.post]; ok || k.person == personID {
			delete(s.favourites, k)
		}
	}
	for id := range doomedComments {
		delete(s.comments, id)
	}
	for id := range ownPosts {
		delete(s.posts, id)
	}
	delete(s.profiles, personID)
	delete(s.emails, strings.ToLower(person.Email))
	delete(s.persons, personID)
	return nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	if err := domain.ValidatePost(post); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.persons[post.PersonID]; !ok {
		return nil, fmt.Errorf("person %d: %w", post.PersonID, domain.ErrNotFound)
	}
	post.ID = s.id("post")
	p := *post
	s.posts[post.ID] = &p
	return post, nil
}

func (s *Store) GetPostByID(ctx context.Context, id int64) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	p := *post
	return &p, nil
}

func (s *Store) GetPostsByPerson(ctx context.Context, personID int64) ([]*domain.Post, error) {
	return s.filterPosts(func(p *domain.Post) bool { return p.PersonID == personID }), nil
}

func (s *Store) GetPostsByMovie(ctx context.Context, movie string) ([]*domain.Post, error) {
	return s.filterPosts(func(p *domain.Post) bool { return p.Movie == movie }), nil
}

func (s *Store) GetAllPosts(ctx context.Context) ([]*domain.Post, error) {
	return s.filterPosts(func(*domain.Post) bool { return true }), nil
}

func (s *Store) GetStarsByMovie(ctx context.Context, movie string) ([]int, error) {
	posts := s.filterPosts(func(p *domain.Post) bool { return p.Movie == movie })
	stars := make([]int, 0, len(posts))
	for _, p := range posts {
		stars = append(stars, p.Stars)
	}
	return stars, nil
}

// filterPosts - вспомогательная функция, возвращает копии постов в порядке id.
func (s *Store) filterPosts(keep func(*domain.Post) bool) []*domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Post, 0)
	for _, p := range s.posts {
		if keep(p) {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, comment *domain.Comment) (*domain.Comment, error) {
	if err := domain.ValidateComment(comment); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[comment.PostID]; !ok {
		return nil, fmt.Errorf("post %d: %w", comment.PostID, domain.ErrNotFound)
	}
	comment.ID = s.id("comment")
	c := *comment
	s.comments[comment.ID] = &c
	return comment, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id int64) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, ok := s.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %d: %w", id, domain.ErrNotFound)
	}
	c := *comment
	return &c, nil
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID int64) ([]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Comment, 0)
	for _, c := range s.comments {
		if c.PostID == postID {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) GetLikesByPostID(ctx context.Context, postID int64) ([]*domain.PostLike, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PostLike, 0)
	for k := range s.postLikes {
		if k.target == postID {
			result = append(result, &domain.PostLike{PostID: k.target, PersonID: k.person})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PersonID < result[j].PersonID })
	return result, nil
}

func (s *Store) LikePost(ctx context.Context, postID, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return fmt.Errorf("post %d: %w", postID, domain.ErrNotFound)
	}
	// Повторный лайк ничего не меняет
	s.postLikes[likeKey{postID, personID}] = struct{}{}
	return nil
}

func (s *Store) UnlikePost(ctx context.Context, postID, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.postLikes, likeKey{postID, personID})
	return nil
}

func (s *Store) LikeComment(ctx context.Context, commentID, personID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[commentID]; !ok {
		return fmt.Errorf("comment %d: %w", commentID, domain.ErrNotFound)
	}
	s.commentLikes[likeKey{commentID, personID}] = struct{}{}
	return nil
}

func (s *Store) GetCommentLikes(ctx context.Context, commentID int64) ([]*domain.CommentLike, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CommentLike, 0)
	for k := range s.commentLikes {
		if k.target == commentID {
			result = append(result, &domain.CommentLike{CommentID: k.target, PersonID: k.person})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PersonID < result[j].PersonID })
	return result, nil
}

// === Favourite Methods ===

func (s *Store) AddFavourite(ctx context.Context, personID, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return fmt.Errorf("post %d: %w", postID, domain.ErrNotFound)
	}
	s.favourites[favKey{personID, postID}] = struct{}{}
	return nil
}

func (s *Store) RemoveFavourite(ctx context.Context, personID, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.favourites, favKey{personID, postID})
	return nil
}

func (s *Store) GetFavourites(ctx context.Context, personID int64) ([]*domain.Favourite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Favourite, 0)
	for k := range s.favourites {
		if k.person == personID {
			result = append(result, &domain.Favourite{PersonID: k.person, PostID: k.post})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PostID < result[j].PostID })
	return result, nil
}

// DeletePost удаляет пост без каскада. Используется в тестах, чтобы получить
// "висячее" избранное, как после удаления строки напрямую в базе.
func (s *Store) DeletePost(ctx context.Context, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
}

// === Dataloader Methods ===

func (s *Store) GetPostsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]*domain.Post, len(ids))
	for _, id := range ids {
		if p, ok := s.posts[id]; ok {
			cp := *p
			result[id] = &cp
		}
	}
	return result, nil
}

func (s *Store) GetProfilesByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]*domain.Profile, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			cp := *p
			result[id] = &cp
		}
	}
	return result, nil
}
