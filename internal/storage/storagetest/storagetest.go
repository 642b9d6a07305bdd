// Package storagetest содержит общий набор проверок для реализаций storage.Storage.
package storagetest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/storage"
)

// Factory возвращает пустое хранилище для одного теста.
type Factory func(t *testing.T) storage.Storage

// Run прогоняет все проверки контракта Storage на хранилищах из factory.
func Run(t *testing.T, factory Factory) {
	tests := map[string]func(t *testing.T, s storage.Storage){
		"CreatePersonWithProfile":     testCreatePersonWithProfile,
		"DuplicateEmail":              testDuplicateEmail,
		"UserProfileJoin":             testUserProfileJoin,
		"UpdateProfile":               testUpdateProfile,
		"UpdateEmailConflict":         testUpdateEmailConflict,
		"CreatePostValidation":        testCreatePostValidation,
		"PostsByMovieAndPerson":       testPostsByMovieAndPerson,
		"StarsByMovie":                testStarsByMovie,
		"Comments":                    testComments,
		"LikesAreIdempotent":          testLikesAreIdempotent,
		"Favourites":                  testFavourites,
		"DeletePersonCascades":        testDeletePersonCascades,
		"DeleteMissingPerson":         testDeleteMissingPerson,
		"BatchLoadersSkipMissingRows": testBatchLoaders,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

// NewPerson регистрирует пользователя с фиктивным хешем пароля.
func NewPerson(t *testing.T, s storage.Storage, email string) *domain.Person {
	t.Helper()
	person, _, err := s.CreatePersonWithProfile(context.Background(), email, "hash-"+email)
	require.NoError(t, err)
	return person
}

// NewPost создает пост от имени personID.
func NewPost(t *testing.T, s storage.Storage, personID int64, movie string, stars int) *domain.Post {
	t.Helper()
	post, err := s.CreatePost(context.Background(), &domain.Post{
		PersonID: personID,
		Movie:    movie,
		Stars:    stars,
		Review:   "review of " + movie,
	})
	require.NoError(t, err)
	return post
}

func testCreatePersonWithProfile(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	person, profile, err := s.CreatePersonWithProfile(ctx, "a@example.com", "hash")
	require.NoError(t, err)
	assert.Positive(t, person.ID)
	assert.Equal(t, person.ID, profile.ID)
	assert.Equal(t, domain.DefaultDisplayName(person.ID), profile.DisplayName)
	assert.Equal(t, domain.DefaultPfpLink, profile.PfpLink)

	byEmail, err := s.GetPersonByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, person.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.Password)

	_, err = s.GetPersonByID(ctx, person.ID+100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testDuplicateEmail(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	NewPerson(t, s, "dup@example.com")

	_, _, err := s.CreatePersonWithProfile(ctx, "dup@example.com", "other")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func testUserProfileJoin(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	person := NewPerson(t, s, "join@example.com")

	profile, err := s.GetUserProfile(ctx, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "join@example.com", profile.Email)
	assert.Equal(t, domain.DefaultPfpLink, profile.PfpLink)
	assert.Equal(t, domain.DefaultDisplayName(person.ID), profile.DisplayName)

	_, err = s.GetUserProfile(ctx, person.ID+1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testUpdateProfile(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	person := NewPerson(t, s, "upd@example.com")

	require.NoError(t, s.UpdateDisplayName(ctx, person.ID, "cinephile"))
	require.NoError(t, s.UpdatePfpLink(ctx, person.ID, "/icons/custom.png"))
	require.NoError(t, s.UpdatePassword(ctx, person.ID, "new-hash"))
	require.NoError(t, s.UpdateEmail(ctx, person.ID, "new@example.com"))

	profile, err := s.GetProfile(ctx, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "cinephile", profile.DisplayName)
	assert.Equal(t, "/icons/custom.png", profile.PfpLink)

	updated, err := s.GetPersonByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", updated.Password)

	_, err = s.GetPersonByEmail(ctx, "upd@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.UpdateDisplayName(ctx, person.ID+50, "ghost"), domain.ErrNotFound)
}

func testUpdateEmailConflict(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	NewPerson(t, s, "first@example.com")
	second := NewPerson(t, s, "second@example.com")

	err := s.UpdateEmail(ctx, second.ID, "first@example.com")
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Смена на собственный адрес не конфликт
	assert.NoError(t, s.UpdateEmail(ctx, second.ID, "second@example.com"))
}

func testCreatePostValidation(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	person := NewPerson(t, s, "poster@example.com")

	post := NewPost(t, s, person.ID, "  The Thing ", 4)
	assert.Positive(t, post.ID)
	assert.Equal(t, "the thing", post.Movie)

	_, err := s.CreatePost(ctx, &domain.Post{PersonID: person.ID, Movie: "alien", Stars: 6})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.CreatePost(ctx, &domain.Post{PersonID: person.ID, Movie: "   ", Stars: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.CreatePost(ctx, &domain.Post{PersonID: person.ID + 99, Movie: "alien", Stars: 3})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := s.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Review, got.Review)
}

func testPostsByMovieAndPerson(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	alice := NewPerson(t, s, "alice@example.com")
	bob := NewPerson(t, s, "bob@example.com")

	p1 := NewPost(t, s, alice.ID, "alien", 5)
	p2 := NewPost(t, s, bob.ID, "alien", 3)
	p3 := NewPost(t, s, alice.ID, "heat", 4)

	byMovie, err := s.GetPostsByMovie(ctx, "alien")
	require.NoError(t, err)
	require.Len(t, byMovie, 2)
	assert.Equal(t, p1.ID, byMovie[0].ID)
	assert.Equal(t, p2.ID, byMovie[1].ID)

	byPerson, err := s.GetPostsByPerson(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, byPerson, 2)
	assert.Equal(t, p3.ID, byPerson[1].ID)

	all, err := s.GetAllPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.GetPostsByMovie(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testStarsByMovie(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	person := NewPerson(t, s, "stars@example.com")
	NewPost(t, s, person.ID, "alien", 5)
	NewPost(t, s, person.ID, "alien", 2)
	NewPost(t, s, person.ID, "heat", 1)

	stars, err := s.GetStarsByMovie(ctx, "alien")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{5, 2}, stars)

	stars, err = s.GetStarsByMovie(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, stars)
}

func testComments(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	person := NewPerson(t, s, "commenter@example.com")
	post := NewPost(t, s, person.ID, "alien", 5)

	comment, err := s.CreateComment(ctx, &domain.Comment{PostID: post.ID, PersonID: person.ID, Content: "First comment!"})
	require.NoError(t, err)
	assert.Positive(t, comment.ID)

	comments, err := s.GetCommentsByPostID(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "First comment!", comments[0].Content)

	_, err = s.CreateComment(ctx, &domain.Comment{PostID: post.ID, PersonID: person.ID, Content: strings.Repeat("a", domain.MaxCommentLength+1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "comment content is too long")

	_, err = s.CreateComment(ctx, &domain.Comment{PostID: post.ID + 10, PersonID: person.ID, Content: "orphan"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := s.GetCommentByID(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.PostID)
}

func testLikesAreIdempotent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := NewPerson(t, s, "author@example.com")
	fan := NewPerson(t, s, "fan@example.com")
	post := NewPost(t, s, author.ID, "alien", 5)

	require.NoError(t, s.LikePost(ctx, post.ID, fan.ID))
	require.NoError(t, s.LikePost(ctx, post.ID, fan.ID))
	require.NoError(t, s.LikePost(ctx, post.ID, author.ID))

	likes, err := s.GetLikesByPostID(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, likes, 2)

	require.NoError(t, s.UnlikePost(ctx, post.ID, fan.ID))
	likes, err = s.GetLikesByPostID(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, author.ID, likes[0].PersonID)

	assert.ErrorIs(t, s.LikePost(ctx, post.ID+5, fan.ID), domain.ErrNotFound)

	comment, err := s.CreateComment(ctx, &domain.Comment{PostID: post.ID, PersonID: author.ID, Content: "thanks"})
	require.NoError(t, err)
	require.NoError(t, s.LikeComment(ctx, comment.ID, fan.ID))
	require.NoError(t, s.LikeComment(ctx, comment.ID, fan.ID))
	require.NoError(t, s.LikeComment(ctx, comment.ID, author.ID))
	assert.ErrorIs(t, s.LikeComment(ctx, comment.ID+5, fan.ID), domain.ErrNotFound)

	commentLikes, err := s.GetCommentLikes(ctx, comment.ID)
	require.NoError(t, err)
	require.Len(t, commentLikes, 2)
	assert.Equal(t, author.ID, commentLikes[0].PersonID)
	assert.Equal(t, fan.ID, commentLikes[1].PersonID)

	commentLikes, err = s.GetCommentLikes(ctx, comment.ID+5)
	require.NoError(t, err)
	assert.Empty(t, commentLikes)
}

func testFavourites(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	author := NewPerson(t, s, "fav-author@example.com")
	reader := NewPerson(t, s, "reader@example.com")
	first := NewPost(t, s, author.ID, "alien", 5)
	second := NewPost(t, s, author.ID, "heat", 4)

	require.NoError(t, s.AddFavourite(ctx, reader.ID, second.ID))
	require.NoError(t, s.AddFavourite(ctx, reader.ID, first.ID))
	require.NoError(t, s.AddFavourite(ctx, reader.ID, first.ID))

	favs, err := s.GetFavourites(ctx, reader.ID)
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, first.ID, favs[0].PostID)
	assert.Equal(t, second.ID, favs[1].PostID)

	require.NoError(t, s.RemoveFavourite(ctx, reader.ID, first.ID))
	favs, err = s.GetFavourites(ctx, reader.ID)
	require.NoError(t, err)
	assert.Len(t, favs, 1)

	assert.ErrorIs(t, s.AddFavourite(ctx, reader.ID, second.ID+10), domain.ErrNotFound)
}

func testDeletePersonCascades(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	doomed := NewPerson(t, s, "doomed@example.com")
	other := NewPerson(t, s, "other@example.com")
	bystander := NewPerson(t, s, "bystander@example.com")

	own := NewPost(t, s, doomed.ID, "alien", 5)
	foreign := NewPost(t, s, other.ID, "heat", 4)

	// Чужая активность на посту удаляемого и его активность на чужом посту
	onOwnPost, err := s.CreateComment(ctx, &domain.Comment{PostID: own.ID, PersonID: other.ID, Content: "nice"})
	require.NoError(t, err)
	doomedComment, err := s.CreateComment(ctx, &domain.Comment{PostID: foreign.ID, PersonID: doomed.ID, Content: "meh"})
	require.NoError(t, err)
	survivor, err := s.CreateComment(ctx, &domain.Comment{PostID: foreign.ID, PersonID: other.ID, Content: "mine"})
	require.NoError(t, err)
	require.NoError(t, s.LikeComment(ctx, doomedComment.ID, other.ID))
	require.NoError(t, s.LikeComment(ctx, onOwnPost.ID, bystander.ID))
	require.NoError(t, s.LikeComment(ctx, survivor.ID, doomed.ID))
	require.NoError(t, s.LikeComment(ctx, survivor.ID, bystander.ID))
	require.NoError(t, s.LikePost(ctx, own.ID, other.ID))
	require.NoError(t, s.LikePost(ctx, foreign.ID, doomed.ID))
	require.NoError(t, s.AddFavourite(ctx, other.ID, own.ID))
	require.NoError(t, s.AddFavourite(ctx, doomed.ID, foreign.ID))

	require.NoError(t, s.DeletePerson(ctx, doomed.ID))

	_, err = s.GetPersonByID(ctx, doomed.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetProfile(ctx, doomed.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetPostByID(ctx, own.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	comments, err := s.GetCommentsByPostID(ctx, foreign.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, survivor.ID, comments[0].ID)

	// Лайки удаленных комментариев и лайки удаляемого на чужих комментариях
	for _, commentID := range []int64{doomedComment.ID, onOwnPost.ID} {
		commentLikes, err := s.GetCommentLikes(ctx, commentID)
		require.NoError(t, err)
		assert.Empty(t, commentLikes, "comment %d", commentID)
	}
	commentLikes, err := s.GetCommentLikes(ctx, survivor.ID)
	require.NoError(t, err)
	require.Len(t, commentLikes, 1)
	assert.Equal(t, bystander.ID, commentLikes[0].PersonID)

	likes, err := s.GetLikesByPostID(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Empty(t, likes)

	favs, err := s.GetFavourites(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, favs)

	// Email освобождается для повторной регистрации
	NewPerson(t, s, "doomed@example.com")
}

func testDeleteMissingPerson(t *testing.T, s storage.Storage) {
	err := s.DeletePerson(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testBatchLoaders(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	person := NewPerson(t, s, "batch@example.com")
	post := NewPost(t, s, person.ID, "alien", 5)

	posts, err := s.GetPostsByIDs(ctx, []int64{post.ID, post.ID + 100})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, "alien", posts[post.ID].Movie)

	profiles, err := s.GetProfilesByIDs(ctx, []int64{person.ID, person.ID + 100})
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
	assert.Equal(t, domain.DefaultDisplayName(person.ID), profiles[person.ID].DisplayName)
}
