package domain

import "time"

const (
	// DefaultPfpLink - аватар, который получает каждый новый пользователь.
	DefaultPfpLink = "/icons/user-holder.png"
	// DisplayNamePrefix - префикс имени по умолчанию, к нему дописывается id.
	DisplayNamePrefix = "user"

	MinStars = 1
	MaxStars = 5

	MaxReviewLength  = 5000
	MaxCommentLength = 2000
)

// Person - учетная запись: идентификатор, email для входа и хеш пароля.
type Person struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Email     string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Password  string    `json:"-" gorm:"column:password;type:varchar(255);not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (Person) TableName() string { return "person" }

// Profile - публичные данные пользователя (таблица person_data), 1:1 с Person.
type Profile struct {
	ID          int64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	DisplayName string `json:"displayname" gorm:"column:displayname;type:varchar(255);not null"`
	PfpLink     string `json:"pfplink" gorm:"column:pfplink;type:varchar(1024);not null"`
}

func (Profile) TableName() string { return "person_data" }

// Post - рецензия пользователя на фильм.
type Post struct {
	ID       int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	PersonID int64  `json:"person_id" gorm:"not null;index"`
	Movie    string `json:"movie" gorm:"type:varchar(255);not null;index"`
	Stars    int    `json:"stars" gorm:"not null"`
	Review   string `json:"review" gorm:"type:text;not null"`
}

func (Post) TableName() string { return "post" }

// Comment - комментарий к посту.
type Comment struct {
	ID       int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	PostID   int64  `json:"post_id" gorm:"not null;index"`
	PersonID int64  `json:"person_id" gorm:"not null;index"`
	Content  string `json:"content" gorm:"type:varchar(2000);not null"`
}

func (Comment) TableName() string { return "comment" }

// PostLike - лайк поста, пара (post_id, person_id) уникальна.
type PostLike struct {
	PostID   int64 `json:"post_id" gorm:"primaryKey;autoIncrement:false"`
	PersonID int64 `json:"person_id" gorm:"primaryKey;autoIncrement:false;index"`
}

func (PostLike) TableName() string { return "post_like" }

// CommentLike - лайк комментария.
type CommentLike struct {
	CommentID int64 `json:"comment_id" gorm:"primaryKey;autoIncrement:false"`
	PersonID  int64 `json:"person_id" gorm:"primaryKey;autoIncrement:false;index"`
}

func (CommentLike) TableName() string { return "comment_like" }

// Favourite - сохраненный пользователем пост.
type Favourite struct {
	PersonID int64 `json:"person_id" gorm:"primaryKey;autoIncrement:false"`
	PostID   int64 `json:"post_id" gorm:"primaryKey;autoIncrement:false;index"`
}

func (Favourite) TableName() string { return "favourites" }

// UserProfile - результат join'а person + person_data.
type UserProfile struct {
	Email       string `json:"email" gorm:"column:email"`
	PfpLink     string `json:"pfplink" gorm:"column:pfplink"`
	DisplayName string `json:"displayname" gorm:"column:displayname"`
}

// PostSummary - укороченный пост для страницы пользователя.
type PostSummary struct {
	ID     int64  `json:"id"`
	Movie  string `json:"movie"`
	Stars  int    `json:"stars"`
	Review string `json:"review"`
}

// UserData - все данные пользователя одним объектом.
type UserData struct {
	Email       string         `json:"email"`
	PfpLink     string         `json:"pfplink"`
	DisplayName string         `json:"displayname"`
	Posts       []*PostSummary `json:"posts"`
	Favs        []*Post        `json:"favs"`
}

// PostData - пост вместе с автором, лайками и комментариями.
type PostData struct {
	Author       *Profile    `json:"author"`
	Post         *Post       `json:"post"`
	Likes        []*PostLike `json:"likes"`
	LikeCount    int         `json:"likeCount"`
	Comments     []*Comment  `json:"comments"`
	CommentCount int         `json:"commentCount"`
}

// Engagement - лайки + комментарии, используется только для сортировки.
func (d *PostData) Engagement() int {
	return d.LikeCount + d.CommentCount
}

// StarRating - средняя оценка фильма и количество рецензий.
type StarRating struct {
	Stars       int `json:"stars"`
	ReviewCount int `json:"reviewCount"`
}
