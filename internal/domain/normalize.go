package domain

import (
	"fmt"
	"strings"
)

// NormalizeMovie приводит название фильма к виду, в котором оно хранится.
func NormalizeMovie(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// DefaultDisplayName - "user" + id.
func DefaultDisplayName(id int64) string {
	return fmt.Sprintf("%s%d", DisplayNamePrefix, id)
}

// ValidatePost проверяет пост перед сохранением и нормализует название фильма.
func ValidatePost(p *Post) error {
	p.Movie = NormalizeMovie(p.Movie)
	if p.Movie == "" {
		return fmt.Errorf("%w: movie title cannot be empty", ErrInvalidInput)
	}
	if p.Stars < MinStars || p.Stars > MaxStars {
		return fmt.Errorf("%w: stars must be between %d and %d", ErrInvalidInput, MinStars, MaxStars)
	}
	if len(p.Review) > MaxReviewLength {
		return fmt.Errorf("%w: review is too long", ErrInvalidInput)
	}
	return nil
}

// ValidateComment проверяет текст комментария.
func ValidateComment(c *Comment) error {
	if len(c.Content) > MaxCommentLength {
		return fmt.Errorf("%w: comment content is too long", ErrInvalidInput)
	}
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("%w: comment content cannot be empty", ErrInvalidInput)
	}
	return nil
}
