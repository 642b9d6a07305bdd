// Package events разносит уведомления о действиях пользователей:
// подписчикам внутри процесса и в Kafka.
package events

import (
	"context"
	"errors"
	"time"
)

// Type - вид события.
type Type string

const (
	PostCreated    Type = "post_created"
	CommentCreated Type = "comment_created"
	PostLiked      Type = "post_liked"
	AccountDeleted Type = "account_deleted"
)

// Event - одно уведомление. PostID равен 0 для событий без поста.
type Event struct {
	Type     Type      `json:"type"`
	PostID   int64     `json:"postId,omitempty"`
	PersonID int64     `json:"personId"`
	Movie    string    `json:"movie,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher принимает события. Ошибка публикации не должна отменять саму запись.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi рассылает событие всем издателям по очереди.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop ничего не публикует.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
