package auth

import "context"

type contextKey string

const identityKey = contextKey("identity")

// Identity - кто делает запрос: аноним или пользователь с id.
type Identity struct {
	personID int64
}

func Anonymous() Identity { return Identity{} }

func Authenticated(personID int64) Identity {
	if personID <= 0 {
		return Anonymous()
	}
	return Identity{personID: personID}
}

func (i Identity) IsAuthenticated() bool { return i.personID > 0 }

// PersonID возвращает id пользователя или 0 для анонима.
func (i Identity) PersonID() int64 { return i.personID }

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext извлекает личность из контекста. Без middleware - аноним.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}
