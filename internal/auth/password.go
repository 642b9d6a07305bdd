package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost - число раундов bcrypt по умолчанию.
const DefaultCost = 12

// Hasher хеширует и проверяет пароли через bcrypt.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare сообщает, подходит ли пароль к хешу. Битый хеш - просто false.
func (h *Hasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
