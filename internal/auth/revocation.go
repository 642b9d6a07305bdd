package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RevocationStore помнит отозванные сессии до истечения их срока
// и поколение сессий каждого пользователя. Смена поколения отзывает все
// токены, выданные раньше.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Generation(ctx context.Context, personID int64) (int64, error)
	NextGeneration(ctx context.Context, personID int64) (int64, error)
}

// MemoryRevocations - отзыв сессий в памяти процесса.
type MemoryRevocations struct {
	mu          sync.Mutex
	revoked     map[string]time.Time
	generations map[int64]int64
	now         func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		revoked:     make(map[string]time.Time),
		generations: make(map[int64]int64),
		now:         time.Now,
	}
}

func (m *MemoryRevocations) Generation(_ context.Context, personID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[personID], nil
}

func (m *MemoryRevocations) NextGeneration(_ context.Context, personID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[personID]++
	return m.generations[personID], nil
}

func (m *MemoryRevocations) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = m.now().Add(ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	// Заодно вычищаем истекшие записи
	for k, until := range m.revoked {
		if !now.Before(until) {
			delete(m.revoked, k)
		}
	}
	_, ok := m.revoked[jti]
	return ok, nil
}

// RedisRevocations хранит отозванные jti в Redis с TTL, общий для всех реплик.
type RedisRevocations struct {
	rdb       *redis.Client
	prefix    string
	genPrefix string
}

func NewRedisRevocations(rdb *redis.Client) *RedisRevocations {
	return &RedisRevocations{rdb: rdb, prefix: "watchedit:revoked:", genPrefix: "watchedit:generation:"}
}

func (r *RedisRevocations) key(jti string) string { return r.prefix + jti }

func (r *RedisRevocations) genKey(personID int64) string {
	return r.genPrefix + strconv.FormatInt(personID, 10)
}

func (r *RedisRevocations) Generation(ctx context.Context, personID int64) (int64, error) {
	gen, err := r.rdb.Get(ctx, r.genKey(personID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session generation: %w", err)
	}
	return gen, nil
}

func (r *RedisRevocations) NextGeneration(ctx context.Context, personID int64) (int64, error) {
	gen, err := r.rdb.Incr(ctx, r.genKey(personID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump session generation: %w", err)
	}
	return gen, nil
}

func (r *RedisRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, r.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return n > 0, nil
}
