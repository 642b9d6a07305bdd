package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// AllPosts - ключ подписки на события всех постов.
const AllPosts int64 = 0

// Hub хранит каналы подписчиков на события.
type Hub struct {
	mu sync.RWMutex
	//          map[postID] map[subscriberID] channel
	subs   map[int64]map[string]chan Event
	buffer int
}

// NewHub - конструктор хаба. buffer - размер очереди одного подписчика.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[int64]map[string]chan Event),
		buffer: buffer,
	}
}

// Subscribe подписывает на события поста postID (или AllPosts).
// Подписка снимается, а канал закрывается, когда ctx завершится.
func (h *Hub) Subscribe(ctx context.Context, postID int64) <-chan Event {
	ch := make(chan Event, h.buffer)
	subID := uuid.NewString()

	h.mu.Lock()
	if h.subs[postID] == nil {
		h.subs[postID] = make(map[string]chan Event)
	}
	h.subs[postID][subID] = ch
	h.mu.Unlock()

	// Горутина для очистки при отключении клиента
	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if postSubs, ok := h.subs[postID]; ok {
			delete(postSubs, subID)
			if len(postSubs) == 0 {
				delete(h.subs, postID)
			}
		}
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish отдает событие подписчикам поста и подписчикам на все посты.
// Медленный подписчик событие теряет, издатель не блокируется.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := []int64{AllPosts}
	if e.PostID != AllPosts {
		keys = append(keys, e.PostID)
	}
	for _, key := range keys {
		for _, ch := range h.subs[key] {
			select {
			case ch <- e:
			default:
				// Клиент не успевает читать
			}
		}
	}
	return nil
}

// Subscribers возвращает число активных подписок.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, postSubs := range h.subs {
		n += len(postSubs)
	}
	return n
}
