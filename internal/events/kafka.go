package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	// kafkaQueueSize - сколько событий ждут отправки, прежде чем Publish начнет отказывать.
	kafkaQueueSize = 256
	// kafkaBatchTimeout - сколько writer копит пачку перед отправкой.
	kafkaBatchTimeout = 10 * time.Millisecond
	// kafkaWriteTimeout ограничивает одну запись в брокер.
	kafkaWriteTimeout = 5 * time.Second
)

var (
	ErrQueueFull       = errors.New("kafka publisher: queue is full")
	ErrPublisherClosed = errors.New("kafka publisher: closed")
)

// messageWriter - часть kafka.Writer, которой пользуется издатель.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в топик Kafka в формате JSON.
// Publish только ставит сообщение в очередь, запись в брокер идет в отдельной горутине.
type KafkaPublisher struct {
	writer messageWriter
	queue  chan kafka.Message
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewKafkaWriter создает writer для списка брокеров через запятую.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(splitBrokers(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // события одного поста попадают в одну партицию
		BatchTimeout:           kafkaBatchTimeout,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return newKafkaPublisher(NewKafkaWriter(brokers, topic), kafkaQueueSize)
}

func newKafkaPublisher(w messageWriter, size int) *KafkaPublisher {
	p := &KafkaPublisher{
		writer: w,
		queue:  make(chan kafka.Message, size),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
		err := p.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("key", string(msg.Key)).Msg("failed to write event to kafka")
		}
	}
}

// Publish ставит событие с ключом "<type>-<post id>" в очередь и не ждет брокера.
// Переполненная очередь - ErrQueueFull, событие теряется.
func (p *KafkaPublisher) Publish(_ context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s-%d", e.Type, e.PostID)),
		Value: value,
		Time:  e.At,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, e.Type)
	}
}

// Close дописывает очередь и закрывает writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
