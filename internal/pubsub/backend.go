package pubsub

import (
	"context"
	"fmt"
	"sync"
)

// Transport is what a service needs from the messaging layer.
type Transport interface {
	CreateTopic(ctx context.Context, name string) error
	Publish(ctx context.Context, topic string, msg Message) error
	Pull(ctx context.Context, topic string) ([]Message, error)
}

// Mailboxes registers answer topics. A replay registers the topic its
// consumer will answer on before the question is delivered, then reads the
// answers back from it.
//
// Thread-safety: safe for concurrent use.
type Mailboxes struct {
	mu    sync.Mutex
	boxes map[string][][]byte
}

// NewMailboxes returns an empty registry.
func NewMailboxes() *Mailboxes {
	return &Mailboxes{boxes: map[string][][]byte{}}
}

// Register opens an empty mailbox for topic. Registering twice clears it.
func (m *Mailboxes) Register(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes[topic] = nil
}

// Messages returns everything delivered to topic, oldest first, without
// removing it.
func (m *Mailboxes) Messages(topic string) ([]Message, error) {
	m.mu.Lock()
	raw, ok := m.boxes[topic]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: mailbox %s", ErrTopicNotFound, topic)
	}
	return decodeAll(raw)
}

func (m *Mailboxes) deliver(topic string, raw []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	box, ok := m.boxes[topic]
	if !ok {
		return false
	}
	m.boxes[topic] = append(box, raw)
	return true
}

// Backend is an in-memory Transport. Created topics queue messages until
// pulled; anything else is delivered to a registered mailbox.
//
// Thread-safety: safe for concurrent use.
type Backend struct {
	mu        sync.Mutex
	topics    map[string][][]byte
	mailboxes *Mailboxes
	seq       uint64
}

// NewBackend returns a backend delivering answers into mailboxes. A nil
// mailboxes gets a fresh, empty registry.
func NewBackend(mailboxes *Mailboxes) *Backend {
	if mailboxes == nil {
		mailboxes = NewMailboxes()
	}
	return &Backend{
		topics:    map[string][][]byte{},
		mailboxes: mailboxes,
	}
}

// Mailboxes returns the registry the backend delivers answers into.
func (b *Backend) Mailboxes() *Mailboxes {
	return b.mailboxes
}

func (b *Backend) CreateTopic(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[name]; ok {
		return fmt.Errorf("%w: %s", ErrTopicExists, name)
	}
	b.topics[name] = nil
	return nil
}

func (b *Backend) Publish(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	raw, err := encodeEnvelope(topic, b.seq, msg)
	if err != nil {
		return err
	}

	if queue, ok := b.topics[topic]; ok {
		b.topics[topic] = append(queue, raw)
		return nil
	}
	if b.mailboxes.deliver(topic, raw) {
		return nil
	}
	return fmt.Errorf("publish: %w: %s", ErrTopicNotFound, topic)
}

// Pull drains a created topic.
func (b *Backend) Pull(ctx context.Context, topic string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	queue, ok := b.topics[topic]
	if ok {
		b.topics[topic] = nil
	}
	b.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("pull: %w: %s", ErrTopicNotFound, topic)
	}
	return decodeAll(queue)
}

func decodeAll(raw [][]byte) ([]Message, error) {
	msgs := make([]Message, 0, len(raw))
	for _, r := range raw {
		env, err := decodeEnvelope(r)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{Data: env.Data, Attributes: env.Attributes})
	}
	return msgs, nil
}
