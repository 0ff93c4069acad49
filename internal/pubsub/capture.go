package pubsub

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Capture wraps a Transport and swallows publishes, keeping the exact body
// and attributes each one was given. Everything else passes through.
type Capture struct {
	Transport

	mu       sync.Mutex
	captured []Captured
}

// Captured is one intercepted publish.
type Captured struct {
	Topic   string
	Message Message
}

// NewCapture wraps next.
func NewCapture(next Transport) *Capture {
	return &Capture{Transport: next}
}

// Publish records the message and does not forward it.
func (c *Capture) Publish(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = append(c.captured, Captured{
		Topic: topic,
		Message: Message{
			Data:       slices.Clone(msg.Data),
			Attributes: maps.Clone(msg.Attributes),
		},
	})
	return nil
}

// Last returns the most recent capture.
func (c *Capture) Last() (Captured, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.captured) == 0 {
		return Captured{}, false
	}
	return c.captured[len(c.captured)-1], true
}

