// Package pubsub is an in-process publish/subscribe backend that stands in
// for the cloud messaging service SDK versions talk over.
//
// Messages cross the backend as msgpack envelopes so every publish and pull
// goes through a real encode/decode step. Answer topics are not created by
// services; they must be registered up front in a Mailboxes object handed to
// the backend, and publishing to an unregistered answer topic fails.
package pubsub

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrTopicNotFound is returned when publishing or pulling from a topic
	// that was neither created nor registered as a mailbox.
	ErrTopicNotFound = errors.New("topic not found")

	// ErrTopicExists is returned by CreateTopic for a duplicate name.
	ErrTopicExists = errors.New("topic already exists")
)

// Message is a published payload. Attributes are flat string metadata.
type Message struct {
	Data       []byte
	Attributes map[string]string
}

// Attr returns an attribute value and whether it was set.
func (m Message) Attr(name string) (string, bool) {
	v, ok := m.Attributes[name]
	return v, ok
}

// EncodeData returns body the way a push subscription delivers it: base64
// text.
func EncodeData(body []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(body)))
	base64.StdEncoding.Encode(out, body)
	return out
}

// DecodeData reverses EncodeData.
func DecodeData(data []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(out, data)
	if err != nil {
		return nil, fmt.Errorf("decode message data: %w", err)
	}
	return out[:n], nil
}

// envelope is the wire form of a Message inside the backend.
type envelope struct {
	Topic       string            `msgpack:"topic"`
	Seq         uint64            `msgpack:"seq"`
	Data        []byte            `msgpack:"data"`
	Attributes  map[string]string `msgpack:"attributes"`
	PublishedAt string            `msgpack:"published_at"`
}

func encodeEnvelope(topic string, seq uint64, msg Message) ([]byte, error) {
	env := envelope{
		Topic:       topic,
		Seq:         seq,
		Data:        msg.Data,
		Attributes:  maps.Clone(msg.Attributes),
		PublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	out, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope for %s: %w", topic, err)
	}
	return out, nil
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Attributes == nil {
		env.Attributes = map[string]string{}
	}
	return env, nil
}
