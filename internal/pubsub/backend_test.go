package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_PublishPull(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(nil)
	require.NoError(t, b.CreateTopic(ctx, "octue.services.child"))

	require.NoError(t, b.Publish(ctx, "octue.services.child", Message{
		Data:       []byte(`{"input_values":{"height":4}}`),
		Attributes: map[string]string{"question_uuid": "q-1"},
	}))
	require.NoError(t, b.Publish(ctx, "octue.services.child", Message{Data: []byte("second")}))

	msgs, err := b.Pull(ctx, "octue.services.child")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"input_values":{"height":4}}`, string(msgs[0].Data))
	assert.Equal(t, "q-1", msgs[0].Attributes["question_uuid"])
	assert.Equal(t, "second", string(msgs[1].Data))
	assert.NotNil(t, msgs[1].Attributes)

	again, err := b.Pull(ctx, "octue.services.child")
	require.NoError(t, err)
	assert.Empty(t, again, "pull should drain the topic")
}

func TestBackend_CreateTopicTwice(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(nil)
	require.NoError(t, b.CreateTopic(ctx, "t"))
	assert.ErrorIs(t, b.CreateTopic(ctx, "t"), ErrTopicExists)
}

func TestBackend_PublishUnknownTopic(t *testing.T) {
	b := NewBackend(nil)
	err := b.Publish(context.Background(), "octue.services.x.answers.q-1", Message{Data: []byte("x")})
	assert.ErrorIs(t, err, ErrTopicNotFound)
}

func TestBackend_PullUnknownTopic(t *testing.T) {
	b := NewBackend(nil)
	_, err := b.Pull(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrTopicNotFound)
}

func TestBackend_DeliversToMailbox(t *testing.T) {
	ctx := context.Background()
	mb := NewMailboxes()
	mb.Register("octue.services.child.answers.q-1")
	b := NewBackend(mb)

	require.NoError(t, b.Publish(ctx, "octue.services.child.answers.q-1", Message{
		Data:       []byte(`{"kind":"result"}`),
		Attributes: map[string]string{"question_uuid": "q-1"},
	}))

	msgs, err := mb.Messages("octue.services.child.answers.q-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, `{"kind":"result"}`, string(msgs[0].Data))

	// Reading a mailbox does not drain it.
	msgs, err = b.Mailboxes().Messages("octue.services.child.answers.q-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestBackend_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBackend(nil)

	assert.ErrorIs(t, b.CreateTopic(ctx, "t"), context.Canceled)
	assert.ErrorIs(t, b.Publish(ctx, "t", Message{}), context.Canceled)
	_, err := b.Pull(ctx, "t")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMailboxes(t *testing.T) {
	mb := NewMailboxes()
	_, err := mb.Messages("b")
	assert.ErrorIs(t, err, ErrTopicNotFound)

	mb.Register("b")
	mb.Register("a")
	msgs, err := mb.Messages("b")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = mb.Messages("a")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = mb.Messages("c")
	assert.ErrorIs(t, err, ErrTopicNotFound)
}

func TestPublishedAttributesAreCopied(t *testing.T) {
	ctx := context.Background()
	b := NewBackend(nil)
	require.NoError(t, b.CreateTopic(ctx, "t"))

	attrs := map[string]string{"question_uuid": "q-1"}
	require.NoError(t, b.Publish(ctx, "t", Message{Data: []byte("x"), Attributes: attrs}))
	attrs["question_uuid"] = "changed"

	msgs, err := b.Pull(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "q-1", msgs[0].Attributes["question_uuid"])
}

func TestEncodeDecodeData(t *testing.T) {
	body := []byte(`{"input_manifest":"{\"datasets\":{}}"}`)

	encoded := EncodeData(body)
	assert.Equal(t, "eyJpbnB1dF9tYW5pZmVzdCI6IntcImRhdGFzZXRzXCI6e319In0=", string(encoded))

	decoded, err := DecodeData(encoded)
	require.NoError(t, err)
	assert.Equal(t, body, decoded)

	_, err = DecodeData([]byte("not base64!"))
	assert.Error(t, err)
}

func TestMessageAttr(t *testing.T) {
	m := Message{Attributes: map[string]string{"sender_type": "PARENT"}}

	v, ok := m.Attr("sender_type")
	assert.True(t, ok)
	assert.Equal(t, "PARENT", v)

	_, ok = m.Attr("version")
	assert.False(t, ok)
}
