package stream

import (
	"encoding/json"
	"testing"

	"turf/pkg/broker"
	"turf/pkg/envelope"
	"turf/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	closed bool
}

func (s *fakeSub) Close() { s.closed = true }

type fakeTransport struct {
	published []published
	handlers  []func(envelope.Envelope)
	channels  [][]string
	subs      []*fakeSub
}

type published struct {
	channel string
	env     envelope.Envelope
}

func (t *fakeTransport) Publish(channel string, env envelope.Envelope) error {
	t.published = append(t.published, published{channel: channel, env: env})
	return nil
}

func (t *fakeTransport) Subscribe(handler func(envelope.Envelope), channels ...string) Subscription {
	sub := &fakeSub{}
	t.handlers = append(t.handlers, handler)
	t.channels = append(t.channels, channels)
	t.subs = append(t.subs, sub)
	return sub
}

// deliver pushes an envelope through every registered handler, as the
// broker pump would.
func (t *fakeTransport) deliver(env envelope.Envelope) {
	for _, h := range t.handlers {
		h(env)
	}
}

func event(t *testing.T, action, service string, data interface{}) envelope.Envelope {
	t.Helper()
	env, err := envelope.NewEvent(action, service, data)
	require.NoError(t, err)
	return env
}

func TestSubscribeTopicChannels(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	sub.SubscribeTopic("t1", TopicHandlers{})

	require.Len(t, ft.channels, 1)
	assert.Equal(t, []string{
		"stream:messages:t1",
		"stream:reactions:t1",
		"stream:votes:t1",
		"typing",
	}, ft.channels[0])
}

func TestDispatchMessageInsert(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	var got MessageEvent
	sub.SubscribeTopic("t1", TopicHandlers{OnMessage: func(ev MessageEvent) { got = ev }})

	msg := models.Message{ID: "m1", TopicID: "t1", Content: "hello"}
	ft.deliver(event(t, "insert", StreamMessages, MessageEvent{New: &msg}))

	assert.Equal(t, EventInsert, got.Type)
	require.NotNil(t, got.New)
	assert.Equal(t, "m1", got.New.ID)
}

func TestDispatchMessageDelete(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	var got MessageEvent
	sub.SubscribeTopic("t1", TopicHandlers{OnMessage: func(ev MessageEvent) { got = ev }})

	old := models.Message{ID: "m1"}
	ft.deliver(event(t, "delete", StreamMessages, MessageEvent{Old: &old}))

	assert.Equal(t, EventDelete, got.Type)
	require.NotNil(t, got.Old)
	assert.Equal(t, "m1", got.Old.ID)
}

func TestDispatchReactionDeleteFlag(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	var got ReactionEvent
	sub.SubscribeTopic("t1", TopicHandlers{OnReaction: func(ev ReactionEvent) { got = ev }})

	ft.deliver(event(t, "delete", StreamReactions, ReactionEvent{MessageID: "m1", Emoji: "🔥", Count: 0}))

	assert.True(t, got.Deleted)
	assert.Equal(t, "🔥", got.Emoji)
}

func TestDispatchVote(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	var got VoteEvent
	sub.SubscribeTopic("t1", TopicHandlers{OnVote: func(ev VoteEvent) { got = ev }})

	ft.deliver(event(t, "update", StreamVotes, VoteEvent{
		MessageID: "m1", Upvotes: 3, Downvotes: 1, ActorID: "u1", ActorVote: models.VoteUp,
	}))

	assert.Equal(t, 3, got.Upvotes)
	assert.Equal(t, models.VoteUp, got.ActorVote)
}

func TestDispatchTyping(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	var got models.TypingPayload
	sub.SubscribeTopic("t1", TopicHandlers{OnTyping: func(p models.TypingPayload) { got = p }})

	ft.deliver(event(t, "broadcast", StreamTyping, models.TypingPayload{
		TopicID: "t1", UserID: "u2", Username: "bob", IsTyping: true,
	}))

	assert.Equal(t, "bob", got.Username)
	assert.True(t, got.IsTyping)
}

func TestDispatchMalformedPayloadDropped(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	called := false
	sub.SubscribeTopic("t1", TopicHandlers{OnMessage: func(MessageEvent) { called = true }})

	env := envelope.New("insert", StreamMessages)
	env.Data = json.RawMessage(`{broken`)
	ft.deliver(env)

	assert.False(t, called)
}

func TestDispatchUnknownServiceIgnored(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	called := false
	sub.SubscribeTopic("t1", TopicHandlers{
		OnMessage: func(MessageEvent) { called = true },
		OnVote:    func(VoteEvent) { called = true },
	})

	ft.deliver(event(t, "insert", "something_else", map[string]string{"x": "y"}))
	assert.False(t, called)
}

func TestSubscribeNotifications(t *testing.T) {
	ft := &fakeTransport{}
	sub := NewSubscriber(ft)

	var got NotificationEvent
	sub.SubscribeNotifications("u1", func(ev NotificationEvent) { got = ev })

	require.Equal(t, [][]string{{"stream:notifications:u1"}}, ft.channels)

	n := models.Notification{ID: "n1", UserID: "u1", Type: models.NotificationMention}
	ft.deliver(event(t, "insert", StreamNotifications, NotificationEvent{New: &n}))

	assert.Equal(t, EventInsert, got.Type)
	require.NotNil(t, got.New)
	assert.Equal(t, "n1", got.New.ID)
}

func TestPublisherMessageLifecycle(t *testing.T) {
	ft := &fakeTransport{}
	pub := NewPublisher(ft)

	msg := models.Message{ID: "m1", TopicID: "t1", Content: "hi"}
	pub.MessageInserted(msg)
	pub.MessageUpdated(msg)
	pub.MessageDeleted(msg)

	require.Len(t, ft.published, 3)
	for _, p := range ft.published {
		assert.Equal(t, broker.MessageChannel("t1"), p.channel)
		assert.Equal(t, StreamMessages, p.env.Service)
	}
	assert.Equal(t, "insert", ft.published[0].env.Action)
	assert.Equal(t, "update", ft.published[1].env.Action)
	assert.Equal(t, "delete", ft.published[2].env.Action)
}

func TestPublisherVoteAndReactionChannels(t *testing.T) {
	ft := &fakeTransport{}
	pub := NewPublisher(ft)

	pub.VoteRecounted("t1", VoteEvent{MessageID: "m1"})
	pub.ReactionChanged("t1", ReactionEvent{MessageID: "m1", Emoji: "🔥", Count: 1})
	pub.ReactionChanged("t1", ReactionEvent{MessageID: "m1", Emoji: "🔥", Deleted: true})

	require.Len(t, ft.published, 3)
	assert.Equal(t, broker.VoteChannel("t1"), ft.published[0].channel)
	assert.Equal(t, broker.ReactionChannel("t1"), ft.published[1].channel)
	assert.Equal(t, "update", ft.published[1].env.Action)
	assert.Equal(t, "delete", ft.published[2].env.Action)
}

func TestPublisherNotificationChannelPerUser(t *testing.T) {
	ft := &fakeTransport{}
	pub := NewPublisher(ft)

	pub.NotificationCreated(models.Notification{ID: "n1", UserID: "u7"})

	require.Len(t, ft.published, 1)
	assert.Equal(t, broker.NotificationChannel("u7"), ft.published[0].channel)
	assert.Equal(t, StreamNotifications, ft.published[0].env.Service)
}

func TestPublisherTypingSharedChannel(t *testing.T) {
	ft := &fakeTransport{}
	pub := NewPublisher(ft)

	pub.Typing(models.TypingPayload{TopicID: "t1", UserID: "u1", Username: "alice", IsTyping: true})

	require.Len(t, ft.published, 1)
	assert.Equal(t, broker.TypingChannel, ft.published[0].channel)
	assert.Equal(t, StreamTyping, ft.published[0].env.Service)
}
