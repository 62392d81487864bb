package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"turf/pkg/envelope"
	"turf/pkg/models"
	"turf/pkg/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct{ closed bool }

func (s *fakeSub) Close() { s.closed = true }

type fakeTransport struct {
	mu       sync.Mutex
	handlers []func(envelope.Envelope)
	subs     []*fakeSub
}

func (t *fakeTransport) Publish(channel string, env envelope.Envelope) error { return nil }

func (t *fakeTransport) Subscribe(handler func(envelope.Envelope), channels ...string) stream.Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub := &fakeSub{}
	t.handlers = append(t.handlers, handler)
	t.subs = append(t.subs, sub)
	return sub
}

func (t *fakeTransport) deliver(env envelope.Envelope) {
	t.mu.Lock()
	handlers := append(([]func(envelope.Envelope))(nil), t.handlers...)
	t.mu.Unlock()
	for _, h := range handlers {
		h(env)
	}
}

type captureSink struct {
	mu   sync.Mutex
	envs []envelope.Envelope
}

func (s *captureSink) Push(env envelope.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
}

func (s *captureSink) all() []envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]envelope.Envelope(nil), s.envs...)
}

func (s *captureSink) actions() []string {
	var out []string
	for _, e := range s.all() {
		out = append(out, e.Action)
	}
	return out
}

func streamEvent(t *testing.T, action, service string, data interface{}) envelope.Envelope {
	t.Helper()
	env, err := envelope.NewEvent(action, service, data)
	require.NoError(t, err)
	return env
}

func openTestTopic(t *testing.T, initial []models.Message) (*Topic, *fakeTransport, *captureSink) {
	t.Helper()
	ft := &fakeTransport{}
	sink := &captureSink{}
	topic := OpenTopic("t1", "viewer", initial, stream.NewSubscriber(ft), sink)
	t.Cleanup(topic.Close)
	return topic, ft, sink
}

func TestOpenTopicLoadsInitial(t *testing.T) {
	initial := []models.Message{{ID: "m1", TopicID: "t1", Content: "hello"}}
	topic, _, _ := openTestTopic(t, initial)

	snap := topic.Snapshot()
	assert.Equal(t, "t1", snap.TopicID)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "m1", snap.Messages[0].ID)
	assert.Empty(t, snap.Typing)
}

func TestInsertForwardedOnce(t *testing.T) {
	topic, ft, sink := openTestTopic(t, nil)

	msg := models.Message{ID: "m1", TopicID: "t1", Content: "hi"}
	env := streamEvent(t, "insert", stream.StreamMessages, stream.MessageEvent{New: &msg})
	ft.deliver(env)
	ft.deliver(env) // at-least-once transport redelivers

	assert.Equal(t, []string{"message.insert"}, sink.actions())
	assert.Len(t, topic.Snapshot().Messages, 1)
}

func TestUpdateForwarded(t *testing.T) {
	topic, ft, sink := openTestTopic(t, []models.Message{{ID: "m1", TopicID: "t1", Content: "old"}})

	updated := models.Message{ID: "m1", TopicID: "t1", Content: "new"}
	ft.deliver(streamEvent(t, "update", stream.StreamMessages, stream.MessageEvent{New: &updated}))

	assert.Equal(t, []string{"message.update"}, sink.actions())
	assert.Equal(t, "new", topic.Snapshot().Messages[0].Content)
}

func TestUpdateForUnknownIDSuppressed(t *testing.T) {
	_, ft, sink := openTestTopic(t, nil)

	ghost := models.Message{ID: "ghost", TopicID: "t1", Content: "x"}
	ft.deliver(streamEvent(t, "update", stream.StreamMessages, stream.MessageEvent{New: &ghost}))

	assert.Empty(t, sink.all())
}

func TestDeleteForwardsIDOnly(t *testing.T) {
	topic, ft, sink := openTestTopic(t, []models.Message{{ID: "m1", TopicID: "t1"}})

	old := models.Message{ID: "m1", TopicID: "t1"}
	ft.deliver(streamEvent(t, "delete", stream.StreamMessages, stream.MessageEvent{Old: &old}))

	envs := sink.all()
	require.Len(t, envs, 1)
	assert.Equal(t, "message.delete", envs[0].Action)

	var data map[string]string
	require.NoError(t, json.Unmarshal(envs[0].Data, &data))
	assert.Equal(t, "m1", data["id"])
	assert.Empty(t, topic.Snapshot().Messages)
}

func TestVoteForwardedAndApplied(t *testing.T) {
	topic, ft, sink := openTestTopic(t, []models.Message{{ID: "m1", TopicID: "t1"}})

	ft.deliver(streamEvent(t, "update", stream.StreamVotes, stream.VoteEvent{
		MessageID: "m1", Upvotes: 2, Downvotes: 1, ActorID: "viewer", ActorVote: models.VoteUp,
	}))

	assert.Equal(t, []string{"vote.update"}, sink.actions())
	m := topic.Snapshot().Messages[0]
	assert.Equal(t, 2, m.Upvotes)
	assert.Equal(t, models.VoteUp, m.UserVote)
}

func TestReactionForwardedAndApplied(t *testing.T) {
	topic, ft, sink := openTestTopic(t, []models.Message{{ID: "m1", TopicID: "t1"}})

	ft.deliver(streamEvent(t, "update", stream.StreamReactions, stream.ReactionEvent{
		MessageID: "m1", Emoji: "🔥", Count: 2,
	}))

	assert.Equal(t, []string{"reaction.update"}, sink.actions())
	m := topic.Snapshot().Messages[0]
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, 2, m.Reactions[0].Count)
}

func TestTypingFilteredByTopic(t *testing.T) {
	topic, ft, sink := openTestTopic(t, nil)

	ft.deliver(streamEvent(t, "broadcast", stream.StreamTyping, models.TypingPayload{
		TopicID: "other-topic", UserID: "u2", Username: "bob", IsTyping: true,
	}))
	assert.Empty(t, sink.all())

	ft.deliver(streamEvent(t, "broadcast", stream.StreamTyping, models.TypingPayload{
		TopicID: "t1", UserID: "u2", Username: "bob", IsTyping: true,
	}))
	assert.Equal(t, []string{"typing.update"}, sink.actions())
	assert.Equal(t, []string{"bob"}, topic.Snapshot().Typing)
}

func TestTypingFromViewerSuppressed(t *testing.T) {
	_, ft, sink := openTestTopic(t, nil)

	ft.deliver(streamEvent(t, "broadcast", stream.StreamTyping, models.TypingPayload{
		TopicID: "t1", UserID: "viewer", Username: "me", IsTyping: true,
	}))
	assert.Empty(t, sink.all())
}

func TestTypingRefreshNotReforwarded(t *testing.T) {
	_, ft, sink := openTestTopic(t, nil)

	p := models.TypingPayload{TopicID: "t1", UserID: "u2", Username: "bob", IsTyping: true}
	ft.deliver(streamEvent(t, "broadcast", stream.StreamTyping, p))
	ft.deliver(streamEvent(t, "broadcast", stream.StreamTyping, p))

	assert.Equal(t, []string{"typing.update"}, sink.actions())
}

func TestCloseIsIdempotentAndClosesSubscription(t *testing.T) {
	topic, ft, _ := openTestTopic(t, nil)

	topic.Close()
	topic.Close()

	require.Len(t, ft.subs, 1)
	assert.True(t, ft.subs[0].closed)
}

// ── inbox session ──

type fakeStore struct {
	recent    []models.Notification
	recentErr error
}

func (s *fakeStore) Recent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return s.recent, s.recentErr
}
func (s *fakeStore) MarkRead(ctx context.Context, userID, id string) error { return nil }
func (s *fakeStore) MarkAllRead(ctx context.Context, userID string) error  { return nil }

func TestOpenInboxLoadsBeforeSubscribing(t *testing.T) {
	ft := &fakeTransport{}
	sink := &captureSink{}
	store := &fakeStore{recent: []models.Notification{{ID: "n1", UserID: "u1"}}}

	in, err := OpenInbox(context.Background(), "u1", store, stream.NewSubscriber(ft), sink)
	require.NoError(t, err)
	defer in.Close()

	assert.Len(t, in.Feed().Snapshot(), 1)
	assert.Len(t, ft.handlers, 1)
}

func TestOpenInboxLoadFailureDoesNotSubscribe(t *testing.T) {
	ft := &fakeTransport{}
	store := &fakeStore{recentErr: errors.New("db down")}

	_, err := OpenInbox(context.Background(), "u1", store, stream.NewSubscriber(ft), &captureSink{})
	require.Error(t, err)
	assert.Empty(t, ft.handlers)
}

func TestInboxForwardsNewNotificationWithUnreadCount(t *testing.T) {
	ft := &fakeTransport{}
	sink := &captureSink{}
	in, err := OpenInbox(context.Background(), "u1", &fakeStore{}, stream.NewSubscriber(ft), sink)
	require.NoError(t, err)
	defer in.Close()

	n := models.Notification{ID: "n1", UserID: "u1", Type: models.NotificationReply}
	ft.deliver(streamEvent(t, "insert", stream.StreamNotifications, stream.NotificationEvent{New: &n}))

	envs := sink.all()
	require.Len(t, envs, 1)
	assert.Equal(t, "notification.new", envs[0].Action)

	var data struct {
		Notification models.Notification `json:"notification"`
		UnreadCount  int                 `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(envs[0].Data, &data))
	assert.Equal(t, "n1", data.Notification.ID)
	assert.Equal(t, 1, data.UnreadCount)
}

func TestInboxDuplicateNotificationSuppressed(t *testing.T) {
	ft := &fakeTransport{}
	sink := &captureSink{}
	in, err := OpenInbox(context.Background(), "u1", &fakeStore{}, stream.NewSubscriber(ft), sink)
	require.NoError(t, err)
	defer in.Close()

	n := models.Notification{ID: "n1", UserID: "u1"}
	env := streamEvent(t, "insert", stream.StreamNotifications, stream.NotificationEvent{New: &n})
	ft.deliver(env)
	ft.deliver(env)

	assert.Len(t, sink.all(), 1)
}
