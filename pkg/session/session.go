// Package session owns the live server-side projections mounted by one
// websocket client: a message tree per joined topic, and the notification
// inbox. Each session is fed by its own change-stream subscription and
// pushes resulting events to exactly one connection.
package session

import (
	"log"
	"sync"

	"turf/pkg/envelope"
	"turf/pkg/models"
	"turf/pkg/stream"
	"turf/pkg/tree"
	"turf/pkg/typing"
)

// Sink delivers envelopes to the owning connection. The hub's client
// satisfies it.
type Sink interface {
	Push(env envelope.Envelope)
}

// TopicSnapshot is what topic.snapshot replies with: the projected tree
// plus who is typing right now.
type TopicSnapshot struct {
	TopicID  string           `json:"topic_id"`
	Messages []models.Message `json:"messages"`
	Typing   []string         `json:"typing"`
}

// Topic is one client's mount of one topic. All stream events for the
// mount funnel through the subscription's delivery goroutine; the mutex
// only guards against concurrent snapshot reads.
type Topic struct {
	topicID string

	mu     sync.Mutex
	tree   *tree.Tree
	roster *typing.Roster
	sub    stream.Subscription
	sink   Sink
	closed bool
}

// OpenTopic loads the initial message list into a fresh projection and
// subscribes to the topic's change streams. Everything between the fetch
// and the first delivered event is approximate by design; the client
// re-fetches on focus regain.
func OpenTopic(topicID, viewerID string, initial []models.Message, sub *stream.Subscriber, sink Sink) *Topic {
	t := &Topic{
		topicID: topicID,
		tree:    tree.New(viewerID),
		roster:  typing.NewRoster(viewerID),
		sink:    sink,
	}
	t.tree.Load(initial)

	t.sub = sub.SubscribeTopic(topicID, stream.TopicHandlers{
		OnMessage:  t.onMessage,
		OnReaction: t.onReaction,
		OnVote:     t.onVote,
		OnTyping:   t.onTyping,
	})
	return t
}

func (t *Topic) Snapshot() TopicSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TopicSnapshot{
		TopicID:  t.topicID,
		Messages: t.tree.Snapshot(),
		Typing:   t.roster.Names(t.topicID),
	}
}

// Close tears the mount down: no events are delivered past it and every
// roster timer is cancelled. Safe to call more than once.
func (t *Topic) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	if t.sub != nil {
		t.sub.Close()
	}
	t.roster.Close()
}

func (t *Topic) onMessage(ev stream.MessageEvent) {
	t.mu.Lock()
	var changed bool
	var action string
	var data interface{}

	switch ev.Type {
	case stream.EventInsert:
		if ev.New == nil {
			t.mu.Unlock()
			return
		}
		changed = t.tree.ApplyInsert(*ev.New)
		action, data = "message.insert", ev.New

	case stream.EventUpdate:
		if ev.New == nil {
			t.mu.Unlock()
			return
		}
		u := tree.MessageUpdate{
			ID:       ev.New.ID,
			Content:  &ev.New.Content,
			ImageURL: &ev.New.ImageURL,
			EditedAt: ev.New.EditedAt,
		}
		changed = t.tree.ApplyUpdate(u)
		action, data = "message.update", ev.New

	case stream.EventDelete:
		if ev.Old == nil {
			t.mu.Unlock()
			return
		}
		changed = t.tree.ApplyDelete(ev.Old.ID)
		action, data = "message.delete", map[string]string{"id": ev.Old.ID}
	}
	t.mu.Unlock()

	// Duplicates and orphaned replies change nothing and are not
	// forwarded, so the client never sees them twice either.
	if changed {
		t.forward(action, data)
	}
}

func (t *Topic) onReaction(ev stream.ReactionEvent) {
	t.mu.Lock()
	changed := t.tree.ApplyReaction(ev.MessageID, ev.Emoji, ev.Count, ev.Deleted)
	t.mu.Unlock()
	if changed {
		t.forward("reaction.update", ev)
	}
}

func (t *Topic) onVote(ev stream.VoteEvent) {
	t.mu.Lock()
	changed := t.tree.ApplyVote(ev.MessageID, ev.Upvotes, ev.Downvotes, ev.ActorID, ev.ActorVote)
	t.mu.Unlock()
	if changed {
		t.forward("vote.update", ev)
	}
}

func (t *Topic) onTyping(p models.TypingPayload) {
	if p.TopicID != t.topicID {
		return
	}
	t.mu.Lock()
	changed := t.roster.Apply(p)
	names := t.roster.Names(t.topicID)
	t.mu.Unlock()
	if changed {
		t.forward("typing.update", map[string]interface{}{
			"topic_id": t.topicID,
			"typing":   names,
		})
	}
}

func (t *Topic) forward(action string, data interface{}) {
	env, err := envelope.NewEvent(action, "turf", data)
	if err != nil {
		log.Printf("[SESSION] encode %s: %v", action, err)
		return
	}
	t.sink.Push(env)
}
