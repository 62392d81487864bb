// Package typing implements the ephemeral presence layer: "user is
// typing" broadcasts with no persistence, no retry and no acknowledgment.
// A lost stop-broadcast leaves a stale indicator that self-heals via the
// receiver-side eviction timeout.
package typing

import (
	"sort"
	"sync"
	"time"

	"turf/pkg/models"
)

// Silence is how long a typing entry lives without a refresh, on both the
// sender (auto-stop) and receiver (eviction) side.
const Silence = 3 * time.Second

// Sender publishes a typing broadcast. *stream.Publisher satisfies it.
type Sender interface {
	Typing(payload models.TypingPayload)
}

// Broadcaster is the sender side for one connected user. The first
// keystroke of a burst publishes isTyping:true; further keystrokes only
// re-arm the silence timer, so one burst costs one broadcast.
type Broadcaster struct {
	sender   Sender
	userID   string
	username string
	silence  time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	active map[string]bool
	closed bool
}

func NewBroadcaster(sender Sender, userID, username string) *Broadcaster {
	return &Broadcaster{
		sender:   sender,
		userID:   userID,
		username: username,
		silence:  Silence,
		timers:   make(map[string]*time.Timer),
		active:   make(map[string]bool),
	}
}

func (b *Broadcaster) StartTyping(topicID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if !b.active[topicID] {
		b.active[topicID] = true
		b.sender.Typing(b.payload(topicID, true))
	}

	if t, ok := b.timers[topicID]; ok {
		t.Reset(b.silence)
		return
	}
	b.timers[topicID] = time.AfterFunc(b.silence, func() {
		b.StopTyping(topicID)
	})
}

// StopTyping announces the end of a burst. Called on explicit stop, after
// the silence timeout, or via MessageSent on submit.
func (b *Broadcaster) StopTyping(topicID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if t, ok := b.timers[topicID]; ok {
		t.Stop()
		delete(b.timers, topicID)
	}
	if b.active[topicID] {
		delete(b.active, topicID)
		b.sender.Typing(b.payload(topicID, false))
	}
}

func (b *Broadcaster) MessageSent(topicID string) {
	b.StopTyping(topicID)
}

// Close cancels every pending timer so nothing fires against a stale
// scope after teardown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = make(map[string]*time.Timer)
	b.active = make(map[string]bool)
}

func (b *Broadcaster) payload(topicID string, isTyping bool) models.TypingPayload {
	return models.TypingPayload{
		TopicID:  topicID,
		UserID:   b.userID,
		Username: b.username,
		IsTyping: isTyping,
	}
}

// Roster is the receiver side: the rolling set of currently-typing
// display names per topic, for one viewing user. Broadcasts from the
// viewer themselves are ignored. Every add re-arms an eviction timer so a
// dropped stop-broadcast clears itself after the silence window.
type Roster struct {
	viewerID string
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]map[string]*time.Timer
	closed  bool
}

func NewRoster(viewerID string) *Roster {
	return &Roster{
		viewerID: viewerID,
		ttl:      Silence,
		entries:  make(map[string]map[string]*time.Timer),
	}
}

// Apply folds one broadcast into the roster and reports whether the set
// for that topic changed.
func (r *Roster) Apply(p models.TypingPayload) bool {
	if p.UserID == r.viewerID {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	topic := r.entries[p.TopicID]

	if !p.IsTyping {
		t, ok := topic[p.Username]
		if !ok {
			return false
		}
		t.Stop()
		delete(topic, p.Username)
		if len(topic) == 0 {
			delete(r.entries, p.TopicID)
		}
		return true
	}

	if topic == nil {
		topic = make(map[string]*time.Timer)
		r.entries[p.TopicID] = topic
	}
	if t, ok := topic[p.Username]; ok {
		t.Reset(r.ttl)
		return false
	}
	topicID, username := p.TopicID, p.Username
	topic[username] = time.AfterFunc(r.ttl, func() {
		r.evict(topicID, username)
	})
	return true
}

// Names lists who is typing in a topic, sorted for stable output.
func (r *Roster) Names(topicID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topic := r.entries[topicID]
	names := make([]string, 0, len(topic))
	for name := range topic {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Roster) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, topic := range r.entries {
		for _, t := range topic {
			t.Stop()
		}
	}
	r.entries = make(map[string]map[string]*time.Timer)
}

func (r *Roster) evict(topicID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	topic := r.entries[topicID]
	if _, ok := topic[username]; !ok {
		return
	}
	delete(topic, username)
	if len(topic) == 0 {
		delete(r.entries, topicID)
	}
}
