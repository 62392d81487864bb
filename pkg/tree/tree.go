// Package tree keeps the live in-memory projection of one topic's
// messages: top-level messages in arrival order, one level of nested
// replies, reaction aggregates and vote tallies.
//
// The transport behind it is at-least-once with no cross-stream ordering,
// so every apply operation is idempotent and order-tolerant: duplicate
// inserts, updates to unknown ids and deletes of absent ids are all
// silent no-ops. The projection can always be rebuilt with Load from a
// full fetch.
package tree

import (
	"time"

	"turf/pkg/models"
)

// Tree stores messages in an arena keyed by id. Top-level ordering and
// per-parent reply ordering live in separate id lists, so "find the
// message wherever it sits" is a single map lookup.
type Tree struct {
	viewerID string

	arena   map[string]*models.Message
	order   []string
	replies map[string][]string
}

func New(viewerID string) *Tree {
	return &Tree{
		viewerID: viewerID,
		arena:    make(map[string]*models.Message),
		replies:  make(map[string][]string),
	}
}

// Load replaces the whole projection from an initial fetch.
func (t *Tree) Load(msgs []models.Message) {
	t.arena = make(map[string]*models.Message)
	t.order = t.order[:0]
	t.replies = make(map[string][]string)
	for i := range msgs {
		m := msgs[i]
		replies := m.Replies
		m.Replies = nil
		t.ApplyInsert(m)
		for j := range replies {
			t.ApplyInsert(replies[j])
		}
	}
}

// ApplyInsert attaches a message and reports whether it was newly added.
// A duplicate id is a no-op. A reply whose parent is not present locally
// is dropped silently: the transport does not guarantee causal delivery,
// and the reply will come back on the next full fetch.
func (t *Tree) ApplyInsert(msg models.Message) bool {
	if _, ok := t.arena[msg.ID]; ok {
		return false
	}

	if msg.ParentID == nil {
		msg.Replies = nil
		t.arena[msg.ID] = &msg
		t.order = append(t.order, msg.ID)
		return true
	}

	parent, ok := t.arena[*msg.ParentID]
	if !ok || parent.ParentID != nil {
		return false
	}
	msg.Replies = nil
	t.arena[msg.ID] = &msg
	t.replies[parent.ID] = append(t.replies[parent.ID], msg.ID)
	return true
}

// MessageUpdate is the partial shape of an update event; nil fields are
// left untouched.
type MessageUpdate struct {
	ID       string     `json:"id"`
	Content  *string    `json:"content,omitempty"`
	ImageURL *string    `json:"image_url,omitempty"`
	EditedAt *time.Time `json:"edited_at,omitempty"`
}

// ApplyUpdate merges fields into the matching message wherever it sits.
// Unknown id is a no-op.
func (t *Tree) ApplyUpdate(u MessageUpdate) bool {
	m, ok := t.arena[u.ID]
	if !ok {
		return false
	}
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.ImageURL != nil {
		m.ImageURL = *u.ImageURL
	}
	if u.EditedAt != nil {
		m.EditedAt = u.EditedAt
	}
	return true
}

// ApplyDelete removes a message. Deleting a top-level message discards its
// replies with it; deleting an absent id is a no-op.
func (t *Tree) ApplyDelete(id string) bool {
	m, ok := t.arena[id]
	if !ok {
		return false
	}

	if m.ParentID == nil {
		for _, rid := range t.replies[id] {
			delete(t.arena, rid)
		}
		delete(t.replies, id)
		t.order = removeID(t.order, id)
	} else {
		t.replies[*m.ParentID] = removeID(t.replies[*m.ParentID], id)
	}
	delete(t.arena, id)
	return true
}

// ApplyReaction replaces the aggregate entry for one emoji, keeping at
// most one entry per emoji. A deleted or zero-count aggregate removes the
// entry.
func (t *Tree) ApplyReaction(messageID, emoji string, count int, deleted bool) bool {
	m, ok := t.arena[messageID]
	if !ok {
		return false
	}

	kept := m.Reactions[:0]
	for _, r := range m.Reactions {
		if r.Emoji != emoji {
			kept = append(kept, r)
		}
	}
	m.Reactions = kept
	if !deleted && count > 0 {
		m.Reactions = append(m.Reactions, models.ReactionGroup{Emoji: emoji, Count: count})
	}
	return true
}

// ApplyVote overwrites the tallies from the authoritative recount. The
// viewer's own vote indicator changes only when the acting user is the
// viewer; another user's vote never touches it.
func (t *Tree) ApplyVote(messageID string, upvotes, downvotes int, actorID, actorVote string) bool {
	m, ok := t.arena[messageID]
	if !ok {
		return false
	}
	if upvotes < 0 {
		upvotes = 0
	}
	if downvotes < 0 {
		downvotes = 0
	}
	m.Upvotes = upvotes
	m.Downvotes = downvotes
	if actorID == t.viewerID {
		m.UserVote = actorVote
	}
	return true
}

// Len counts every message in the projection, replies included.
func (t *Tree) Len() int {
	return len(t.arena)
}

// Get returns a copy of one message without its replies.
func (t *Tree) Get(id string) (models.Message, bool) {
	m, ok := t.arena[id]
	if !ok {
		return models.Message{}, false
	}
	return t.copyOf(m), true
}

// Snapshot returns a deep copy of the projection in top-level order, with
// replies nested under their parents.
func (t *Tree) Snapshot() []models.Message {
	out := make([]models.Message, 0, len(t.order))
	for _, id := range t.order {
		m := t.copyOf(t.arena[id])
		rids := t.replies[id]
		m.Replies = make([]models.Message, 0, len(rids))
		for _, rid := range rids {
			m.Replies = append(m.Replies, t.copyOf(t.arena[rid]))
		}
		out = append(out, m)
	}
	return out
}

func (t *Tree) copyOf(m *models.Message) models.Message {
	c := *m
	c.Replies = nil
	if m.Reactions != nil {
		c.Reactions = append([]models.ReactionGroup(nil), m.Reactions...)
	}
	return c
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
