package stream

import "turf/pkg/models"

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Stream names double as the envelope Service field on the wire.
const (
	StreamMessages      = "messages"
	StreamReactions     = "message_reactions"
	StreamVotes         = "message_votes"
	StreamNotifications = "notifications"
	StreamTyping        = "typing"
)

// MessageEvent carries a message mutation. New is set on insert/update,
// Old on update/delete.
type MessageEvent struct {
	Type EventType       `json:"event_type"`
	New  *models.Message `json:"new,omitempty"`
	Old  *models.Message `json:"old,omitempty"`
}

// ReactionEvent carries the post-mutation aggregate for one emoji on one
// message. Deleted means the aggregate dropped to zero and the entry goes
// away entirely.
type ReactionEvent struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	Count     int    `json:"count"`
	Deleted   bool   `json:"deleted"`
}

// VoteEvent carries the authoritative recount after a vote mutation.
// ActorID identifies whose vote changed and ActorVote the state it landed
// in (none|up|down); receivers must only touch their own vote indicator
// when ActorID matches their viewer.
type VoteEvent struct {
	MessageID string `json:"message_id"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	ActorID   string `json:"actor_id"`
	ActorVote string `json:"actor_vote"`
}

type NotificationEvent struct {
	Type EventType            `json:"event_type"`
	New  *models.Notification `json:"new,omitempty"`
}
