package models

import "time"

// Vote state as seen by the viewing user. Only the viewer's own vote is
// ever reflected here.
const (
	VoteNone = "none"
	VoteUp   = "up"
	VoteDown = "down"
)

type Message struct {
	ID         string          `json:"id"`
	TopicID    string          `json:"topic_id"`
	AuthorID   string          `json:"author_id"`
	AuthorName string          `json:"author_name"`
	Content    string          `json:"content"`
	ImageURL   string          `json:"image_url,omitempty"`
	ParentID   *string         `json:"parent_id,omitempty"`
	Upvotes    int             `json:"upvotes"`
	Downvotes  int             `json:"downvotes"`
	UserVote   string          `json:"user_vote"`
	Reactions  []ReactionGroup `json:"reactions"`
	Replies    []Message       `json:"replies,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	EditedAt   *time.Time      `json:"edited_at,omitempty"`
}

// ReactionGroup is the aggregate view of one emoji on one message.
// At most one group per distinct emoji.
type ReactionGroup struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// VoteTally is the authoritative recount returned after any vote mutation.
type VoteTally struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}
