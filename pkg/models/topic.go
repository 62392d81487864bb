package models

import "time"

// Topic is a time-boxed discussion scope ("Circle"). Once ExpiresAt has
// passed no new top-level messages are accepted; replies stay open so
// running threads can finish.
type Topic struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Question     string    `json:"question"`
	CreatorID    string    `json:"creator_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (t Topic) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
