package models

// TypingPayload is the ephemeral presence broadcast. Never persisted,
// at-most-once delivery, no acknowledgment.
type TypingPayload struct {
	TopicID  string `json:"topic_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}
