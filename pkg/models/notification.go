package models

import "time"

type NotificationType string

const (
	NotificationFollow     NotificationType = "follow"
	NotificationLike       NotificationType = "like"
	NotificationMention    NotificationType = "mention"
	NotificationReply      NotificationType = "reply"
	NotificationAdminAlert NotificationType = "admin_alert"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	ActorID   string           `json:"actor_id"`
	ActorName string           `json:"actor_name"`
	Type      NotificationType `json:"type"`
	TopicID   string           `json:"topic_id,omitempty"`
	MessageID string           `json:"message_id,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
