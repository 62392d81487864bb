package models

import "time"

// User mirrors the identity record issued by the external auth provider.
// Turf never stores credentials; this row exists so messages and
// notifications can join against a display name.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
