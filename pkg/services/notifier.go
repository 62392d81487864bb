package services

import (
	"log"
	"regexp"
	"strings"

	"turf/pkg/models"
	"turf/pkg/repository"
	"turf/pkg/stream"
)

var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_]+)`)

// Notifier creates notification rows and pushes them onto the per-user
// stream. Everything here is a background side effect of someone else's
// action: failures are logged and dropped, never surfaced to the actor.
type Notifier struct {
	repo  repository.NotificationRepository
	users repository.UserRepository
	pub   *stream.Publisher
}

func NewNotifier(repo repository.NotificationRepository, users repository.UserRepository, pub *stream.Publisher) *Notifier {
	return &Notifier{repo: repo, users: users, pub: pub}
}

// Notify persists and publishes one notification. Self-notifications are
// dropped.
func (n *Notifier) Notify(notification models.Notification) {
	if notification.UserID == "" || notification.UserID == notification.ActorID {
		return
	}
	created, err := n.repo.Create(notification)
	if err != nil {
		log.Printf("[NOTIFIER] create %s for user=%s: %v", notification.Type, notification.UserID, err)
		return
	}
	created.ActorName = notification.ActorName
	n.pub.NotificationCreated(created)
}

// Mentions scans message content for @username references and notifies
// each mentioned user that exists. Duplicate mentions collapse to one
// notification.
func (n *Notifier) Mentions(msg models.Message) {
	seen := make(map[string]bool)
	for _, m := range mentionRe.FindAllStringSubmatch(msg.Content, -1) {
		username := strings.ToLower(m[1])
		if seen[username] {
			continue
		}
		seen[username] = true

		user, err := n.users.ByUsername(username)
		if err != nil {
			continue
		}
		n.Notify(models.Notification{
			UserID:    user.ID,
			ActorID:   msg.AuthorID,
			ActorName: msg.AuthorName,
			Type:      models.NotificationMention,
			TopicID:   msg.TopicID,
			MessageID: msg.ID,
		})
	}
}
