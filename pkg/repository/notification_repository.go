package repository

import (
	"context"
	"database/sql"

	"turf/pkg/models"

	"github.com/google/uuid"
)

// NotificationRepository persists notifications and satisfies
// notify.Store for the fan-in layer.
type NotificationRepository interface {
	Create(n models.Notification) (models.Notification, error)
	Recent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) error
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(n models.Notification) (models.Notification, error) {
	n.ID = uuid.NewString()
	n.Read = false
	err := r.db.QueryRow(`
		INSERT INTO notifications (id, user_id, actor_id, type, topic_id, message_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING created_at
	`, n.ID, n.UserID, n.ActorID, n.Type, n.TopicID, n.MessageID).Scan(&n.CreatedAt)
	if err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

func (r *notificationRepository) Recent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT n.id, n.user_id, COALESCE(n.actor_id, ''), COALESCE(u.username, ''),
		       n.type, COALESCE(n.topic_id, ''), COALESCE(n.message_id, ''), n.read, n.created_at
		FROM notifications n
		LEFT JOIN users u ON u.id = n.actor_id
		WHERE n.user_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ActorID, &n.ActorName,
			&n.Type, &n.TopicID, &n.MessageID, &n.Read, &n.CreatedAt); err != nil {
			continue
		}
		items = append(items, n)
	}
	return items, nil
}

// MarkRead is monotonic: the read flag only ever goes false to true.
func (r *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2
	`, id, userID)
	return err
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE user_id = $1 AND read = false
	`, userID)
	return err
}
