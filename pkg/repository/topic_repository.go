package repository

import (
	"database/sql"
	"time"

	"turf/pkg/models"

	"github.com/google/uuid"
)

type TopicRepository interface {
	Create(title, question, creatorID string, ttl time.Duration) (models.Topic, error)
	Get(id string) (models.Topic, error)
	ListActive(limit int) ([]models.Topic, error)
	ListExpired(limit int) ([]models.Topic, error)
}

type topicRepository struct {
	db *sql.DB
}

func NewTopicRepository(db *sql.DB) TopicRepository {
	return &topicRepository{db: db}
}

func (r *topicRepository) Create(title, question, creatorID string, ttl time.Duration) (models.Topic, error) {
	t := models.Topic{
		ID:        uuid.NewString(),
		Title:     title,
		Question:  question,
		CreatorID: creatorID,
	}
	err := r.db.QueryRow(`
		INSERT INTO topics (id, title, question, creator_id, expires_at)
		VALUES ($1, $2, $3, $4, now() + $5 * INTERVAL '1 second')
		RETURNING created_at, expires_at
	`, t.ID, t.Title, t.Question, t.CreatorID, int(ttl.Seconds())).Scan(&t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		return models.Topic{}, err
	}
	return t, nil
}

const topicColumns = `
	t.id, t.title, t.question, COALESCE(t.creator_id, ''), t.created_at, t.expires_at,
	(SELECT COUNT(*) FROM messages m WHERE m.topic_id = t.id) AS message_count`

func (r *topicRepository) Get(id string) (models.Topic, error) {
	var t models.Topic
	err := r.db.QueryRow(`
		SELECT `+topicColumns+` FROM topics t WHERE t.id = $1
	`, id).Scan(&t.ID, &t.Title, &t.Question, &t.CreatorID, &t.CreatedAt, &t.ExpiresAt, &t.MessageCount)
	if err == sql.ErrNoRows {
		return models.Topic{}, ErrNotFound
	}
	return t, err
}

func (r *topicRepository) ListActive(limit int) ([]models.Topic, error) {
	return r.list(`WHERE t.expires_at > now() ORDER BY t.created_at DESC`, limit)
}

func (r *topicRepository) ListExpired(limit int) ([]models.Topic, error) {
	return r.list(`WHERE t.expires_at <= now() ORDER BY t.expires_at DESC`, limit)
}

func (r *topicRepository) list(filter string, limit int) ([]models.Topic, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT `+topicColumns+` FROM topics t `+filter+` LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := []models.Topic{}
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.Question, &t.CreatorID, &t.CreatedAt, &t.ExpiresAt, &t.MessageCount); err != nil {
			continue
		}
		topics = append(topics, t)
	}
	return topics, nil
}
