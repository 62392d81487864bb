package repository

import (
	"database/sql"
	"time"

	"turf/pkg/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type CreateMessage struct {
	TopicID    string
	AuthorID   string
	AuthorName string
	Content    string
	ImageURL   string
	ParentID   *string
}

// VoteResult is the authoritative outcome of a vote cast: the recount,
// the state the actor's vote landed in, and enough context to publish the
// event and fan out a notification.
type VoteResult struct {
	Tally    models.VoteTally
	State    string
	TopicID  string
	AuthorID string
}

type ReactionResult struct {
	Count    int
	Deleted  bool
	TopicID  string
	AuthorID string
}

type MessageRepository interface {
	TopicMessages(topicID, viewerID string, limit int) ([]models.Message, error)
	Get(id, viewerID string) (models.Message, error)
	AuthorMessages(authorID, viewerID string, limit int) ([]models.Message, error)
	Create(p CreateMessage) (models.Message, error)
	Edit(id, authorID, content string) (models.Message, error)
	Delete(id, authorID string) (models.Message, error)
	DeleteByModerator(id string) (models.Message, error)
	CastVote(messageID, userID, direction string) (VoteResult, error)
	RecountVotes(messageID string) (models.VoteTally, error)
	ToggleReaction(messageID, userID, emoji string) (ReactionResult, error)
}

type messageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `
	m.id, m.topic_id, COALESCE(m.author_id, ''), COALESCE(u.username, ''),
	m.content, COALESCE(m.image_url, ''), m.parent_id, m.created_at, m.edited_at,
	COALESCE(v.up, 0), COALESCE(v.down, 0), COALESCE(mv.value, 0)`

const messageJoins = `
	LEFT JOIN users u ON u.id = m.author_id
	LEFT JOIN LATERAL (
		SELECT COUNT(*) FILTER (WHERE value = 1)  AS up,
		       COUNT(*) FILTER (WHERE value = -1) AS down
		FROM message_votes WHERE message_id = m.id
	) v ON true
	LEFT JOIN message_votes mv ON mv.message_id = m.id AND mv.user_id = $1`

func scanMessage(scan func(...interface{}) error) (models.Message, error) {
	var m models.Message
	var parentID sql.NullString
	var editedAt sql.NullTime
	var viewerVote int
	err := scan(
		&m.ID, &m.TopicID, &m.AuthorID, &m.AuthorName,
		&m.Content, &m.ImageURL, &parentID, &m.CreatedAt, &editedAt,
		&m.Upvotes, &m.Downvotes, &viewerVote,
	)
	if err != nil {
		return models.Message{}, err
	}
	if parentID.Valid {
		m.ParentID = &parentID.String
	}
	if editedAt.Valid {
		m.EditedAt = &editedAt.Time
	}
	m.UserVote = voteState(viewerVote)
	m.Reactions = []models.ReactionGroup{}
	m.Replies = []models.Message{}
	return m, nil
}

func voteState(value int) string {
	switch value {
	case 1:
		return models.VoteUp
	case -1:
		return models.VoteDown
	}
	return models.VoteNone
}

// TopicMessages loads the top-level messages of a topic in creation
// order, with first-level replies and reaction aggregates batch-loaded to
// avoid an N+1.
func (r *messageRepository) TopicMessages(topicID, viewerID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT `+messageColumns+`
		FROM messages m`+messageJoins+`
		WHERE m.topic_id = $2 AND m.parent_id IS NULL
		ORDER BY m.created_at ASC
		LIMIT $3
	`, viewerID, topicID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	var ids []string
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			continue
		}
		ids = append(ids, m.ID)
		messages = append(messages, m)
	}

	if len(ids) == 0 {
		return messages, nil
	}

	repliesMap, err := r.batchLoadReplies(ids, viewerID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if replies, ok := repliesMap[messages[i].ID]; ok {
			messages[i].Replies = replies
			for j := range replies {
				ids = append(ids, replies[j].ID)
			}
		}
	}

	reactions, err := r.batchLoadReactions(ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if groups, ok := reactions[messages[i].ID]; ok {
			messages[i].Reactions = groups
		}
		for j := range messages[i].Replies {
			if groups, ok := reactions[messages[i].Replies[j].ID]; ok {
				messages[i].Replies[j].Reactions = groups
			}
		}
	}

	return messages, nil
}

func (r *messageRepository) batchLoadReplies(parentIDs []string, viewerID string) (map[string][]models.Message, error) {
	rows, err := r.db.Query(`
		SELECT `+messageColumns+`
		FROM messages m`+messageJoins+`
		WHERE m.parent_id = ANY($2)
		ORDER BY m.created_at ASC
	`, viewerID, pq.Array(parentIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]models.Message, len(parentIDs))
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			continue
		}
		if m.ParentID != nil {
			result[*m.ParentID] = append(result[*m.ParentID], m)
		}
	}
	return result, nil
}

func (r *messageRepository) batchLoadReactions(messageIDs []string) (map[string][]models.ReactionGroup, error) {
	rows, err := r.db.Query(`
		SELECT message_id, emoji, COUNT(*)
		FROM message_reactions
		WHERE message_id = ANY($1)
		GROUP BY message_id, emoji
		ORDER BY message_id, emoji
	`, pq.Array(messageIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]models.ReactionGroup)
	for rows.Next() {
		var id string
		var g models.ReactionGroup
		if err := rows.Scan(&id, &g.Emoji, &g.Count); err != nil {
			continue
		}
		result[id] = append(result[id], g)
	}
	return result, nil
}

func (r *messageRepository) Get(id, viewerID string) (models.Message, error) {
	m, err := scanMessage(r.db.QueryRow(`
		SELECT `+messageColumns+`
		FROM messages m`+messageJoins+`
		WHERE m.id = $2
	`, viewerID, id).Scan)
	if err == sql.ErrNoRows {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	reactions, err := r.batchLoadReactions([]string{m.ID})
	if err == nil {
		if groups, ok := reactions[m.ID]; ok {
			m.Reactions = groups
		}
	}
	return m, nil
}

// AuthorMessages is the flat profile feed, newest first.
func (r *messageRepository) AuthorMessages(authorID, viewerID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT `+messageColumns+`
		FROM messages m`+messageJoins+`
		WHERE m.author_id = $2
		ORDER BY m.created_at DESC
		LIMIT $3
	`, viewerID, authorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Create inserts a message. Replies to replies are flattened onto the
// top-level parent (one nesting level only), and expired topics refuse
// new top-level messages while letting running threads finish.
func (r *messageRepository) Create(p CreateMessage) (models.Message, error) {
	var expiresAt time.Time
	err := r.db.QueryRow(`SELECT expires_at FROM topics WHERE id = $1`, p.TopicID).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if p.ParentID != nil {
		var parentTopic string
		var grandparent sql.NullString
		err := r.db.QueryRow(`
			SELECT topic_id, parent_id FROM messages WHERE id = $1
		`, *p.ParentID).Scan(&parentTopic, &grandparent)
		if err == sql.ErrNoRows {
			return models.Message{}, ErrNotFound
		}
		if err != nil {
			return models.Message{}, err
		}
		if parentTopic != p.TopicID {
			return models.Message{}, ErrNotFound
		}
		if grandparent.Valid {
			p.ParentID = &grandparent.String
		}
	} else if time.Now().After(expiresAt) {
		return models.Message{}, ErrTopicExpired
	}

	m := models.Message{
		ID:         uuid.NewString(),
		TopicID:    p.TopicID,
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
		Content:    p.Content,
		ImageURL:   p.ImageURL,
		ParentID:   p.ParentID,
		UserVote:   models.VoteNone,
		Reactions:  []models.ReactionGroup{},
		Replies:    []models.Message{},
	}

	var imageURL interface{}
	if p.ImageURL != "" {
		imageURL = p.ImageURL
	}
	err = r.db.QueryRow(`
		INSERT INTO messages (id, topic_id, author_id, content, image_url, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, m.TopicID, m.AuthorID, m.Content, imageURL, m.ParentID).Scan(&m.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	return m, nil
}

func (r *messageRepository) Edit(id, authorID, content string) (models.Message, error) {
	res, err := r.db.Exec(`
		UPDATE messages SET content = $1, edited_at = now()
		WHERE id = $2 AND author_id = $3
	`, content, id, authorID)
	if err != nil {
		return models.Message{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Message{}, r.missingOrForbidden(id)
	}
	return r.Get(id, authorID)
}

func (r *messageRepository) Delete(id, authorID string) (models.Message, error) {
	old, err := r.Get(id, authorID)
	if err != nil {
		return models.Message{}, err
	}
	if old.AuthorID != authorID {
		return models.Message{}, ErrNotAuthor
	}
	if _, err := r.db.Exec(`DELETE FROM messages WHERE id = $1 AND author_id = $2`, id, authorID); err != nil {
		return models.Message{}, err
	}
	return old, nil
}

func (r *messageRepository) DeleteByModerator(id string) (models.Message, error) {
	old, err := r.Get(id, "")
	if err != nil {
		return models.Message{}, err
	}
	if _, err := r.db.Exec(`DELETE FROM messages WHERE id = $1`, id); err != nil {
		return models.Message{}, err
	}
	return old, nil
}

// CastVote applies the canonical vote transition: casting the direction
// you already hold toggles it off, casting the opposite direction
// switches in one step. The returned tally is always a fresh recount,
// never client arithmetic.
func (r *messageRepository) CastVote(messageID, userID, direction string) (VoteResult, error) {
	value := 1
	if direction == models.VoteDown {
		value = -1
	}

	var result VoteResult
	err := r.db.QueryRow(`
		SELECT topic_id, COALESCE(author_id, '') FROM messages WHERE id = $1
	`, messageID).Scan(&result.TopicID, &result.AuthorID)
	if err == sql.ErrNoRows {
		return VoteResult{}, ErrNotFound
	}
	if err != nil {
		return VoteResult{}, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return VoteResult{}, err
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRow(`
		SELECT value FROM message_votes WHERE user_id = $1 AND message_id = $2 FOR UPDATE
	`, userID, messageID).Scan(&current)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO message_votes (user_id, message_id, value) VALUES ($1, $2, $3)
		`, userID, messageID, value)
		result.State = voteState(value)
	case err != nil:
		return VoteResult{}, err
	case current == value:
		_, err = tx.Exec(`
			DELETE FROM message_votes WHERE user_id = $1 AND message_id = $2
		`, userID, messageID)
		result.State = models.VoteNone
	default:
		_, err = tx.Exec(`
			UPDATE message_votes SET value = $3 WHERE user_id = $1 AND message_id = $2
		`, userID, messageID, value)
		result.State = voteState(value)
	}
	if err != nil {
		return VoteResult{}, err
	}

	err = tx.QueryRow(`
		SELECT COUNT(*) FILTER (WHERE value = 1), COUNT(*) FILTER (WHERE value = -1)
		FROM message_votes WHERE message_id = $1
	`, messageID).Scan(&result.Tally.Upvotes, &result.Tally.Downvotes)
	if err != nil {
		return VoteResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return VoteResult{}, err
	}
	return result, nil
}

func (r *messageRepository) RecountVotes(messageID string) (models.VoteTally, error) {
	var t models.VoteTally
	err := r.db.QueryRow(`
		SELECT COUNT(*) FILTER (WHERE value = 1), COUNT(*) FILTER (WHERE value = -1)
		FROM message_votes WHERE message_id = $1
	`, messageID).Scan(&t.Upvotes, &t.Downvotes)
	return t, err
}

// ToggleReaction adds the user's reaction if absent, removes it if
// present, and returns the resulting aggregate for that emoji.
func (r *messageRepository) ToggleReaction(messageID, userID, emoji string) (ReactionResult, error) {
	var result ReactionResult
	err := r.db.QueryRow(`
		SELECT topic_id, COALESCE(author_id, '') FROM messages WHERE id = $1
	`, messageID).Scan(&result.TopicID, &result.AuthorID)
	if err == sql.ErrNoRows {
		return ReactionResult{}, ErrNotFound
	}
	if err != nil {
		return ReactionResult{}, err
	}

	var dummy int
	err = r.db.QueryRow(`
		INSERT INTO message_reactions (user_id, message_id, emoji) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, message_id, emoji) DO NOTHING
		RETURNING 1
	`, userID, messageID, emoji).Scan(&dummy)
	if err == sql.ErrNoRows {
		// Already present: toggle off.
		if _, err := r.db.Exec(`
			DELETE FROM message_reactions WHERE user_id = $1 AND message_id = $2 AND emoji = $3
		`, userID, messageID, emoji); err != nil {
			return ReactionResult{}, err
		}
	} else if err != nil {
		return ReactionResult{}, err
	}

	err = r.db.QueryRow(`
		SELECT COUNT(*) FROM message_reactions WHERE message_id = $1 AND emoji = $2
	`, messageID, emoji).Scan(&result.Count)
	if err != nil {
		return ReactionResult{}, err
	}
	result.Deleted = result.Count == 0
	return result, nil
}

func (r *messageRepository) missingOrForbidden(id string) error {
	var exists int
	if err := r.db.QueryRow(`SELECT 1 FROM messages WHERE id = $1`, id).Scan(&exists); err == sql.ErrNoRows {
		return ErrNotFound
	}
	return ErrNotAuthor
}
