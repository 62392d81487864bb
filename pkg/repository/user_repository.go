package repository

import (
	"database/sql"

	"turf/pkg/models"
)

// UserRepository maintains the mirror of identities issued by the
// external auth provider, so display names can be joined locally.
type UserRepository interface {
	Upsert(id, username string) error
	ByUsername(username string) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Upsert(id, username string) error {
	_, err := r.db.Exec(`
		INSERT INTO users (id, username) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
	`, id, username)
	return err
}

func (r *userRepository) ByUsername(username string) (models.User, error) {
	var u models.User
	var avatar sql.NullString
	err := r.db.QueryRow(`
		SELECT id, username, avatar_url, created_at FROM users WHERE LOWER(username) = LOWER($1)
	`, username).Scan(&u.ID, &u.Username, &avatar, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	u.AvatarURL = avatar.String
	return u, nil
}
