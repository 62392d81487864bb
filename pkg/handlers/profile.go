package handlers

import (
	"errors"
	"fmt"
	"log"
	"time"

	"turf/pkg/cache"
	"turf/pkg/models"
	"turf/pkg/repository"

	"github.com/gofiber/fiber/v2"
)

const profileTTL = 30 * time.Second

// ProfileHandler serves another user's public message history.
type ProfileHandler struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	cache    *cache.Redis
}

func NewProfile(users repository.UserRepository, messages repository.MessageRepository, c *cache.Redis) *ProfileHandler {
	return &ProfileHandler{users: users, messages: messages, cache: c}
}

func (h *ProfileHandler) Messages(c *fiber.Ctx) error {
	username := c.Params("username")
	limit := c.QueryInt("limit", 100)

	// Only anonymous views are cacheable; a signed-in viewer's copy
	// carries their own vote state.
	viewerID, _ := c.Locals("user_id").(string)
	key := fmt.Sprintf("profile:%s:%d", username, limit)
	if viewerID == "" {
		var cached []models.Message
		if h.cache.Get(key, &cached) {
			return c.JSON(cached)
		}
	}

	user, err := h.users.ByUsername(username)
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}
	if err != nil {
		log.Printf("[PROFILE] lookup %s: %v", username, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load profile"})
	}

	msgs, err := h.messages.AuthorMessages(user.ID, viewerID, limit)
	if err != nil {
		log.Printf("[PROFILE] messages %s: %v", username, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load messages"})
	}

	if viewerID == "" {
		h.cache.Set(key, msgs, profileTTL)
	}
	return c.JSON(msgs)
}
