package handlers

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"turf/pkg/cache"
	"turf/pkg/models"
	"turf/pkg/repository"

	"github.com/gofiber/fiber/v2"
)

const (
	topicListTTL = 15 * time.Second
	maxTitleLen  = 200
)

type TopicHandler struct {
	topics   repository.TopicRepository
	messages repository.MessageRepository
	cache    *cache.Redis
	topicTTL time.Duration
}

func NewTopic(topics repository.TopicRepository, messages repository.MessageRepository, c *cache.Redis, topicTTL time.Duration) *TopicHandler {
	return &TopicHandler{topics: topics, messages: messages, cache: c, topicTTL: topicTTL}
}

// List serves GET /topics. Defaults to topics still open for new
// messages; ?state=expired returns the archive.
func (h *TopicHandler) List(c *fiber.Ctx) error {
	state := c.Query("state", "active")
	limit := c.QueryInt("limit", 50)

	key := fmt.Sprintf("topics:%s:%d", state, limit)
	var cached []models.Topic
	if h.cache.Get(key, &cached) {
		return c.JSON(cached)
	}

	var (
		topics []models.Topic
		err    error
	)
	if state == "expired" {
		topics, err = h.topics.ListExpired(limit)
	} else {
		topics, err = h.topics.ListActive(limit)
	}
	if err != nil {
		log.Printf("[TOPICS] list %s: %v", state, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to list topics"})
	}

	h.cache.Set(key, topics, topicListTTL)
	return c.JSON(topics)
}

func (h *TopicHandler) Get(c *fiber.Ctx) error {
	topic, err := h.topics.Get(c.Params("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "topic not found"})
	}
	if err != nil {
		log.Printf("[TOPICS] get %s: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load topic"})
	}
	return c.JSON(topic)
}

func (h *TopicHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Title    string `json:"title"`
		Question string `json:"question"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Question = strings.TrimSpace(req.Question)
	if req.Title == "" {
		return c.Status(400).JSON(fiber.Map{"error": "title required"})
	}
	if len(req.Title) > maxTitleLen {
		return c.Status(400).JSON(fiber.Map{"error": "title too long"})
	}

	creatorID, _ := c.Locals("user_id").(string)
	topic, err := h.topics.Create(req.Title, req.Question, creatorID, h.topicTTL)
	if err != nil {
		log.Printf("[TOPICS] create: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create topic"})
	}

	h.cache.DelPattern("topics:*")
	log.Printf("[TOPICS] created id=%s creator=%s", topic.ID, creatorID)
	return c.Status(201).JSON(topic)
}

// Messages serves GET /topics/:id/messages, the initial load a client
// renders before (or instead of) opening a live session. The viewer's
// own votes are resolved when the request carries a token.
func (h *TopicHandler) Messages(c *fiber.Ctx) error {
	topicID := c.Params("id")
	if _, err := h.topics.Get(topicID); errors.Is(err, repository.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "topic not found"})
	}

	viewerID, _ := c.Locals("user_id").(string)
	msgs, err := h.messages.TopicMessages(topicID, viewerID, c.QueryInt("limit", 0))
	if err != nil {
		log.Printf("[TOPICS] messages %s: %v", topicID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load messages"})
	}
	return c.JSON(msgs)
}
