package handlers

import (
	"log"

	"turf/pkg/repository"

	"github.com/gofiber/fiber/v2"
)

// NotificationHandler is the REST mirror of the live feed, for clients
// that poll instead of holding a socket open.
type NotificationHandler struct {
	repo repository.NotificationRepository
}

func NewNotification(repo repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	items, err := h.repo.Recent(c.Context(), userID, c.QueryInt("limit", 50))
	if err != nil {
		log.Printf("[NOTIFICATIONS] list user=%s: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load notifications"})
	}

	unread := 0
	for i := range items {
		if !items[i].Read {
			unread++
		}
	}
	return c.JSON(fiber.Map{"notifications": items, "unread_count": unread})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if err := h.repo.MarkRead(c.Context(), userID, c.Params("id")); err != nil {
		log.Printf("[NOTIFICATIONS] mark read %s: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to mark read"})
	}
	return c.JSON(fiber.Map{"status": "read"})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if err := h.repo.MarkAllRead(c.Context(), userID); err != nil {
		log.Printf("[NOTIFICATIONS] mark all read user=%s: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to mark read"})
	}
	return c.JSON(fiber.Map{"status": "read"})
}
