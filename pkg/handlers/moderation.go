package handlers

import (
	"errors"
	"log"
	"strings"

	"turf/pkg/models"
	"turf/pkg/repository"
	"turf/pkg/services"
	"turf/pkg/stream"

	"github.com/gofiber/fiber/v2"
)

// ModerationHandler covers the report flow: users file reports, admins
// review them. Approving a report removes the offending message and the
// deletion rides the same change stream as an author delete, so every
// open session converges without special casing.
type ModerationHandler struct {
	reports  repository.ReportRepository
	messages repository.MessageRepository
	pub      *stream.Publisher
	notifier *services.Notifier
}

func NewModeration(reports repository.ReportRepository, messages repository.MessageRepository, pub *stream.Publisher, notifier *services.Notifier) *ModerationHandler {
	return &ModerationHandler{reports: reports, messages: messages, pub: pub, notifier: notifier}
}

func (h *ModerationHandler) CreateReport(c *fiber.Ctx) error {
	var req struct {
		MessageID string `json:"message_id"`
		Reason    string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	req.Reason = strings.TrimSpace(req.Reason)
	if req.MessageID == "" || req.Reason == "" {
		return c.Status(400).JSON(fiber.Map{"error": "message_id and reason required"})
	}

	if _, err := h.messages.Get(req.MessageID, ""); errors.Is(err, repository.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "message not found"})
	}

	reporterID, _ := c.Locals("user_id").(string)
	report, err := h.reports.Create(reporterID, req.MessageID, req.Reason)
	if err != nil {
		log.Printf("[MODERATION] create report: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create report"})
	}

	log.Printf("[MODERATION] report filed id=%s message=%s", report.ID, req.MessageID)
	return c.Status(201).JSON(report)
}

func (h *ModerationHandler) ListReports(c *fiber.Ctx) error {
	reports, err := h.reports.ListPending(c.QueryInt("limit", 50))
	if err != nil {
		log.Printf("[MODERATION] list reports: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to list reports"})
	}
	return c.JSON(reports)
}

// Resolve serves POST /admin/reports/:id. Approval deletes the reported
// message, publishes the deletion, and alerts the author.
func (h *ModerationHandler) Resolve(c *fiber.Ctx) error {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	var status string
	switch req.Action {
	case "approve":
		status = models.ReportApproved
	case "reject":
		status = models.ReportRejected
	default:
		return c.Status(400).JSON(fiber.Map{"error": "action must be approve or reject"})
	}

	report, err := h.reports.Resolve(c.Params("id"), status)
	if errors.Is(err, repository.ErrNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "no pending report with that id"})
	}
	if err != nil {
		log.Printf("[MODERATION] resolve %s: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to resolve report"})
	}

	if status == models.ReportApproved {
		old, err := h.messages.DeleteByModerator(report.MessageID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[MODERATION] delete message %s: %v", report.MessageID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to remove message"})
		}
		if err == nil {
			h.pub.MessageDeleted(old)
			h.notifier.Notify(models.Notification{
				UserID:    old.AuthorID,
				ActorName: "moderation",
				Type:      models.NotificationAdminAlert,
				TopicID:   old.TopicID,
				MessageID: old.ID,
			})
		}
	}

	log.Printf("[MODERATION] report %s resolved as %s", report.ID, status)
	return c.JSON(report)
}
