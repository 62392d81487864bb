package models

import "time"

const (
	ReportPending  = "pending"
	ReportApproved = "approved"
	ReportRejected = "rejected"
)

type Report struct {
	ID         string    `json:"id"`
	ReporterID string    `json:"reporter_id"`
	MessageID  string    `json:"message_id"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
