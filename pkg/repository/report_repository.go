package repository

import (
	"database/sql"

	"turf/pkg/models"

	"github.com/google/uuid"
)

type ReportRepository interface {
	Create(reporterID, messageID, reason string) (models.Report, error)
	Get(id string) (models.Report, error)
	ListPending(limit int) ([]models.Report, error)
	Resolve(id, status string) (models.Report, error)
}

type reportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(reporterID, messageID, reason string) (models.Report, error) {
	rep := models.Report{
		ID:         uuid.NewString(),
		ReporterID: reporterID,
		MessageID:  messageID,
		Reason:     reason,
		Status:     models.ReportPending,
	}
	err := r.db.QueryRow(`
		INSERT INTO reports (id, reporter_id, message_id, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, rep.ID, rep.ReporterID, rep.MessageID, rep.Reason).Scan(&rep.CreatedAt)
	if err != nil {
		return models.Report{}, err
	}
	return rep, nil
}

func (r *reportRepository) Get(id string) (models.Report, error) {
	var rep models.Report
	err := r.db.QueryRow(`
		SELECT id, reporter_id, message_id, reason, status, created_at
		FROM reports WHERE id = $1
	`, id).Scan(&rep.ID, &rep.ReporterID, &rep.MessageID, &rep.Reason, &rep.Status, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Report{}, ErrNotFound
	}
	return rep, err
}

func (r *reportRepository) ListPending(limit int) ([]models.Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, reporter_id, message_id, reason, status, created_at
		FROM reports WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, models.ReportPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		var rep models.Report
		if err := rows.Scan(&rep.ID, &rep.ReporterID, &rep.MessageID, &rep.Reason, &rep.Status, &rep.CreatedAt); err != nil {
			continue
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (r *reportRepository) Resolve(id, status string) (models.Report, error) {
	var rep models.Report
	err := r.db.QueryRow(`
		UPDATE reports SET status = $2 WHERE id = $1 AND status = $3
		RETURNING id, reporter_id, message_id, reason, status, created_at
	`, id, status, models.ReportPending).Scan(
		&rep.ID, &rep.ReporterID, &rep.MessageID, &rep.Reason, &rep.Status, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Report{}, ErrNotFound
	}
	return rep, err
}
