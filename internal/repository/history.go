package repository

import (
	"database/sql"
	"time"

	"github.com/foxzi/outreach/internal/models"
)

// HistoryRepository records each successful outreach for audit and the
// daily-count report.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record appends one entry. Failures here must never block delivery, so
// callers log and move on.
func (r *HistoryRepository) Record(e *models.HistoryEntry) error {
	_, err := r.db.Exec(`
		INSERT INTO outreach_history (owner_id, campaign_id, recipient_email, subject, tracking_id, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.OwnerID, e.CampaignID, e.RecipientEmail, e.Subject, e.TrackingID, e.SentAt,
	)
	return err
}

// DailyCount returns how many emails the owner sent since local midnight.
func (r *HistoryRepository) DailyCount(ownerID string, now time.Time) (int, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM outreach_history
		WHERE owner_id = ? AND sent_at >= ?`, ownerID, midnight,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}
