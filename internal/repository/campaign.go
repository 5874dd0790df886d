package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/outreach/internal/models"
	"github.com/google/uuid"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new draft campaign.
func (r *CampaignRepository) Create(c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.Status = models.CampaignDraft
	c.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO campaigns (id, owner_id, name, template_id, resume_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, c.TemplateID, nullString(c.ResumeID), string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID regardless of owner (driver use).
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	row := r.db.QueryRow(selectCampaign+" WHERE id = ?", id)
	return scanCampaign(row)
}

// GetOwned returns a campaign only if it belongs to the owner.
func (r *CampaignRepository) GetOwned(id, ownerID string) (*models.Campaign, error) {
	row := r.db.QueryRow(selectCampaign+" WHERE id = ? AND owner_id = ?", id, ownerID)
	return scanCampaign(row)
}

// FindDraftByOwner returns the owner's open draft, if any. Product policy
// allows at most one draft per owner; draft creation upserts into it.
func (r *CampaignRepository) FindDraftByOwner(ownerID string) (*models.Campaign, error) {
	row := r.db.QueryRow(selectCampaign+" WHERE owner_id = ? AND status = 'draft' ORDER BY created_at DESC LIMIT 1", ownerID)
	return scanCampaign(row)
}

// UpdateDraft rewrites the mutable fields of an existing draft.
func (r *CampaignRepository) UpdateDraft(id, name, templateID, resumeID string) error {
	res, err := r.db.Exec(`
		UPDATE campaigns SET name = ?, template_id = ?, resume_id = ?
		WHERE id = ? AND status = 'draft'`,
		name, templateID, nullString(resumeID), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotDraft
	}
	return nil
}

// TransitionStatus performs an atomic conditional status change: the row
// is updated only if its current status is one of from. Returns false
// when the condition did not hold, leaving the row untouched.
func (r *CampaignRepository) TransitionStatus(id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error) {
	now := time.Now()
	var startedAt, completedAt *time.Time

	switch to {
	case models.CampaignSending:
		startedAt = &now
	case models.CampaignCompleted, models.CampaignCancelled, models.CampaignFailed:
		completedAt = &now
	}

	query := `
		UPDATE campaigns SET status = ?,
			started_at = COALESCE(started_at, ?),
			completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status IN (`
	args := []any{string(to), startedAt, completedAt, id}
	for i, s := range from {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(s))
	}
	query += ")"

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrementSent bumps the cached sent counter.
func (r *CampaignRepository) IncrementSent(id string) error {
	_, err := r.db.Exec("UPDATE campaigns SET sent_count = sent_count + 1 WHERE id = ?", id)
	return err
}

// IncrementFailed bumps the cached failed counter.
func (r *CampaignRepository) IncrementFailed(id string) error {
	_, err := r.db.Exec("UPDATE campaigns SET failed_count = failed_count + 1 WHERE id = ?", id)
	return err
}

// TouchProcessed stamps last_processed_at, the fairness key for periodic
// scheduling across campaigns.
func (r *CampaignRepository) TouchProcessed(id string) error {
	_, err := r.db.Exec("UPDATE campaigns SET last_processed_at = ? WHERE id = ?", time.Now(), id)
	return err
}

// ListSendingDue returns up to limit campaigns in "sending" state, least
// recently processed first (never-processed campaigns lead).
func (r *CampaignRepository) ListSendingDue(limit int) ([]models.Campaign, error) {
	rows, err := r.db.Query(selectCampaign+`
		WHERE status = 'sending'
		ORDER BY last_processed_at IS NOT NULL, last_processed_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaignRow(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// ReconcileCounts recomputes the cached sent/failed counters from the
// recipient ledger.
func (r *CampaignRepository) ReconcileCounts(id string) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET
			sent_count = (SELECT COUNT(*) FROM recipients WHERE campaign_id = campaigns.id AND status = 'sent'),
			failed_count = (SELECT COUNT(*) FROM recipients WHERE campaign_id = campaigns.id AND status = 'failed')
		WHERE id = ?`, id)
	return err
}

// Delete removes a campaign; recipients cascade.
func (r *CampaignRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

const selectCampaign = `
	SELECT id, owner_id, name, template_id, COALESCE(resume_id, ''), status,
		total_recipients, sent_count, failed_count,
		created_at, started_at, completed_at, last_processed_at
	FROM campaigns`

func scanCampaign(row *sql.Row) (*models.Campaign, error) {
	c, err := scanCampaignRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCampaignRow(row rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var status string
	var startedAt, completedAt, lastProcessedAt sql.NullTime

	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.TemplateID, &c.ResumeID, &status,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount,
		&c.CreatedAt, &startedAt, &completedAt, &lastProcessedAt)
	if err != nil {
		return nil, err
	}

	c.Status = models.CampaignStatus(status)
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if lastProcessedAt.Valid {
		c.LastProcessedAt = &lastProcessedAt.Time
	}
	return c, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
