package repository

import (
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/foxzi/outreach/internal/models"
	"github.com/google/uuid"
)

// RecipientRepository is the durable ledger of per-recipient delivery
// status. Ordering within a campaign is carried by the position column:
// recipients are contacted in the order they were added, and retried
// failures re-enter at the tail.
type RecipientRepository struct {
	db *sql.DB
}

func NewRecipientRepository(db *sql.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// ValidateEmail checks syntactic validity: a parseable address whose
// domain part looks like a hostname. Host-level validation is not our
// concern.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, email)
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, email)
	}
	return nil
}

// AddBatch appends recipients to a draft campaign, assigning FIFO
// positions, and refreshes the campaign's total. Fails without side
// effects if any email is invalid or duplicated.
func (r *RecipientRepository) AddBatch(campaignID string, inputs []models.RecipientInput) ([]string, error) {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if err := ValidateEmail(in.Email); err != nil {
			return nil, err
		}
		key := strings.ToLower(in.Email)
		if seen[key] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, in.Email)
		}
		seen[key] = true
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow("SELECT status FROM campaigns WHERE id = ?", campaignID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if models.CampaignStatus(status) != models.CampaignDraft {
		return nil, ErrNotDraft
	}

	var maxPos sql.NullInt64
	if err := tx.QueryRow("SELECT MAX(position) FROM recipients WHERE campaign_id = ?", campaignID).Scan(&maxPos); err != nil {
		return nil, err
	}
	pos := int(maxPos.Int64)

	stmt, err := tx.Prepare(`
		INSERT INTO recipients (id, campaign_id, position, name, email, company, job_title, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now()
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		pos++
		id := uuid.New().String()
		_, err := stmt.Exec(id, campaignID, pos, in.Name, in.Email, in.Company, in.JobTitle, string(models.RecipientPending), now)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, in.Email)
			}
			return nil, err
		}
		ids = append(ids, id)
	}

	_, err = tx.Exec(`
		UPDATE campaigns SET total_recipients = (SELECT COUNT(*) FROM recipients WHERE campaign_id = ?)
		WHERE id = ?`, campaignID, campaignID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByCampaign removes all recipients of a draft campaign (used when
// a draft is re-submitted with a fresh list).
func (r *RecipientRepository) DeleteByCampaign(campaignID string) error {
	_, err := r.db.Exec("DELETE FROM recipients WHERE campaign_id = ?", campaignID)
	return err
}

// NextPending returns up to limit pending recipients in FIFO order.
func (r *RecipientRepository) NextPending(campaignID string, limit int) ([]models.Recipient, error) {
	rows, err := r.db.Query(`
		SELECT id, campaign_id, position, name, email, COALESCE(company, ''), COALESCE(job_title, ''),
			status, COALESCE(error_message, ''), COALESCE(tracking_id, ''), sent_at, opened_at, created_at
		FROM recipients
		WHERE campaign_id = ? AND status = 'pending'
		ORDER BY position
		LIMIT ?`, campaignID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecipients(rows)
}

// ListByCampaign returns every recipient of a campaign in FIFO order.
func (r *RecipientRepository) ListByCampaign(campaignID string) ([]models.Recipient, error) {
	rows, err := r.db.Query(`
		SELECT id, campaign_id, position, name, email, COALESCE(company, ''), COALESCE(job_title, ''),
			status, COALESCE(error_message, ''), COALESCE(tracking_id, ''), sent_at, opened_at, created_at
		FROM recipients
		WHERE campaign_id = ?
		ORDER BY position`, campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecipients(rows)
}

// GetByID returns a single recipient.
func (r *RecipientRepository) GetByID(id string) (*models.Recipient, error) {
	row := r.db.QueryRow(`
		SELECT id, campaign_id, position, name, email, COALESCE(company, ''), COALESCE(job_title, ''),
			status, COALESCE(error_message, ''), COALESCE(tracking_id, ''), sent_at, opened_at, created_at
		FROM recipients WHERE id = ?`, id,
	)
	rec, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkSending moves a recipient into the in-flight state. Safe to call on
// a row a previous crash left in "sending"; that attempt is treated as
// retryable, not completed.
func (r *RecipientRepository) MarkSending(id string) error {
	res, err := r.db.Exec(`
		UPDATE recipients SET status = 'sending'
		WHERE id = ? AND status IN ('pending', 'sending')`, id)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id)
}

// MarkSent records a successful delivery with its tracking token. Calling
// it again on an already-sent row is a no-op: sent is terminal.
func (r *RecipientRepository) MarkSent(id, trackingID string) error {
	res, err := r.db.Exec(`
		UPDATE recipients SET status = 'sent', tracking_id = ?, sent_at = ?, error_message = ''
		WHERE id = ? AND status IN ('pending', 'sending')`, trackingID, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		status, err := r.currentStatus(id)
		if err != nil {
			return err
		}
		if status == models.RecipientSent {
			return nil // idempotent terminal state
		}
		return fmt.Errorf("%w: %s -> sent", ErrInvalidStatus, status)
	}
	return nil
}

// MarkFailed records a failed attempt with the captured error text.
func (r *RecipientRepository) MarkFailed(id, errorMessage string) error {
	res, err := r.db.Exec(`
		UPDATE recipients SET status = 'failed', error_message = ?
		WHERE id = ? AND status IN ('pending', 'sending')`, errorMessage, id)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id)
}

// Retry re-queues a failed recipient at the tail of the pending order so
// it never skips ahead of recipients still awaiting their first attempt.
func (r *RecipientRepository) Retry(id string) error {
	res, err := r.db.Exec(`
		UPDATE recipients
		SET status = 'pending', error_message = '',
			position = (SELECT COALESCE(MAX(position), 0) + 1 FROM recipients r2 WHERE r2.campaign_id = recipients.campaign_id)
		WHERE id = ? AND status = 'failed'`, id)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id)
}

// RetryAllFailed re-queues every failed recipient of a campaign at the
// tail, preserving their relative order. Returns the number re-queued.
func (r *RecipientRepository) RetryAllFailed(campaignID string) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id FROM recipients
		WHERE campaign_id = ? AND status = 'failed'
		ORDER BY position`, campaignID)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var maxPos sql.NullInt64
	if err := tx.QueryRow("SELECT MAX(position) FROM recipients WHERE campaign_id = ?", campaignID).Scan(&maxPos); err != nil {
		return 0, err
	}
	pos := int(maxPos.Int64)

	for _, id := range ids {
		pos++
		if _, err := tx.Exec(`
			UPDATE recipients SET status = 'pending', error_message = '', position = ?
			WHERE id = ?`, pos, id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ReclaimStuck resets rows a dead invocation left in "sending" back to
// "pending" with their position preserved, so resumption re-attempts them.
func (r *RecipientRepository) ReclaimStuck(campaignID string) (int, error) {
	res, err := r.db.Exec(`
		UPDATE recipients SET status = 'pending'
		WHERE campaign_id = ? AND status = 'sending'`, campaignID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Progress returns aggregate counts computed from ledger rows. Cached
// campaign counters must always agree with this.
func (r *RecipientRepository) Progress(campaignID string) (models.Progress, error) {
	var p models.Progress
	err := r.db.QueryRow(`
		SELECT
			COUNT(*) as total,
			SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END) as sent,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed,
			SUM(CASE WHEN status IN ('pending', 'sending') THEN 1 ELSE 0 END) as pending
		FROM recipients WHERE campaign_id = ?`, campaignID,
	).Scan(&p.Total, &p.Sent, &p.Failed, &p.Pending)
	return p, err
}

// MarkOpened stamps the first open observed for a tracking token.
func (r *RecipientRepository) MarkOpened(trackingID string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE recipients SET opened_at = COALESCE(opened_at, ?)
		WHERE tracking_id = ?`, at, trackingID)
	return err
}

func (r *RecipientRepository) checkTransition(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		status, err := r.currentStatus(id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: from %s", ErrInvalidStatus, status)
	}
	return nil
}

func (r *RecipientRepository) currentStatus(id string) (models.RecipientStatus, error) {
	var status string
	err := r.db.QueryRow("SELECT status FROM recipients WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return models.RecipientStatus(status), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipient(row rowScanner) (*models.Recipient, error) {
	rec := &models.Recipient{}
	var sentAt, openedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.CampaignID, &rec.Position, &rec.Name, &rec.Email, &rec.Company, &rec.JobTitle,
		&rec.Status, &rec.ErrorMessage, &rec.TrackingID, &sentAt, &openedAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		rec.SentAt = &sentAt.Time
	}
	if openedAt.Valid {
		rec.OpenedAt = &openedAt.Time
	}
	return rec, nil
}

func scanRecipients(rows *sql.Rows) ([]models.Recipient, error) {
	recipients := []models.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *rec)
	}
	return recipients, rows.Err()
}
