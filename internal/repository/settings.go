package repository

import (
	"database/sql"
	"time"

	"github.com/foxzi/outreach/internal/models"
)

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the owner's settings, or nil if none were saved yet.
func (r *SettingsRepository) Get(ownerID string) (*models.Settings, error) {
	s := &models.Settings{}
	err := r.db.QueryRow(`
		SELECT owner_id, COALESCE(sender_name, ''), COALESCE(sender_email, ''), COALESCE(encrypted_password, ''),
			delay_preset, delay_min_seconds, delay_max_seconds, updated_at
		FROM settings WHERE owner_id = ?`, ownerID,
	).Scan(&s.OwnerID, &s.SenderName, &s.SenderEmail, &s.EncryptedPassword,
		&s.DelayPreset, &s.DelayMinSeconds, &s.DelayMaxSeconds, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert saves the owner's settings, inserting on first use.
func (r *SettingsRepository) Upsert(s *models.Settings) error {
	s.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		INSERT INTO settings (owner_id, sender_name, sender_email, encrypted_password, delay_preset, delay_min_seconds, delay_max_seconds, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			sender_email = excluded.sender_email,
			encrypted_password = excluded.encrypted_password,
			delay_preset = excluded.delay_preset,
			delay_min_seconds = excluded.delay_min_seconds,
			delay_max_seconds = excluded.delay_max_seconds,
			updated_at = excluded.updated_at`,
		s.OwnerID, s.SenderName, s.SenderEmail, s.EncryptedPassword,
		s.DelayPreset, s.DelayMinSeconds, s.DelayMaxSeconds, s.UpdatedAt,
	)
	return err
}
