package models

import "time"

// Settings holds per-owner sender identity and pacing configuration.
// EncryptedPassword is the secretbox-sealed provider app password; the
// plaintext never leaves the dispatch path.
type Settings struct {
	OwnerID           string    `json:"owner_id"`
	SenderName        string    `json:"sender_name"`
	SenderEmail       string    `json:"sender_email"`
	EncryptedPassword string    `json:"-"`
	DelayPreset       string    `json:"delay_preset"` // fast, moderate, conservative, custom
	DelayMinSeconds   int       `json:"delay_min_seconds"`
	DelayMaxSeconds   int       `json:"delay_max_seconds"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HistoryEntry records one successful outreach for audit and daily-count
// reporting.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	OwnerID        string    `json:"owner_id"`
	CampaignID     string    `json:"campaign_id"`
	RecipientEmail string    `json:"recipient_email"`
	Subject        string    `json:"subject"`
	TrackingID     string    `json:"tracking_id"`
	SentAt         time.Time `json:"sent_at"`
}
