package models

import "time"

// RecipientStatus is the closed set of per-recipient delivery states.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSending RecipientStatus = "sending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Recipient is one ledger entry: a target address within a campaign and
// its delivery status history.
type Recipient struct {
	ID           string          `json:"id"`
	CampaignID   string          `json:"campaign_id"`
	Position     int             `json:"-"` // FIFO ordering within the campaign
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Company      string          `json:"company,omitempty"`
	JobTitle     string          `json:"position,omitempty"`
	Status       RecipientStatus `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	TrackingID   string          `json:"tracking_id,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	OpenedAt     *time.Time      `json:"opened_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RecipientInput is the caller-supplied shape for drafting recipients.
type RecipientInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company,omitempty"`
	JobTitle string `json:"position,omitempty"`
}
