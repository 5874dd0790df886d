package models

import "time"

// CampaignStatus is the closed set of campaign lifecycle states.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// Terminal reports whether no further transition may leave this status.
func (s CampaignStatus) Terminal() bool {
	switch s {
	case CampaignCancelled, CampaignCompleted, CampaignFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignSending, CampaignPaused, CampaignCancelled, CampaignCompleted, CampaignFailed:
		return true
	}
	return false
}

// Campaign represents one outreach run targeting a set of recipients
// with a single template and optional resume attachment.
type Campaign struct {
	ID              string         `json:"id"`
	OwnerID         string         `json:"owner_id"`
	Name            string         `json:"name"`
	TemplateID      string         `json:"template_id"`
	ResumeID        string         `json:"resume_id,omitempty"`
	Status          CampaignStatus `json:"status"`
	TotalRecipients int            `json:"total_recipients"`
	SentCount       int            `json:"sent_count"`
	FailedCount     int            `json:"failed_count"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	LastProcessedAt *time.Time     `json:"last_processed_at,omitempty"`
}

// Progress holds aggregated recipient counts for a campaign, always
// derived from ledger rows rather than cached values.
type Progress struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}
