package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/outreach/internal/delay"
	"github.com/foxzi/outreach/internal/models"
	"github.com/foxzi/outreach/internal/repository"
	"github.com/foxzi/outreach/internal/secrets"
)

// DraftInput is the payload for creating or replacing an owner's draft.
type DraftInput struct {
	Name       string
	TemplateID string
	ResumeID   string
	Recipients []models.RecipientInput
}

// CampaignStatusView is the status payload: live state plus ledger-derived
// progress. Recipients mid-flight count as pending; to the caller they are
// simply not done yet.
type CampaignStatusView struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Status      models.CampaignStatus `json:"status"`
	Recipients  ProgressView          `json:"recipients"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

type ProgressView struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// SettingsInput carries sender identity, credential and pacing updates.
// An empty Password keeps the stored credential.
type SettingsInput struct {
	SenderName  string
	SenderEmail string
	Password    string
	DelayPreset string
	DelayMin    int
	DelayMax    int
}

// Coordinator is the single entrypoint for campaign operations. It owns
// validation and state machine enforcement; durable state lives in the
// repositories and the driver owns the sending loop.
type Coordinator struct {
	campaigns  *repository.CampaignRepository
	recipients *repository.RecipientRepository
	templates  *repository.TemplateRepository
	resumes    *repository.ResumeRepository
	settings   *repository.SettingsRepository
	history    *repository.HistoryRepository
	driver     *Driver
	box        *secrets.Box
	logger     *slog.Logger

	// immediate selects the driving mode: when set, Start launches a
	// goroutine that runs the campaign to completion; otherwise the
	// periodic worker picks it up.
	immediate bool
}

func NewCoordinator(
	campaigns *repository.CampaignRepository,
	recipients *repository.RecipientRepository,
	templates *repository.TemplateRepository,
	resumes *repository.ResumeRepository,
	settings *repository.SettingsRepository,
	history *repository.HistoryRepository,
	driver *Driver,
	box *secrets.Box,
	immediate bool,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		campaigns:  campaigns,
		recipients: recipients,
		templates:  templates,
		resumes:    resumes,
		settings:   settings,
		history:    history,
		driver:     driver,
		box:        box,
		immediate:  immediate,
		logger:     logger.With("component", "coordinator"),
	}
}

// CreateDraft creates the owner's draft campaign, or replaces the content
// of the existing one. An owner has at most one draft at a time.
func (c *Coordinator) CreateDraft(ownerID string, in DraftInput) (*models.Campaign, error) {
	if in.Name == "" {
		return nil, validationf("campaign name is required")
	}
	if in.TemplateID == "" {
		return nil, validationf("template is required")
	}
	tmpl, err := c.templates.GetOwned(in.TemplateID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil {
		return nil, validationf("template %s not found", in.TemplateID)
	}
	if in.ResumeID != "" {
		resume, err := c.resumes.GetOwned(in.ResumeID, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load resume: %w", err)
		}
		if resume == nil {
			return nil, validationf("resume %s not found", in.ResumeID)
		}
	}

	draft, err := c.campaigns.FindDraftByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up draft: %w", err)
	}

	if draft == nil {
		draft = &models.Campaign{
			OwnerID:    ownerID,
			Name:       in.Name,
			TemplateID: in.TemplateID,
			ResumeID:   in.ResumeID,
		}
		if err := c.campaigns.Create(draft); err != nil {
			return nil, err
		}
	} else {
		if err := c.campaigns.UpdateDraft(draft.ID, in.Name, in.TemplateID, in.ResumeID); err != nil {
			return nil, err
		}
		if err := c.recipients.DeleteByCampaign(draft.ID); err != nil {
			return nil, fmt.Errorf("failed to clear draft recipients: %w", err)
		}
	}

	if len(in.Recipients) > 0 {
		if _, err := c.recipients.AddBatch(draft.ID, in.Recipients); err != nil {
			return nil, err
		}
	}

	draft, err = c.campaigns.GetByID(draft.ID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("draft saved", "campaign_id", draft.ID, "owner_id", ownerID, "recipients", draft.TotalRecipients)
	return draft, nil
}

// Start activates a draft or resumes a paused campaign. The transition is
// a conditional update, so concurrent starts race safely: exactly one wins.
func (c *Coordinator) Start(ctx context.Context, ownerID, campaignID string) error {
	campaign, err := c.owned(ownerID, campaignID)
	if err != nil {
		return err
	}

	if campaign.Status == models.CampaignDraft && campaign.TotalRecipients == 0 {
		return validationf("campaign has no recipients")
	}

	s, err := c.settings.Get(ownerID)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if s == nil || s.SenderEmail == "" || s.EncryptedPassword == "" {
		return &CredentialError{Err: fmt.Errorf("sender settings are not configured")}
	}

	if !CanTransition(campaign.Status, models.CampaignSending) {
		return &InvalidTransitionError{From: campaign.Status, To: models.CampaignSending}
	}
	ok, err := c.campaigns.TransitionStatus(campaignID, sources(models.CampaignSending), models.CampaignSending)
	if err != nil {
		return err
	}
	if !ok {
		current, err := c.campaigns.GetByID(campaignID)
		if err != nil || current == nil {
			return repository.ErrNotFound
		}
		return &InvalidTransitionError{From: current.Status, To: models.CampaignSending}
	}

	c.logger.Info("campaign started", "campaign_id", campaignID, "owner_id", ownerID)

	if c.immediate {
		go func() {
			if err := c.driver.RunCampaign(context.WithoutCancel(ctx), campaignID); err != nil && err != context.Canceled {
				c.logger.Error("campaign run ended with error", "campaign_id", campaignID, "error", err)
			}
		}()
	}
	return nil
}

// Pause suspends a sending campaign. The at-most-one in-flight delivery
// finishes; everything else stays pending.
func (c *Coordinator) Pause(ownerID, campaignID string) error {
	return c.transition(ownerID, campaignID, models.CampaignPaused)
}

// Resume is Start applied to a paused campaign; kept as a distinct verb
// for the API surface.
func (c *Coordinator) Resume(ctx context.Context, ownerID, campaignID string) error {
	campaign, err := c.owned(ownerID, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != models.CampaignPaused {
		return &InvalidTransitionError{From: campaign.Status, To: models.CampaignSending}
	}
	return c.Start(ctx, ownerID, campaignID)
}

// Cancel terminally stops a campaign and freezes its ledger as-is.
func (c *Coordinator) Cancel(ownerID, campaignID string) error {
	return c.transition(ownerID, campaignID, models.CampaignCancelled)
}

func (c *Coordinator) transition(ownerID, campaignID string, to models.CampaignStatus) error {
	campaign, err := c.owned(ownerID, campaignID)
	if err != nil {
		return err
	}
	if !CanTransition(campaign.Status, to) {
		return &InvalidTransitionError{From: campaign.Status, To: to}
	}
	ok, err := c.campaigns.TransitionStatus(campaignID, sources(to), to)
	if err != nil {
		return err
	}
	if !ok {
		current, err := c.campaigns.GetByID(campaignID)
		if err != nil || current == nil {
			return repository.ErrNotFound
		}
		return &InvalidTransitionError{From: current.Status, To: to}
	}
	c.logger.Info("campaign transition", "campaign_id", campaignID, "to", string(to))
	return nil
}

// Status returns the campaign's live state and ledger-derived progress.
func (c *Coordinator) Status(ownerID, campaignID string) (*CampaignStatusView, error) {
	campaign, err := c.owned(ownerID, campaignID)
	if err != nil {
		return nil, err
	}
	progress, err := c.recipients.Progress(campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute progress: %w", err)
	}
	return &CampaignStatusView{
		ID:     campaign.ID,
		Name:   campaign.Name,
		Status: campaign.Status,
		Recipients: ProgressView{
			Total:   progress.Total,
			Pending: progress.Pending,
			Sent:    progress.Sent,
			Failed:  progress.Failed,
		},
		CreatedAt:   campaign.CreatedAt,
		StartedAt:   campaign.StartedAt,
		CompletedAt: campaign.CompletedAt,
	}, nil
}

// ListRecipients returns the campaign's full ledger in contact order.
func (c *Coordinator) ListRecipients(ownerID, campaignID string) ([]models.Recipient, error) {
	if _, err := c.owned(ownerID, campaignID); err != nil {
		return nil, err
	}
	return c.recipients.ListByCampaign(campaignID)
}

// RetryRecipient re-queues one failed recipient at the tail of the pending
// order. Allowed only while the campaign can still send; terminal
// campaigns keep their ledger frozen.
func (c *Coordinator) RetryRecipient(ownerID, campaignID, recipientID string) error {
	campaign, err := c.owned(ownerID, campaignID)
	if err != nil {
		return err
	}
	if err := c.retryable(campaign); err != nil {
		return err
	}
	rcpt, err := c.recipients.GetByID(recipientID)
	if err != nil {
		return err
	}
	if rcpt == nil || rcpt.CampaignID != campaignID {
		return repository.ErrNotFound
	}
	if err := c.recipients.Retry(recipientID); err != nil {
		return err
	}
	return c.campaigns.ReconcileCounts(campaignID)
}

// RetryAllFailed re-queues every failed recipient, preserving their
// relative order at the tail. Returns how many were re-queued.
func (c *Coordinator) RetryAllFailed(ownerID, campaignID string) (int, error) {
	campaign, err := c.owned(ownerID, campaignID)
	if err != nil {
		return 0, err
	}
	if err := c.retryable(campaign); err != nil {
		return 0, err
	}
	n, err := c.recipients.RetryAllFailed(campaignID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := c.campaigns.ReconcileCounts(campaignID); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *Coordinator) retryable(campaign *models.Campaign) error {
	switch campaign.Status {
	case models.CampaignSending, models.CampaignPaused:
		return nil
	default:
		return &InvalidTransitionError{From: campaign.Status, To: models.CampaignSending}
	}
}

// DailyCount reports emails sent by the owner since local midnight.
func (c *Coordinator) DailyCount(ownerID string) (int, error) {
	return c.history.DailyCount(ownerID, time.Now())
}

// SaveSettings validates and persists sender identity, credential and
// pacing. A named preset overrides explicit min/max.
func (c *Coordinator) SaveSettings(ownerID string, in SettingsInput) (*models.Settings, error) {
	if in.SenderEmail != "" {
		if err := repository.ValidateEmail(in.SenderEmail); err != nil {
			return nil, validationf("invalid sender email: %s", in.SenderEmail)
		}
	}

	current, err := c.settings.Get(ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if current == nil {
		p := delay.Presets["moderate"]
		current = &models.Settings{
			OwnerID:         ownerID,
			DelayPreset:     "moderate",
			DelayMinSeconds: p.MinSeconds,
			DelayMaxSeconds: p.MaxSeconds,
		}
	}

	if in.SenderName != "" {
		current.SenderName = in.SenderName
	}
	if in.SenderEmail != "" {
		current.SenderEmail = in.SenderEmail
	}
	if in.Password != "" {
		encrypted, err := c.box.Encrypt(in.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt credential: %w", err)
		}
		current.EncryptedPassword = encrypted
	}

	if in.DelayPreset != "" {
		p, ok := delay.FromPreset(in.DelayPreset)
		if !ok {
			return nil, validationf("unknown delay preset: %s", in.DelayPreset)
		}
		current.DelayPreset = in.DelayPreset
		current.DelayMinSeconds = p.MinSeconds
		current.DelayMaxSeconds = p.MaxSeconds
	} else if in.DelayMin != 0 || in.DelayMax != 0 {
		p := delay.Policy{MinSeconds: in.DelayMin, MaxSeconds: in.DelayMax}
		if err := p.Validate(); err != nil {
			return nil, validationf("invalid delay range: %v", err)
		}
		current.DelayPreset = "custom"
		current.DelayMinSeconds = p.MinSeconds
		current.DelayMaxSeconds = p.MaxSeconds
	}

	current.UpdatedAt = time.Now()
	if err := c.settings.Upsert(current); err != nil {
		return nil, err
	}
	c.logger.Info("settings saved", "owner_id", ownerID, "preset", current.DelayPreset)
	return current, nil
}

// GetSettings returns the owner's settings, or defaults if none are saved.
// The encrypted credential never leaves the service.
func (c *Coordinator) GetSettings(ownerID string) (*models.Settings, error) {
	s, err := c.settings.Get(ownerID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		p := delay.Presets["moderate"]
		s = &models.Settings{
			OwnerID:         ownerID,
			DelayPreset:     "moderate",
			DelayMinSeconds: p.MinSeconds,
			DelayMaxSeconds: p.MaxSeconds,
		}
	}
	return s, nil
}

func (c *Coordinator) owned(ownerID, campaignID string) (*models.Campaign, error) {
	campaign, err := c.campaigns.GetOwned(campaignID, ownerID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, repository.ErrNotFound
	}
	return campaign, nil
}
