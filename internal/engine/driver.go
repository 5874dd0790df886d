package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/foxzi/outreach/internal/compose"
	"github.com/foxzi/outreach/internal/delay"
	"github.com/foxzi/outreach/internal/models"
	"github.com/foxzi/outreach/internal/repository"
	"github.com/foxzi/outreach/internal/secrets"
)

// SleepFunc suspends between sends. It must not hold any lock: status
// queries and other campaigns' invocations proceed during the delay.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DriverConfig bounds per-invocation work in periodic mode.
type DriverConfig struct {
	// TimeBudgetSeconds is the execution ceiling one periodic invocation
	// must stay under.
	TimeBudgetSeconds int
	// MaxCampaignsPerRun caps how many campaigns one trigger touches.
	MaxCampaignsPerRun int
	// MaxBatchPerRun caps the per-campaign batch regardless of what the
	// owner's pacing would allow.
	MaxBatchPerRun int
}

// campaignEnv is everything resolved once per campaign invocation:
// template, attachment, sender identity, decrypted credential and pacing.
type campaignEnv struct {
	template *models.Template
	resume   *models.Resume
	sender   compose.Sender
	password string
	policy   delay.Policy
}

// Driver is the re-entrant sending loop. The same batch logic serves both
// driving modes: RunCampaign holds the loop for a campaign's full
// duration (immediate mode), ProcessDue advances every eligible campaign
// by one bounded batch and returns (periodic mode). Re-entry is safe:
// progress lives entirely in the ledger, so a fresh invocation continues
// wherever NextPending picks up.
type Driver struct {
	campaigns  *repository.CampaignRepository
	recipients *repository.RecipientRepository
	templates  *repository.TemplateRepository
	resumes    *repository.ResumeRepository
	settings   *repository.SettingsRepository
	dispatcher *Dispatcher
	box        *secrets.Box
	cfg        DriverConfig
	logger     *slog.Logger
	sleep      SleepFunc

	rngMu sync.Mutex
	rng   *rand.Rand

	// activeMu guards the advisory single-invocation-per-campaign policy.
	// Overlap would not corrupt the ledger, just risk duplicate sends.
	activeMu sync.Mutex
	active   map[string]bool
}

func NewDriver(
	campaigns *repository.CampaignRepository,
	recipients *repository.RecipientRepository,
	templates *repository.TemplateRepository,
	resumes *repository.ResumeRepository,
	settings *repository.SettingsRepository,
	dispatcher *Dispatcher,
	box *secrets.Box,
	cfg DriverConfig,
	logger *slog.Logger,
) *Driver {
	if cfg.TimeBudgetSeconds <= 0 {
		cfg.TimeBudgetSeconds = 50
	}
	if cfg.MaxCampaignsPerRun <= 0 {
		cfg.MaxCampaignsPerRun = 5
	}
	if cfg.MaxBatchPerRun <= 0 {
		cfg.MaxBatchPerRun = 10
	}
	return &Driver{
		campaigns:  campaigns,
		recipients: recipients,
		templates:  templates,
		resumes:    resumes,
		settings:   settings,
		dispatcher: dispatcher,
		box:        box,
		cfg:        cfg,
		logger:     logger.With("component", "driver"),
		sleep:      defaultSleep,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		active:     make(map[string]bool),
	}
}

// SetSleep replaces the inter-send sleeper (tests inject a no-op).
func (d *Driver) SetSleep(fn SleepFunc) {
	d.sleep = fn
}

// SetRand replaces the delay randomness source (tests inject a seed).
func (d *Driver) SetRand(rng *rand.Rand) {
	d.rngMu.Lock()
	d.rng = rng
	d.rngMu.Unlock()
}

func (d *Driver) nextDelay(p delay.Policy) time.Duration {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return p.Next(d.rng)
}

func (d *Driver) tryAcquire(campaignID string) bool {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	if d.active[campaignID] {
		return false
	}
	d.active[campaignID] = true
	return true
}

func (d *Driver) release(campaignID string) {
	d.activeMu.Lock()
	delete(d.active, campaignID)
	d.activeMu.Unlock()
}

// RunCampaign drives one campaign in immediate mode: one recipient at a
// time, sleeping between sends, until the campaign leaves "sending" or
// the ledger is exhausted.
func (d *Driver) RunCampaign(ctx context.Context, campaignID string) error {
	if !d.tryAcquire(campaignID) {
		d.logger.Warn("campaign already being processed", "campaign_id", campaignID)
		return nil
	}
	defer d.release(campaignID)

	for {
		more, err := d.processBatch(ctx, campaignID, 1, true)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// ProcessDue runs one bounded periodic round: up to MaxCampaignsPerRun
// "sending" campaigns, least recently processed first, each advanced by
// one batch sized to fit the time budget. Returns how many recipients
// were attempted.
func (d *Driver) ProcessDue(ctx context.Context) (int, error) {
	due, err := d.campaigns.ListSendingDue(d.cfg.MaxCampaignsPerRun)
	if err != nil {
		return 0, fmt.Errorf("failed to list due campaigns: %w", err)
	}

	processed := 0
	for i := range due {
		c := &due[i]
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if !d.tryAcquire(c.ID) {
			continue
		}

		limit := d.batchLimit(c.OwnerID)
		n, err := d.processBatchCounted(ctx, c.ID, limit, false)
		d.release(c.ID)
		processed += n
		if err != nil {
			// A campaign-level failure never blocks the other campaigns
			// in this round.
			d.logger.Error("campaign processing failed", "campaign_id", c.ID, "error", err)
		}
	}
	return processed, nil
}

// batchLimit sizes one periodic batch from the owner's pacing so the
// invocation stays within the time budget.
func (d *Driver) batchLimit(ownerID string) int {
	policy := delay.Presets["moderate"]
	if s, err := d.settings.Get(ownerID); err == nil && s != nil {
		policy = delay.Policy{MinSeconds: s.DelayMinSeconds, MaxSeconds: s.DelayMaxSeconds}
	}
	limit := policy.BatchSize(d.cfg.TimeBudgetSeconds)
	if limit > d.cfg.MaxBatchPerRun {
		limit = d.cfg.MaxBatchPerRun
	}
	return limit
}

func (d *Driver) processBatch(ctx context.Context, campaignID string, limit int, loop bool) (bool, error) {
	more, _, err := d.processBatchInner(ctx, campaignID, limit, loop)
	return more, err
}

func (d *Driver) processBatchCounted(ctx context.Context, campaignID string, limit int, loop bool) (int, error) {
	_, n, err := d.processBatchInner(ctx, campaignID, limit, loop)
	return n, err
}

// processBatchInner is one driver invocation: authoritative status check,
// stuck-row recovery, a bounded FIFO batch with pacing, and completion
// discovery. Returns whether the campaign may still have work.
func (d *Driver) processBatchInner(ctx context.Context, campaignID string, limit int, loop bool) (bool, int, error) {
	campaign, err := d.campaigns.GetByID(campaignID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to reload campaign: %w", err)
	}
	if campaign == nil {
		return false, 0, repository.ErrNotFound
	}
	if campaign.Status != models.CampaignSending {
		return false, 0, nil
	}

	// Anything a dead invocation left in "sending" is retryable, not a
	// completed attempt.
	if n, err := d.recipients.ReclaimStuck(campaignID); err != nil {
		return false, 0, fmt.Errorf("failed to reclaim stuck recipients: %w", err)
	} else if n > 0 {
		d.logger.Info("reclaimed stuck recipients", "campaign_id", campaignID, "count", n)
	}

	env, err := d.resolveEnv(campaign)
	if err != nil {
		// Without a usable sender environment no recipient can succeed;
		// the whole campaign fails, not one row.
		d.failCampaign(campaign, err)
		return false, 0, err
	}

	batch, err := d.recipients.NextPending(campaignID, limit)
	if err != nil {
		return false, 0, fmt.Errorf("failed to load pending recipients: %w", err)
	}

	if len(batch) == 0 {
		return false, 0, d.complete(campaign)
	}

	attempted := 0
	for i := range batch {
		rcpt := &batch[i]

		// Re-check before every send so pause/cancel take effect within
		// at most one in-flight delivery.
		current, err := d.campaigns.GetByID(campaignID)
		if err != nil {
			return false, attempted, fmt.Errorf("failed to reload campaign: %w", err)
		}
		if current == nil || current.Status != models.CampaignSending {
			d.campaigns.TouchProcessed(campaignID)
			return false, attempted, nil
		}

		result := d.dispatcher.DispatchOne(ctx, current, rcpt, env)
		attempted++
		if result.Success {
			if err := d.campaigns.IncrementSent(campaignID); err != nil {
				d.logger.Error("failed to increment sent count", "campaign_id", campaignID, "error", err)
			}
		} else {
			if err := d.campaigns.IncrementFailed(campaignID); err != nil {
				d.logger.Error("failed to increment failed count", "campaign_id", campaignID, "error", err)
			}
		}

		// Delay only between sends, never after the last one.
		if i < len(batch)-1 {
			if err := d.sleep(ctx, d.nextDelay(env.policy)); err != nil {
				d.campaigns.TouchProcessed(campaignID)
				return false, attempted, err
			}
		}
	}

	if err := d.campaigns.TouchProcessed(campaignID); err != nil {
		d.logger.Error("failed to touch campaign", "campaign_id", campaignID, "error", err)
	}

	if !loop {
		return false, attempted, nil
	}

	// Immediate mode paces between batches too: with limit=1 the
	// inter-batch sleep is the inter-send delay.
	if err := d.sleep(ctx, d.nextDelay(env.policy)); err != nil {
		return false, attempted, err
	}
	return true, attempted, nil
}

// resolveEnv loads the per-campaign sending environment. A missing or
// undecryptable credential is a CredentialError; a missing template is a
// composition dead end treated the same way at campaign level.
func (d *Driver) resolveEnv(campaign *models.Campaign) (*campaignEnv, error) {
	s, err := d.settings.Get(campaign.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if s == nil || s.SenderEmail == "" || s.EncryptedPassword == "" {
		return nil, &CredentialError{Err: fmt.Errorf("sender not configured for owner %s", campaign.OwnerID)}
	}

	password, err := d.box.Decrypt(s.EncryptedPassword)
	if err != nil {
		return nil, &CredentialError{Err: err}
	}

	tmpl, err := d.templates.GetOwned(campaign.TemplateID, campaign.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil {
		return nil, &compose.TemplateError{Reason: "template not found"}
	}

	var resume *models.Resume
	if campaign.ResumeID != "" {
		resume, err = d.resumes.GetOwned(campaign.ResumeID, campaign.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load resume: %w", err)
		}
	}

	policy := delay.Policy{MinSeconds: s.DelayMinSeconds, MaxSeconds: s.DelayMaxSeconds}
	if policy.Validate() != nil {
		policy = delay.Presets["moderate"]
	}

	return &campaignEnv{
		template: tmpl,
		resume:   resume,
		sender:   compose.Sender{Name: s.SenderName, Email: s.SenderEmail},
		password: password,
		policy:   policy,
	}, nil
}

// complete is the one state change the driver performs itself: an empty
// ledger means the campaign is done.
func (d *Driver) complete(campaign *models.Campaign) error {
	ok, err := d.campaigns.TransitionStatus(campaign.ID, []models.CampaignStatus{models.CampaignSending}, models.CampaignCompleted)
	if err != nil {
		return fmt.Errorf("failed to complete campaign: %w", err)
	}
	if ok {
		if err := d.campaigns.ReconcileCounts(campaign.ID); err != nil {
			d.logger.Error("failed to reconcile counts", "campaign_id", campaign.ID, "error", err)
		}
		d.campaigns.TouchProcessed(campaign.ID)
		d.logger.Info("campaign completed", "campaign_id", campaign.ID)
	}
	return nil
}

func (d *Driver) failCampaign(campaign *models.Campaign, cause error) {
	ok, err := d.campaigns.TransitionStatus(campaign.ID, []models.CampaignStatus{models.CampaignSending}, models.CampaignFailed)
	if err != nil {
		d.logger.Error("failed to mark campaign failed", "campaign_id", campaign.ID, "error", err)
		return
	}
	if ok {
		d.logger.Error("campaign failed", "campaign_id", campaign.ID, "error", cause)
	}
}
