package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/outreach/internal/compose"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/models"
	"github.com/foxzi/outreach/internal/repository"
	"github.com/foxzi/outreach/internal/transport"
)

// DispatchResult is the outcome of one delivery attempt.
type DispatchResult struct {
	Success bool
	Error   string
}

// Dispatcher sends exactly one composed message per call and maps the
// outcome onto a ledger status transition. Per-recipient errors never
// escape: every failure path ends in a "failed" row so the driver keeps
// moving.
type Dispatcher struct {
	recipients *repository.RecipientRepository
	history    *repository.HistoryRepository
	deliverer  transport.Deliverer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	baseURL    string
}

func NewDispatcher(
	recipients *repository.RecipientRepository,
	history *repository.HistoryRepository,
	deliverer transport.Deliverer,
	m *metrics.Metrics,
	logger *slog.Logger,
	baseURL string,
) *Dispatcher {
	return &Dispatcher{
		recipients: recipients,
		history:    history,
		deliverer:  deliverer,
		metrics:    m,
		logger:     logger.With("component", "dispatcher"),
		baseURL:    baseURL,
	}
}

// DispatchOne attempts delivery to a single recipient. The returned
// result reflects the ledger row's final state for this attempt.
func (d *Dispatcher) DispatchOne(ctx context.Context, campaign *models.Campaign, rcpt *models.Recipient, env *campaignEnv) DispatchResult {
	start := time.Now()

	if err := d.recipients.MarkSending(rcpt.ID); err != nil {
		// Row vanished or is already terminal; nothing to deliver.
		d.logger.Warn("cannot mark recipient sending", "recipient_id", rcpt.ID, "error", err)
		return DispatchResult{Success: false, Error: err.Error()}
	}

	trackingID := uuid.New().String()
	trackingURL := ""
	if d.baseURL != "" {
		trackingURL = fmt.Sprintf("%s/t/o/%s.gif", d.baseURL, trackingID)
	}

	msg, err := compose.Compose(env.template, rcpt, env.sender, env.resume, trackingURL)
	if err != nil {
		return d.fail(campaign, rcpt, err, start)
	}

	email := &transport.Email{
		From:     env.sender.Email,
		FromName: env.sender.Name,
		To:       rcpt.Email,
		Subject:  msg.Subject,
		TextBody: msg.TextBody,
		HTMLBody: msg.HTMLBody,
		Password: env.password,
	}
	if msg.Attachment != nil {
		email.Attachment = &transport.AttachmentData{
			FileName: msg.Attachment.FileName,
			FilePath: msg.Attachment.FilePath,
		}
	}

	if err := d.deliverer.Deliver(ctx, email); err != nil {
		return d.fail(campaign, rcpt, err, start)
	}

	if err := d.recipients.MarkSent(rcpt.ID, trackingID); err != nil {
		d.logger.Error("delivered but failed to mark sent", "recipient_id", rcpt.ID, "error", err)
		return DispatchResult{Success: false, Error: err.Error()}
	}

	// History is best-effort; a write failure must not undo the send.
	if err := d.history.Record(&models.HistoryEntry{
		OwnerID:        campaign.OwnerID,
		CampaignID:     campaign.ID,
		RecipientEmail: rcpt.Email,
		Subject:        msg.Subject,
		TrackingID:     trackingID,
		SentAt:         time.Now(),
	}); err != nil {
		d.logger.Warn("failed to record history", "campaign_id", campaign.ID, "error", err)
	}

	if d.metrics != nil {
		d.metrics.EmailsSentTotal.Inc()
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}

	d.logger.Info("email sent", "campaign_id", campaign.ID, "to", rcpt.Email, "tracking_id", trackingID)
	return DispatchResult{Success: true}
}

func (d *Dispatcher) fail(campaign *models.Campaign, rcpt *models.Recipient, cause error, start time.Time) DispatchResult {
	if err := d.recipients.MarkFailed(rcpt.ID, cause.Error()); err != nil {
		d.logger.Error("failed to mark recipient failed", "recipient_id", rcpt.ID, "error", err)
	}

	if d.metrics != nil {
		d.metrics.EmailsFailedTotal.Inc()
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}

	d.logger.Warn("email failed", "campaign_id", campaign.ID, "to", rcpt.Email, "error", cause)
	return DispatchResult{Success: false, Error: cause.Error()}
}
