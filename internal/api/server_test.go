package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/db"
	"github.com/foxzi/outreach/internal/engine"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/models"
	"github.com/foxzi/outreach/internal/repository"
	"github.com/foxzi/outreach/internal/secrets"
	"github.com/foxzi/outreach/internal/tracking"
	"github.com/foxzi/outreach/internal/transport"
	"github.com/foxzi/outreach/internal/worker"
)

type apiHarness struct {
	server     *Server
	recipients *repository.RecipientRepository
	templates  *repository.TemplateRepository
	campaigns  *repository.CampaignRepository
	settings   *repository.SettingsRepository
	box        *secrets.Box
	sent       *[]string
	mu         *sync.Mutex
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	trackStore, err := tracking.NewStore(filepath.Join(dir, "tracking.db"))
	if err != nil {
		t.Fatalf("failed to open tracking store: %v", err)
	}
	t.Cleanup(func() { trackStore.Close() })

	cfg := &config.Config{}
	config.SetDefaults(cfg)
	cfg.Secrets.Key = "0123456789abcdef0123456789abcdef"
	cfg.Auth.APIKeys = map[string]string{"test-key": "owner-1", "other-key": "owner-2"}
	cfg.Storage.ResumeDir = filepath.Join(dir, "resumes")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	box, err := secrets.NewBox(cfg.Secrets.Key)
	if err != nil {
		t.Fatalf("failed to create box: %v", err)
	}
	m := metrics.New()

	campaigns := repository.NewCampaignRepository(database.DB)
	recipients := repository.NewRecipientRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)
	resumes := repository.NewResumeRepository(database.DB)
	settings := repository.NewSettingsRepository(database.DB)
	history := repository.NewHistoryRepository(database.DB)

	var mu sync.Mutex
	sent := []string{}
	deliverer := transport.DelivererFunc(func(ctx context.Context, email *transport.Email) error {
		mu.Lock()
		sent = append(sent, email.To)
		mu.Unlock()
		return nil
	})

	dispatcher := engine.NewDispatcher(recipients, history, deliverer, m, logger, cfg.Server.BaseURL)
	driver := engine.NewDriver(campaigns, recipients, templates, resumes, settings, dispatcher, box, engine.DriverConfig{
		TimeBudgetSeconds:  50,
		MaxCampaignsPerRun: 5,
		MaxBatchPerRun:     10,
	}, logger)
	driver.SetSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() })

	coordinator := engine.NewCoordinator(campaigns, recipients, templates, resumes, settings, history, driver, box, false, logger)
	w := worker.New(driver, cfg.Worker.CronSpec, m, logger)

	return &apiHarness{
		server:     NewServer(coordinator, templates, resumes, recipients, trackStore, w, m, cfg, logger),
		recipients: recipients,
		templates:  templates,
		campaigns:  campaigns,
		settings:   settings,
		box:        box,
		sent:       &sent,
		mu:         &mu,
	}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer test-key")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestAuthRequired(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad key: status = %d, want 401", rec.Code)
	}

	if rec := h.do(t, http.MethodGet, "/api/v1/settings", nil); rec.Code != http.StatusOK {
		t.Errorf("good key: status = %d, want 200", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" {
		t.Errorf("Status = %q", resp.Status)
	}
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	// Configure the sender.
	rec := h.do(t, http.MethodPut, "/api/v1/settings", SettingsRequest{
		SenderName:  "Bob",
		SenderEmail: "bob@gmail.com",
		Password:    "app-pass",
		DelayPreset: "fast",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save settings: status = %d, body = %s", rec.Code, rec.Body)
	}

	// Create a template.
	rec = h.do(t, http.MethodPost, "/api/v1/templates", TemplateRequest{
		Name: "intro", Subject: "Hi {{name}}", Body: "Hello {{name}}",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template: status = %d, body = %s", rec.Code, rec.Body)
	}
	tmpl := decode[models.Template](t, rec)

	// Draft with recipients.
	rec = h.do(t, http.MethodPost, "/api/v1/campaigns/draft", DraftRequest{
		Name:       "launch",
		TemplateID: tmpl.ID,
		Recipients: []models.RecipientInput{
			{Name: "A", Email: "a@example.com"},
			{Name: "B", Email: "b@example.com"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("draft: status = %d, body = %s", rec.Code, rec.Body)
	}
	campaign := decode[models.Campaign](t, rec)

	// Pause before start is a state conflict.
	if rec = h.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/pause", nil); rec.Code != http.StatusConflict {
		t.Errorf("pause draft: status = %d, want 409", rec.Code)
	}

	// Start, then drive deliveries through the manual trigger.
	if rec = h.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start: status = %d, body = %s", rec.Code, rec.Body)
	}
	for i := 0; i < 3; i++ {
		if rec = h.do(t, http.MethodPost, "/api/v1/process", nil); rec.Code != http.StatusOK {
			t.Fatalf("process: status = %d, body = %s", rec.Code, rec.Body)
		}
	}

	rec = h.do(t, http.MethodGet, "/api/v1/campaigns/"+campaign.ID+"/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: status = %d", rec.Code)
	}
	view := decode[engine.CampaignStatusView](t, rec)
	if view.Status != models.CampaignCompleted {
		t.Errorf("campaign status = %s, want completed", view.Status)
	}
	if view.Recipients.Sent != 2 || view.Recipients.Pending != 0 {
		t.Errorf("recipients = %+v", view.Recipients)
	}

	h.mu.Lock()
	delivered := len(*h.sent)
	h.mu.Unlock()
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}

	// Daily count reflects the sends.
	rec = h.do(t, http.MethodGet, "/api/v1/daily-count", nil)
	count := decode[map[string]any](t, rec)
	if count["count"].(float64) != 2 {
		t.Errorf("daily count = %v, want 2", count["count"])
	}
}

func TestCampaignIsOwnerScoped(t *testing.T) {
	h := newAPIHarness(t)

	tmpl := &models.Template{OwnerID: "owner-1", Name: "t", Subject: "s", Body: "b"}
	h.templates.Create(tmpl)
	rec := h.do(t, http.MethodPost, "/api/v1/campaigns/draft", DraftRequest{
		Name: "n", TemplateID: tmpl.ID,
		Recipients: []models.RecipientInput{{Name: "A", Email: "a@example.com"}},
	})
	campaign := decode[models.Campaign](t, rec)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/"+campaign.ID+"/status", nil)
	req.Header.Set("Authorization", "Bearer other-key")
	w := httptest.NewRecorder()
	h.server.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("cross-owner status = %d, want 404", w.Code)
	}
}

func TestDraftValidationErrors(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/campaigns/draft", DraftRequest{Name: "n"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing template: status = %d, want 400", rec.Code)
	}

	tmpl := &models.Template{OwnerID: "owner-1", Name: "t", Subject: "s", Body: "b"}
	h.templates.Create(tmpl)
	rec = h.do(t, http.MethodPost, "/api/v1/campaigns/draft", DraftRequest{
		Name: "n", TemplateID: tmpl.ID,
		Recipients: []models.RecipientInput{{Name: "A", Email: "not-an-email"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid email: status = %d, want 400", rec.Code)
	}
}

func TestTrackingPixel(t *testing.T) {
	h := newAPIHarness(t)

	tmpl := &models.Template{OwnerID: "owner-1", Name: "t", Subject: "s", Body: "b"}
	h.templates.Create(tmpl)
	c := &models.Campaign{OwnerID: "owner-1", Name: "n", TemplateID: tmpl.ID}
	h.campaigns.Create(c)
	ids, err := h.recipients.AddBatch(c.ID, []models.RecipientInput{{Name: "A", Email: "a@example.com"}})
	if err != nil {
		t.Fatalf("AddBatch() error = %v", err)
	}
	h.recipients.MarkSending(ids[0])
	h.recipients.MarkSent(ids[0], "tok-123")

	req := httptest.NewRequest(http.MethodGet, "/t/o/tok-123.gif", nil)
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), pixel) {
		t.Error("body is not the tracking pixel")
	}

	r, _ := h.recipients.GetByID(ids[0])
	if r.OpenedAt == nil {
		t.Error("OpenedAt not recorded")
	}

	// Unknown tokens still get the pixel; nothing leaks.
	req = httptest.NewRequest(http.MethodGet, "/t/o/unknown.gif", nil)
	rec = httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("unknown token: status = %d, want 200", rec.Code)
	}
}

func TestTemplateCRUD(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/templates", TemplateRequest{Name: "a", Subject: "s", Body: "b"})
	tmpl := decode[models.Template](t, rec)

	rec = h.do(t, http.MethodPut, "/api/v1/templates/"+tmpl.ID, TemplateRequest{Subject: "s2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d", rec.Code)
	}
	updated := decode[models.Template](t, rec)
	if updated.Subject != "s2" || updated.Name != "a" {
		t.Errorf("updated = %+v", updated)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/templates", nil)
	list := decode[[]models.Template](t, rec)
	if len(list) != 1 {
		t.Fatalf("list = %d items, want 1", len(list))
	}

	if rec = h.do(t, http.MethodDelete, "/api/v1/templates/"+tmpl.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d", rec.Code)
	}
	if rec = h.do(t, http.MethodGet, "/api/v1/templates/"+tmpl.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}

	// Missing body on create.
	if rec = h.do(t, http.MethodPost, "/api/v1/templates", TemplateRequest{Name: "x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("create without body: status = %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("outreach_emails_sent_total")) {
		t.Error("metrics output missing outreach counters")
	}
}

func TestRetryFailedOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	tmpl := &models.Template{OwnerID: "owner-1", Name: "t", Subject: "s", Body: "b"}
	h.templates.Create(tmpl)
	c := &models.Campaign{OwnerID: "owner-1", Name: "n", TemplateID: tmpl.ID}
	h.campaigns.Create(c)
	ids, _ := h.recipients.AddBatch(c.ID, []models.RecipientInput{
		{Name: "A", Email: "a@example.com"},
		{Name: "B", Email: "b@example.com"},
	})
	h.campaigns.TransitionStatus(c.ID, []models.CampaignStatus{models.CampaignDraft}, models.CampaignSending)
	h.recipients.MarkSending(ids[0])
	h.recipients.MarkFailed(ids[0], "boom")

	rec := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/campaigns/%s/retry-failed", c.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry-failed: status = %d, body = %s", rec.Code, rec.Body)
	}
	resp := decode[map[string]int](t, rec)
	if resp["retried"] != 1 {
		t.Errorf("retried = %d, want 1", resp["retried"])
	}

	r, _ := h.recipients.GetByID(ids[0])
	if r.Status != models.RecipientPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
}
