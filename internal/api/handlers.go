package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/foxzi/outreach/internal/engine"
	"github.com/foxzi/outreach/internal/models"
	"github.com/foxzi/outreach/internal/repository"
	"github.com/foxzi/outreach/internal/tracking"
)

// DraftRequest is the request body for POST /campaigns/draft
type DraftRequest struct {
	Name       string                  `json:"name"`
	TemplateID string                  `json:"template_id"`
	ResumeID   string                  `json:"resume_id,omitempty"`
	Recipients []models.RecipientInput `json:"recipients"`
}

// SettingsRequest is the request body for PUT /settings
type SettingsRequest struct {
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	Password    string `json:"password,omitempty"`
	DelayPreset string `json:"delay_preset,omitempty"`
	DelayMin    int    `json:"delay_min_seconds,omitempty"`
	DelayMax    int    `json:"delay_max_seconds,omitempty"`
}

// TemplateRequest is the request body for template create/update
type TemplateRequest struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// pixel is a 1x1 transparent GIF served to open-tracking requests.
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// handleSaveDraft handles POST /api/v1/campaigns/draft
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	campaign, err := s.coordinator.CreateDraft(ownerFrom(r), engine.DraftInput{
		Name:       req.Name,
		TemplateID: req.TemplateID,
		ResumeID:   req.ResumeID,
		Recipients: req.Recipients,
	})
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, campaign)
}

// handleStart handles POST /api/v1/campaigns/{id}/start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Start(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		s.sendEngineError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.CampaignsStartedTotal.Inc()
	}
	s.sendStatus(w, r)
}

// handlePause handles POST /api/v1/campaigns/{id}/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Pause(ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendStatus(w, r)
}

// handleResume handles POST /api/v1/campaigns/{id}/resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Resume(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendStatus(w, r)
}

// handleCancel handles POST /api/v1/campaigns/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Cancel(ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendStatus(w, r)
}

// handleStatus handles GET /api/v1/campaigns/{id}/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendStatus(w, r)
}

func (s *Server) sendStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.coordinator.Status(ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, view)
}

// handleListRecipients handles GET /api/v1/campaigns/{id}/recipients
func (s *Server) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := s.coordinator.ListRecipients(ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, recipients)
}

// handleRetryRecipient handles POST /api/v1/campaigns/{id}/recipients/{recipientID}/retry
func (s *Server) handleRetryRecipient(w http.ResponseWriter, r *http.Request) {
	err := s.coordinator.RetryRecipient(ownerFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "recipientID"))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendStatus(w, r)
}

// handleRetryAllFailed handles POST /api/v1/campaigns/{id}/retry-failed
func (s *Server) handleRetryAllFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.coordinator.RetryAllFailed(ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]int{"retried": n})
}

// handleCreateTemplate handles POST /api/v1/templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Body == "" {
		s.sendError(w, http.StatusBadRequest, "name and body are required")
		return
	}

	t := &models.Template{
		OwnerID: ownerFrom(r),
		Name:    req.Name,
		Subject: req.Subject,
		Body:    req.Body,
	}
	if err := s.templates.Create(t); err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, t)
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.ListByOwner(ownerFrom(r))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, templates)
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.GetOwned(chi.URLParam(r, "id"), ownerFrom(r))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}
	s.sendJSON(w, http.StatusOK, t)
}

// handleUpdateTemplate handles PUT /api/v1/templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	t, err := s.templates.GetOwned(chi.URLParam(r, "id"), ownerFrom(r))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Subject != "" {
		t.Subject = req.Subject
	}
	if req.Body != "" {
		t.Body = req.Body
	}
	if err := s.templates.Update(t); err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, t)
}

// handleDeleteTemplate handles DELETE /api/v1/templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Delete(chi.URLParam(r, "id"), ownerFrom(r)); err != nil {
		s.sendEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadResume handles POST /api/v1/resumes (multipart upload)
func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.config.Storage.ResumeDir, 0755); err != nil {
		s.logger.Error("failed to create resume directory", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	// Stored name is ours; the original name is kept as display metadata.
	fileName := filepath.Base(header.Filename)
	storedPath := filepath.Join(s.config.Storage.ResumeDir, uuid.New().String()+filepath.Ext(fileName))

	dst, err := os.Create(storedPath)
	if err != nil {
		s.logger.Error("failed to create resume file", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(storedPath)
		s.sendError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}
	dst.Close()

	res := &models.Resume{
		OwnerID:  ownerFrom(r),
		FileName: fileName,
		FilePath: storedPath,
	}
	if err := s.resumes.Create(res); err != nil {
		os.Remove(storedPath)
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, res)
}

// handleListResumes handles GET /api/v1/resumes
func (s *Server) handleListResumes(w http.ResponseWriter, r *http.Request) {
	resumes, err := s.resumes.ListByOwner(ownerFrom(r))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, resumes)
}

// handleDeleteResume handles DELETE /api/v1/resumes/{id}
func (s *Server) handleDeleteResume(w http.ResponseWriter, r *http.Request) {
	res, err := s.resumes.GetOwned(chi.URLParam(r, "id"), ownerFrom(r))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if res == nil {
		s.sendError(w, http.StatusNotFound, "Resume not found")
		return
	}
	if err := s.resumes.Delete(res.ID, ownerFrom(r)); err != nil {
		s.sendEngineError(w, err)
		return
	}
	if err := os.Remove(res.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove resume file", "path", res.FilePath, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSettings handles GET /api/v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.coordinator.GetSettings(ownerFrom(r))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, settings)
}

// handleSaveSettings handles PUT /api/v1/settings
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := s.coordinator.SaveSettings(ownerFrom(r), engine.SettingsInput{
		SenderName:  req.SenderName,
		SenderEmail: req.SenderEmail,
		Password:    req.Password,
		DelayPreset: req.DelayPreset,
		DelayMin:    req.DelayMin,
		DelayMax:    req.DelayMax,
	})
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, settings)
}

// handleDailyCount handles GET /api/v1/daily-count
func (s *Server) handleDailyCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.coordinator.DailyCount(ownerFrom(r))
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"date":  time.Now().Format("2006-01-02"),
		"count": count,
	})
}

// handleProcess handles POST /api/v1/process (manual processing round)
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	attempted, err := s.worker.Trigger(r.Context())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]int{"attempted": attempted})
}

// handleTrackingPixel handles GET /t/o/{token} where token is <uuid>.gif.
// It always serves the pixel; tracking failures are invisible to the
// opener.
func (s *Server) handleTrackingPixel(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSuffix(chi.URLParam(r, "token"), ".gif")
	if token != "" {
		now := time.Now()
		if err := s.recipients.MarkOpened(token, now); err != nil {
			s.logger.Warn("failed to mark open", "tracking_id", token, "error", err)
		}
		if s.trackStore != nil {
			if err := s.trackStore.RecordOpen(&tracking.OpenEvent{
				TrackingID: token,
				UserAgent:  r.UserAgent(),
				RemoteAddr: r.RemoteAddr,
				OpenedAt:   now,
			}); err != nil {
				s.logger.Warn("failed to record open event", "tracking_id", token, "error", err)
			}
		}
		if s.metrics != nil {
			s.metrics.EmailsOpenedTotal.Inc()
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(pixel)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// sendEngineError maps engine and repository errors onto HTTP statuses.
func (s *Server) sendEngineError(w http.ResponseWriter, err error) {
	var validation *engine.ValidationError
	var transition *engine.InvalidTransitionError
	var credential *engine.CredentialError

	switch {
	case errors.As(err, &validation):
		s.sendError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, repository.ErrInvalidEmail), errors.Is(err, repository.ErrDuplicateEmail):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "Not found")
	case errors.As(err, &transition), errors.Is(err, repository.ErrNotDraft), errors.Is(err, repository.ErrInvalidStatus):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.As(err, &credential):
		s.sendError(w, http.StatusUnprocessableEntity, credential.Error())
	default:
		s.logger.Error("internal error", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}
