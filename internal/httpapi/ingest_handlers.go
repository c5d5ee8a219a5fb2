package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/events"
	"zionic-engine/internal/pipeline"
)

type IngestHandler struct {
	Pipeline *pipeline.Pipeline
	Hub      *events.Hub
	Logger   *zap.Logger
}

type IngestPayload struct {
	Subject          string `json:"subject"`
	FromAddr         string `json:"from_addr"`
	EmailReceivedISO string `json:"email_received_iso"`
	BodyMarkdown     string `json:"body_markdown"`
	AdURL            string `json:"ad_url"`
}

// Ingest runs one posting through the pipeline synchronously and reports the
// terminal state. Extraction failures and storage failures get distinct
// error codes so callers can tell a bad payload from a broken service.
func (h IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if req.Subject == "" && req.BodyMarkdown == "" {
		WriteError(w, r, http.StatusBadRequest, "empty_payload", "subject or body_markdown is required")
		return
	}

	received := time.Now()
	if req.EmailReceivedISO != "" {
		if t, err := time.Parse(time.RFC3339, req.EmailReceivedISO); err == nil {
			received = t
		}
	}

	posting := domain.RawPosting{
		Subject:    req.Subject,
		Body:       req.BodyMarkdown,
		From:       req.FromAddr,
		SourceURL:  req.AdURL,
		ReceivedAt: received,
		Source:     "api",
	}

	out, err := h.Pipeline.Process(r.Context(), posting)
	if err != nil {
		if pipeline.IsExtractionFailure(err) {
			WriteError(w, r, http.StatusUnprocessableEntity, "extraction_failed", err.Error())
			return
		}
		h.Logger.Error("ingest failed", zap.String("subject", req.Subject), zap.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	switch out.Status {
	case pipeline.StatusStored:
		WriteJSON(w, http.StatusCreated, out)
	case pipeline.StatusDuplicate:
		h.Hub.Publish(events.LeadDuplicate(out.LeadID))
		WriteJSON(w, http.StatusOK, out)
	default:
		WriteJSON(w, http.StatusOK, out)
	}
}
