package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"MailBlast/internal/drafting"
	"MailBlast/internal/email"
	"MailBlast/internal/metrics"
	"MailBlast/internal/models"
	"MailBlast/internal/validation"
	"MailBlast/internal/worker"
)

const (
	msgSent           = "Emails sent successfully!"
	msgSentWithErrors = "Emails sent with some failures."
	msgNoRecipients   = "No valid emails found in CSV."
	msgBadForm        = "Invalid form data."
	msgSendFailed     = "Error sending emails."
	msgDraftFailed    = "Failed to generate email. Please try again."
	msgScoreFailed    = "Error predicting email score"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, sub *models.Submission, recipients []models.RecipientRecord) (*models.BatchResult, error)
}

type Drafter interface {
	Draft(ctx context.Context, req drafting.Request) (*drafting.Draft, error)
}

type Scorer interface {
	Predict(ctx context.Context, description string) (json.RawMessage, error)
}

type Handler struct {
	Validator      *validation.Validator
	Dispatcher     Dispatcher
	Drafter        Drafter // nil disables /api/generate
	Scorer         Scorer
	MaxUploadBytes int64
	Log            *zap.Logger
}

type sendResponse struct {
	Message string             `json:"message"`
	Status  models.BatchStatus `json:"status"`
	*models.BatchResult
}

// SendEmails runs one bulk-send submission:
// validate -> parse CSV -> dispatch -> respond.
// Nothing is parsed or sent when validation fails.
func (h *Handler) SendEmails(w http.ResponseWriter, r *http.Request) {
	log := h.Log.With(zap.String("request_id", requestID(r)))

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	in, err := readSubmission(r)
	if err != nil {
		log.Info("submission rejected", zap.String("stage", "received"), zap.Error(err))
		writeText(w, http.StatusBadRequest, msgBadForm)
		return
	}

	csvFile := in.file("csvFile")
	cvFile := in.file("cvFile")

	form := validation.Form{
		SenderEmail:   in.value("senderEmail"),
		AppPassword:   in.value("appPassword"),
		HasCSV:        csvFile != nil,
		HasAttachment: cvFile != nil,
		Description:   in.value("description"),
	}
	if cvFile != nil {
		form.AttachmentType = cvFile.ContentType
	}

	if err := h.Validator.Validate(form); err != nil {
		var pe *validation.PreconditionError
		if errors.As(err, &pe) {
			log.Info("submission rejected", zap.String("stage", "received"), zap.String("field", pe.Field))
			writeText(w, http.StatusBadRequest, pe.Reason)
			return
		}
		log.Error("validation failed unexpectedly", zap.Error(err))
		writeText(w, http.StatusInternalServerError, msgSendFailed)
		return
	}

	parsed, err := parseCSV(csvFile)
	if err != nil {
		log.Error("csv read failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, msgSendFailed)
		return
	}
	metrics.RowsSkipped.Add(float64(parsed.Skipped))

	if len(parsed.Recipients) == 0 {
		log.Info("submission rejected", zap.String("stage", "parsed"), zap.Int("skipped_rows", parsed.Skipped))
		writeText(w, http.StatusBadRequest, msgNoRecipients)
		return
	}

	sub := &models.Submission{
		Credentials: models.Credentials{
			Address: strings.TrimSpace(form.SenderEmail),
			Secret:  form.AppPassword,
		},
		Subject: strings.TrimSpace(in.value("subject")),
		Body:    form.Description,
	}
	if cvFile != nil {
		sub.Attachment = cvFile.attachment(form.AttachmentType)
	}

	log.Info("submission accepted",
		zap.String("sender", email.RedactAddress(sub.Credentials.Address)),
		zap.Int("recipients", len(parsed.Recipients)),
		zap.Int("skipped_rows", parsed.Skipped),
	)

	result, err := h.Dispatcher.Dispatch(r.Context(), sub, parsed.Recipients)
	if err != nil {
		if errors.Is(err, worker.ErrNoRecipients) {
			writeText(w, http.StatusBadRequest, msgNoRecipients)
			return
		}
		log.Error("batch failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, msgSendFailed)
		return
	}
	result.Skipped = parsed.Skipped

	msg := msgSent
	if result.Failed > 0 {
		msg = msgSentWithErrors
	}

	writeJSON(w, http.StatusOK, sendResponse{
		Message:     msg,
		Status:      result.Status(),
		BatchResult: result,
	})
}

// GenerateDraft asks the model for an application email.
func (h *Handler) GenerateDraft(w http.ResponseWriter, r *http.Request) {
	if h.Drafter == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "Email drafting is not configured")
		return
	}

	var req drafting.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	draft, err := h.Drafter.Draft(r.Context(), req)
	if err != nil {
		if errors.Is(err, drafting.ErrIncompleteRequest) {
			writeJSONError(w, http.StatusBadRequest, "Please fill in all the fields.")
			return
		}
		h.Log.Error("draft generation failed", zap.String("request_id", requestID(r)), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, msgDraftFailed)
		return
	}

	writeJSON(w, http.StatusOK, draft)
}

type scoreRequest struct {
	EmailDescription string `json:"email_description"`
}

// PredictScore forwards an email description to the scoring model.
func (h *Handler) PredictScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.EmailDescription) == "" {
		writeJSONError(w, http.StatusBadRequest, "email_description is required")
		return
	}

	score, err := h.Scorer.Predict(r.Context(), req.EmailDescription)
	if err != nil {
		h.Log.Warn("score prediction failed", zap.String("request_id", requestID(r)), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, msgScoreFailed)
		return
	}

	writeJSON(w, http.StatusOK, score)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
