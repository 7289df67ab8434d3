// SPDX-License-Identifier: AGPL-3.0-or-later

// Package emails exposes the HTTP surface for submitting and inspecting
// dispatched messages.
package emails

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/presentation/api/shared"
)

// service is the slice of services.DispatchService that Handler depends on.
type service interface {
	CreateMessage(ctx context.Context, input models.MessageInput) (*models.Message, error)
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	ListMessagesByStatus(ctx context.Context, status models.MessageStatus, limit int) ([]*models.Message, error)
}

type Handler struct {
	service service
}

func NewHandler(service service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Subject    string   `json:"subject"`
	HTMLBody   string   `json:"html_content"`
	Recipients []string `json:"recipients"`
	Cc         []string `json:"cc,omitempty"`
	Bcc        []string `json:"bcc,omitempty"`
	AccountID  int64    `json:"smtp_config_id,omitempty"`
	Priority   int      `json:"priority,omitempty"`
}

type createMessageResponse struct {
	Message string `json:"message"`
	EmailID int64  `json:"email_id"`
}

// HandleCreate handles POST /api/emails.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteValidationError(w, "invalid request body", nil)
		return
	}

	key, err := idempotencyKey(r)
	if err != nil {
		shared.WriteValidationError(w, err.Error(), nil)
		return
	}

	msg, err := h.service.CreateMessage(r.Context(), models.MessageInput{
		Subject:        req.Subject,
		HTMLBody:       req.HTMLBody,
		Recipients:     req.Recipients,
		Cc:             req.Cc,
		Bcc:            req.Bcc,
		AccountID:      req.AccountID,
		Priority:       req.Priority,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	shared.WriteJSONRaw(w, http.StatusCreated, createMessageResponse{
		Message: "email queued",
		EmailID: msg.ID,
	})
}

// HandleGet handles GET /api/emails/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteValidationError(w, "id must be numeric", nil)
		return
	}

	msg, err := h.service.GetMessage(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, msg)
}

// HandleListByStatus handles GET /api/emails/status/{status}.
func (h *Handler) HandleListByStatus(w http.ResponseWriter, r *http.Request) {
	status := models.MessageStatus(chi.URLParam(r, "status"))

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	msgs, err := h.service.ListMessagesByStatus(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, msgs)
}

// idempotencyKey reads the client-supplied Idempotency-Key header, validating
// it as a UUID so retried submissions can be deduplicated by the store.
// Absent header means the caller opted out of deduplication; it returns nil.
func idempotencyKey(r *http.Request) (*string, error) {
	raw := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if raw == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(raw); err != nil {
		return nil, errors.New("Idempotency-Key header must be a valid UUID")
	}
	return &raw, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		shared.WriteValidationError(w, err.Error(), nil)
	case errors.Is(err, models.ErrMessageNotFound), errors.Is(err, models.ErrAccountNotFound):
		shared.WriteNotFound(w, "resource")
	case errors.Is(err, models.ErrNoAccountAvailable):
		shared.WriteError(w, http.StatusServiceUnavailable, shared.ErrCodeServiceUnavailable, err.Error(), nil)
	case errors.Is(err, models.ErrAccountNameExists):
		shared.WriteConflict(w, err.Error())
	default:
		shared.WriteInternalError(w)
	}
}
