// SPDX-License-Identifier: AGPL-3.0-or-later

// Package accounts exposes the HTTP surface for managing SMTP accounts.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/presentation/api/shared"
)

// service is the slice of services.DispatchService that Handler depends on.
type service interface {
	CreateAccount(ctx context.Context, input models.AccountInput) (*models.Account, error)
	UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) (*models.Account, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}

type Handler struct {
	service service
}

func NewHandler(service service) *Handler {
	return &Handler{service: service}
}

type accountRequest struct {
	Name         string `json:"name"`
	Host         string `json:"smtp_host"`
	Port         int    `json:"smtp_port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	UseTLS       *bool  `json:"use_tls,omitempty"`
	UseSSL       *bool  `json:"use_ssl,omitempty"`
	EmailAddress string `json:"email_address"`
	DisplayName  string `json:"display_name,omitempty"`
	Active       *bool  `json:"active,omitempty"`
	DailyLimit   int    `json:"daily_limit,omitempty"`
	HourlyLimit  int    `json:"hourly_limit,omitempty"`
}

type createAccountResponse struct {
	Message  string `json:"message"`
	ConfigID int64  `json:"config_id"`
}

// HandleCreate handles POST /api/smtp-configs.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteValidationError(w, "invalid request body", nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	useTLS := req.UseTLS != nil && *req.UseTLS
	useSSL := req.UseSSL != nil && *req.UseSSL

	acc, err := h.service.CreateAccount(r.Context(), models.AccountInput{
		Name: req.Name, Host: req.Host, Port: req.Port, Username: req.Username,
		Password: req.Password, UseTLS: useTLS, UseSSL: useSSL,
		EmailAddress: req.EmailAddress, DisplayName: req.DisplayName, Active: active,
		DailyLimit: req.DailyLimit, HourlyLimit: req.HourlyLimit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	shared.WriteJSONRaw(w, http.StatusCreated, createAccountResponse{
		Message:  "smtp config created",
		ConfigID: acc.ID,
	})
}

// HandleUpdate handles PUT /api/smtp-configs/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteValidationError(w, "id must be numeric", nil)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		shared.WriteValidationError(w, "invalid request body", nil)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) < 1 {
		shared.WriteValidationError(w, "request body must contain at least one field", nil)
		return
	}

	var req accountRequest
	if err := json.Unmarshal(body, &req); err != nil {
		shared.WriteValidationError(w, "invalid request body", nil)
		return
	}

	patch := models.AccountPatch{}
	if req.Name != "" {
		patch.Name = &req.Name
	}
	if req.Host != "" {
		patch.Host = &req.Host
	}
	if req.Port != 0 {
		patch.Port = &req.Port
	}
	if req.Username != "" {
		patch.Username = &req.Username
	}
	if req.Password != "" {
		patch.Password = &req.Password
	}
	if req.EmailAddress != "" {
		patch.EmailAddress = &req.EmailAddress
	}
	if req.DisplayName != "" {
		patch.DisplayName = &req.DisplayName
	}
	if req.Active != nil {
		patch.Active = req.Active
	}
	if req.DailyLimit != 0 {
		patch.DailyLimit = &req.DailyLimit
	}
	if req.HourlyLimit != 0 {
		patch.HourlyLimit = &req.HourlyLimit
	}
	if req.UseTLS != nil {
		patch.UseTLS = req.UseTLS
	}
	if req.UseSSL != nil {
		patch.UseSSL = req.UseSSL
	}

	acc, err := h.service.UpdateAccount(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, acc)
}

// HandleGet handles GET /api/smtp-configs/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteValidationError(w, "id must be numeric", nil)
		return
	}

	acc, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, acc)
}

// HandleList handles GET /api/smtp-configs.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	accs, err := h.service.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, accs)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		shared.WriteValidationError(w, err.Error(), nil)
	case errors.Is(err, models.ErrAccountNotFound):
		shared.WriteNotFound(w, "account")
	case errors.Is(err, models.ErrAccountNameExists):
		shared.WriteConflict(w, err.Error())
	default:
		shared.WriteInternalError(w)
	}
}
