// SPDX-License-Identifier: AGPL-3.0-or-later
package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/presentation/api"
	"github.com/btouchard/dispatchd/internal/presentation/api/accounts"
	"github.com/btouchard/dispatchd/internal/presentation/api/emails"
	"github.com/btouchard/dispatchd/internal/presentation/api/health"
)

type stubService struct{}

func (stubService) CreateMessage(ctx context.Context, input models.MessageInput) (*models.Message, error) {
	return &models.Message{}, nil
}
func (stubService) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	return &models.Message{}, nil
}
func (stubService) ListMessagesByStatus(ctx context.Context, status models.MessageStatus, limit int) ([]*models.Message, error) {
	return nil, nil
}
func (stubService) CreateAccount(ctx context.Context, input models.AccountInput) (*models.Account, error) {
	return &models.Account{}, nil
}
func (stubService) UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) (*models.Account, error) {
	return &models.Account{}, nil
}
func (stubService) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return &models.Account{}, nil
}
func (stubService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return nil, nil
}

func testRouter() http.Handler {
	return api.NewRouter(api.RouterConfig{
		APIKey:          "secret",
		EmailsHandler:   emails.NewHandler(stubService{}),
		AccountsHandler: accounts.NewHandler(stubService{}),
		HealthHandler:   health.NewHandler(),
	})
}

func TestRouter_HealthzIsPublic(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_APIRoutesRejectMissingAPIKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/smtp-configs", nil)
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_APIRoutesAcceptValidAPIKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/smtp-configs", nil)
	req.Header.Set("X-API-KEY", "secret")
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
