// SPDX-License-Identifier: AGPL-3.0-or-later

// Package services wires the domain and infrastructure layers into the
// facade the HTTP handlers and CLI entrypoint depend on.
package services

import (
	"context"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/domain/validation"
	"github.com/btouchard/dispatchd/internal/infrastructure/database"
	"github.com/btouchard/dispatchd/pkg/logger"
)

// queue is the slice of dispatch.Dispatcher that DispatchService depends on.
type queue interface {
	Enqueue(priority int, messageID int64)
}

// DispatchService is the single entrypoint the transport layer calls into:
// it validates input, persists it, and hands accepted work to the queue.
type DispatchService struct {
	store database.Store
	queue queue
}

func NewDispatchService(store database.Store, queue queue) *DispatchService {
	return &DispatchService{store: store, queue: queue}
}

// CreateMessage validates input, binds it to the best available account if
// none was specified, persists it, and enqueues it for delivery.
func (s *DispatchService) CreateMessage(ctx context.Context, input models.MessageInput) (*models.Message, error) {
	if errs := validation.Message(input); !errs.Empty() {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, errs)
	}

	if input.AccountID == 0 {
		best, err := s.store.SelectBestAccount(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to select an account: %w", err)
		}
		if best == nil {
			return nil, models.ErrNoAccountAvailable
		}
		input.AccountID = best.ID
	}

	if input.Priority == 0 {
		input.Priority = models.MinPriority
	}

	id, err := s.store.CreateMessage(ctx, input)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	if msg.Status == models.MessageStatusQueued {
		s.queue.Enqueue(msg.Priority, msg.ID)
	}

	return msg, nil
}

func (s *DispatchService) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	return s.store.GetMessage(ctx, id)
}

func (s *DispatchService) ListMessagesByStatus(ctx context.Context, status models.MessageStatus, limit int) ([]*models.Message, error) {
	return s.store.ListMessagesByStatus(ctx, status, limit)
}

// CreateAccount normalizes the display name and persists a new account.
func (s *DispatchService) CreateAccount(ctx context.Context, input models.AccountInput) (*models.Account, error) {
	if errs := validation.Account(input); !errs.Empty() {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, errs)
	}

	input.DisplayName = norm.NFC.String(input.DisplayName)

	id, err := s.store.CreateAccount(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.store.GetAccount(ctx, id)
}

func (s *DispatchService) UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) (*models.Account, error) {
	if patch.DisplayName != nil {
		normalized := norm.NFC.String(*patch.DisplayName)
		patch.DisplayName = &normalized
	}
	if err := s.store.UpdateAccount(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.store.GetAccount(ctx, id)
}

func (s *DispatchService) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *DispatchService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.store.ListAccounts(ctx)
}

// Rehydrate re-enqueues messages left in the queued state (up to 10000,
// oldest first), typically called once at startup to pick up work
// interrupted by a restart.
func (s *DispatchService) Rehydrate(ctx context.Context) error {
	queued, err := s.store.ListMessagesByStatus(ctx, models.MessageStatusQueued, 10000)
	if err != nil {
		return fmt.Errorf("failed to list queued messages for rehydration: %w", err)
	}

	// A message left in "sending" means the previous process died mid
	// delivery; it was never marked sent or failed, so it is put back in
	// the queue rather than left stuck.
	stuck, err := s.store.ListMessagesByStatus(ctx, models.MessageStatusSending, 10000)
	if err != nil {
		return fmt.Errorf("failed to list stuck messages for rehydration: %w", err)
	}

	count := 0
	for _, msg := range queued {
		s.queue.Enqueue(msg.Priority, msg.ID)
		count++
	}
	for _, msg := range stuck {
		if err := s.store.UpdateMessageStatus(ctx, msg.ID, models.MessageStatusQueued, nil); err != nil {
			logger.Logger.Error("failed to requeue stuck message", "id", msg.ID, "error", err)
			continue
		}
		s.queue.Enqueue(msg.Priority, msg.ID)
		count++
	}

	logger.Logger.Info("rehydrated queued messages", "count", count)
	return nil
}
