// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"

	"github.com/btouchard/dispatchd/internal/domain/models"
)

// Store is the durable persistence layer for messages and accounts. All
// multi-field updates are atomic against concurrent callers.
type Store interface {
	CreateMessage(ctx context.Context, input models.MessageInput) (int64, error)
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	ListMessagesByStatus(ctx context.Context, status models.MessageStatus, limit int) ([]*models.Message, error)
	UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus, lastError *string) error
	IncrementRetry(ctx context.Context, id int64) error
	SetMessageAccount(ctx context.Context, id, accountID int64) error

	CreateAccount(ctx context.Context, input models.AccountInput) (int64, error)
	UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) error
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)

	// AtomicClaimAndAccount applies the lazy counter reset, verifies the
	// account is active and under both budgets, increments both counters
	// and sets last_sent, all within one transaction. Returns true iff the
	// reservation succeeded.
	AtomicClaimAndAccount(ctx context.Context, accountID int64) (bool, error)

	// SelectBestAccount returns the live account with the lowest daily
	// utilization, excluding excludeID when non-nil, or nil if none qualify.
	SelectBestAccount(ctx context.Context, excludeID *int64) (*models.Account, error)
}
