// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retrypolicy decides what happens to a message after a failed
// send attempt: give up, or requeue at lower urgency against a different
// account.
package retrypolicy

import (
	"context"
	"fmt"

	"github.com/btouchard/dispatchd/internal/domain/models"
)

// Decision is the outcome of evaluating one failed message.
type Decision struct {
	Requeue  bool
	Priority int
}

// store is the slice of the persistence layer retrypolicy needs; defined
// here rather than imported so this package stays independent of the
// storage implementation.
type store interface {
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus, lastError *string) error
	IncrementRetry(ctx context.Context, id int64) error
	SetMessageAccount(ctx context.Context, id, accountID int64) error
	SelectBestAccount(ctx context.Context, excludeID *int64) (*models.Account, error)
}

// Policy bounds retries and fails a message over to a less loaded account
// before giving it another attempt.
type Policy struct {
	store      store
	maxRetries int
}

func New(s store, maxRetries int) *Policy {
	return &Policy{store: s, maxRetries: maxRetries}
}

// Handle loads the message's current retry_count, and either marks it
// permanently failed or bumps its priority, rebinds it to the best
// available account other than the one that just failed, and resets its
// status back to queued so it can be picked up again.
func (p *Policy) Handle(ctx context.Context, messageID int64) (Decision, error) {
	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load message %d for retry evaluation: %w", messageID, err)
	}

	if msg.RetryCount >= p.maxRetries {
		errMsg := models.MaxRetriesExhausted
		if err := p.store.UpdateMessageStatus(ctx, messageID, models.MessageStatusFailed, &errMsg); err != nil {
			return Decision{}, fmt.Errorf("failed to mark message %d permanently failed: %w", messageID, err)
		}
		return Decision{Requeue: false}, nil
	}

	if err := p.store.IncrementRetry(ctx, messageID); err != nil {
		return Decision{}, fmt.Errorf("failed to increment retry count for message %d: %w", messageID, err)
	}

	newPriority := msg.Priority + 1
	if newPriority > models.MaxPriority {
		newPriority = models.MaxPriority
	}

	excluded := msg.AccountID
	best, err := p.store.SelectBestAccount(ctx, &excluded)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to select failover account for message %d: %w", messageID, err)
	}
	if best != nil && best.ID != msg.AccountID {
		if err := p.store.SetMessageAccount(ctx, messageID, best.ID); err != nil {
			return Decision{}, fmt.Errorf("failed to rebind message %d to account %d: %w", messageID, best.ID, err)
		}
	}

	if err := p.store.UpdateMessageStatus(ctx, messageID, models.MessageStatusQueued, nil); err != nil {
		return Decision{}, fmt.Errorf("failed to requeue message %d: %w", messageID, err)
	}

	return Decision{Requeue: true, Priority: newPriority}, nil
}
