// SPDX-License-Identifier: AGPL-3.0-or-later
package retrypolicy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/domain/retrypolicy"
)

type fakeStore struct {
	messages   map[int64]*models.Message
	bestAcc    *models.Account
	rebound    *int64
	newStatus  models.MessageStatus
	lastErr    *string
	retryCalls int
}

func (f *fakeStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	return f.messages[id], nil
}
func (f *fakeStore) UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus, lastError *string) error {
	f.newStatus = status
	f.lastErr = lastError
	return nil
}
func (f *fakeStore) IncrementRetry(ctx context.Context, id int64) error {
	f.retryCalls++
	return nil
}
func (f *fakeStore) SetMessageAccount(ctx context.Context, id, accountID int64) error {
	f.rebound = &accountID
	return nil
}
func (f *fakeStore) SelectBestAccount(ctx context.Context, excludeID *int64) (*models.Account, error) {
	return f.bestAcc, nil
}

func TestRetryPolicy_Handle_ExhaustedMarksPermanentlyFailed(t *testing.T) {
	t.Parallel()

	store := &fakeStore{messages: map[int64]*models.Message{
		1: {ID: 1, RetryCount: 3, Priority: 2, AccountID: 10},
	}}
	policy := retrypolicy.New(store, 3)

	decision, err := policy.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, decision.Requeue)
	assert.Equal(t, models.MessageStatusFailed, store.newStatus)
	require.NotNil(t, store.lastErr)
	assert.Equal(t, models.MaxRetriesExhausted, *store.lastErr)
	assert.Equal(t, 0, store.retryCalls)
}

func TestRetryPolicy_Handle_RequeuesWithBumpedPriority(t *testing.T) {
	t.Parallel()

	store := &fakeStore{messages: map[int64]*models.Message{
		1: {ID: 1, RetryCount: 0, Priority: 2, AccountID: 10},
	}}
	policy := retrypolicy.New(store, 3)

	decision, err := policy.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decision.Requeue)
	assert.Equal(t, 3, decision.Priority)
	assert.Equal(t, 1, store.retryCalls)
	assert.Equal(t, models.MessageStatusQueued, store.newStatus)
}

func TestRetryPolicy_Handle_PriorityNeverExceedsMax(t *testing.T) {
	t.Parallel()

	store := &fakeStore{messages: map[int64]*models.Message{
		1: {ID: 1, RetryCount: 0, Priority: models.MaxPriority, AccountID: 10},
	}}
	policy := retrypolicy.New(store, 3)

	decision, err := policy.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.MaxPriority, decision.Priority)
}

func TestRetryPolicy_Handle_RebindsToFailoverAccount(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		messages: map[int64]*models.Message{
			1: {ID: 1, RetryCount: 0, Priority: 1, AccountID: 10},
		},
		bestAcc: &models.Account{ID: 20},
	}
	policy := retrypolicy.New(store, 3)

	_, err := policy.Handle(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, store.rebound)
	assert.Equal(t, int64(20), *store.rebound)
}

func TestRetryPolicy_Handle_NoFailoverLeavesAccountUnchanged(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		messages: map[int64]*models.Message{
			1: {ID: 1, RetryCount: 0, Priority: 1, AccountID: 10},
		},
		bestAcc: nil,
	}
	policy := retrypolicy.New(store, 3)

	_, err := policy.Handle(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, store.rebound)
}
