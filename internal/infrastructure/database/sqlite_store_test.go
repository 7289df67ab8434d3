// SPDX-License-Identifier: AGPL-3.0-or-later
package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/infrastructure/database"
)

func newTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dispatcher.db")

	db, err := database.InitDB(ctx, database.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db))

	return database.NewSQLiteStore(db)
}

func createTestAccount(t *testing.T, s *database.SQLiteStore, name string, dailyLimit, hourlyLimit int) int64 {
	t.Helper()

	id, err := s.CreateAccount(context.Background(), models.AccountInput{
		Name:         name,
		Host:         "smtp.example.com",
		Port:         587,
		Username:     "user",
		Password:     "pass",
		UseTLS:       true,
		EmailAddress: name + "@example.com",
		Active:       true,
		DailyLimit:   dailyLimit,
		HourlyLimit:  hourlyLimit,
	})
	require.NoError(t, err)
	return id
}

func TestSQLiteStore_CreateAndGetAccount(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	id := createTestAccount(t, s, "primary", 10, 5)

	acc, err := s.GetAccount(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "primary", acc.Name)
	require.True(t, acc.Active)
	require.Equal(t, 10, acc.DailyLimit)
}

func TestSQLiteStore_CreateAccount_DuplicateName(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	createTestAccount(t, s, "dup", 10, 5)

	_, err := s.CreateAccount(context.Background(), models.AccountInput{
		Name:         "dup",
		Host:         "smtp.example.com",
		Port:         587,
		EmailAddress: "dup@example.com",
		Active:       true,
		DailyLimit:   10,
		HourlyLimit:  5,
	})
	require.ErrorIs(t, err, models.ErrAccountNameExists)
}

func TestSQLiteStore_GetAccount_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.GetAccount(context.Background(), 999)
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestSQLiteStore_AtomicClaimAndAccount_RespectsBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	id := createTestAccount(t, s, "limited", 2, 100)

	ok, err := s.AtomicClaimAndAccount(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AtomicClaimAndAccount(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AtomicClaimAndAccount(ctx, id)
	require.NoError(t, err)
	require.False(t, ok, "third claim must fail once daily_limit is exhausted")

	acc, err := s.GetAccount(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, acc.SentToday)
}

func TestSQLiteStore_CreateMessage_IdempotencyKeyReturnsSameID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	accID := createTestAccount(t, s, "sender", 10, 10)

	key := "req-123"
	input := models.MessageInput{
		Subject:        "hello",
		HTMLBody:       "<p>hi</p>",
		Recipients:     []string{"to@example.com"},
		AccountID:      accID,
		IdempotencyKey: &key,
	}

	id1, err := s.CreateMessage(ctx, input)
	require.NoError(t, err)

	id2, err := s.CreateMessage(ctx, input)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestSQLiteStore_UpdateMessageStatus_SetsSentAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	accID := createTestAccount(t, s, "sender", 10, 10)

	id, err := s.CreateMessage(ctx, models.MessageInput{
		Subject:    "hello",
		HTMLBody:   "<p>hi</p>",
		Recipients: []string{"to@example.com"},
		AccountID:  accID,
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateMessageStatus(ctx, id, models.MessageStatusSent, nil))

	msg, err := s.GetMessage(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.MessageStatusSent, msg.Status)
	require.NotNil(t, msg.SentAt)
}

func TestSQLiteStore_ListMessagesByStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	accID := createTestAccount(t, s, "sender", 10, 10)

	for i := 0; i < 3; i++ {
		_, err := s.CreateMessage(ctx, models.MessageInput{
			Subject:    "hello",
			HTMLBody:   "<p>hi</p>",
			Recipients: []string{"to@example.com"},
			AccountID:  accID,
		})
		require.NoError(t, err)
	}

	msgs, err := s.ListMessagesByStatus(ctx, models.MessageStatusQueued, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestSQLiteStore_IncrementRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	accID := createTestAccount(t, s, "sender", 10, 10)

	id, err := s.CreateMessage(ctx, models.MessageInput{
		Subject:    "hello",
		HTMLBody:   "<p>hi</p>",
		Recipients: []string{"to@example.com"},
		AccountID:  accID,
	})
	require.NoError(t, err)

	require.NoError(t, s.IncrementRetry(ctx, id))
	require.NoError(t, s.IncrementRetry(ctx, id))

	msg, err := s.GetMessage(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, msg.RetryCount)
}

func TestSQLiteStore_SelectBestAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	busyID := createTestAccount(t, s, "busy", 10, 10)
	idleID := createTestAccount(t, s, "idle", 10, 10)

	ok, err := s.AtomicClaimAndAccount(ctx, busyID)
	require.NoError(t, err)
	require.True(t, ok)

	best, err := s.SelectBestAccount(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, best)
	require.Equal(t, idleID, best.ID)
}
