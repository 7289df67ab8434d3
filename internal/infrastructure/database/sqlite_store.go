// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/btouchard/dispatchd/internal/domain/accountselector"
	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/pkg/logger"
)

// SQLiteStore implements Store against the embedded SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func encodeAddrs(addrs []string) (string, error) {
	if addrs == nil {
		addrs = []string{}
	}
	b, err := json.Marshal(addrs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal address list: %w", err)
	}
	return string(b), nil
}

func decodeAddrs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal address list: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, input models.MessageInput) (int64, error) {
	recipients, err := encodeAddrs(input.Recipients)
	if err != nil {
		return 0, err
	}
	cc, err := encodeAddrs(input.Cc)
	if err != nil {
		return 0, err
	}
	bcc, err := encodeAddrs(input.Bcc)
	if err != nil {
		return 0, err
	}

	priority := input.Priority
	if priority == 0 {
		priority = models.MinPriority
	}

	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			subject, html_body, recipients, cc, bcc, account_id, priority,
			status, retry_count, idempotency_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, input.Subject, input.HTMLBody, recipients, cc, bcc, input.AccountID, priority,
		models.MessageStatusQueued, input.IdempotencyKey, now, now)
	if err != nil {
		if isUniqueConstraintErr(err) && input.IdempotencyKey != nil {
			existing, findErr := s.findByIdempotencyKey(ctx, *input.IdempotencyKey)
			if findErr != nil {
				return 0, findErr
			}
			return existing.ID, nil
		}
		return 0, fmt.Errorf("failed to create message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted message id: %w", err)
	}

	logger.Logger.Info("message created", "id", id, "account_id", input.AccountID, "priority", priority)
	return id, nil
}

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var m models.Message
	var recipients, cc, bcc string
	var lastError, idempotencyKey sql.NullString
	var sentAt sql.NullTime

	err := row.Scan(
		&m.ID, &m.Subject, &m.HTMLBody, &recipients, &cc, &bcc, &m.AccountID, &m.Priority,
		&m.Status, &m.RetryCount, &lastError, &idempotencyKey, &m.CreatedAt, &m.UpdatedAt, &sentAt,
	)
	if err != nil {
		return nil, err
	}

	if m.Recipients, err = decodeAddrs(recipients); err != nil {
		return nil, err
	}
	if m.Cc, err = decodeAddrs(cc); err != nil {
		return nil, err
	}
	if m.Bcc, err = decodeAddrs(bcc); err != nil {
		return nil, err
	}
	if lastError.Valid {
		m.LastError = &lastError.String
	}
	if idempotencyKey.Valid {
		m.IdempotencyKey = &idempotencyKey.String
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}

	return &m, nil
}

const messageColumns = `id, subject, html_body, recipients, cc, bcc, account_id, priority,
		status, retry_count, last_error, idempotency_key, created_at, updated_at, sent_at`

func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to load message %d: %w", id, err)
	}
	return m, nil
}

func (s *SQLiteStore) findByIdempotencyKey(ctx context.Context, key string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE idempotency_key = ?`, key)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to load message by idempotency key: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMessagesByStatus(ctx context.Context, status models.MessageStatus, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE status = ? ORDER BY id LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus, lastError *string) error {
	now := time.Now().UTC()

	var sentAt any
	if status == models.MessageStatusSent {
		sentAt = now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = ?, last_error = COALESCE(?, last_error), updated_at = ?, sent_at = COALESCE(?, sent_at)
		WHERE id = ?
	`, status, lastError, now, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to update message %d status: %w", id, err)
	}

	return requireRowsAffected(res, models.ErrMessageNotFound)
}

func (s *SQLiteStore) IncrementRetry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count for message %d: %w", id, err)
	}
	return requireRowsAffected(res, models.ErrMessageNotFound)
}

func (s *SQLiteStore) SetMessageAccount(ctx context.Context, id, accountID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET account_id = ?, updated_at = ? WHERE id = ?`, accountID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rebind message %d to account %d: %w", id, accountID, err)
	}
	return requireRowsAffected(res, models.ErrMessageNotFound)
}

func requireRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, input models.AccountInput) (int64, error) {
	now := time.Now().UTC()

	dailyLimit := input.DailyLimit
	if dailyLimit <= 0 {
		dailyLimit = 2000
	}
	hourlyLimit := input.HourlyLimit
	if hourlyLimit <= 0 {
		hourlyLimit = 100
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			name, host, port, username, password, use_tls, use_ssl,
			email_address, display_name, active, daily_limit, hourly_limit,
			sent_today, sent_hour, last_reset_daily, last_reset_hourly, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?)
	`, input.Name, input.Host, input.Port, input.Username, input.Password, input.UseTLS, input.UseSSL,
		input.EmailAddress, input.DisplayName, input.Active, dailyLimit, hourlyLimit, now, now, now, now)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, models.ErrAccountNameExists
		}
		return 0, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted account id: %w", err)
	}

	logger.Logger.Info("account created", "id", id, "name", input.Name)
	return id, nil
}

func (s *SQLiteStore) UpdateAccount(ctx context.Context, id int64, patch models.AccountPatch) error {
	current, err := s.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	if patch.Name != nil {
		current.Name = *patch.Name
	}
	if patch.Host != nil {
		current.Host = *patch.Host
	}
	if patch.Port != nil {
		current.Port = *patch.Port
	}
	if patch.Username != nil {
		current.Username = *patch.Username
	}
	if patch.Password != nil {
		current.Password = *patch.Password
	}
	if patch.UseTLS != nil {
		current.UseTLS = *patch.UseTLS
	}
	if patch.UseSSL != nil {
		current.UseSSL = *patch.UseSSL
	}
	if patch.EmailAddress != nil {
		current.EmailAddress = *patch.EmailAddress
	}
	if patch.DisplayName != nil {
		current.DisplayName = *patch.DisplayName
	}
	if patch.Active != nil {
		current.Active = *patch.Active
	}
	if patch.DailyLimit != nil {
		current.DailyLimit = *patch.DailyLimit
	}
	if patch.HourlyLimit != nil {
		current.HourlyLimit = *patch.HourlyLimit
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			name = ?, host = ?, port = ?, username = ?, password = ?, use_tls = ?, use_ssl = ?,
			email_address = ?, display_name = ?, active = ?, daily_limit = ?, hourly_limit = ?, updated_at = ?
		WHERE id = ?
	`, current.Name, current.Host, current.Port, current.Username, current.Password, current.UseTLS, current.UseSSL,
		current.EmailAddress, current.DisplayName, current.Active, current.DailyLimit, current.HourlyLimit, time.Now().UTC(), id)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return models.ErrAccountNameExists
		}
		return fmt.Errorf("failed to update account %d: %w", id, err)
	}

	return requireRowsAffected(res, models.ErrAccountNotFound)
}

const accountColumns = `id, name, host, port, username, password, use_tls, use_ssl,
		email_address, display_name, active, daily_limit, hourly_limit,
		sent_today, sent_hour, last_reset_daily, last_reset_hourly, last_sent, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var a models.Account
	var lastSent sql.NullTime

	err := row.Scan(
		&a.ID, &a.Name, &a.Host, &a.Port, &a.Username, &a.Password, &a.UseTLS, &a.UseSSL,
		&a.EmailAddress, &a.DisplayName, &a.Active, &a.DailyLimit, &a.HourlyLimit,
		&a.SentToday, &a.SentHour, &a.LastResetDaily, &a.LastResetHourly, &lastSent, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSent.Valid {
		t := lastSent.Time
		a.LastSent = &t
	}
	return &a, nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account %d: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AtomicClaimAndAccount applies the lazy reset and the budget check inside a
// single BEGIN IMMEDIATE transaction, per the single-writer-connection setup
// in InitDB. The reset statement and the claim statement are kept separate
// so the claim's WHERE clause reads post-reset values, but both commit or
// roll back together.
func (s *SQLiteStore) AtomicClaimAndAccount(ctx context.Context, accountID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET
			sent_today = CASE WHEN date(last_reset_daily) < date('now') THEN 0 ELSE sent_today END,
			last_reset_daily = CASE WHEN date(last_reset_daily) < date('now') THEN datetime('now') ELSE last_reset_daily END,
			sent_hour = CASE WHEN (julianday('now') - julianday(last_reset_hourly)) * 24.0 >= 1.0 THEN 0 ELSE sent_hour END,
			last_reset_hourly = CASE WHEN (julianday('now') - julianday(last_reset_hourly)) * 24.0 >= 1.0 THEN datetime('now') ELSE last_reset_hourly END
		WHERE id = ?
	`, accountID); err != nil {
		return false, fmt.Errorf("failed to apply lazy counter reset for account %d: %w", accountID, err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET
			sent_today = sent_today + 1,
			sent_hour = sent_hour + 1,
			last_sent = datetime('now'),
			updated_at = datetime('now')
		WHERE id = ? AND active = 1 AND sent_today < daily_limit AND sent_hour < hourly_limit
	`, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to claim budget for account %d: %w", accountID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	return n == 1, nil
}

func (s *SQLiteStore) SelectBestAccount(ctx context.Context, excludeID *int64) (*models.Account, error) {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return accountselector.SelectBest(accounts, excludeID), nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
