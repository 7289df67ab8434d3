// SPDX-License-Identifier: AGPL-3.0-or-later
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mail "github.com/go-mail/mail/v2"

	"github.com/btouchard/dispatchd/internal/domain/models"
	"github.com/btouchard/dispatchd/internal/infrastructure/database"
	"github.com/btouchard/dispatchd/pkg/logger"
)

const dialTimeout = 30 * time.Second

// Dialer abstracts go-mail's SMTP dialer so tests can substitute a fake
// transport without opening a real connection.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// DialerFactory builds a Dialer for one account, letting the default
// implementation configure TLS/SSL per account and tests inject a stub.
type DialerFactory func(acc *models.Account) Dialer

// Sender delivers one queued message at a time against its bound account,
// enforcing the account's rate budget via the store's atomic claim.
type Sender struct {
	store   database.Store
	dialers DialerFactory
}

func NewSender(store database.Store) *Sender {
	return &Sender{store: store, dialers: defaultDialerFactory}
}

// NewSenderWithDialerFactory lets tests replace the SMTP transport.
func NewSenderWithDialerFactory(store database.Store, factory DialerFactory) *Sender {
	return &Sender{store: store, dialers: factory}
}

func defaultDialerFactory(acc *models.Account) Dialer {
	d := mail.NewDialer(acc.Host, acc.Port, acc.Username, acc.Password)
	d.Timeout = dialTimeout

	if acc.UseSSL {
		d.SSL = true
		d.TLSConfig = &tls.Config{ServerName: acc.Host}
	} else if acc.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: acc.Host}
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}

	return d
}

// Send attempts to deliver messageID. It is idempotent against a message
// already marked sent, refuses to spend budget on an inactive or
// rate-limited account, and never releases a claimed unit of budget on
// transport failure: a failed send still counts against the account for
// that period.
func (s *Sender) Send(ctx context.Context, messageID int64) models.SendOutcome {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return models.TransportError(fmt.Sprintf("failed to load message: %v", err))
	}

	if msg.Status == models.MessageStatusSent {
		return models.AlreadySent()
	}

	acc, err := s.store.GetAccount(ctx, msg.AccountID)
	if err != nil {
		return models.TransportError(fmt.Sprintf("failed to load account: %v", err))
	}

	if !acc.Active {
		return models.InactiveAccount()
	}

	claimed, err := s.store.AtomicClaimAndAccount(ctx, acc.ID)
	if err != nil {
		return models.TransportError(fmt.Sprintf("failed to claim account budget: %v", err))
	}
	if !claimed {
		return models.RateLimited()
	}

	if err := s.store.UpdateMessageStatus(ctx, msg.ID, models.MessageStatusSending, nil); err != nil {
		logger.Logger.Warn("failed to mark message sending", "id", msg.ID, "error", err)
	}

	if err := s.dispatch(acc, msg); err != nil {
		errMsg := err.Error()
		if updErr := s.store.UpdateMessageStatus(ctx, msg.ID, models.MessageStatusFailed, &errMsg); updErr != nil {
			logger.Logger.Error("failed to record send failure", "id", msg.ID, "error", updErr)
		}
		return models.TransportError(errMsg)
	}

	if err := s.store.UpdateMessageStatus(ctx, msg.ID, models.MessageStatusSent, nil); err != nil {
		logger.Logger.Error("failed to record sent message", "id", msg.ID, "error", err)
	}

	logger.Logger.Info("message sent", "id", msg.ID, "account_id", acc.ID)
	return models.Sent("delivered")
}

func (s *Sender) dispatch(acc *models.Account, msg *models.Message) error {
	if len(msg.Recipients) == 0 {
		return errors.New("no recipients specified")
	}

	m := mail.NewMessage()
	m.SetHeader("From", acc.FromHeader())
	m.SetHeader("To", msg.Recipients...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	if len(msg.Bcc) > 0 {
		// go-mail includes Bcc in the envelope recipient list for delivery
		// but omits it when writing the MIME headers.
		m.SetHeader("Bcc", msg.Bcc...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	d := s.dialers(acc)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
