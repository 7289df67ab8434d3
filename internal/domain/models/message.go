// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "time"

// MessageStatus is the lifecycle state of a Message.
type MessageStatus string

const (
	MessageStatusQueued  MessageStatus = "queued"
	MessageStatusSending MessageStatus = "sending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// MaxRetriesExhausted is the fixed last_error text RetryPolicy writes when a
// message exceeds its retry budget.
const MaxRetriesExhausted = "Maximum retry attempts exceeded"

// MinPriority and MaxPriority bound the 1..5 priority scale, 1 being most urgent.
const (
	MinPriority = 1
	MaxPriority = 5
)

// Message is a submitted email awaiting or completing delivery.
type Message struct {
	ID             int64
	Subject        string
	HTMLBody       string
	Recipients     []string
	Cc             []string
	Bcc            []string
	AccountID      int64
	Priority       int
	Status         MessageStatus
	RetryCount     int
	LastError      *string
	IdempotencyKey *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SentAt         *time.Time
}

// MessageInput carries the fields a caller supplies when creating a Message.
type MessageInput struct {
	Subject        string
	HTMLBody       string
	Recipients     []string
	Cc             []string
	Bcc            []string
	AccountID      int64
	Priority       int
	IdempotencyKey *string
}

// EnvelopeRecipients returns the union of To, Cc and Bcc used for the SMTP
// envelope, as opposed to the headers shown to the recipient.
func (m *Message) EnvelopeRecipients() []string {
	all := make([]string, 0, len(m.Recipients)+len(m.Cc)+len(m.Bcc))
	all = append(all, m.Recipients...)
	all = append(all, m.Cc...)
	all = append(all, m.Bcc...)
	return all
}
