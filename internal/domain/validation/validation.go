// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validation checks the shapes of inbound message and account
// requests before they reach the store.
package validation

import (
	"regexp"

	"github.com/btouchard/dispatchd/internal/domain/models"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

func IsValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

// FieldErrors maps a field name to why it failed validation.
type FieldErrors map[string]string

func (f FieldErrors) Empty() bool { return len(f) == 0 }

// Message checks a MessageInput against the rules the dispatcher enforces
// before accepting a send request.
func Message(input models.MessageInput) FieldErrors {
	errs := FieldErrors{}

	if input.Subject == "" {
		errs["subject"] = "subject is required"
	}
	if input.HTMLBody == "" {
		errs["html_content"] = "html_content is required"
	}

	if len(input.Recipients) == 0 {
		errs["recipients"] = "recipients must be a non-empty list"
	} else {
		for _, addr := range input.Recipients {
			if !IsValidEmail(addr) {
				errs["recipients"] = "recipients must all be valid email addresses"
				break
			}
		}
	}

	if errs["cc"] == "" {
		for _, addr := range input.Cc {
			if !IsValidEmail(addr) {
				errs["cc"] = "cc must all be valid email addresses"
				break
			}
		}
	}
	for _, addr := range input.Bcc {
		if !IsValidEmail(addr) {
			errs["bcc"] = "bcc must all be valid email addresses"
			break
		}
	}

	if input.Priority != 0 && (input.Priority < models.MinPriority || input.Priority > models.MaxPriority) {
		errs["priority"] = "priority must be between 1 and 5"
	}

	return errs
}

// Account checks an AccountInput against the rules required to create an
// SMTP account.
func Account(input models.AccountInput) FieldErrors {
	errs := FieldErrors{}

	if input.Name == "" {
		errs["name"] = "name is required"
	}
	if !IsValidEmail(input.EmailAddress) {
		errs["email_address"] = "email_address must be a valid email address"
	}
	if input.Host == "" {
		errs["smtp_host"] = "smtp_host is required"
	}
	if input.Port < 1 || input.Port > 65535 {
		errs["smtp_port"] = "smtp_port must be between 1 and 65535"
	}
	if input.Username == "" {
		errs["username"] = "username is required"
	}
	if input.Password == "" {
		errs["password"] = "password is required"
	}
	if input.DailyLimit != 0 && input.DailyLimit < 1 {
		errs["daily_limit"] = "daily_limit must be at least 1"
	}
	if input.HourlyLimit != 0 && input.HourlyLimit < 1 {
		errs["hourly_limit"] = "hourly_limit must be at least 1"
	}

	return errs
}
