// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "time"

// Account is one upstream SMTP identity with its own rate budget.
type Account struct {
	ID               int64
	Name             string
	Host             string
	Port             int
	Username         string
	Password         string
	UseTLS           bool
	UseSSL           bool
	EmailAddress     string
	DisplayName      string
	Active           bool
	DailyLimit       int
	HourlyLimit      int
	SentToday        int
	SentHour         int
	LastResetDaily   time.Time
	LastResetHourly  time.Time
	LastSent         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccountInput carries the fields required to create an Account.
type AccountInput struct {
	Name         string
	Host         string
	Port         int
	Username     string
	Password     string
	UseTLS       bool
	UseSSL       bool
	EmailAddress string
	DisplayName  string
	Active       bool
	DailyLimit   int
	HourlyLimit  int
}

// AccountPatch carries partial updates for an existing Account; nil fields
// are left untouched.
type AccountPatch struct {
	Name         *string
	Host         *string
	Port         *int
	Username     *string
	Password     *string
	UseTLS       *bool
	UseSSL       *bool
	EmailAddress *string
	DisplayName  *string
	Active       *bool
	DailyLimit   *int
	HourlyLimit  *int
}

// UnderBudget reports whether the account, as currently loaded, has room
// under both its daily and hourly budgets. It does not apply lazy resets;
// callers that need the reset applied first should go through the Store's
// atomic claim.
func (a *Account) UnderBudget() bool {
	return a.SentToday < a.DailyLimit && a.SentHour < a.HourlyLimit
}

// Utilization is the fraction of the daily budget consumed, used by
// AccountSelector to rank candidates.
func (a *Account) Utilization() float64 {
	if a.DailyLimit <= 0 {
		return 1
	}
	return float64(a.SentToday) / float64(a.DailyLimit)
}

// FromHeader renders the envelope From header, framing the display name
// as "Name" <addr> when present.
func (a *Account) FromHeader() string {
	if a.DisplayName == "" {
		return a.EmailAddress
	}
	return `"` + a.DisplayName + `" <` + a.EmailAddress + ">"
}
