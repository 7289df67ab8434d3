// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "errors"

var (
	ErrMessageNotFound    = errors.New("message not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountNameExists  = errors.New("account name already exists")
	ErrValidation         = errors.New("validation failed")
	ErrNoAccountAvailable = errors.New("no available account configured")
)
