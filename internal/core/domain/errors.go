package domain

import "errors"

var ErrAccountNotFound = errors.New("account not found")
var ErrUsernameTaken = errors.New("username already exists")

// ErrAccountIDExists reports a generated account id that is already in use.
var ErrAccountIDExists = errors.New("account id already exists")
var ErrVersionConflict = errors.New("account was modified concurrently")
var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrInvalidInput = errors.New("invalid input")

// ErrCodeInvalid covers absent, consumed and expired codes alike so callers
// cannot probe which codes once existed.
var ErrCodeInvalid = errors.New("activation code invalid or expired")
var ErrCodeExists = errors.New("activation code already exists")
var ErrAlreadyVerified = errors.New("account already verified")
var ErrNotVerified = errors.New("account not verified")

var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrBelowMinimum = errors.New("amount below minimum withdrawal")
var ErrNotificationFailed = errors.New("withdrawal notification failed")
var ErrTransactionNotFound = errors.New("transaction not found")
