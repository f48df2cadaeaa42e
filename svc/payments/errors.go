package payments

import (
	"errors"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountExists    = errors.New("account already exists")
	ErrUnknownTier      = errors.New("unknown tier")
	ErrAlreadyEntitled  = errors.New("account already holds this tier")
	ErrNoSubscription   = errors.New("account has no subscription")
	ErrNotCanceled      = errors.New("subscription is not canceled")
	ErrMissingSessionID = errors.New("session id is required")
	ErrSessionMismatch  = errors.New("checkout session belongs to another account")

	// ErrProcessorUnavailable wraps every processor failure. Nothing was written; callers may retry.
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrInvalidWebhook       = errors.New("invalid webhook")

	ErrInvariantViolation = entitlement.ErrInvariantViolation
)
