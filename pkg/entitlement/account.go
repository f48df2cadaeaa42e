package entitlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is the entitlement subset of a user record.
// Empty SubscriptionRef and StatusNone stand for NULL columns.
type Account struct {
	ID                 uuid.UUID
	Email              string
	Tier               Tier
	SubscriptionRef    string
	SubscriptionStatus SubscriptionStatus
	GraceUntil         *time.Time // paid-through date, set only while canceled
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasSubscription reports whether a processor subscription is referenced.
func (a Account) HasSubscription() bool { return a.SubscriptionRef != "" }

// ClearSubscription drops every subscription field.
func (a *Account) ClearSubscription() {
	a.SubscriptionRef = ""
	a.SubscriptionStatus = StatusNone
	a.GraceUntil = nil
}

// MarkCanceled records a non-renewing subscription paid through graceUntil.
func (a *Account) MarkCanceled(graceUntil time.Time) {
	g := graceUntil.UTC()
	a.SubscriptionStatus = StatusCanceled
	a.GraceUntil = &g
}

// GraceElapsed reports whether a canceled subscription's paid-through date has passed.
func (a Account) GraceElapsed(now time.Time) bool {
	return a.SubscriptionStatus == StatusCanceled && a.GraceUntil != nil && a.GraceUntil.Before(now)
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (a Account) Clone() Account {
	if a.GraceUntil != nil {
		g := *a.GraceUntil
		a.GraceUntil = &g
	}
	return a
}

// CheckInvariants validates the stored combination of entitlement fields.
func (a *Account) CheckInvariants() error {
	if !a.Tier.Valid() {
		return fmt.Errorf("%w: unknown tier %q", ErrInvariantViolation, a.Tier)
	}
	canceled := a.SubscriptionStatus == StatusCanceled
	if canceled != (a.GraceUntil != nil) {
		return fmt.Errorf("%w: grace_until must be set iff status is canceled (status=%q)",
			ErrInvariantViolation, a.SubscriptionStatus)
	}
	if a.SubscriptionStatus == StatusActive && a.Tier != TierPursuit {
		return fmt.Errorf("%w: active subscription on tier %s", ErrInvariantViolation, a.Tier)
	}
	return nil
}

// Result is the regeneration bookkeeping of an account's generated result.
type Result struct {
	AccountID         uuid.UUID
	RegenerationCount int
	LastGeneratedAt   time.Time
}

// Regenerated bumps the counter for one paid regeneration.
func (r *Result) Regenerated(now time.Time) {
	r.RegenerationCount++
	r.LastGeneratedAt = now.UTC()
}
