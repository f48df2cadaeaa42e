package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
)

// Store persists entitlement records.
// Every mutation runs inside Update or UpdateBySubscription, which lock the
// account row for the duration of fn and commit all writes together.
type Store interface {
	// Get returns a snapshot of the account. Returns ErrAccountNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (entitlement.Account, error)

	// Update locks the account, runs fn and commits. The account invariants
	// are checked before commit; a violation rolls everything back with an
	// error wrapping ErrInvariantViolation. Any error from fn also rolls back.
	Update(ctx context.Context, id uuid.UUID, fn func(Tx) error) (entitlement.Account, error)

	// UpdateBySubscription is Update keyed by the stored subscription reference.
	// Returns ErrAccountNotFound when no account references ref.
	UpdateBySubscription(ctx context.Context, ref string, fn func(Tx) error) (entitlement.Account, error)

	// ListExpired returns accounts on the subscription tier whose canceled
	// subscription's grace period ended before now.
	ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// Summary counts accounts holding a subscription reference by status.
	Summary(ctx context.Context, now time.Time) (Summary, error)
}

// Tx is the locked view of one account inside Update.
type Tx interface {
	// Account returns the mutable in-transaction copy of the record.
	Account() *entitlement.Account

	// Result returns the account's generated result, or nil if there is none.
	Result() *entitlement.Result

	// ClaimEvent records key as processed. It returns false if the key was
	// claimed before, in this or any earlier committed transaction.
	ClaimEvent(ctx context.Context, key string) (bool, error)
}

// Summary is the subscription status breakdown.
// Expired counts canceled subscriptions past their grace period that the
// sweeper has not processed yet.
type Summary struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Canceled int `json:"canceled"`
	Expired  int `json:"expired"`
	Other    int `json:"other"`
}

// Add counts one subscribed account into the summary.
func (s *Summary) Add(a entitlement.Account, now time.Time) {
	s.Total++
	switch {
	case a.SubscriptionStatus == entitlement.StatusActive:
		s.Active++
	case a.GraceElapsed(now):
		s.Expired++
	case a.SubscriptionStatus == entitlement.StatusCanceled:
		s.Canceled++
	default:
		s.Other++
	}
}

// expired is the sweeper predicate, shared by stores and the in-transaction re-check.
func expired(a entitlement.Account, now time.Time) bool {
	return a.Tier == entitlement.TierPursuit && a.GraceElapsed(now)
}
