package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// Outcome is a settled payment to apply to one account.
type Outcome struct {
	AccountID uuid.UUID
	Tier      entitlement.Tier
	Mode      entitlement.BillingMode

	// Subscription is the processor's current view, nil when none was fetched.
	Subscription *billing.Subscription

	Regeneration   bool
	Resubscription bool

	// EventKey identifies the payment event (the checkout session id).
	// Regeneration is counted at most once per key.
	EventKey string

	// ForceActive marks the subscription active regardless of processor state.
	ForceActive bool
}

// apply runs the shared transition for o in one transaction.
// It writes the authoritative state rather than a delta, so applying the
// same outcome twice yields the same record.
func (s *Service) apply(ctx context.Context, o Outcome, source string) (entitlement.Account, error) {
	var regenerated bool
	now := s.clock()
	acc, err := s.store.Update(ctx, o.AccountID, func(tx Tx) (err error) {
		regenerated, err = s.applyTx(ctx, tx, o, now)
		return err
	})
	if err != nil {
		return entitlement.Account{}, err
	}
	s.applied(ctx, acc, source, regenerated)
	return acc, nil
}

// applyBySubscription is apply for the account that stores ref.
func (s *Service) applyBySubscription(ctx context.Context, ref string, o Outcome, source string) (entitlement.Account, error) {
	now := s.clock()
	acc, err := s.store.UpdateBySubscription(ctx, ref, func(tx Tx) error {
		_, err := s.applyTx(ctx, tx, o, now)
		return err
	})
	if err != nil {
		return entitlement.Account{}, err
	}
	s.applied(ctx, acc, source, false)
	return acc, nil
}

func (s *Service) applyTx(ctx context.Context, tx Tx, o Outcome, now time.Time) (bool, error) {
	a := tx.Account()
	s.transition(ctx, a, o, now)
	a.UpdatedAt = now

	if !o.Regeneration {
		return false, nil
	}
	res := tx.Result()
	if res == nil {
		return false, nil
	}
	if o.EventKey == "" {
		s.log.WarnContext(ctx, "regeneration without payment event, not counted", logger.AccountID(a.ID))
		return false, nil
	}
	claimed, err := tx.ClaimEvent(ctx, "regeneration:"+o.EventKey)
	if err != nil || !claimed {
		return false, err
	}
	res.Regenerated(now)
	return true, nil
}

func (s *Service) applied(ctx context.Context, acc entitlement.Account, source string, regenerated bool) {
	s.log.InfoContext(ctx, "payment outcome applied",
		logger.Event(source),
		logger.AccountID(acc.ID),
		logger.Tier(acc.Tier),
		logger.Status(acc.SubscriptionStatus),
		logger.SubscriptionRef(acc.SubscriptionRef),
		slog.Bool("regenerated", regenerated))
	s.metrics.transition(source, acc.Tier)
	if regenerated {
		s.metrics.regeneration()
	}
}

// transition mutates a in place. It never touches the processor.
func (s *Service) transition(ctx context.Context, a *entitlement.Account, o Outcome, now time.Time) {
	sub := s.catalog.SubscriptionTier()

	if superseded(a, o.Subscription) {
		s.log.InfoContext(ctx, "subscription superseded by a newer one, left unchanged",
			logger.AccountID(a.ID),
			logger.SubscriptionRef(o.Subscription.Ref),
			slog.String("current_subscription_ref", a.SubscriptionRef),
			logger.Status(o.Subscription.Status))
		return
	}

	if o.Mode != entitlement.ModeSubscription && o.Tier != sub.Tier {
		// One-time or free: upgrade only.
		if o.Tier.AtLeast(a.Tier) {
			a.Tier = o.Tier
		}
		if a.Tier != sub.Tier {
			a.ClearSubscription()
		}
		return
	}

	a.Tier = sub.Tier
	if o.Subscription != nil {
		if o.Subscription.Ref != "" {
			a.SubscriptionRef = o.Subscription.Ref
		}
		if o.Subscription.NonRenewing() {
			a.MarkCanceled(s.graceUntil(ctx, o.Subscription, a.ID, now))
		} else {
			a.SubscriptionStatus = o.Subscription.Status
			a.GraceUntil = nil
		}
	}

	if o.ForceActive {
		if a.SubscriptionRef == "" {
			a.SubscriptionRef = "subscription-" + a.ID.String()
		}
		a.SubscriptionStatus = entitlement.StatusActive
		a.GraceUntil = nil
	}
}

// superseded reports whether sub is an older subscription than the one the
// account stores. A different subscription replaces the stored one only
// while it is live; an ended or non-renewing one comes from a stale session.
func superseded(a *entitlement.Account, sub *billing.Subscription) bool {
	if sub == nil || sub.Ref == "" || !a.HasSubscription() || a.SubscriptionRef == sub.Ref {
		return false
	}
	return !sub.Live()
}

// graceUntil is the paid-through date of a non-renewing subscription.
// A missing period end falls back to now plus the configured window.
func (s *Service) graceUntil(ctx context.Context, sub *billing.Subscription, accountID uuid.UUID, now time.Time) time.Time {
	if sub.PeriodEnd != nil {
		return *sub.PeriodEnd
	}
	fallback := now.Add(s.cfg.GraceFallback)
	s.log.WarnContext(ctx, "processor omitted period end for non-renewing subscription, using fallback",
		logger.AccountID(accountID),
		logger.SubscriptionRef(sub.Ref),
		slog.Time("grace_until", fallback))
	s.metrics.graceFallback()
	return fallback
}
