package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// Cancellation is the local state after a cancel request.
type Cancellation struct {
	Success    bool                           `json:"success"`
	Tier       entitlement.Tier               `json:"payment_tier"`
	Status     entitlement.SubscriptionStatus `json:"subscription_status"`
	GraceUntil *time.Time                     `json:"subscription_end_date"`
}

// Cancel stops auto-renewal at period end. The account keeps its tier and
// premium access until the paid-through date; the sweeper downgrades it
// afterwards. When the processor reports the subscription already ended
// with its period already over, the account is downgraded immediately.
//
// Cancel and subscription deletion are handled asymmetrically on purpose.
// Cancel is a user intent and is recorded eagerly: status and grace date
// are written now, without waiting for the processor's update event.
// Deletion is a processor fact and drops the tier at once.
func (s *Service) Cancel(ctx context.Context, accountID uuid.UUID) (Cancellation, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return Cancellation{}, err
	}
	if !acc.HasSubscription() {
		return Cancellation{}, ErrNoSubscription
	}
	ref := acc.SubscriptionRef

	sub, err := s.processor.CancelAtPeriodEnd(ctx, ref)
	if err != nil {
		s.log.ErrorContext(ctx, "subscription cancel failed",
			logger.AccountID(accountID),
			logger.SubscriptionRef(ref),
			logger.Error(err))
		return Cancellation{}, errors.Join(ErrProcessorUnavailable, err)
	}

	now := s.clock()
	subTier := s.catalog.SubscriptionTier().Tier
	acc, err = s.store.Update(ctx, accountID, func(tx Tx) error {
		a := tx.Account()
		if a.SubscriptionRef != ref {
			return fmt.Errorf("%w: subscription changed during cancel", ErrNoSubscription)
		}
		if sub.Status == entitlement.StatusCanceled && sub.PeriodEnd != nil && !sub.PeriodEnd.After(now) {
			downgrade(a, subTier, now)
			return nil
		}
		a.MarkCanceled(s.graceUntil(ctx, sub, a.ID, now))
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Cancellation{}, err
	}

	s.log.InfoContext(ctx, "subscription canceled at period end",
		logger.AccountID(acc.ID),
		logger.SubscriptionRef(ref),
		logger.Tier(acc.Tier),
		logger.Status(acc.SubscriptionStatus))
	s.metrics.transition("cancel", acc.Tier)

	return Cancellation{
		Success:    true,
		Tier:       acc.Tier,
		Status:     acc.SubscriptionStatus,
		GraceUntil: acc.GraceUntil,
	}, nil
}

// Resubscribe opens a new subscription checkout for an account whose
// subscription was canceled. Nothing changes locally until that checkout
// completes.
func (s *Service) Resubscribe(ctx context.Context, accountID uuid.UUID) (Checkout, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return Checkout{}, err
	}
	if !acc.HasSubscription() {
		return Checkout{}, ErrNoSubscription
	}
	if acc.SubscriptionStatus != entitlement.StatusCanceled {
		return Checkout{}, ErrNotCanceled
	}

	spec := s.catalog.SubscriptionTier()
	return s.startCheckout(ctx, acc, spec, CheckoutFlags{Resubscription: true}, s.accountURL(acc.ID))
}

// PaymentState answers whether an account has paid and may use premium features.
type PaymentState struct {
	Tier             entitlement.Tier `json:"payment_tier"`
	HasPaid          bool             `json:"has_paid"`
	HasPremiumAccess bool             `json:"has_premium_access"`
}

// PaymentStatus reads the stored tier. It never contacts the processor.
func (s *Service) PaymentStatus(ctx context.Context, accountID uuid.UUID) (PaymentState, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return PaymentState{}, err
	}
	return PaymentState{
		Tier:             acc.Tier,
		HasPaid:          entitlement.HasPaid(acc),
		HasPremiumAccess: entitlement.HasPremiumAccess(acc, s.clock()),
	}, nil
}

// SubscriptionState is the processor's view of an account's subscription.
type SubscriptionState struct {
	HasSubscription   bool                           `json:"has_subscription"`
	Status            entitlement.SubscriptionStatus `json:"subscription_status,omitempty"`
	PeriodEnd         *time.Time                     `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool                           `json:"cancel_at_period_end"`
	Tier              entitlement.Tier               `json:"payment_tier"`
	Error             string                         `json:"error,omitempty"`
}

// SubscriptionStatus fetches the subscription from the processor and, when
// the stored state is stale, refreshes it through the shared transition.
// A processor failure is reported in Error and changes nothing.
func (s *Service) SubscriptionStatus(ctx context.Context, accountID uuid.UUID) (SubscriptionState, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return SubscriptionState{}, err
	}
	if !acc.HasSubscription() {
		return SubscriptionState{Tier: acc.Tier}, nil
	}

	sub, err := s.processor.GetSubscription(ctx, acc.SubscriptionRef)
	if err != nil {
		s.log.WarnContext(ctx, "subscription lookup failed",
			logger.AccountID(acc.ID),
			logger.SubscriptionRef(acc.SubscriptionRef),
			logger.Error(err))
		return SubscriptionState{Tier: acc.Tier, Error: err.Error()}, nil
	}
	if sub.Ref == "" {
		sub.Ref = acc.SubscriptionRef
	}

	spec := s.catalog.SubscriptionTier()
	want := sub.Status
	if sub.NonRenewing() {
		want = entitlement.StatusCanceled
	}
	if acc.SubscriptionStatus != want || acc.Tier != spec.Tier {
		refreshed, err := s.applyBySubscription(ctx, acc.SubscriptionRef, Outcome{
			Tier:         spec.Tier,
			Mode:         spec.Mode,
			Subscription: sub,
		}, "status_refresh")
		switch {
		case err == nil:
			acc = refreshed
		case errors.Is(err, ErrAccountNotFound):
			// The reference moved on concurrently; report what the processor said.
		default:
			s.log.ErrorContext(ctx, "subscription status refresh failed",
				logger.AccountID(acc.ID),
				logger.Error(err))
		}
	}

	return SubscriptionState{
		HasSubscription:   true,
		Status:            sub.Status,
		PeriodEnd:         sub.PeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Tier:              acc.Tier,
	}, nil
}
