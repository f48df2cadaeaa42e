package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// HandleWebhook verifies and applies one processor delivery.
//
// Deliveries are at-least-once and unordered across kinds. Each kind writes
// the processor's current status, so redelivery and reordering are harmless.
// Events that need no action, including ones for unknown subscriptions, are
// acknowledged with a nil error so the processor stops retrying them.
// A non-nil error other than ErrInvalidWebhook means the delivery should be retried.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.processor.ParseWebhook(payload, signature)
	if err != nil {
		s.log.WarnContext(ctx, "webhook rejected", logger.Error(err))
		s.metrics.webhook("unknown", "rejected")
		return errors.Join(ErrInvalidWebhook, err)
	}

	log := s.log.With(logger.EventID(event.ID), logger.EventType(event.ProviderType))
	kind := string(event.Kind)

	switch event.Kind {
	case billing.EventCheckoutCompleted:
		err = s.checkoutCompleted(ctx, event.Session)
	case billing.EventSubscriptionUpdated:
		err = s.subscriptionUpdated(ctx, event.Subscription)
	case billing.EventSubscriptionDeleted:
		err = s.subscriptionDeleted(ctx, event.Subscription)
	default:
		log.DebugContext(ctx, "webhook event ignored")
		s.metrics.webhook(kind, "ignored")
		return nil
	}

	switch {
	case err == nil:
		s.metrics.webhook(kind, "applied")
		return nil
	case errors.Is(err, errSkipEvent), errors.Is(err, ErrAccountNotFound):
		log.InfoContext(ctx, "webhook event acknowledged without change", logger.Error(err))
		s.metrics.webhook(kind, "skipped")
		return nil
	default:
		log.ErrorContext(ctx, "webhook event failed", logger.Error(err))
		s.metrics.webhook(kind, "failed")
		return err
	}
}

// errSkipEvent marks a verified event that carries nothing to apply.
var errSkipEvent = errors.New("nothing to apply")

func (s *Service) checkoutCompleted(ctx context.Context, sess *billing.CheckoutSession) error {
	if sess == nil {
		return errSkipEvent
	}
	if !sess.Paid() {
		return fmt.Errorf("%w: session %s not paid", errSkipEvent, sess.ID)
	}
	meta, err := sess.Intent()
	if err != nil {
		return errors.Join(errSkipEvent, err)
	}

	o, err := s.outcomeFromSession(ctx, sess, meta)
	if err != nil {
		return err
	}
	if o.Tier.Unset() {
		return fmt.Errorf("%w: session %s names no tier", errSkipEvent, sess.ID)
	}
	_, err = s.apply(ctx, o, "webhook_checkout")
	return err
}

func (s *Service) subscriptionUpdated(ctx context.Context, sub *billing.Subscription) error {
	if sub == nil || sub.Ref == "" {
		return errSkipEvent
	}
	spec := s.catalog.SubscriptionTier()
	_, err := s.applyBySubscription(ctx, sub.Ref, Outcome{
		Tier:         spec.Tier,
		Mode:         spec.Mode,
		Subscription: sub,
	}, "webhook_subscription_updated")
	return err
}

// subscriptionDeleted handles the end of a subscription: the account drops
// one tier and loses every subscription field.
func (s *Service) subscriptionDeleted(ctx context.Context, sub *billing.Subscription) error {
	if sub == nil || sub.Ref == "" {
		return errSkipEvent
	}
	now := s.clock()
	acc, err := s.store.UpdateBySubscription(ctx, sub.Ref, func(tx Tx) error {
		downgrade(tx.Account(), s.catalog.SubscriptionTier().Tier, now)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "subscription ended",
		logger.AccountID(acc.ID),
		logger.SubscriptionRef(sub.Ref),
		logger.Tier(acc.Tier))
	s.metrics.transition("webhook_subscription_deleted", acc.Tier)
	return nil
}

// downgrade moves an account one tier below the subscription tier and drops
// every subscription field.
func downgrade(a *entitlement.Account, subscriptionTier entitlement.Tier, now time.Time) {
	if a.Tier == subscriptionTier {
		a.Tier = subscriptionTier.Below()
	}
	a.ClearSubscription()
	a.UpdatedAt = now
}
