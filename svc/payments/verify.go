package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// VerifyRequest identifies the checkout to confirm.
type VerifyRequest struct {
	AccountID uuid.UUID
	SessionID string // processor session id or one of the Session* sentinels
	Tier      entitlement.Tier

	// ForceActive applies only to direct-update of the subscription tier.
	ForceActive bool
}

// Verification is the result of VerifyPayment.
// Verified false is a normal outcome: the payment has not settled yet.
type Verification struct {
	Verified     bool             `json:"payment_verified"`
	Tier         entitlement.Tier `json:"tier,omitempty"`
	Subscription bool             `json:"is_subscription"`
	Regeneration bool             `json:"is_regeneration"`
	DirectUpdate bool             `json:"direct_update,omitempty"`
}

// VerifyPayment confirms a checkout with the processor and applies it.
// Re-verifying an applied session leaves the record unchanged.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyRequest) (Verification, error) {
	if req.SessionID == "" {
		return Verification{}, ErrMissingSessionID
	}
	spec, err := s.catalog.Lookup(req.Tier)
	if err != nil {
		return Verification{}, errors.Join(ErrUnknownTier, err)
	}

	if req.SessionID == SessionFreeTier || req.SessionID == SessionDirectUpdate {
		return s.verifyDirect(ctx, req, spec)
	}

	sess, err := s.processor.GetCheckoutSession(ctx, req.SessionID)
	if err != nil {
		s.log.ErrorContext(ctx, "checkout session lookup failed",
			logger.AccountID(req.AccountID),
			logger.SessionID(req.SessionID),
			logger.Error(err))
		return Verification{}, errors.Join(ErrProcessorUnavailable, err)
	}
	if !sess.Paid() {
		s.log.InfoContext(ctx, "checkout session not paid yet",
			logger.AccountID(req.AccountID),
			logger.SessionID(sess.ID),
			logger.Status(sess.PaymentStatus))
		return Verification{Verified: false}, nil
	}

	meta, err := sess.Intent()
	if err != nil {
		// Sessions created outside CreateCheckout carry no intent; trust the caller.
		meta = billing.Metadata{AccountID: req.AccountID, Tier: req.Tier}
	}
	if meta.AccountID != req.AccountID {
		return Verification{}, fmt.Errorf("%w: session %s", ErrSessionMismatch, sess.ID)
	}
	if meta.Tier.Unset() {
		meta.Tier = req.Tier
	}

	o, err := s.outcomeFromSession(ctx, sess, meta)
	if err != nil {
		return Verification{}, err
	}
	acc, err := s.apply(ctx, o, "verify")
	if err != nil {
		return Verification{}, err
	}

	return Verification{
		Verified:     true,
		Tier:         acc.Tier,
		Subscription: o.Mode == entitlement.ModeSubscription,
		Regeneration: o.Regeneration,
	}, nil
}

// verifyDirect applies a tier without a processor session.
func (s *Service) verifyDirect(ctx context.Context, req VerifyRequest, spec entitlement.TierSpec) (Verification, error) {
	if req.SessionID == SessionFreeTier || spec.Free() {
		free := s.catalog.FreeTier()
		acc, err := s.apply(ctx, Outcome{AccountID: req.AccountID, Tier: free.Tier, Mode: free.Mode}, "direct_free")
		if err != nil {
			return Verification{}, err
		}
		return Verification{Verified: true, Tier: acc.Tier, DirectUpdate: true}, nil
	}

	o := Outcome{
		AccountID:   req.AccountID,
		Tier:        spec.Tier,
		Mode:        spec.Mode,
		ForceActive: req.ForceActive && spec.RequiresSubscription(),
	}

	if spec.RequiresSubscription() {
		acc, err := s.store.Get(ctx, req.AccountID)
		if err != nil {
			return Verification{}, err
		}
		if acc.HasSubscription() {
			sub, err := s.processor.GetSubscription(ctx, acc.SubscriptionRef)
			switch {
			case err == nil:
				o.Subscription = sub
			case o.ForceActive:
				s.log.WarnContext(ctx, "subscription lookup failed, forcing active",
					logger.AccountID(acc.ID),
					logger.SubscriptionRef(acc.SubscriptionRef),
					logger.Error(err))
			default:
				return Verification{}, errors.Join(ErrProcessorUnavailable, err)
			}
		}
	}

	acc, err := s.apply(ctx, o, "direct_update")
	if err != nil {
		return Verification{}, err
	}
	return Verification{
		Verified:     true,
		Tier:         acc.Tier,
		Subscription: spec.RequiresSubscription(),
		DirectUpdate: true,
	}, nil
}

// outcomeFromSession builds the outcome of a paid session, fetching its
// subscription when it has one.
func (s *Service) outcomeFromSession(ctx context.Context, sess *billing.CheckoutSession, meta billing.Metadata) (Outcome, error) {
	o := Outcome{
		AccountID:      meta.AccountID,
		Tier:           meta.Tier,
		Mode:           sess.Mode,
		Regeneration:   meta.Regeneration,
		Resubscription: meta.Resubscription,
		EventKey:       sess.ID,
	}
	if meta.Subscription || sess.SubscriptionRef != "" {
		o.Mode = entitlement.ModeSubscription
	}
	if o.Mode == entitlement.ModeSubscription {
		o.Tier = s.catalog.SubscriptionTier().Tier
	}

	if sess.SubscriptionRef != "" {
		sub, err := s.processor.GetSubscription(ctx, sess.SubscriptionRef)
		if err != nil {
			s.log.ErrorContext(ctx, "subscription lookup failed",
				logger.AccountID(meta.AccountID),
				logger.SubscriptionRef(sess.SubscriptionRef),
				logger.Error(err))
			return Outcome{}, errors.Join(ErrProcessorUnavailable, err)
		}
		if sub.Ref == "" {
			sub.Ref = sess.SubscriptionRef
		}
		o.Subscription = sub
	}
	return o, nil
}
