package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/pkg/billing"
	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/logger"
)

// Sentinel session references accepted by VerifyPayment in place of a
// processor session id.
const (
	SessionFreeTier     = "free-tier"
	SessionDirectUpdate = "direct-update"
)

// sessionPlaceholder is substituted by the processor on redirect.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// CheckoutFlags carry purchase intent through the processor.
type CheckoutFlags struct {
	Regeneration   bool
	Resubscription bool
	DeferredEmail  bool // the buyer signs in later through an emailed link
}

// Checkout is where the buyer should be sent next.
type Checkout struct {
	URL       string `json:"checkout_url"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateCheckout starts a purchase of tier for the account.
// The zero-cost tier is applied immediately and the returned URL already
// carries the free-tier sentinel. Paid tiers return the processor's hosted
// checkout URL; no local state changes until the payment is verified.
func (s *Service) CreateCheckout(ctx context.Context, accountID uuid.UUID, tier entitlement.Tier, flags CheckoutFlags) (Checkout, error) {
	spec, err := s.catalog.Lookup(tier)
	if err != nil {
		return Checkout{}, errors.Join(ErrUnknownTier, err)
	}

	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return Checkout{}, err
	}

	if !flags.Regeneration && !flags.Resubscription &&
		acc.Tier.AtLeast(tier) && acc.SubscriptionStatus == entitlement.StatusActive {
		s.metrics.checkout(tier, "already_entitled")
		return Checkout{}, fmt.Errorf("%w: %s", ErrAlreadyEntitled, acc.Tier)
	}

	if spec.Free() {
		if _, err := s.apply(ctx, Outcome{AccountID: accountID, Tier: tier, Mode: spec.Mode}, "checkout_free"); err != nil {
			return Checkout{}, err
		}
		s.metrics.checkout(tier, "applied")
		return Checkout{
			URL: strings.Replace(s.successURL(acc, tier, flags), sessionPlaceholder, SessionFreeTier, 1),
		}, nil
	}

	return s.startCheckout(ctx, acc, spec, flags, s.cancelURL(acc.ID))
}

// startCheckout asks the processor for a hosted session.
func (s *Service) startCheckout(ctx context.Context, acc entitlement.Account, spec entitlement.TierSpec, flags CheckoutFlags, cancelURL string) (Checkout, error) {
	req := billing.CheckoutRequest{
		PriceRef:        spec.PriceRef,
		Mode:            spec.Mode,
		SuccessURL:      s.successURL(acc, spec.Tier, flags),
		CancelURL:       cancelURL,
		ClientReference: billing.ClientReference(acc.ID, spec.Tier),
		CustomerEmail:   acc.Email,
		Metadata: billing.Metadata{
			AccountID:      acc.ID,
			Tier:           spec.Tier,
			Regeneration:   flags.Regeneration,
			DeferredEmail:  flags.DeferredEmail,
			Subscription:   spec.RequiresSubscription(),
			Resubscription: flags.Resubscription,
		},
	}

	sess, err := s.processor.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.log.ErrorContext(ctx, "checkout session creation failed",
			logger.AccountID(acc.ID),
			logger.Tier(spec.Tier),
			logger.Error(err))
		s.metrics.checkout(spec.Tier, "processor_error")
		return Checkout{}, errors.Join(ErrProcessorUnavailable, err)
	}

	s.log.InfoContext(ctx, "checkout session created",
		logger.AccountID(acc.ID),
		logger.Tier(spec.Tier),
		logger.SessionID(sess.ID))
	s.metrics.checkout(spec.Tier, "created")
	return Checkout{URL: sess.URL, SessionID: sess.ID}, nil
}

// successURL is the return address after checkout.
func (s *Service) successURL(acc entitlement.Account, tier entitlement.Tier, flags CheckoutFlags) string {
	q := url.Values{}
	q.Set("user_id", acc.ID.String())
	q.Set("tier", string(tier))

	switch {
	case flags.Resubscription:
		q.Set("is_resubscription", "true")
	case flags.DeferredEmail:
		q.Set("email", acc.Email)
		return s.cfg.domain() + "/payment-success?" + q.Encode()
	}
	return s.cfg.domain() + "/success?session_id=" + sessionPlaceholder + "&" + q.Encode()
}

func (s *Service) cancelURL(accountID uuid.UUID) string {
	return s.cfg.domain() + "/cancel?user_id=" + url.QueryEscape(accountID.String())
}

func (s *Service) accountURL(accountID uuid.UUID) string {
	return s.cfg.domain() + "/account/" + accountID.String()
}
