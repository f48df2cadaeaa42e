package entitlement

import (
	"fmt"
	"strings"
)

// Tier is the product access level an account holds.
// Declaration order is the rank: a later tier is never downgraded to an
// earlier one except by cancellation expiry or subscription deletion.
type Tier string

const (
	TierNone    Tier = "none"
	TierPurpose Tier = "purpose" // zero-cost tier
	TierPlan    Tier = "plan"    // one-time paid tier
	TierPursuit Tier = "pursuit" // subscription tier
)

// tierOrder lists every known tier from lowest to highest rank.
var tierOrder = []Tier{TierNone, TierPurpose, TierPlan, TierPursuit}

// ParseTier converts raw input into a known tier.
// Empty input maps to TierNone so that legacy rows without a tier stay valid.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TierNone, nil
	}
	for _, t := range tierOrder {
		if string(t) == s {
			return t, nil
		}
	}
	return TierNone, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Rank returns the position of the tier in the upgrade order.
// Unknown tiers rank below TierNone.
func (t Tier) Rank() int {
	for i, known := range tierOrder {
		if known == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool { return t.Rank() >= 0 }

// Unset reports whether t names no purchasable tier: TierNone, empty or unknown.
func (t Tier) Unset() bool { return t == TierNone || !t.Valid() }

// AtLeast reports whether t ranks equal to or above other.
func (t Tier) AtLeast(other Tier) bool { return t.Rank() >= other.Rank() }

// Below returns the next tier down. TierNone has nothing below it.
func (t Tier) Below() Tier {
	r := t.Rank()
	if r <= 0 {
		return TierNone
	}
	return tierOrder[r-1]
}

func (t Tier) String() string { return string(t) }

// SubscriptionStatus mirrors the payment processor's subscription status vocabulary.
// Values other than the declared constants are stored verbatim.
type SubscriptionStatus string

const (
	StatusNone              SubscriptionStatus = "" // no status recorded
	StatusActive            SubscriptionStatus = "active"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

func (s SubscriptionStatus) String() string { return string(s) }

// BillingMode tells the processor how a tier is charged.
type BillingMode string

const (
	ModeFree         BillingMode = "free"         // never sent to the processor
	ModeOneTime      BillingMode = "payment"      // single charge
	ModeSubscription BillingMode = "subscription" // recurring charge
)

// ParseBillingMode maps a processor mode string onto a BillingMode.
func ParseBillingMode(s string) (BillingMode, error) {
	switch BillingMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOneTime:
		return ModeOneTime, nil
	case ModeSubscription:
		return ModeSubscription, nil
	case ModeFree:
		return ModeFree, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBillingMode, s)
	}
}
