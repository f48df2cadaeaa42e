package entitlement

import "fmt"

// TierSpec describes how a tier is sold.
type TierSpec struct {
	Tier     Tier
	PriceRef string // processor price id, empty for the zero-cost tier
	Mode     BillingMode
}

// RequiresSubscription reports whether holding the tier needs a live subscription.
func (s TierSpec) RequiresSubscription() bool { return s.Mode == ModeSubscription }

// Free reports whether the tier bypasses the processor.
func (s TierSpec) Free() bool { return s.Mode == ModeFree }

// Prices carries processor price references for the paid tiers.
type Prices struct {
	Plan         string `env:"STRIPE_PLAN_PRICE_ID"`
	Subscription string `env:"STRIPE_SUBSCRIPTION_PRICE_ID"`
}

// Catalog is the static tier lookup. The zero value knows no tiers.
type Catalog struct {
	specs map[Tier]TierSpec
}

// NewCatalog builds the catalog for the purchasable tiers.
// TierNone is not purchasable and is never part of the catalog.
func NewCatalog(prices Prices) Catalog {
	return Catalog{specs: map[Tier]TierSpec{
		TierPurpose: {Tier: TierPurpose, Mode: ModeFree},
		TierPlan:    {Tier: TierPlan, PriceRef: prices.Plan, Mode: ModeOneTime},
		TierPursuit: {Tier: TierPursuit, PriceRef: prices.Subscription, Mode: ModeSubscription},
	}}
}

// Lookup returns the spec for a tier.
func (c Catalog) Lookup(t Tier) (TierSpec, error) {
	spec, ok := c.specs[t]
	if !ok {
		return TierSpec{}, fmt.Errorf("%w: %s", ErrTierNotPurchasable, t)
	}
	return spec, nil
}

// SubscriptionTier returns the tier sold in subscription mode.
func (c Catalog) SubscriptionTier() TierSpec {
	for _, spec := range c.specs {
		if spec.RequiresSubscription() {
			return spec
		}
	}
	return TierSpec{}
}

// FreeTier returns the zero-cost tier.
func (c Catalog) FreeTier() TierSpec {
	for _, spec := range c.specs {
		if spec.Free() {
			return spec
		}
	}
	return TierSpec{}
}

// Validate reports missing price references for paid tiers.
func (c Catalog) Validate() error {
	for _, spec := range c.specs {
		if !spec.Free() && spec.PriceRef == "" {
			return fmt.Errorf("%w: no price reference for tier %s", ErrTierNotPurchasable, spec.Tier)
		}
	}
	return nil
}
