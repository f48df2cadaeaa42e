package entitlement

import "errors"

var (
	ErrUnknownTier        = errors.New("unknown tier")
	ErrUnknownBillingMode = errors.New("unknown billing mode")
	ErrTierNotPurchasable = errors.New("tier cannot be purchased")

	ErrInvariantViolation = errors.New("account entitlement invariant violated")
)
