// Package entitlement holds the pure entitlement model: tiers, the tier
// catalog, the account entitlement record and the premium access rule.
//
// Nothing in this package performs I/O. HasPremiumAccess is derived from the
// stored tier, subscription reference, subscription status and grace date
// at call time:
//
//	if !entitlement.HasPremiumAccess(account, time.Now()) {
//		return handler.ErrPaymentRequired
//	}
//
// Account.CheckInvariants is enforced by every store before a write is
// committed, so a transition that would leave grace_until set on an active
// subscription (or unset on a canceled one) is rolled back instead of stored.
package entitlement
