package entitlement

import "time"

// HasPremiumAccess derives whether the account may use premium features at now.
// It reads stored fields only and must never be cached.
func HasPremiumAccess(a Account, now time.Time) bool {
	if a.Tier != TierPursuit {
		return false
	}

	// Legacy or manually granted accounts carry the tier without subscription data.
	if a.SubscriptionRef == "" || a.SubscriptionStatus == StatusNone {
		return true
	}

	switch a.SubscriptionStatus {
	case StatusActive:
		return true
	case StatusCanceled:
		return a.GraceUntil != nil && a.GraceUntil.After(now)
	default:
		return false
	}
}

// HasPaid reports whether the account ever reached a tier above none.
func HasPaid(a Account) bool { return a.Tier != TierNone }
