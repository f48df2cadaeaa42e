package billing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
)

// Metadata keys echoed back by the processor on redirect and webhook.
const (
	MetaAccountID      = "account_id"
	MetaTier           = "tier"
	MetaRegeneration   = "is_regeneration"
	MetaDeferredEmail  = "is_magic_link_sent"
	MetaSubscription   = "is_subscription"
	MetaResubscription = "is_resubscription"
)

// Metadata is the checkout intent carried through the processor.
// It is the only channel for reconstructing intent after checkout.
type Metadata struct {
	AccountID      uuid.UUID
	Tier           entitlement.Tier
	Regeneration   bool
	DeferredEmail  bool
	Subscription   bool
	Resubscription bool
}

// Map encodes metadata into the processor's string map.
func (m Metadata) Map() map[string]string {
	out := map[string]string{
		MetaTier:           string(m.Tier),
		MetaRegeneration:   strconv.FormatBool(m.Regeneration),
		MetaDeferredEmail:  strconv.FormatBool(m.DeferredEmail),
		MetaSubscription:   strconv.FormatBool(m.Subscription),
		MetaResubscription: strconv.FormatBool(m.Resubscription),
	}
	if m.AccountID != uuid.Nil {
		out[MetaAccountID] = m.AccountID.String()
	}
	return out
}

// ParseMetadata decodes an echoed metadata map.
// Missing flags read as false. Flags are matched case-insensitively, so "True" is accepted.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	m := Metadata{Tier: entitlement.TierNone}
	if raw == nil {
		return m, nil
	}

	if v := raw[MetaAccountID]; v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return m, fmt.Errorf("%w: account_id: %v", ErrInvalidMetadata, err)
		}
		m.AccountID = id
	}

	tier, err := entitlement.ParseTier(raw[MetaTier])
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	m.Tier = tier

	m.Regeneration = flag(raw[MetaRegeneration])
	m.DeferredEmail = flag(raw[MetaDeferredEmail])
	m.Subscription = flag(raw[MetaSubscription])
	m.Resubscription = flag(raw[MetaResubscription])
	return m, nil
}

func flag(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// ClientReference builds the "<account>:<tier>" correlation token.
func ClientReference(accountID uuid.UUID, tier entitlement.Tier) string {
	return accountID.String() + ":" + string(tier)
}

// ParseClientReference splits a correlation token.
func ParseClientReference(ref string) (uuid.UUID, entitlement.Tier, error) {
	idPart, tierPart, ok := strings.Cut(ref, ":")
	if !ok {
		return uuid.Nil, "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	tier, err := entitlement.ParseTier(tierPart)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return id, tier, nil
}

// Intent resolves the account and metadata of a completed session.
// Metadata wins over the correlation token when both name an account.
func (s *CheckoutSession) Intent() (Metadata, error) {
	meta := s.Metadata
	if meta.Tier.Unset() {
		meta.Tier = entitlement.TierNone
	}
	if meta.AccountID != uuid.Nil && meta.Tier != entitlement.TierNone {
		return meta, nil
	}
	if s.ClientReference == "" {
		if meta.AccountID == uuid.Nil {
			return meta, fmt.Errorf("%w: session %s carries no account", ErrInvalidMetadata, s.ID)
		}
		return meta, nil
	}
	id, tier, err := ParseClientReference(s.ClientReference)
	if err != nil {
		return meta, err
	}
	if meta.AccountID == uuid.Nil {
		meta.AccountID = id
	}
	if meta.Tier == entitlement.TierNone {
		meta.Tier = tier
	}
	return meta, nil
}
