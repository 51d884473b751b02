/**
 * @description
 * This file defines the subscription tier model and the entitlement event
 * envelope delivered by the external subscription platform. Tier transitions
 * are expressed as an explicit table rather than ad hoc branches so that
 * "cancellation keeps the current tier" and "expiration forces none" are
 * visible as data.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the resolved subscription level derived from entitlements.
type Tier string

const (
	TierNone  Tier = "none"
	TierPro   Tier = "pro"
	TierPower Tier = "power"
)

// Entitlement identifiers asserted by the subscription platform. A power
// subscriber holds both entitlements simultaneously.
const (
	EntitlementPro   = "pro"
	EntitlementPower = "power"
)

// EntitlementEventType enumerates the lifecycle events the platform delivers.
type EntitlementEventType string

const (
	EventTypeInitialPurchase     EntitlementEventType = "INITIAL_PURCHASE"
	EventTypeRenewal             EntitlementEventType = "RENEWAL"
	EventTypeCancellation        EntitlementEventType = "CANCELLATION"
	EventTypeExpiration          EntitlementEventType = "EXPIRATION"
	EventTypeNonRenewingPurchase EntitlementEventType = "NON_RENEWING_PURCHASE"
)

// EntitlementEvent is the webhook envelope received from the subscription
// platform. EventID is the platform's unique delivery identifier and is the
// idempotency key for processing.
type EntitlementEvent struct {
	EventID        string               `json:"event_id"`
	EventType      EntitlementEventType `json:"event_type"`
	AppUserID      string               `json:"app_user_id"`
	ProductID      string               `json:"product_id"`
	EntitlementIDs []string             `json:"entitlement_ids"`
}

// TierUpdate is the single update path for tier and gating flags. The flags
// are derived from the tier so they can never drift apart
// (IsPowerUser implies IsProUser).
type TierUpdate struct {
	UserID      uuid.UUID
	Tier        Tier
	IsProUser   bool
	IsPowerUser bool
	CheckedAt   time.Time
}

// NewTierUpdate derives consistent gating flags from a tier.
func NewTierUpdate(userID uuid.UUID, tier Tier, checkedAt time.Time) TierUpdate {
	return TierUpdate{
		UserID:      userID,
		Tier:        tier,
		IsProUser:   tier == TierPro || tier == TierPower,
		IsPowerUser: tier == TierPower,
		CheckedAt:   checkedAt,
	}
}

// tierTransitions maps an event type to the tier the user should end up in.
// A nil entry means the event never changes tier state.
var tierTransitions = map[EntitlementEventType]func(current, resolved Tier) Tier{
	// Purchases and renewals adopt the freshly resolved tier.
	EventTypeInitialPurchase: func(current, resolved Tier) Tier { return resolved },
	EventTypeRenewal:         func(current, resolved Tier) Tier { return resolved },
	// Cancellation keeps the paid period alive; the tier is untouched until
	// the platform delivers the matching expiration.
	EventTypeCancellation: func(current, resolved Tier) Tier { return current },
	// Expiration always forces none, regardless of resolved entitlements.
	EventTypeExpiration: func(current, resolved Tier) Tier { return TierNone },
}

// NextTier returns the tier a user transitions to for the given event type.
// The second return reports whether the event type participates in tier state
// at all (one-time purchases and unknown events do not).
func NextTier(eventType EntitlementEventType, current, resolved Tier) (Tier, bool) {
	transition, ok := tierTransitions[eventType]
	if !ok {
		return current, false
	}
	return transition(current, resolved), true
}
