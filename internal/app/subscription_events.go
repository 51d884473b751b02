/**
 * @description
 * This file contains the processor for subscription platform lifecycle events.
 * Each webhook delivery is applied at most once: a Redis fast path filters
 * recently seen event IDs, and the authoritative dedupe is an event marker
 * inserted in the same database transaction as the grant and tier update.
 * Tier movement is always computed from the domain transition table, never
 * decided inline here.
 *
 * The processor never turns an unresolvable event into a caller-facing
 * failure; unresolved tiers and products are reported in the result so the
 * webhook handler can acknowledge the delivery and keep the platform from
 * retry-storming.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/pantrychef/credits-service/internal/store"
)

// Monthly credit allowances per tier.
const (
	ProMonthlyCredits   = 40
	PowerMonthlyCredits = 100
)

// creditPackProducts maps one-time purchase product ids to their credit
// amounts. Products outside this table are reported unresolved and grant
// nothing; trailing digits are deliberately not trusted as an amount.
var creditPackProducts = map[string]int64{
	"credits_10": 10,
	"credits_30": 30,
	"credits_75": 75,
}

// Unresolved reasons surfaced in the webhook acknowledgment.
var (
	ErrUnresolvedEntitlement = errors.New("event did not resolve to a subscription tier")
	ErrUnresolvedProduct     = errors.New("product id does not map to a credit amount")
)

// EventDeduper is the fast-path duplicate filter in front of the database
// marker. Implementations must be safe to skip entirely (nil deduper).
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string) error
}

// EventResult reports how an entitlement event was handled. At most one of
// Applied / Duplicate / Skipped is true. Unresolved carries the diagnostic
// reason when the event could not be mapped to a tier or credit amount; an
// unresolved result sets none of the flags.
type EventResult struct {
	Applied    bool   `json:"applied"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Unresolved string `json:"unresolved,omitempty"`
}

// EntitlementEventProcessor applies subscription lifecycle events to the
// ledger and tier store.
type EntitlementEventProcessor struct {
	repo           store.Repository
	deduper        EventDeduper
	monthlyCredits map[domain.Tier]int64
}

// NewEntitlementEventProcessor creates a processor. The deduper may be nil;
// the database marker alone still guarantees idempotency.
func NewEntitlementEventProcessor(repo store.Repository, deduper EventDeduper) *EntitlementEventProcessor {
	return &EntitlementEventProcessor{
		repo:    repo,
		deduper: deduper,
		monthlyCredits: map[domain.Tier]int64{
			domain.TierPro:   ProMonthlyCredits,
			domain.TierPower: PowerMonthlyCredits,
		},
	}
}

// Process applies one entitlement event. The returned error reflects internal
// failures only (database unavailable, user missing); unresolvable events are
// reported through EventResult.Unresolved and are not errors.
func (p *EntitlementEventProcessor) Process(ctx context.Context, event domain.EntitlementEvent) (EventResult, error) {
	if event.EventID == "" {
		return EventResult{}, errors.New("event id is required")
	}

	if p.deduper != nil {
		seen, err := p.deduper.Seen(ctx, event.EventID)
		if err != nil {
			log.Printf("level=warn component=entitlement_events msg=\"dedupe fast path unavailable\" event_id=%s err=%v", event.EventID, err)
		} else if seen {
			return EventResult{Duplicate: true}, nil
		}
	}

	var result EventResult
	var err error
	switch event.EventType {
	case domain.EventTypeInitialPurchase, domain.EventTypeRenewal:
		result, err = p.applySubscriptionGrant(ctx, event)
	case domain.EventTypeCancellation:
		// Cancellation keeps tier and credits through the paid period; the
		// matching expiration event does the teardown.
		result = EventResult{Skipped: true}
	case domain.EventTypeExpiration:
		result, err = p.applyExpiration(ctx, event)
	case domain.EventTypeNonRenewingPurchase:
		result, err = p.applyCreditPackPurchase(ctx, event)
	default:
		log.Printf("level=info component=entitlement_events msg=\"ignoring unrecognized event type\" event_id=%s event_type=%s", event.EventID, event.EventType)
		result = EventResult{Skipped: true}
	}
	if err != nil {
		return result, err
	}

	// Duplicates found via the database marker are marked too, so replays
	// stop paying a database round trip once the fast path knows the id.
	if (result.Applied || result.Duplicate) && p.deduper != nil {
		if err := p.deduper.MarkSeen(ctx, event.EventID); err != nil {
			log.Printf("level=warn component=entitlement_events msg=\"dedupe mark failed\" event_id=%s err=%v", event.EventID, err)
		}
	}
	return result, nil
}

// nextTierUpdate loads the user's current tier and computes the transition
// for this event from the domain transition table. A nil update means the
// event type does not participate in tier state.
func (p *EntitlementEventProcessor) nextTierUpdate(ctx context.Context, userID uuid.UUID, eventType domain.EntitlementEventType, resolved domain.Tier) (*domain.TierUpdate, error) {
	account, err := p.repo.FindUserAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", userID, err)
	}
	next, participates := domain.NextTier(eventType, account.SubscriptionTier, resolved)
	if !participates {
		return nil, nil
	}
	update := domain.NewTierUpdate(userID, next, time.Now().UTC())
	return &update, nil
}

// applySubscriptionGrant handles initial purchases and renewals: resolve the
// tier, grant the monthly allowance, and move the tier state, atomically and
// at most once per event id.
func (p *EntitlementEventProcessor) applySubscriptionGrant(ctx context.Context, event domain.EntitlementEvent) (EventResult, error) {
	tier := ResolveTier(event.EntitlementIDs, event.ProductID)
	if tier == domain.TierNone {
		log.Printf("level=warn component=entitlement_events msg=\"unresolved tier\" event_id=%s product_id=%s", event.EventID, event.ProductID)
		return EventResult{Unresolved: ErrUnresolvedEntitlement.Error()}, nil
	}

	userID, err := p.repo.FindUserIDByExternalID(ctx, event.AppUserID)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to resolve user %q: %w", event.AppUserID, err)
	}

	grant := store.GrantParams{
		UserID:      userID,
		Amount:      p.monthlyCredits[tier],
		Type:        domain.TransactionTypeSubscriptionGrant,
		Description: fmt.Sprintf("Monthly %s subscription credits", tier),
		Metadata: map[string]interface{}{
			"tier":       string(tier),
			"event_id":   event.EventID,
			"event_type": string(event.EventType),
		},
	}
	tierUpdate, err := p.nextTierUpdate(ctx, userID, event.EventType, tier)
	if err != nil {
		return EventResult{}, err
	}

	applied, err := p.repo.ApplyEntitlementEvent(ctx, event.EventID, event.EventType, &grant, tierUpdate)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to apply subscription grant: %w", err)
	}
	if !applied {
		return EventResult{Duplicate: true}, nil
	}
	log.Printf("level=info component=entitlement_events msg=\"subscription credits granted\" event_id=%s user_id=%s tier=%s amount=%d", event.EventID, userID, tier, grant.Amount)
	return EventResult{Applied: true}, nil
}

// applyExpiration clears the tier and gating flags. Credits already granted
// are never revoked.
func (p *EntitlementEventProcessor) applyExpiration(ctx context.Context, event domain.EntitlementEvent) (EventResult, error) {
	userID, err := p.repo.FindUserIDByExternalID(ctx, event.AppUserID)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to resolve user %q: %w", event.AppUserID, err)
	}

	// The resolved tier is irrelevant here: the transition table forces
	// expiration to none regardless of any entitlements still on the event.
	tierUpdate, err := p.nextTierUpdate(ctx, userID, event.EventType, ResolveTier(event.EntitlementIDs, event.ProductID))
	if err != nil {
		return EventResult{}, err
	}
	applied, err := p.repo.ApplyEntitlementEvent(ctx, event.EventID, event.EventType, nil, tierUpdate)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to apply expiration: %w", err)
	}
	if !applied {
		return EventResult{Duplicate: true}, nil
	}
	log.Printf("level=info component=entitlement_events msg=\"subscription expired\" event_id=%s user_id=%s", event.EventID, userID)
	return EventResult{Applied: true}, nil
}

// applyCreditPackPurchase handles one-time (non-renewing) purchases via the
// static product table.
func (p *EntitlementEventProcessor) applyCreditPackPurchase(ctx context.Context, event domain.EntitlementEvent) (EventResult, error) {
	amount, ok := creditPackProducts[event.ProductID]
	if !ok {
		log.Printf("level=warn component=entitlement_events msg=\"unresolved credit pack product\" event_id=%s product_id=%s", event.EventID, event.ProductID)
		return EventResult{Unresolved: ErrUnresolvedProduct.Error()}, nil
	}

	userID, err := p.repo.FindUserIDByExternalID(ctx, event.AppUserID)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to resolve user %q: %w", event.AppUserID, err)
	}

	grant := store.GrantParams{
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TransactionTypePurchaseGrant,
		Description: fmt.Sprintf("Credit pack purchase (%s)", event.ProductID),
		Metadata: map[string]interface{}{
			"product_id": event.ProductID,
			"event_id":   event.EventID,
		},
	}

	applied, err := p.repo.ApplyEntitlementEvent(ctx, event.EventID, event.EventType, &grant, nil)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to apply credit pack purchase: %w", err)
	}
	if !applied {
		return EventResult{Duplicate: true}, nil
	}
	log.Printf("level=info component=entitlement_events msg=\"credit pack granted\" event_id=%s user_id=%s product_id=%s amount=%d", event.EventID, userID, event.ProductID, amount)
	return EventResult{Applied: true}, nil
}
