/**
 * @description
 * This file contains the loyalty side of the credits-service: rewarding retail
 * checkouts on the declining schedule and unlocking creator earnings once the
 * consuming user has completed a qualifying Walmart checkout.
 *
 * The checkout counter increment and the credit grant are one repository call
 * backed by a single database transaction, so the counter can never move
 * without the matching grant (or vice versa).
 *
 * @dependencies
 * - context, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/pantrychef/credits-service/internal/store"
	"github.com/pantrychef/credits-service/pkg/rabbitmq"
)

// LoyaltyService rewards completed retail checkouts and maintains recipe
// usage eligibility.
type LoyaltyService struct {
	repo          store.Repository
	schedule      domain.CheckoutRewardSchedule
	eventProducer rabbitmq.Publisher
}

// NewLoyaltyService creates a loyalty service with the given reward schedule.
func NewLoyaltyService(repo store.Repository, schedule domain.CheckoutRewardSchedule, producer rabbitmq.Publisher) *LoyaltyService {
	return &LoyaltyService{
		repo:          repo,
		schedule:      schedule,
		eventProducer: producer,
	}
}

// RewardCheckout records one completed Walmart checkout: it atomically
// increments the user's checkout counter and grants the scheduled reward
// (15 for #1, 10 for #2, 5 from #3 on), returning what was granted.
func (s *LoyaltyService) RewardCheckout(ctx context.Context, userID uuid.UUID) (*domain.CheckoutReward, error) {
	reward, err := s.repo.RecordCheckoutReward(ctx, userID, s.schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to record checkout reward: %w", err)
	}

	log.Printf("level=info component=loyalty msg=\"checkout reward granted\" user_id=%s checkout_number=%d amount=%d", userID, reward.Ordinal, reward.Amount)

	if s.eventProducer != nil {
		event := rabbitmq.CheckoutRewardEvent{
			UserID:         userID,
			CheckoutNumber: reward.Ordinal,
			Amount:         reward.Amount,
			Timestamp:      time.Now().UTC(),
		}
		if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, "loyalty.checkout.rewarded", event); err != nil {
			log.Printf("level=warn component=loyalty msg=\"event publish failed\" user_id=%s err=%v", userID, err)
		}
	}

	return reward, nil
}

// MarkUsagesCheckoutEligible stamps the current time on every unpaid
// recipe usage of the user that requires a Walmart checkout and has none yet,
// unlocking the associated creator earnings for the next payout run. Returns
// the number of usages stamped.
func (s *LoyaltyService) MarkUsagesCheckoutEligible(ctx context.Context, userID uuid.UUID) (int64, error) {
	stamped, err := s.repo.MarkUsagesCheckoutEligible(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark usages checkout-eligible: %w", err)
	}
	if stamped > 0 {
		log.Printf("level=info component=loyalty msg=\"recipe usages unlocked for payout\" user_id=%s count=%d", userID, stamped)
	}
	return stamped, nil
}

// RecordRecipeUsage creates the usage row for one recipe consumption and,
// when the recipe is creator-authored with a nonzero earning, the derived
// creator earning accrual.
func (s *LoyaltyService) RecordRecipeUsage(ctx context.Context, usage *domain.RecipeUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	if err := s.repo.CreateRecipeUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to record recipe usage: %w", err)
	}
	return nil
}
