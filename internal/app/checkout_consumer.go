/**
 * @description
 * This file contains the RabbitMQ consumer side of the loyalty flow. The retail
 * integration publishes checkout events; this consumer translates them into
 * loyalty rewards and recipe-usage eligibility stamps.
 *
 * Handlers return false only on failures worth a broker redelivery; malformed
 * payloads are acknowledged and dropped after logging.
 *
 * @dependencies
 * - context, encoding/json, log: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/store"
)

// CheckoutEventConsumer handles retail checkout events from the broker.
type CheckoutEventConsumer struct {
	loyalty *LoyaltyService
}

// CheckoutConsumer returns the broker-facing handler set for checkout events.
func (s *LoyaltyService) CheckoutConsumer() *CheckoutEventConsumer {
	return &CheckoutEventConsumer{loyalty: s}
}

// checkoutEventMessage is the payload of retail checkout routing keys.
type checkoutEventMessage struct {
	UserID uuid.UUID `json:"user_id"`
}

// HandleCompleted processes a retail.checkout.completed message by granting
// the scheduled loyalty reward.
func (c *CheckoutEventConsumer) HandleCompleted(body []byte) bool {
	var msg checkoutEventMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.UserID == uuid.Nil {
		log.Printf("level=warn component=checkout_consumer msg=\"dropping malformed checkout completed message\" err=%v", err)
		return true
	}

	reward, err := c.loyalty.RewardCheckout(context.Background(), msg.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Printf("level=warn component=checkout_consumer msg=\"dropping checkout for unknown user\" user_id=%s", msg.UserID)
			return true
		}
		log.Printf("level=error component=checkout_consumer msg=\"checkout reward failed; re-queuing\" user_id=%s err=%v", msg.UserID, err)
		return false
	}

	log.Printf("level=info component=checkout_consumer msg=\"checkout rewarded\" user_id=%s checkout_number=%d amount=%d", msg.UserID, reward.Ordinal, reward.Amount)
	return true
}

// HandleEligible processes a retail.checkout.eligible message by stamping the
// user's pending recipe usages as checkout-eligible.
func (c *CheckoutEventConsumer) HandleEligible(body []byte) bool {
	var msg checkoutEventMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.UserID == uuid.Nil {
		log.Printf("level=warn component=checkout_consumer msg=\"dropping malformed checkout eligible message\" err=%v", err)
		return true
	}

	if _, err := c.loyalty.MarkUsagesCheckoutEligible(context.Background(), msg.UserID); err != nil {
		log.Printf("level=error component=checkout_consumer msg=\"eligibility stamp failed; re-queuing\" user_id=%s err=%v", msg.UserID, err)
		return false
	}
	return true
}
