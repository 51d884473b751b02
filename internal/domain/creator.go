/**
 * @description
 * This file defines the creator monetization models: recipe usages (one row per
 * consumption of a creator-authored recipe) and the derived creator earnings
 * that the payout batcher settles. Earning amounts are decimals in the base
 * currency unit, not credits.
 *
 * @dependencies
 * - github.com/google/uuid: For entity identifiers.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecipeUsage records one consumption of a recipe by a user. Usages are never
// deleted; the payout batcher and retail checkout confirmation only flip the
// payment and eligibility fields.
type RecipeUsage struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               uuid.UUID       `json:"user_id"`
	RecipeID             uuid.UUID       `json:"recipe_id"`
	CreatorID            *uuid.UUID      `json:"creator_id,omitempty"`
	CreatorEarningAmount decimal.Decimal `json:"creator_earning_amount"`
	IsPaid               bool            `json:"is_paid"`
	RequiresWalmart      bool            `json:"requires_walmart"`
	WalmartCheckoutAt    *time.Time      `json:"walmart_checkout_at,omitempty"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// CreatorEarning is the accrual derived 1:1 from a recipe usage with a nonzero
// earning amount. An earning becomes eligible for payout once its usage has a
// confirmed retail checkout.
type CreatorEarning struct {
	ID            uuid.UUID       `json:"id"`
	CreatorID     uuid.UUID       `json:"creator_id"`
	RecipeUsageID uuid.UUID       `json:"recipe_usage_id"`
	Amount        decimal.Decimal `json:"amount"`
	IsPaid        bool            `json:"is_paid"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	BatchID       *string         `json:"batch_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PayoutSummary reports the outcome of one payout batch run. FailedCreators
// lists creators whose settlement failed and was skipped; their earnings stay
// unpaid and are retried on the next run.
type PayoutSummary struct {
	BatchID        string          `json:"batch_id"`
	CreatorsPaid   int             `json:"creators_paid"`
	TotalDisbursed decimal.Decimal `json:"total_disbursed"`
	FailedCreators []uuid.UUID     `json:"failed_creators,omitempty"`
	RanAt          time.Time       `json:"ran_at"`
}
