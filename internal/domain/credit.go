/**
 * @description
 * This file defines the core domain models for the credit ledger. The ledger is
 * append-only: every balance change is paired with exactly one immutable
 * CreditTransaction row, and the cached balance on the user account must always
 * equal the sum of that user's transaction amounts.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: For entity identifiers.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a credit transaction. The type determines which
// metadata keys consumers can expect on the transaction (see constants below).
type TransactionType string

const (
	// TransactionTypeSignupBonus is the one-time welcome grant.
	TransactionTypeSignupBonus TransactionType = "signup_bonus"
	// TransactionTypeCheckoutReward is a loyalty grant for a completed retail
	// checkout. Metadata: "checkout_number" (ordinal of the checkout).
	TransactionTypeCheckoutReward TransactionType = "checkout_reward"
	// TransactionTypeSubscriptionGrant is the monthly allowance for an active
	// subscription. Metadata: "tier", "event_id", "event_type".
	TransactionTypeSubscriptionGrant TransactionType = "subscription_grant"
	// TransactionTypePurchaseGrant is a one-time credit pack purchase.
	// Metadata: "product_id", "event_id".
	TransactionTypePurchaseGrant TransactionType = "purchase_grant"
	// TransactionTypeFeatureCharge is a debit for consuming a paid feature.
	// Metadata: "feature" (caller-supplied feature name).
	TransactionTypeFeatureCharge TransactionType = "feature_charge"
)

// CreditTransaction is one immutable entry in a user's credit ledger.
// Amount is signed: positive for grants, negative for charges. Rows are never
// updated or deleted once written.
type CreditTransaction struct {
	ID          uuid.UUID              `json:"id"`
	UserID      uuid.UUID              `json:"user_id"`
	Amount      int64                  `json:"amount"`
	Type        TransactionType        `json:"type"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// UserAccount is the ledger's view of a user row. Only the fields listed here
// are owned by this service; the wider user profile lives elsewhere.
type UserAccount struct {
	ID                       uuid.UUID  `json:"id"`
	CreditBalance            int64      `json:"credit_balance"`
	SubscriptionTier         Tier       `json:"subscription_tier"`
	IsProUser                bool       `json:"is_pro_user"`
	IsPowerUser              bool       `json:"is_power_user"`
	TotalWalmartCheckouts    int64      `json:"total_walmart_checkouts"`
	EntitlementLastCheckedAt *time.Time `json:"entitlement_last_checked_at,omitempty"`
}

// TransactionHistoryOptions controls pagination and filtering of the
// transaction history query. Results are always newest first.
type TransactionHistoryOptions struct {
	Limit      int
	Offset     int
	TypeFilter TransactionType
}
