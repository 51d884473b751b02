/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the credits-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (PostgreSQL), making the code more modular and easier to test.
 *
 * Every operation that pairs a balance mutation with a transaction append is a
 * single repository method so the implementation can run it in one database
 * transaction; callers never get a chance to observe the ledger mid-mutation.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrRecipeUsageNotFound = errors.New("recipe usage not found")
	ErrEarningsConflict    = errors.New("earnings already settled by a concurrent batch")
)

// GrantParams describes a pending credit grant. Amount must be positive; the
// repository stores it as a positive transaction amount.
type GrantParams struct {
	UserID      uuid.UUID
	Amount      int64
	Type        domain.TransactionType
	Description string
	Metadata    map[string]interface{}
}

// ChargeParams describes a pending credit charge. Amount must be positive; the
// repository stores it as a negative transaction amount.
type ChargeParams struct {
	UserID      uuid.UUID
	Amount      int64
	Type        domain.TransactionType
	Description string
	Metadata    map[string]interface{}
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Ledger methods. GrantCredits and ChargeCredits are atomic: the balance
	// mutation and the transaction append commit together or not at all.
	// ChargeCredits returns ErrInsufficientCredits without any mutation when
	// the balance cannot cover the amount, even under concurrent charges.
	GrantCredits(ctx context.Context, grant GrantParams) (*domain.CreditTransaction, error)
	ChargeCredits(ctx context.Context, charge ChargeParams) (*domain.CreditTransaction, error)
	GetCreditBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	SumTransactionAmounts(ctx context.Context, userID uuid.UUID) (int64, error)
	FindCreditTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionHistoryOptions) ([]domain.CreditTransaction, int, error)

	// Tier methods
	FindUserAccount(ctx context.Context, userID uuid.UUID) (*domain.UserAccount, error)
	FindUserIDByExternalID(ctx context.Context, externalID string) (uuid.UUID, error)

	// Entitlement event methods. ApplyEntitlementEvent records the event ID,
	// the optional grant, and the optional tier update in one database
	// transaction. It returns false (and performs no mutation) when the event
	// ID was already processed, which is what makes webhook replays safe.
	ApplyEntitlementEvent(ctx context.Context, eventID string, eventType domain.EntitlementEventType, grant *GrantParams, tier *domain.TierUpdate) (bool, error)

	// Loyalty methods. RecordCheckoutReward locks the user row, increments the
	// checkout counter, and grants the scheduled reward in one transaction.
	RecordCheckoutReward(ctx context.Context, userID uuid.UUID, schedule domain.CheckoutRewardSchedule) (*domain.CheckoutReward, error)
	MarkUsagesCheckoutEligible(ctx context.Context, userID uuid.UUID, checkoutAt time.Time) (int64, error)

	// Recipe usage and creator earning methods
	CreateRecipeUsage(ctx context.Context, usage *domain.RecipeUsage) error
	FindEligibleCreatorEarnings(ctx context.Context) ([]domain.CreatorEarning, error)
	// SettleCreatorEarnings stamps every listed earning (and its recipe usage)
	// as paid with the given batch ID in one transaction scoped to a single
	// creator. It fails with ErrEarningsConflict if any earning was settled
	// concurrently, leaving the whole creator untouched.
	SettleCreatorEarnings(ctx context.Context, creatorID uuid.UUID, earningIDs []uuid.UUID, batchID string, paidAt time.Time) error
}
