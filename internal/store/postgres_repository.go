/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for the credit ledger: balance reads, atomic grant/charge, transaction history,
 * entitlement event application, and the loyalty checkout reward.
 *
 * The invariant `credit_balance == SUM(credit_transactions.amount)` is enforced
 * by never touching the balance outside a database transaction that also appends
 * the matching transaction row. Charges take a `FOR UPDATE` lock on the user row
 * so two concurrent charges cannot both observe sufficient balance.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pantrychef/credits-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// FindUserIDByExternalID resolves the internal UUID from the subscription
// platform's app user id. This mirrors how webhook payloads address users.
func (r *PostgresRepository) FindUserIDByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE external_id = $1", externalID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// FindUserAccount retrieves the ledger-owned fields of a user row.
func (r *PostgresRepository) FindUserAccount(ctx context.Context, userID uuid.UUID) (*domain.UserAccount, error) {
	var account domain.UserAccount
	query := `
		SELECT id, credit_balance, subscription_tier, is_pro_user, is_power_user,
		       total_walmart_checkouts, entitlement_last_checked_at
		FROM users
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&account.ID,
		&account.CreditBalance,
		&account.SubscriptionTier,
		&account.IsProUser,
		&account.IsPowerUser,
		&account.TotalWalmartCheckouts,
		&account.EntitlementLastCheckedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetCreditBalance returns the cached credit balance for a user.
func (r *PostgresRepository) GetCreditBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, "SELECT credit_balance FROM users WHERE id = $1", userID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

// SumTransactionAmounts recomputes a user's balance from the transaction log.
// Used to verify the ledger consistency invariant; the log is the source of
// truth and the balance column is a materialized cache of this sum.
func (r *PostgresRepository) SumTransactionAmounts(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	query := `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1`
	if err := r.db.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// GrantCredits atomically increments a user's balance and appends the matching
// positive transaction row.
func (r *PostgresRepository) GrantCredits(ctx context.Context, grant GrantParams) (*domain.CreditTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	record, err := grantInTx(ctx, tx, grant)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// grantInTx performs the balance increment and transaction append on an open
// database transaction so entitlement events and checkout rewards can reuse it.
func grantInTx(ctx context.Context, tx pgx.Tx, grant GrantParams) (*domain.CreditTransaction, error) {
	result, err := tx.Exec(ctx,
		"UPDATE users SET credit_balance = credit_balance + $1 WHERE id = $2",
		grant.Amount, grant.UserID,
	)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}

	record := &domain.CreditTransaction{
		ID:          uuid.New(),
		UserID:      grant.UserID,
		Amount:      grant.Amount,
		Type:        grant.Type,
		Description: grant.Description,
		Metadata:    grant.Metadata,
	}
	if err := insertTransactionInTx(ctx, tx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ChargeCredits atomically checks the balance, decrements it, and appends the
// matching negative transaction row. The `FOR UPDATE` lock serializes
// concurrent charges for the same user.
func (r *PostgresRepository) ChargeCredits(ctx context.Context, charge ChargeParams) (*domain.CreditTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, "SELECT credit_balance FROM users WHERE id = $1 FOR UPDATE", charge.UserID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if balance < charge.Amount {
		return nil, ErrInsufficientCredits
	}

	if _, err := tx.Exec(ctx,
		"UPDATE users SET credit_balance = credit_balance - $1 WHERE id = $2",
		charge.Amount, charge.UserID,
	); err != nil {
		return nil, err
	}

	record := &domain.CreditTransaction{
		ID:          uuid.New(),
		UserID:      charge.UserID,
		Amount:      -charge.Amount,
		Type:        charge.Type,
		Description: charge.Description,
		Metadata:    charge.Metadata,
	}
	if err := insertTransactionInTx(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// insertTransactionInTx appends one immutable transaction row. Transactions
// are never updated or deleted after this insert.
func insertTransactionInTx(ctx context.Context, tx pgx.Tx, record *domain.CreditTransaction) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction metadata: %w", err)
	}

	query := `
		INSERT INTO credit_transactions (id, user_id, amount, type, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return tx.QueryRow(ctx, query,
		record.ID,
		record.UserID,
		record.Amount,
		record.Type,
		record.Description,
		metadataJSON,
	).Scan(&record.CreatedAt)
}

// FindCreditTransactions retrieves a page of a user's transaction history,
// newest first, along with the total row count for pagination.
func (r *PostgresRepository) FindCreditTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionHistoryOptions) ([]domain.CreditTransaction, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	countQuery := `SELECT COUNT(*) FROM credit_transactions WHERE user_id = $1 AND ($2 = '' OR type = $2)`
	var total int
	if err := r.db.QueryRow(ctx, countQuery, userID, string(opts.TypeFilter)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, amount, type, description, COALESCE(metadata, '{}'::jsonb), created_at
		FROM credit_transactions
		WHERE user_id = $1 AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, string(opts.TypeFilter), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transactions []domain.CreditTransaction
	for rows.Next() {
		var record domain.CreditTransaction
		var metadataJSON []byte
		err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Amount,
			&record.Type,
			&record.Description,
			&metadataJSON,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
			}
		}
		transactions = append(transactions, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

// ApplyEntitlementEvent applies one subscription platform event exactly once.
// The event marker insert, the optional credit grant, and the optional tier
// update commit in a single database transaction, so a replayed event either
// sees its marker and does nothing, or the whole application happens again
// atomically after a crash that rolled everything back.
func (r *PostgresRepository) ApplyEntitlementEvent(ctx context.Context, eventID string, eventType domain.EntitlementEventType, grant *GrantParams, tier *domain.TierUpdate) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	marker, err := tx.Exec(ctx,
		"INSERT INTO processed_entitlement_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType,
	)
	if err != nil {
		return false, err
	}
	if marker.RowsAffected() == 0 {
		// Already processed; replays are acknowledged without re-granting.
		return false, nil
	}

	if grant != nil {
		if _, err := grantInTx(ctx, tx, *grant); err != nil {
			return false, err
		}
	}

	if tier != nil {
		result, err := tx.Exec(ctx, `
			UPDATE users
			SET subscription_tier = $1,
			    is_pro_user = $2,
			    is_power_user = $3,
			    entitlement_last_checked_at = $4
			WHERE id = $5
		`, tier.Tier, tier.IsProUser, tier.IsPowerUser, tier.CheckedAt, tier.UserID)
		if err != nil {
			return false, err
		}
		if result.RowsAffected() == 0 {
			return false, ErrUserNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RecordCheckoutReward locks the user row, increments the checkout counter,
// and grants the scheduled reward, all in one database transaction. A crash
// between the counter increment and the grant is therefore impossible.
func (r *PostgresRepository) RecordCheckoutReward(ctx context.Context, userID uuid.UUID, schedule domain.CheckoutRewardSchedule) (*domain.CheckoutReward, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var checkouts int64
	err = tx.QueryRow(ctx, "SELECT total_walmart_checkouts FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&checkouts)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	ordinal := checkouts + 1
	amount := schedule.AmountFor(ordinal)

	if _, err := tx.Exec(ctx,
		"UPDATE users SET total_walmart_checkouts = $1, credit_balance = credit_balance + $2 WHERE id = $3",
		ordinal, amount, userID,
	); err != nil {
		return nil, err
	}

	record := &domain.CreditTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TransactionTypeCheckoutReward,
		Description: fmt.Sprintf("Reward for Walmart checkout #%d", ordinal),
		Metadata:    map[string]interface{}{"checkout_number": ordinal},
	}
	if err := insertTransactionInTx(ctx, tx, record); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.CheckoutReward{Ordinal: ordinal, Amount: amount}, nil
}

// MarkUsagesCheckoutEligible stamps the checkout timestamp on every unpaid
// recipe usage for the user that requires a Walmart checkout and has not been
// stamped yet. This is what unlocks the associated creator earnings for payout.
func (r *PostgresRepository) MarkUsagesCheckoutEligible(ctx context.Context, userID uuid.UUID, checkoutAt time.Time) (int64, error) {
	query := `
		UPDATE recipe_usages
		SET walmart_checkout_at = $1
		WHERE user_id = $2
		  AND requires_walmart = true
		  AND walmart_checkout_at IS NULL
		  AND is_paid = false
	`
	result, err := r.db.Exec(ctx, query, checkoutAt, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
