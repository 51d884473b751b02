/**
 * @description
 * This file provides the PostgreSQL queries behind creator monetization:
 * recipe usage inserts, the eligible-earnings projection the payout batcher
 * aggregates over, and the per-creator atomic settlement.
 *
 * Settlement is intentionally scoped to a single creator per transaction. A
 * batch run over many creators never holds one long-lived transaction; a slow
 * or failing creator cannot stall the others, and a crash mid-run leaves only
 * the in-flight creator unpaid and safe to retry.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Exact decimal money amounts.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/domain"
)

// CreateRecipeUsage inserts a recipe usage row and, when the usage carries a
// nonzero creator earning, the derived creator earning row, atomically.
func (r *PostgresRepository) CreateRecipeUsage(ctx context.Context, usage *domain.RecipeUsage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	usageQuery := `
		INSERT INTO recipe_usages (
			id, user_id, recipe_id, creator_id, creator_earning_amount,
			is_paid, requires_walmart, walmart_checkout_at
		)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, usageQuery,
		usage.ID,
		usage.UserID,
		usage.RecipeID,
		usage.CreatorID,
		usage.CreatorEarningAmount,
		usage.RequiresWalmart,
		usage.WalmartCheckoutAt,
	).Scan(&usage.CreatedAt)
	if err != nil {
		return err
	}

	if usage.CreatorID != nil && usage.CreatorEarningAmount.IsPositive() {
		earningQuery := `
			INSERT INTO creator_earnings (id, creator_id, recipe_usage_id, amount, is_paid)
			VALUES ($1, $2, $3, $4, false)
		`
		if _, err := tx.Exec(ctx, earningQuery,
			uuid.New(),
			*usage.CreatorID,
			usage.ID,
			usage.CreatorEarningAmount,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// FindEligibleCreatorEarnings returns every unpaid earning whose recipe usage
// has a confirmed Walmart checkout. This is the projection the batcher groups
// and sums in memory.
func (r *PostgresRepository) FindEligibleCreatorEarnings(ctx context.Context) ([]domain.CreatorEarning, error) {
	query := `
		SELECT ce.id, ce.creator_id, ce.recipe_usage_id, ce.amount, ce.is_paid,
		       ce.paid_at, ce.batch_id, ce.created_at
		FROM creator_earnings ce
		JOIN recipe_usages ru ON ru.id = ce.recipe_usage_id
		WHERE ce.is_paid = false
		  AND ru.walmart_checkout_at IS NOT NULL
		ORDER BY ce.creator_id, ce.created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earnings []domain.CreatorEarning
	for rows.Next() {
		var earning domain.CreatorEarning
		err := rows.Scan(
			&earning.ID,
			&earning.CreatorID,
			&earning.RecipeUsageID,
			&earning.Amount,
			&earning.IsPaid,
			&earning.PaidAt,
			&earning.BatchID,
			&earning.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		earnings = append(earnings, earning)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return earnings, nil
}

// SettleCreatorEarnings marks every listed earning as paid with the batch ID
// and mirrors the payment onto the corresponding recipe usages, in one
// transaction. The `is_paid = false` guard makes the update a no-op for rows a
// concurrent batch already settled; any shortfall rolls the whole creator back.
func (r *PostgresRepository) SettleCreatorEarnings(ctx context.Context, creatorID uuid.UUID, earningIDs []uuid.UUID, batchID string, paidAt time.Time) error {
	if len(earningIDs) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	earningsQuery := `
		UPDATE creator_earnings
		SET is_paid = true, paid_at = $1, batch_id = $2
		WHERE creator_id = $3
		  AND id = ANY($4)
		  AND is_paid = false
	`
	result, err := tx.Exec(ctx, earningsQuery, paidAt, batchID, creatorID, earningIDs)
	if err != nil {
		return err
	}
	if result.RowsAffected() != int64(len(earningIDs)) {
		return ErrEarningsConflict
	}

	usagesQuery := `
		UPDATE recipe_usages
		SET is_paid = true, paid_at = $1
		WHERE id IN (
			SELECT recipe_usage_id FROM creator_earnings
			WHERE id = ANY($2)
		)
	`
	if _, err := tx.Exec(ctx, usagesQuery, paidAt, earningIDs); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
