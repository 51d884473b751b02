/**
 * @description
 * This file contains the ledger core of the credits-service. The `LedgerService`
 * struct is the only code path permitted to mutate credit balances; every grant
 * and charge delegates to a repository method that pairs the balance mutation
 * with exactly one immutable transaction row in a single database transaction.
 *
 * Key features:
 * - Grant and charge primitives with the UserNotFound / InsufficientCredits
 *   error taxonomy.
 * - Read paths: balance, affordability check, paginated history (newest first).
 * - Publishes ledger events to RabbitMQ for asynchronous consumers; publishing
 *   is fire-and-forget and never fails the money movement.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/pantrychef/credits-service/internal/store"
	"github.com/pantrychef/credits-service/pkg/rabbitmq"
)

// ErrInvalidAmount is returned when a grant or charge amount is not positive.
var ErrInvalidAmount = errors.New("amount must be positive")

// LedgerService provides the core credit ledger operations.
type LedgerService struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
}

// NewLedgerService creates a new ledger service instance. The producer may be
// nil when RabbitMQ is unavailable; ledger operations still work.
func NewLedgerService(repo store.Repository, producer rabbitmq.Publisher) *LedgerService {
	return &LedgerService{
		repo:          repo,
		eventProducer: producer,
	}
}

// Grant adds credits to a user's balance and appends the matching transaction.
// It fails with store.ErrUserNotFound if the target user does not exist.
func (s *LedgerService) Grant(ctx context.Context, userID uuid.UUID, amount int64, txType domain.TransactionType, description string, metadata map[string]interface{}) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	record, err := s.repo.GrantCredits(ctx, store.GrantParams{
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant credits: %w", err)
	}

	s.publishLedgerEvent(ctx, "credits.granted", record)
	return record, nil
}

// Charge removes credits from a user's balance if and only if the balance
// covers the amount. On store.ErrInsufficientCredits no transaction row is
// created and the balance is unchanged; the check and the decrement are one
// atomic unit in the repository, so concurrent charges cannot both pass.
func (s *LedgerService) Charge(ctx context.Context, userID uuid.UUID, amount int64, txType domain.TransactionType, description string, metadata map[string]interface{}) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	record, err := s.repo.ChargeCredits(ctx, store.ChargeParams{
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientCredits) || errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to charge credits: %w", err)
	}

	s.publishLedgerEvent(ctx, "credits.charged", record)
	return record, nil
}

// ResolveUserID maps an auth-provider user id (the JWT subject) to the
// internal user UUID.
func (s *LedgerService) ResolveUserID(ctx context.Context, externalID string) (uuid.UUID, error) {
	return s.repo.FindUserIDByExternalID(ctx, externalID)
}

// GetBalance returns the user's current credit balance.
func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetCreditBalance(ctx, userID)
}

// HasEnoughCredits reports whether the user's last committed balance covers
// the given amount.
func (s *LedgerService) HasEnoughCredits(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	balance, err := s.repo.GetCreditBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// GetTransactionHistory returns one page of the user's transaction history,
// newest first, plus the total count for pagination.
func (s *LedgerService) GetTransactionHistory(ctx context.Context, userID uuid.UUID, opts domain.TransactionHistoryOptions) ([]domain.CreditTransaction, int, error) {
	return s.repo.FindCreditTransactions(ctx, userID, opts)
}

// GetUserAccount returns the ledger-owned user fields (tier, flags, balance).
func (s *LedgerService) GetUserAccount(ctx context.Context, userID uuid.UUID) (*domain.UserAccount, error) {
	return s.repo.FindUserAccount(ctx, userID)
}

// VerifyBalance recomputes the balance from the transaction log and reports
// whether it matches the cached column. The log is the source of truth; this
// exists for tests and operational audits.
func (s *LedgerService) VerifyBalance(ctx context.Context, userID uuid.UUID) (bool, error) {
	balance, err := s.repo.GetCreditBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	sum, err := s.repo.SumTransactionAmounts(ctx, userID)
	if err != nil {
		return false, err
	}
	if balance != sum {
		log.Printf("level=error component=ledger msg=\"balance drift detected\" user_id=%s cached=%d recomputed=%d", userID, balance, sum)
		return false, nil
	}
	return true, nil
}

// publishLedgerEvent publishes a ledger event without blocking the money path.
func (s *LedgerService) publishLedgerEvent(ctx context.Context, routingKey string, record *domain.CreditTransaction) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.LedgerEvent{
		TransactionID: record.ID,
		UserID:        record.UserID,
		Amount:        record.Amount,
		Type:          string(record.Type),
		Timestamp:     record.CreatedAt,
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"event publish failed\" routing_key=%s tx_id=%s err=%v", routingKey, record.ID, err)
	}
}
