package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/shopspring/decimal"
)

func TestRewardCheckoutFollowsDecliningSchedule(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakePublisher{}
	service := NewLoyaltyService(repo, domain.DefaultCheckoutRewardSchedule(), producer)
	userID := repo.addUser(0)
	ctx := context.Background()

	wantAmounts := []int64{15, 10, 5, 5}
	for i, want := range wantAmounts {
		reward, err := service.RewardCheckout(ctx, userID)
		if err != nil {
			t.Fatalf("RewardCheckout #%d returned error: %v", i+1, err)
		}
		if reward.Ordinal != int64(i+1) {
			t.Fatalf("checkout #%d: expected ordinal %d, got %d", i+1, i+1, reward.Ordinal)
		}
		if reward.Amount != want {
			t.Fatalf("checkout #%d: expected reward %d, got %d", i+1, want, reward.Amount)
		}
	}

	balance, err := repo.GetCreditBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetCreditBalance returned error: %v", err)
	}
	if balance != 35 {
		t.Fatalf("expected total rewards 35, got %d", balance)
	}

	account, err := repo.FindUserAccount(ctx, userID)
	if err != nil {
		t.Fatalf("FindUserAccount returned error: %v", err)
	}
	if account.TotalWalmartCheckouts != 4 {
		t.Fatalf("expected checkout counter 4, got %d", account.TotalWalmartCheckouts)
	}

	for _, key := range producer.routingKeys() {
		if key != "loyalty.checkout.rewarded" {
			t.Fatalf("unexpected routing key %q", key)
		}
	}
}

func TestRewardCheckoutRecordsOrdinalMetadata(t *testing.T) {
	repo := newFakeRepository()
	service := NewLoyaltyService(repo, domain.DefaultCheckoutRewardSchedule(), nil)
	userID := repo.addUser(0)
	ctx := context.Background()

	if _, err := service.RewardCheckout(ctx, userID); err != nil {
		t.Fatalf("RewardCheckout returned error: %v", err)
	}

	transactions, _, err := repo.FindCreditTransactions(ctx, userID, domain.TransactionHistoryOptions{})
	if err != nil {
		t.Fatalf("FindCreditTransactions returned error: %v", err)
	}
	if len(transactions) != 1 {
		t.Fatalf("expected one transaction, got %d", len(transactions))
	}
	tx := transactions[0]
	if tx.Type != domain.TransactionTypeCheckoutReward {
		t.Fatalf("expected type %q, got %q", domain.TransactionTypeCheckoutReward, tx.Type)
	}
	if got := tx.Metadata["checkout_number"]; got != int64(1) {
		t.Fatalf("expected checkout_number metadata 1, got %v", got)
	}
}

func TestMarkUsagesCheckoutEligibleStampsOnlyPending(t *testing.T) {
	repo := newFakeRepository()
	service := NewLoyaltyService(repo, domain.DefaultCheckoutRewardSchedule(), nil)
	userID := repo.addUser(0)
	creatorID := uuid.New()
	ctx := context.Background()

	// One pending usage, one that does not require a checkout.
	pending := &domain.RecipeUsage{
		UserID:               userID,
		RecipeID:             uuid.New(),
		CreatorID:            &creatorID,
		CreatorEarningAmount: decimal.RequireFromString("0.25"),
		RequiresWalmart:      true,
	}
	if err := service.RecordRecipeUsage(ctx, pending); err != nil {
		t.Fatalf("RecordRecipeUsage returned error: %v", err)
	}
	noCheckout := &domain.RecipeUsage{
		UserID:   userID,
		RecipeID: uuid.New(),
	}
	if err := service.RecordRecipeUsage(ctx, noCheckout); err != nil {
		t.Fatalf("RecordRecipeUsage returned error: %v", err)
	}

	stamped, err := service.MarkUsagesCheckoutEligible(ctx, userID)
	if err != nil {
		t.Fatalf("MarkUsagesCheckoutEligible returned error: %v", err)
	}
	if stamped != 1 {
		t.Fatalf("expected 1 usage stamped, got %d", stamped)
	}

	// A second call finds nothing left to stamp.
	stamped, err = service.MarkUsagesCheckoutEligible(ctx, userID)
	if err != nil {
		t.Fatalf("second MarkUsagesCheckoutEligible returned error: %v", err)
	}
	if stamped != 0 {
		t.Fatalf("expected 0 usages stamped on second call, got %d", stamped)
	}
}

func TestRecordRecipeUsageCreatesEarningOnlyWhenPositive(t *testing.T) {
	repo := newFakeRepository()
	service := NewLoyaltyService(repo, domain.DefaultCheckoutRewardSchedule(), nil)
	userID := repo.addUser(0)
	creatorID := uuid.New()
	ctx := context.Background()

	withEarning := &domain.RecipeUsage{
		UserID:               userID,
		RecipeID:             uuid.New(),
		CreatorID:            &creatorID,
		CreatorEarningAmount: decimal.RequireFromString("1.50"),
		RequiresWalmart:      true,
	}
	if err := service.RecordRecipeUsage(ctx, withEarning); err != nil {
		t.Fatalf("RecordRecipeUsage returned error: %v", err)
	}
	zeroEarning := &domain.RecipeUsage{
		UserID:    userID,
		RecipeID:  uuid.New(),
		CreatorID: &creatorID,
	}
	if err := service.RecordRecipeUsage(ctx, zeroEarning); err != nil {
		t.Fatalf("RecordRecipeUsage returned error: %v", err)
	}

	if _, err := service.MarkUsagesCheckoutEligible(ctx, userID); err != nil {
		t.Fatalf("MarkUsagesCheckoutEligible returned error: %v", err)
	}

	eligible, err := repo.FindEligibleCreatorEarnings(ctx)
	if err != nil {
		t.Fatalf("FindEligibleCreatorEarnings returned error: %v", err)
	}
	if len(eligible) != 1 {
		t.Fatalf("expected exactly one earning, got %d", len(eligible))
	}
	if !eligible[0].Amount.Equal(decimal.RequireFromString("1.50")) {
		t.Fatalf("expected earning 1.50, got %s", eligible[0].Amount)
	}
}
