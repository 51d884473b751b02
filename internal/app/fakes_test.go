package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/pantrychef/credits-service/internal/store"
)

// fakeRepository is an in-memory store.Repository. All mutations hold the
// mutex for their full duration, mirroring the atomicity the real
// implementation gets from database transactions.
type fakeRepository struct {
	mu              sync.Mutex
	users           map[uuid.UUID]*domain.UserAccount
	externalIDs     map[string]uuid.UUID
	transactions    []domain.CreditTransaction
	processedEvents map[string]bool
	usages          map[uuid.UUID]*domain.RecipeUsage
	earnings        map[uuid.UUID]*domain.CreatorEarning
	settleErr       map[uuid.UUID]error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		users:           make(map[uuid.UUID]*domain.UserAccount),
		externalIDs:     make(map[string]uuid.UUID),
		processedEvents: make(map[string]bool),
		usages:          make(map[uuid.UUID]*domain.RecipeUsage),
		earnings:        make(map[uuid.UUID]*domain.CreatorEarning),
		settleErr:       make(map[uuid.UUID]error),
	}
}

func (f *fakeRepository) addUser(balance int64) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &domain.UserAccount{
		ID:               id,
		CreditBalance:    balance,
		SubscriptionTier: domain.TierNone,
	}
	return id
}

func (f *fakeRepository) addExternalUser(externalID string, balance int64) uuid.UUID {
	id := f.addUser(balance)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.externalIDs[externalID] = id
	return id
}

func (f *fakeRepository) appendTransactionLocked(userID uuid.UUID, amount int64, txType domain.TransactionType, description string, metadata map[string]interface{}) *domain.CreditTransaction {
	record := domain.CreditTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	f.transactions = append(f.transactions, record)
	return &record
}

func (f *fakeRepository) grantLocked(grant store.GrantParams) (*domain.CreditTransaction, error) {
	user, ok := f.users[grant.UserID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	user.CreditBalance += grant.Amount
	return f.appendTransactionLocked(grant.UserID, grant.Amount, grant.Type, grant.Description, grant.Metadata), nil
}

func (f *fakeRepository) GrantCredits(ctx context.Context, grant store.GrantParams) (*domain.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grantLocked(grant)
}

func (f *fakeRepository) ChargeCredits(ctx context.Context, charge store.ChargeParams) (*domain.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[charge.UserID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	if user.CreditBalance < charge.Amount {
		return nil, store.ErrInsufficientCredits
	}
	user.CreditBalance -= charge.Amount
	return f.appendTransactionLocked(charge.UserID, -charge.Amount, charge.Type, charge.Description, charge.Metadata), nil
}

func (f *fakeRepository) GetCreditBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return 0, store.ErrUserNotFound
	}
	return user.CreditBalance, nil
}

func (f *fakeRepository) SumTransactionAmounts(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, tx := range f.transactions {
		if tx.UserID == userID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (f *fakeRepository) FindCreditTransactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionHistoryOptions) ([]domain.CreditTransaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []domain.CreditTransaction
	for i := len(f.transactions) - 1; i >= 0; i-- {
		tx := f.transactions[i]
		if tx.UserID != userID {
			continue
		}
		if opts.TypeFilter != "" && tx.Type != opts.TypeFilter {
			continue
		}
		matched = append(matched, tx)
	}
	total := len(matched)
	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, total, nil
}

func (f *fakeRepository) FindUserAccount(ctx context.Context, userID uuid.UUID) (*domain.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeRepository) FindUserIDByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.externalIDs[externalID]
	if !ok {
		return uuid.Nil, store.ErrUserNotFound
	}
	return id, nil
}

func (f *fakeRepository) ApplyEntitlementEvent(ctx context.Context, eventID string, eventType domain.EntitlementEventType, grant *store.GrantParams, tier *domain.TierUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processedEvents[eventID] {
		return false, nil
	}
	if grant != nil {
		if _, err := f.grantLocked(*grant); err != nil {
			return false, err
		}
	}
	if tier != nil {
		user, ok := f.users[tier.UserID]
		if !ok {
			return false, store.ErrUserNotFound
		}
		checkedAt := tier.CheckedAt
		user.SubscriptionTier = tier.Tier
		user.IsProUser = tier.IsProUser
		user.IsPowerUser = tier.IsPowerUser
		user.EntitlementLastCheckedAt = &checkedAt
	}
	f.processedEvents[eventID] = true
	return true, nil
}

func (f *fakeRepository) RecordCheckoutReward(ctx context.Context, userID uuid.UUID, schedule domain.CheckoutRewardSchedule) (*domain.CheckoutReward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	ordinal := user.TotalWalmartCheckouts + 1
	amount := schedule.AmountFor(ordinal)
	user.TotalWalmartCheckouts = ordinal
	user.CreditBalance += amount
	f.appendTransactionLocked(userID, amount, domain.TransactionTypeCheckoutReward, "Walmart checkout reward", map[string]interface{}{"checkout_number": ordinal})
	return &domain.CheckoutReward{Ordinal: ordinal, Amount: amount}, nil
}

func (f *fakeRepository) MarkUsagesCheckoutEligible(ctx context.Context, userID uuid.UUID, checkoutAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stamped int64
	for _, usage := range f.usages {
		if usage.UserID == userID && usage.RequiresWalmart && !usage.IsPaid && usage.WalmartCheckoutAt == nil {
			at := checkoutAt
			usage.WalmartCheckoutAt = &at
			stamped++
		}
	}
	return stamped, nil
}

func (f *fakeRepository) CreateRecipeUsage(ctx context.Context, usage *domain.RecipeUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	usage.CreatedAt = time.Now().UTC()
	copied := *usage
	f.usages[usage.ID] = &copied
	if usage.CreatorID != nil && usage.CreatorEarningAmount.IsPositive() {
		earning := &domain.CreatorEarning{
			ID:            uuid.New(),
			CreatorID:     *usage.CreatorID,
			RecipeUsageID: usage.ID,
			Amount:        usage.CreatorEarningAmount,
			CreatedAt:     copied.CreatedAt,
		}
		f.earnings[earning.ID] = earning
	}
	return nil
}

func (f *fakeRepository) FindEligibleCreatorEarnings(ctx context.Context) ([]domain.CreatorEarning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var eligible []domain.CreatorEarning
	for _, earning := range f.earnings {
		if earning.IsPaid {
			continue
		}
		usage, ok := f.usages[earning.RecipeUsageID]
		if !ok || usage.WalmartCheckoutAt == nil {
			continue
		}
		eligible = append(eligible, *earning)
	}
	return eligible, nil
}

func (f *fakeRepository) SettleCreatorEarnings(ctx context.Context, creatorID uuid.UUID, earningIDs []uuid.UUID, batchID string, paidAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.settleErr[creatorID]; err != nil {
		return err
	}
	for _, id := range earningIDs {
		earning, ok := f.earnings[id]
		if !ok || earning.IsPaid {
			return store.ErrEarningsConflict
		}
	}
	for _, id := range earningIDs {
		earning := f.earnings[id]
		at := paidAt
		batch := batchID
		earning.IsPaid = true
		earning.PaidAt = &at
		earning.BatchID = &batch
		if usage, ok := f.usages[earning.RecipeUsageID]; ok {
			usage.IsPaid = true
			usage.PaidAt = &at
		}
	}
	return nil
}

// fakePublisher records published events for assertions.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}
