/**
 * @description
 * This file contains the creator payout batcher. A run aggregates eligible,
 * unpaid creator earnings in two explicit passes (group by creator, sum, then
 * filter by the minimum payout threshold) and settles each qualifying creator
 * in its own atomic repository call.
 *
 * Failure semantics: a creator whose settlement fails is skipped and reported
 * in the summary; the run continues with the remaining creators and the
 * skipped creator's earnings stay eligible for the next run. Creators below
 * the threshold carry their balance forward untouched.
 *
 * @dependencies
 * - context, fmt, log, sort, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: Exact decimal threshold math.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/pantrychef/credits-service/internal/store"
	"github.com/pantrychef/credits-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

// PayoutBatcher settles creator earnings in batches.
type PayoutBatcher struct {
	repo          store.Repository
	threshold     decimal.Decimal
	eventProducer rabbitmq.Publisher
	now           func() time.Time
}

// NewPayoutBatcher creates a batcher with the given minimum payout threshold
// in the base currency unit.
func NewPayoutBatcher(repo store.Repository, threshold decimal.Decimal, producer rabbitmq.Publisher) *PayoutBatcher {
	return &PayoutBatcher{
		repo:          repo,
		threshold:     threshold,
		eventProducer: producer,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// creatorGroup is one creator's slice of the eligible-earnings projection.
type creatorGroup struct {
	creatorID  uuid.UUID
	earningIDs []uuid.UUID
	total      decimal.Decimal
}

// Run executes one payout batch and returns its summary. Only internal
// failures that prevent the run from starting are returned as errors;
// per-creator settlement failures are collected in the summary instead.
func (b *PayoutBatcher) Run(ctx context.Context) (*domain.PayoutSummary, error) {
	ranAt := b.now()
	// The random suffix keeps batch ids unique even when two runs start
	// within the same second.
	batchID := fmt.Sprintf("payout_%s_%s", ranAt.Format("20060102T150405Z"), uuid.NewString()[:8])

	earnings, err := b.repo.FindEligibleCreatorEarnings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible earnings: %w", err)
	}

	groups := groupEarningsByCreator(earnings)
	log.Printf("level=info component=payouts msg=\"payout batch started\" batch_id=%s eligible_earnings=%d creators=%d", batchID, len(earnings), len(groups))

	summary := &domain.PayoutSummary{
		BatchID:        batchID,
		TotalDisbursed: decimal.Zero,
		RanAt:          ranAt,
	}

	for _, group := range groups {
		if group.total.LessThan(b.threshold) {
			// Below threshold: carry the balance forward to the next run.
			continue
		}

		if err := b.repo.SettleCreatorEarnings(ctx, group.creatorID, group.earningIDs, batchID, ranAt); err != nil {
			log.Printf("level=error component=payouts msg=\"creator settlement failed\" batch_id=%s creator_id=%s amount=%s err=%v", batchID, group.creatorID, group.total, err)
			summary.FailedCreators = append(summary.FailedCreators, group.creatorID)
			continue
		}

		summary.CreatorsPaid++
		summary.TotalDisbursed = summary.TotalDisbursed.Add(group.total)
		log.Printf("level=info component=payouts msg=\"creator settled\" batch_id=%s creator_id=%s earnings=%d amount=%s", batchID, group.creatorID, len(group.earningIDs), group.total)
	}

	log.Printf("level=info component=payouts msg=\"payout batch finished\" batch_id=%s creators_paid=%d total=%s failed=%d", batchID, summary.CreatorsPaid, summary.TotalDisbursed, len(summary.FailedCreators))

	if b.eventProducer != nil && summary.CreatorsPaid > 0 {
		event := rabbitmq.PayoutBatchEvent{
			BatchID:        summary.BatchID,
			CreatorsPaid:   summary.CreatorsPaid,
			TotalDisbursed: summary.TotalDisbursed.String(),
			Timestamp:      ranAt,
		}
		if err := b.eventProducer.Publish(ctx, rabbitmq.EventsExchange, "payout.batch.completed", event); err != nil {
			log.Printf("level=warn component=payouts msg=\"event publish failed\" batch_id=%s err=%v", batchID, err)
		}
	}

	return summary, nil
}

// groupEarningsByCreator is the first aggregation pass: bucket the eligible
// earnings per creator and sum their amounts. The result is sorted by creator
// id so runs are deterministic.
func groupEarningsByCreator(earnings []domain.CreatorEarning) []creatorGroup {
	byCreator := make(map[uuid.UUID]*creatorGroup)
	for _, earning := range earnings {
		group, ok := byCreator[earning.CreatorID]
		if !ok {
			group = &creatorGroup{creatorID: earning.CreatorID, total: decimal.Zero}
			byCreator[earning.CreatorID] = group
		}
		group.earningIDs = append(group.earningIDs, earning.ID)
		group.total = group.total.Add(earning.Amount)
	}

	groups := make([]creatorGroup, 0, len(byCreator))
	for _, group := range byCreator {
		groups = append(groups, *group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].creatorID.String() < groups[j].creatorID.String()
	})
	return groups
}
