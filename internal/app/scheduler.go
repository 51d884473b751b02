/**
 * @description
 * Cron scheduler setup for the recurring payout batch job.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Cron job scheduling with panic recovery.
 */
package app

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron           *cron.Cron
	payouts        *PayoutBatcher
	payoutSchedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(payouts *PayoutBatcher, payoutSchedule string) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))))

	return &Scheduler{
		cron:           c,
		payouts:        payouts,
		payoutSchedule: payoutSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.payoutSchedule, s.runPayoutBatch); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule payout batch job\" schedule=%q err=%v", s.payoutSchedule, err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled payout batch job\" schedule=%q", s.payoutSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler and returns a context that is done
// once any running job has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// runPayoutBatch executes one payout run. Errors are logged, not propagated;
// the next scheduled run retries from the remaining eligible earnings.
func (s *Scheduler) runPayoutBatch() {
	ctx := context.Background()

	summary, err := s.payouts.Run(ctx)
	if err != nil {
		log.Printf("level=error component=scheduler msg=\"payout batch job failed\" err=%v", err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"payout batch job finished\" batch_id=%s creators_paid=%d", summary.BatchID, summary.CreatorsPaid)
}
