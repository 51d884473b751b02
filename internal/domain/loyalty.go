/**
 * @description
 * Declining loyalty reward schedule for retail checkouts. The schedule is a
 * pure value so the store can evaluate it inside the same database transaction
 * that increments the checkout counter.
 */
package domain

// CheckoutRewardSchedule holds the credit reward per checkout ordinal:
// FirstReward for checkout #1, SecondReward for #2, SteadyReward for every
// checkout after that.
type CheckoutRewardSchedule struct {
	FirstReward  int64
	SecondReward int64
	SteadyReward int64
}

// DefaultCheckoutRewardSchedule is the production schedule: 15, 10, then 5
// forever.
func DefaultCheckoutRewardSchedule() CheckoutRewardSchedule {
	return CheckoutRewardSchedule{FirstReward: 15, SecondReward: 10, SteadyReward: 5}
}

// AmountFor returns the reward for the given checkout ordinal (1-based).
func (s CheckoutRewardSchedule) AmountFor(ordinal int64) int64 {
	switch {
	case ordinal <= 1:
		return s.FirstReward
	case ordinal == 2:
		return s.SecondReward
	default:
		return s.SteadyReward
	}
}

// CheckoutReward is the result of recording one completed checkout: the
// ordinal the checkout landed on and the credits granted for it.
type CheckoutReward struct {
	Ordinal int64 `json:"checkout_number"`
	Amount  int64 `json:"amount"`
}
