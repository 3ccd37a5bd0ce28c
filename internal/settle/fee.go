// Package settle implements the settlement engine: the fee policy and the
// coordinator that distributes payouts for a resolved market inside one
// atomic unit of work.
package settle

import "math"

// FeePolicy computes the platform fee for a gross payout. It is a pure
// function of the configured rate with no state or side effects.
type FeePolicy struct {
	rate float64
}

// NewFeePolicy creates a FeePolicy with the given rate, e.g. 0.02 for 2%.
func NewFeePolicy(rate float64) FeePolicy {
	return FeePolicy{rate: rate}
}

// Fee returns floor(gross × rate) for gross > 0, else 0. Rounding is always
// down, never up, so total distributed value never exceeds the theoretical
// maximum.
func (p FeePolicy) Fee(gross int64) int64 {
	if gross <= 0 {
		return 0
	}
	return int64(math.Floor(float64(gross) * p.rate))
}

// grossPayout returns floor(stake × odds), the pre-fee payout of a winning
// position at the odds fixed when the stake was placed.
func grossPayout(stakePoints int64, odds float64) int64 {
	return int64(math.Floor(float64(stakePoints) * odds))
}
