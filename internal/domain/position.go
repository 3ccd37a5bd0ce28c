package domain

import "time"

// PositionStatus tracks whether a position is open or settled.
type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusSettled PositionStatus = "settled"
)

// Position is one account's stake on one option of one market. OddsAtPurchase
// is fixed when the stake is placed and never changes afterwards. A position
// transitions open → settled exactly once, and PayoutPoints is set exactly
// once at that transition (0 for a losing position).
type Position struct {
	ID             int64
	MarketID       int64
	AccountID      int64
	OptionID       int64
	StakePoints    int64
	OddsAtPurchase float64
	Status         PositionStatus
	PayoutPoints   *int64
	PlacedAt       time.Time
	SettledAt      *time.Time
}
