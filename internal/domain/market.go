package domain

import "time"

// MarketStatus represents the lifecycle state of a market. A market
// transitions open → resolved exactly once; resolved is terminal.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is a wagering market participants stake points on. Once resolved,
// ResultOptionID records the winning option.
type Market struct {
	ID             int64
	Question       string
	Status         MarketStatus
	ResultOptionID *int64
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// Option identifies one possible outcome of a market. An option belongs to
// exactly one market.
type Option struct {
	ID       int64
	MarketID int64
	Label    string
}
