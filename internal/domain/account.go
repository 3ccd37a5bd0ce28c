package domain

import "time"

// AccountKind distinguishes participant accounts from platform-owned ones.
type AccountKind string

const (
	AccountKindUser   AccountKind = "user"
	AccountKindSystem AccountKind = "system"
)

// SystemTagFeeCollector marks the single platform account that receives
// settlement fees.
const SystemTagFeeCollector = "fee_collector"

// Account holds a participant's (or the platform's) point balance. The
// balance is mutated exclusively through the ledger service; every mutation
// produces a LedgerEntry.
type Account struct {
	ID            int64
	Kind          AccountKind
	SystemTag     *string
	PointsBalance int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
