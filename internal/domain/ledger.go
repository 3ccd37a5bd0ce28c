package domain

import "time"

// LedgerAction classifies a balance mutation.
type LedgerAction string

const (
	ActionBetPayout   LedgerAction = "bet_payout"
	ActionFeeCredit   LedgerAction = "fee_credit"
	ActionSignupGrant LedgerAction = "signup_grant"
	ActionAdminAdjust LedgerAction = "admin_adjust"
)

// LedgerEntry is the append-only record of a single account mutation. Entries
// are never updated or deleted; they double as the reconciliation source of
// truth for account balances.
type LedgerEntry struct {
	ID           int64
	Actor        string
	AccountID    int64
	Action       LedgerAction
	Reason       string
	PointsDelta  int64
	PointsBefore int64
	PointsAfter  int64
	RelatedKind  *string
	RelatedID    *int64
	Metadata     map[string]any
	CreatedAt    time.Time
}

// AuditEntry is a single audit log row. The audit log is append-only and
// records every action affecting points, independent of outcome.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}
