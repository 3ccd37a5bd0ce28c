package domain

import "time"

// JobStatus is the state of a settlement job.
//
// Transitions:
//
//	queued     → processing   claimed by a worker
//	processing → completed    all effects committed (terminal, absorbing)
//	processing → failed       validation or infra error, effects rolled back
//	failed     → processing   re-claimed by the poll path
//	processing → processing   reclaim of an abandoned attempt, only once the
//	                          prior claim is older than the staleness threshold
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// SettlementJob is a work item instructing the coordinator to resolve one
// market with one winning option and distribute payouts. The queue payload
// carries only the job id; everything else is read from this row.
type SettlementJob struct {
	ID             int64
	MarketID       int64
	ResultOptionID int64
	Status         JobStatus
	Attempts       int
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ErrorMessage   *string
	ResolvedBy     string
	CreatedAt      time.Time
}
