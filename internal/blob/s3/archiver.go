package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pointline/pointline/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"

	// ledgerPartSize is the multipart part size for ledger archives. The
	// ledger is the one table that grows with every settlement, so it gets
	// the multipart path.
	ledgerPartSize int64 = 8 * 1024 * 1024
)

// JobArchiveSource reads settled jobs eligible for cold storage.
type JobArchiveSource interface {
	ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.SettlementJob, error)
}

// LedgerArchiveSource reads ledger entries eligible for cold storage.
type LedgerArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.LedgerEntry, error)
}

// AuditArchiveSource reads audit records eligible for cold storage.
type AuditArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// AuditLogger records archive passes in the audit log.
type AuditLogger interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// AlertSink receives operator notifications. Satisfied by *notify.Notifier;
// may be nil.
type AlertSink interface {
	Notify(ctx context.Context, event, title, message string) error
}

// blobStore is the slice of the writer the archiver uses. Satisfied by
// *Writer.
type blobStore interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies aged settlement jobs, ledger entries, and audit records to
// object storage as monthly JSONL files. Rows are never deleted from the
// primary store here; pruning is a separate, explicitly operator-driven step
// taken only after archives have been verified.
type Archiver struct {
	writer blobStore
	jobs   JobArchiveSource
	ledger LedgerArchiveSource
	audit  AuditArchiveSource

	auditLog AuditLogger
	alerts   AlertSink
	logger   *slog.Logger
}

// NewArchiver creates an Archiver. alerts may be nil.
func NewArchiver(
	writer blobStore,
	jobs JobArchiveSource,
	ledger LedgerArchiveSource,
	audit AuditArchiveSource,
	auditLog AuditLogger,
	alerts AlertSink,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:   writer,
		jobs:     jobs,
		ledger:   ledger,
		audit:    audit,
		auditLog: auditLog,
		alerts:   alerts,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveJobs uploads all jobs completed before the cutoff to
// archive/jobs/YYYY-MM.jsonl and returns the number of records written.
func (a *Archiver) ArchiveJobs(ctx context.Context, before time.Time) (int64, error) {
	jobs, err := a.jobs.ListCompletedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive jobs query: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(jobs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive jobs marshal: %w", err)
	}

	path := archivePath("jobs", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL); err != nil {
		return 0, fmt.Errorf("s3blob: archive jobs upload: %w", err)
	}
	if err := a.verify(ctx, path); err != nil {
		return 0, err
	}

	count := int64(len(jobs))
	if err := a.recordPass(ctx, "archive.jobs", path, count, before); err != nil {
		return count, err
	}
	return count, nil
}

// ArchiveLedger uploads all ledger entries created before the cutoff to
// archive/ledger/YYYY-MM.jsonl via multipart upload and returns the number
// of records written.
func (a *Archiver) ArchiveLedger(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.ledger.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger marshal: %w", err)
	}

	path := archivePath("ledger", before)
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), ledgerPartSize); err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger upload: %w", err)
	}
	if err := a.verify(ctx, path); err != nil {
		return 0, err
	}

	count := int64(len(entries))
	if err := a.recordPass(ctx, "archive.ledger", path, count, before); err != nil {
		return count, err
	}
	return count, nil
}

// ArchiveAudit uploads all audit records created before the cutoff to
// archive/audit/YYYY-MM.jsonl and returns the number of records written.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}
	if err := a.verify(ctx, path); err != nil {
		return 0, err
	}

	count := int64(len(records))
	if err := a.recordPass(ctx, "archive.audit", path, count, before); err != nil {
		return count, err
	}
	return count, nil
}

// RunLoop executes an archive pass immediately and then on every interval
// until ctx is cancelled. retention determines the cutoff for each pass as
// now minus retention. Pass errors are logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval, retention time.Duration) error {
	a.logger.InfoContext(ctx, "archiver starting",
		slog.Duration("interval", interval),
		slog.Duration("retention", retention),
	)

	a.pass(ctx, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.pass(ctx, retention)
		}
	}
}

func (a *Archiver) pass(ctx context.Context, retention time.Duration) {
	before := time.Now().Add(-retention)

	var jobCount, ledgerCount, auditCount int64
	var failed bool

	jobCount, err := a.ArchiveJobs(ctx, before)
	if err != nil {
		failed = true
		a.logger.ErrorContext(ctx, "job archive pass failed", slog.String("error", err.Error()))
	}

	ledgerCount, err = a.ArchiveLedger(ctx, before)
	if err != nil {
		failed = true
		a.logger.ErrorContext(ctx, "ledger archive pass failed", slog.String("error", err.Error()))
	}

	auditCount, err = a.ArchiveAudit(ctx, before)
	if err != nil {
		failed = true
		a.logger.ErrorContext(ctx, "audit archive pass failed", slog.String("error", err.Error()))
	}

	total := jobCount + ledgerCount + auditCount
	if total == 0 {
		return
	}

	a.logger.InfoContext(ctx, "archive pass finished",
		slog.Int64("jobs", jobCount),
		slog.Int64("ledger_entries", ledgerCount),
		slog.Int64("audit_records", auditCount),
		slog.Bool("partial", failed),
	)

	if a.alerts != nil {
		msg := fmt.Sprintf("Archived %d jobs, %d ledger entries, %d audit records (cutoff %s)",
			jobCount, ledgerCount, auditCount, before.Format(time.RFC3339))
		if err := a.alerts.Notify(ctx, "archive_completed", "Archive pass finished", msg); err != nil {
			a.logger.WarnContext(ctx, "archive notification failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// verify confirms the uploaded object is readable before the pass is
// recorded. A missing object after a successful upload means the provider
// lied about the write.
func (a *Archiver) verify(ctx context.Context, path string) error {
	ok, err := a.writer.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: verify archive %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("s3blob: archive %s missing after upload", path)
	}
	return nil
}

func (a *Archiver) recordPass(ctx context.Context, event, path string, count int64, before time.Time) error {
	err := a.auditLog.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("s3blob: %s audit log: %w", event, err)
	}
	return nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff.
//
//	archive/jobs/2026-08.jsonl
//	archive/ledger/2026-08.jsonl
//	archive/audit/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
