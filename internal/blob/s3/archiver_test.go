package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pointline/pointline/internal/domain"
)

// memBlob records uploads in memory.
type memBlob struct {
	objects   map[string][]byte
	multipart map[string]bool
	putErr    error
}

func newMemBlob() *memBlob {
	return &memBlob{
		objects:   make(map[string][]byte),
		multipart: make(map[string]bool),
	}
}

func (b *memBlob) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = buf
	return nil
}

func (b *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if err := b.Put(ctx, path, data, ""); err != nil {
		return err
	}
	b.multipart[path] = true
	return nil
}

func (b *memBlob) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

// memAudit records archive passes.
type memAudit struct {
	events []string
	detail []map[string]any
}

func (a *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	a.detail = append(a.detail, detail)
	return nil
}

type staticJobs struct {
	jobs []domain.SettlementJob
	err  error
}

func (s staticJobs) ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.SettlementJob, error) {
	return s.jobs, s.err
}

type staticLedger struct {
	entries []domain.LedgerEntry
}

func (s staticLedger) ListBefore(ctx context.Context, before time.Time) ([]domain.LedgerEntry, error) {
	return s.entries, nil
}

type staticAudit struct {
	records []domain.AuditEntry
}

func (s staticAudit) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	return s.records, nil
}

func testArchiver(blob *memBlob, jobs JobArchiveSource, ledger LedgerArchiveSource, audit AuditArchiveSource, log *memAudit) *Archiver {
	return NewArchiver(blob, jobs, ledger, audit, log,
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestArchiveJobsUploadsJSONL(t *testing.T) {
	blob := newMemBlob()
	log := &memAudit{}
	jobs := staticJobs{jobs: []domain.SettlementJob{
		{ID: 1, MarketID: 3, Status: domain.JobStatusCompleted},
		{ID: 2, MarketID: 4, Status: domain.JobStatusCompleted},
	}}
	a := testArchiver(blob, jobs, staticLedger{}, staticAudit{}, log)

	before := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveJobs(context.Background(), before)
	if err != nil {
		t.Fatalf("ArchiveJobs: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	data, ok := blob.objects["archive/jobs/2026-08.jsonl"]
	if !ok {
		t.Fatalf("archive object missing; have %v", blob.objects)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("jsonl lines = %d, want 2", len(lines))
	}
	var decoded domain.SettlementJob
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line 0 is not valid JSON: %v", err)
	}
	if decoded.ID != 1 {
		t.Errorf("decoded job id = %d, want 1", decoded.ID)
	}

	if len(log.events) != 1 || log.events[0] != "archive.jobs" {
		t.Errorf("audit events = %v, want [archive.jobs]", log.events)
	}
	if got := log.detail[0]["count"]; got != int64(2) {
		t.Errorf("audit count = %v, want 2", got)
	}
}

func TestArchiveSkipsEmptyTables(t *testing.T) {
	blob := newMemBlob()
	log := &memAudit{}
	a := testArchiver(blob, staticJobs{}, staticLedger{}, staticAudit{}, log)

	count, err := a.ArchiveJobs(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveJobs: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(blob.objects) != 0 {
		t.Errorf("uploads happened for empty table: %v", blob.objects)
	}
	if len(log.events) != 0 {
		t.Errorf("audit written for empty pass: %v", log.events)
	}
}

func TestArchiveLedgerUsesMultipart(t *testing.T) {
	blob := newMemBlob()
	log := &memAudit{}
	ledger := staticLedger{entries: []domain.LedgerEntry{
		{ID: 1, AccountID: 7, PointsDelta: 196, Action: domain.ActionBetPayout},
	}}
	a := testArchiver(blob, staticJobs{}, ledger, staticAudit{}, log)

	before := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveLedger(context.Background(), before)
	if err != nil {
		t.Fatalf("ArchiveLedger: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if !blob.multipart["archive/ledger/2026-07.jsonl"] {
		t.Errorf("ledger archive did not go through the multipart path")
	}
}

func TestArchiveUploadFailureSkipsAudit(t *testing.T) {
	blob := newMemBlob()
	blob.putErr = errors.New("bucket gone")
	log := &memAudit{}
	jobs := staticJobs{jobs: []domain.SettlementJob{{ID: 1}}}
	a := testArchiver(blob, jobs, staticLedger{}, staticAudit{}, log)

	_, err := a.ArchiveJobs(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected upload error")
	}
	if len(log.events) != 0 {
		t.Errorf("audit written for failed upload: %v", log.events)
	}
}

func TestArchivePathPartitionsByMonth(t *testing.T) {
	before := time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)
	if got := archivePath("audit", before); got != "archive/audit/2026-01.jsonl" {
		t.Errorf("archivePath = %q", got)
	}
}

func TestMarshalJSONLCompactLines(t *testing.T) {
	buf, err := marshalJSONL([]map[string]string{{"a": "<b>"}, {"c": "d"}})
	if err != nil {
		t.Fatalf("marshalJSONL: %v", err)
	}
	if !bytes.HasSuffix(buf, []byte("\n")) {
		t.Error("output must end with a newline")
	}
	if !bytes.Contains(buf, []byte("<b>")) {
		t.Error("HTML escaping should be disabled")
	}
	if got := bytes.Count(buf, []byte("\n")); got != 2 {
		t.Errorf("lines = %d, want 2", got)
	}
}
