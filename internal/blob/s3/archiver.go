package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbmon/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly through their ListBefore methods; the archiver
// does not need the full store surface.

// OpportunityArchiveStore provides read access to aged opportunities.
type OpportunityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error)
}

// CycleLogArchiveStore provides read access to aged cycle logs.
type CycleLogArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.CycleLog, error)
}

// AuditLogger records archive events in the audit trail.
type AuditLogger interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// ArchiveImpl implements domain.Archiver by querying the stores for rows
// older than the cutoff, serializing them to JSONL, and uploading the result
// to object storage.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here; the retention janitor deletes only after the archive upload
// has succeeded.
type ArchiveImpl struct {
	writer        domain.BlobWriter
	opportunities OpportunityArchiveStore
	cycleLogs     CycleLogArchiveStore
	audit         AuditLogger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	opportunities OpportunityArchiveStore,
	cycleLogs CycleLogArchiveStore,
	audit AuditLogger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:        writer,
		opportunities: opportunities,
		cycleLogs:     cycleLogs,
		audit:         audit,
	}
}

// ArchiveOpportunities uploads all opportunities detected before the cutoff
// to archive/opportunities/YYYY-MM.jsonl and records the event in the audit
// log. It returns the number of archived records.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opportunities.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	count := int64(len(opps))

	if err := a.audit.Log(ctx, "archive.opportunities", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive opportunities audit log: %w", err)
	}

	return count, nil
}

// ArchiveCycleLogs uploads all cycle logs started before the cutoff to
// archive/cycle_logs/YYYY-MM.jsonl and records the event in the audit log.
// It returns the number of archived records.
func (a *ArchiveImpl) ArchiveCycleLogs(ctx context.Context, before time.Time) (int64, error) {
	logs, err := a.cycleLogs.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive cycle logs query: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(logs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive cycle logs marshal: %w", err)
	}

	path := archivePath("cycle_logs", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive cycle logs upload: %w", err)
	}

	count := int64(len(logs))

	if err := a.audit.Log(ctx, "archive.cycle_logs", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive cycle logs audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/opportunities/2025-06.jsonl
//	archive/cycle_logs/2025-06.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is marshalled as a single compact JSON line followed by '\n'.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
