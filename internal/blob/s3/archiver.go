package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"

	// Exports larger than this go through the multipart uploader.
	multipartThreshold = 32 * 1024 * 1024
	archivePartSize    = 8 * 1024 * 1024
)

// ObjectChecker reports whether an archive object already exists.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports an owner's orders and calendar events older than a
// cutoff to JSONL objects. Archiving only copies: the table's TTL removes
// the originals. Re-running with the same cutoff day is a no-op once the
// object exists.
type Archiver struct {
	writer   domain.BlobWriter
	checker  ObjectChecker
	orders   domain.OrderStore
	calendar domain.CalendarStore
	audit    domain.AuditStore
}

// NewArchiver creates an Archiver. checker and audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	checker ObjectChecker,
	orders domain.OrderStore,
	calendar domain.CalendarStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:   writer,
		checker:  checker,
		orders:   orders,
		calendar: calendar,
		audit:    audit,
	}
}

var _ domain.Archiver = (*Archiver)(nil)

// ArchiveOrders exports the owner's orders created before the cutoff to
// archive/orders/<owner>/<YYYY-MM-DD>.jsonl and returns how many were
// written.
func (a *Archiver) ArchiveOrders(ctx context.Context, userID string, before time.Time) (int64, error) {
	path := archivePath("orders", userID, before)
	if done, err := a.alreadyArchived(ctx, path); err != nil || done {
		return 0, err
	}
	orders, err := a.orders.QueryOrdersBetween(ctx, userID, 0, before.UnixMilli()-1)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	return archive(ctx, a, "orders", userID, path, before, orders)
}

// ArchiveCalendarEvents exports the owner's calendar events launching before
// the cutoff to archive/calendar/<owner>/<YYYY-MM-DD>.jsonl.
func (a *Archiver) ArchiveCalendarEvents(ctx context.Context, userID string, before time.Time) (int64, error) {
	path := archivePath("calendar", userID, before)
	if done, err := a.alreadyArchived(ctx, path); err != nil || done {
		return 0, err
	}
	events, err := a.calendar.QueryCalendarEventsByTime(ctx, userID, 0, before.UnixMilli()-1)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive calendar query: %w", err)
	}
	return archive(ctx, a, "calendar", userID, path, before, events)
}

func (a *Archiver) alreadyArchived(ctx context.Context, path string) (bool, error) {
	if a.checker == nil {
		return false, nil
	}
	ok, err := a.checker.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("s3blob: archive check %s: %w", path, err)
	}
	return ok, nil
}

func archive[T any](ctx context.Context, a *Archiver, kind, userID, path string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), archivePartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"user_id": userID,
			"path":    path,
			"count":   count,
			"before":  before.UTC().Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

// archivePath builds the object path for one export:
//
//	archive/orders/<owner>/2025-01-31.jsonl
func archivePath(kind, userID string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, userID, before.UTC().Format(time.DateOnly))
}

// marshalJSONL encodes records as newline-delimited JSON.
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
