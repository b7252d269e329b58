package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver copies aged records to cold storage. The table's TTL removes the
// originals; archiving never deletes.
type Archiver interface {
	ArchiveOrders(ctx context.Context, userID string, before time.Time) (int64, error)
	ArchiveCalendarEvents(ctx context.Context, userID string, before time.Time) (int64, error)
}
