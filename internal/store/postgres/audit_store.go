package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// AuditStore implements domain.AuditStore on the audit_log table. Entries are
// service events such as order_placed or snipe_executed; the owner is read
// from the user_id key of the detail document.
type AuditStore struct {
	db DB
}

// NewAuditStore creates an AuditStore over db.
func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

var _ domain.AuditStore = (*AuditStore)(nil)

const insertAudit = `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`

// Log appends one entry. An empty detail is stored as NULL.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	if event == "" {
		return fmt.Errorf("postgres: audit: %w", domain.Invalid("event", "must not be empty"))
	}
	var doc []byte
	if len(detail) > 0 {
		var err error
		if doc, err = json.Marshal(detail); err != nil {
			return fmt.Errorf("postgres: audit %s: marshal: %w", event, err)
		}
	}
	if _, err := s.db.Exec(ctx, insertAudit, event, doc); err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// auditQuery builds the filtered, newest-first listing for opts.
func auditQuery(opts domain.ListOpts) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if opts.Event != "" {
		add("event = $%d", opts.Event)
	}
	if opts.UserID != "" {
		add("detail->>'user_id' = $%d", opts.UserID)
	}
	if opts.Since != nil {
		add("created_at >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		add("created_at <= $%d", *opts.Until)
	}

	var b strings.Builder
	b.WriteString("SELECT id, event, detail, created_at FROM audit_log")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id DESC")
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

// List returns entries matching opts, newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := auditQuery(opts)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e   domain.AuditEntry
			doc []byte
		)
		if err := rows.Scan(&e.ID, &e.Event, &doc, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: list audit: scan: %w", err)
		}
		if len(doc) > 0 {
			if err := json.Unmarshal(doc, &e.Detail); err != nil {
				return nil, &domain.CorruptRecordError{
					Key: fmt.Sprintf("audit_log#%d", e.ID), Attribute: "detail", Reason: err.Error(),
				}
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit rows: %w", err)
	}
	return entries, nil
}
