package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

func TestAuditLogInsert(t *testing.T) {
	db := &fakeDB{}
	s := NewAuditStore(db)
	ctx := context.Background()

	require.NoError(t, s.Log(ctx, "order_placed", map[string]any{"user_id": "alice", "order_id": "o-1"}))
	require.NoError(t, s.Log(ctx, "scan_started", nil))

	require.Len(t, db.execs, 2)
	assert.Equal(t, insertAudit, db.execs[0].sql)
	assert.Equal(t, "order_placed", db.execs[0].args[0])
	assert.JSONEq(t, `{"user_id":"alice","order_id":"o-1"}`, string(db.execs[0].args[1].([]byte)))
	assert.Nil(t, db.execs[1].args[1], "empty detail is NULL")

	var ve *domain.ValidationError
	require.ErrorAs(t, s.Log(ctx, "", nil), &ve)
	assert.Len(t, db.execs, 2)
}

func TestAuditQueryFilters(t *testing.T) {
	since := t0
	until := t0.Add(time.Hour)

	tests := []struct {
		name string
		opts domain.ListOpts
		sql  string
		args []any
	}{
		{
			name: "unfiltered",
			sql:  "SELECT id, event, detail, created_at FROM audit_log ORDER BY id DESC",
		},
		{
			name: "owner and event",
			opts: domain.ListOpts{Event: "snipe_executed", UserID: "alice", Limit: 20},
			sql: "SELECT id, event, detail, created_at FROM audit_log " +
				"WHERE event = $1 AND detail->>'user_id' = $2 ORDER BY id DESC LIMIT $3",
			args: []any{"snipe_executed", "alice", 20},
		},
		{
			name: "window with offset",
			opts: domain.ListOpts{Since: &since, Until: &until, Limit: 10, Offset: 30},
			sql: "SELECT id, event, detail, created_at FROM audit_log " +
				"WHERE created_at >= $1 AND created_at <= $2 ORDER BY id DESC LIMIT $3 OFFSET $4",
			args: []any{since, until, 10, 30},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := auditQuery(tt.opts)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestAuditList(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		{int64(2), "snipe_executed", []byte(`{"user_id":"alice","event_id":"e1"}`), t0.Add(time.Second)},
		{int64(1), "scan_started", nil, t0},
	}}

	got, err := NewAuditStore(db).List(context.Background(), domain.ListOpts{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.AuditEntry{
		ID: 2, Event: "snipe_executed", CreatedAt: t0.Add(time.Second),
		Detail: map[string]any{"user_id": "alice", "event_id": "e1"},
	}, got[0])
	assert.Nil(t, got[1].Detail)
	assert.Equal(t, []any{"alice"}, db.queries[0].args)
}

func TestAuditListErrors(t *testing.T) {
	db := &fakeDB{rows: [][]any{{int64(7), "order_placed", []byte(`{"user_id":`), t0}}}
	_, err := NewAuditStore(db).List(context.Background(), domain.ListOpts{})
	var cre *domain.CorruptRecordError
	require.ErrorAs(t, err, &cre)
	assert.Equal(t, "audit_log#7", cre.Key)

	boom := errors.New("pool closed")
	_, err = NewAuditStore(&fakeDB{err: boom}).List(context.Background(), domain.ListOpts{})
	assert.ErrorIs(t, err, boom)
}
