package shared

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  string
	args []any
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &recordingExecer{}
	logger := NewAuditLogger(db)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	err := logger.Record(context.Background(), AuditLog{ActorID: 2, Action: "voucher.create", Entity: "voucher", EntityID: "10", Meta: map[string]any{"generated": 3}, At: at})
	require.NoError(t, err)
	assert.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Len(t, db.args, 6)
	assert.JSONEq(t, `{"generated":3}`, string(db.args[4].([]byte)))
	assert.Equal(t, &at, db.args[5])
}

func TestAuditLoggerDefaults(t *testing.T) {
	db := &recordingExecer{}
	require.NoError(t, NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))
	assert.JSONEq(t, `{}`, string(db.args[4].([]byte)))
	assert.Nil(t, db.args[5])
}

func TestAuditLoggerRejectsIncompleteLogs(t *testing.T) {
	require.Error(t, NewAuditLogger(&recordingExecer{}).Record(context.Background(), AuditLog{Action: "a"}))
	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))
}
