package shared

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &fakeExecer{}
	logger := NewAuditLogger(db)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CST", -6*3600))

	err := logger.Record(context.Background(), AuditLog{
		ActorID:  "u-1",
		Action:   "lifecycle.soft_delete",
		Entity:   "employee",
		EntityID: "emp-1",
		Meta:     map[string]any{"region": "NORTE"},
		At:       at,
	})
	require.NoError(t, err)
	require.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Len(t, db.args, 6)
	require.Equal(t, "lifecycle.soft_delete", db.args[1])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(db.args[4].([]byte), &meta))
	require.Equal(t, "NORTE", meta["region"])
	require.Equal(t, at.UTC(), db.args[5])
}

func TestAuditLoggerZeroTimeDefersToDatabase(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))
	require.Nil(t, db.args[5])
}

func TestAuditLoggerRejectsIncompleteEntries(t *testing.T) {
	db := &fakeExecer{}
	require.Error(t, NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "a"}))
	require.Empty(t, db.sql)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))
}

func TestAuditLoggerPropagatesExecErrors(t *testing.T) {
	boom := errors.New("boom")
	db := &fakeExecer{err: boom}
	err := NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"})
	require.ErrorIs(t, err, boom)
}
