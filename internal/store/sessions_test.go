package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legacy-use/gateway/internal/model"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewForTesting(db), mock
}

func TestGetSession(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "target_id", "state", "status", "container_id", "container_ip",
		"vnc_port", "novnc_port", "error_message", "created_at", "updated_at",
	}).AddRow("s1", "t1", "ready", "", "c1", "10.244.1.2", 5900, 6080, "", now, now)

	mock.ExpectQuery(`SELECT id, target_id, state, status, container_id, container_ip`).
		WithArgs("s1").
		WillReturnRows(rows)

	sess, err := store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.StateReady, sess.State)
	assert.Equal(t, "10.244.1.2", sess.ContainerIP)
	assert.True(t, sess.HasNetworkCoordinates())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT id, target_id, state, status, container_id, container_ip`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNoRows(err))
}

func TestClearNetworkCoordinates(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE sessions`).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.ClearNetworkCoordinates(context.Background(), "s1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSessionStateAllowsLegalTransition(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT state FROM sessions`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("provisioning"))
	mock.ExpectExec(`UPDATE sessions SET state`).
		WithArgs("s1", model.StateReady, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateSessionState(context.Background(), "s1", model.StateReady, "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSessionStateRejectsIllegalTransition(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT state FROM sessions`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("ready"))

	err := store.UpdateSessionState(context.Background(), "s1", model.StateDestroyed, "")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneJobLogs(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`DELETE FROM job_logs`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := store.PruneJobLogs(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}
