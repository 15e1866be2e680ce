package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/legacy-use/gateway/internal/errors"
	"github.com/legacy-use/gateway/internal/model"
)

// GetSession fetches a session by id. Returns sql.ErrNoRows if absent.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_id, state, status, container_id, container_ip,
		       vnc_port, novnc_port, error_message, created_at, updated_at
		FROM sessions WHERE id = $1
	`, id)

	var sess model.Session
	var state, status string
	if err := row.Scan(&sess.ID, &sess.TargetID, &state, &status, &sess.ContainerID,
		&sess.ContainerIP, &sess.VNCPort, &sess.NoVNCPort, &sess.ErrorMessage,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.State = model.SessionState(state)
	sess.Status = status
	return &sess, nil
}

// CreateSession inserts a new session in the initializing state.
func (s *Store) CreateSession(ctx context.Context, id, targetID string) (*model.Session, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, target_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, id, targetID, model.StateInitializing, now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &model.Session{
		ID: id, TargetID: targetID, State: model.StateInitializing,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// UpdateSessionState transitions a session's state and optional error
// message. The write is rejected with a Conflict AppError if
// model.CanTransition(current, state) is false for the session's current
// stored state.
func (s *Store) UpdateSessionState(ctx context.Context, id string, state model.SessionState, errMsg string) error {
	var current string
	if err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = $1`, id).Scan(&current); err != nil {
		return err
	}
	from := model.SessionState(current)
	if !model.CanTransition(from, state) {
		return apperrors.NewWithDetails(apperrors.CodeConflict,
			fmt.Sprintf("illegal session state transition for %s", id),
			fmt.Sprintf("%s -> %s", from, state))
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = $2, error_message = $3, updated_at = $4
		WHERE id = $1
	`, id, state, errMsg, time.Now())
	return err
}

// SetNetworkCoordinates records the workload binding for a session; it
// only becomes visible to clients once the session reaches ready.
func (s *Store) SetNetworkCoordinates(ctx context.Context, id, containerID, containerIP string, vncPort, novncPort int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET container_id = $2, container_ip = $3, vnc_port = $4, novnc_port = $5, updated_at = $6
		WHERE id = $1
	`, id, containerID, containerIP, vncPort, novncPort, time.Now())
	return err
}

// ClearNetworkCoordinates wipes network coordinates so a session in
// releasing/destroyed never exposes them.
func (s *Store) ClearNetworkCoordinates(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET container_id = '', container_ip = '', vnc_port = 0, novnc_port = 0, updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

// ListNonTerminalSessions returns every session not in a terminal state,
// for the health monitor's reconciliation pass.
func (s *Store) ListNonTerminalSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, state, status, container_id, container_ip,
		       vnc_port, novnc_port, error_message, created_at, updated_at
		FROM sessions WHERE state != $1
	`, model.StateDestroyed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var state string
		if err := rows.Scan(&sess.ID, &sess.TargetID, &state, &sess.Status, &sess.ContainerID,
			&sess.ContainerIP, &sess.VNCPort, &sess.NoVNCPort, &sess.ErrorMessage,
			&sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.State = model.SessionState(state)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// PruneJobLogs deletes job log rows older than the cutoff, backing the
// daily log-prune task.
func (s *Store) PruneJobLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_logs WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IsNoRows reports whether err is the "no such row" sentinel, so callers
// outside this package don't need to import database/sql directly.
func IsNoRows(err error) bool {
	return err == sql.ErrNoRows
}
