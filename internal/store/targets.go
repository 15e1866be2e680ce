package store

import (
	"context"
	"fmt"

	"github.com/legacy-use/gateway/internal/model"
)

// GetTarget fetches a target descriptor by id.
func (s *Store) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, width, height, default_vnc_port, novnc_port,
		       connection_type, direct_host, direct_port
		FROM targets WHERE id = $1
	`, id)

	var t model.Target
	var connType string
	if err := row.Scan(&t.ID, &t.Type, &t.Width, &t.Height, &t.DefaultVNCPort,
		&t.NoVNCPort, &connType, &t.DirectHost, &t.DirectPort); err != nil {
		return nil, err
	}
	t.ConnectionType = model.ConnectionType(connType)
	return &t, nil
}

// UpsertTarget inserts or updates a target descriptor. Used by seed/test
// fixtures and admin tooling; the main application's schema management
// otherwise owns target provisioning.
func (s *Store) UpsertTarget(ctx context.Context, t model.Target) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO targets (id, type, width, height, default_vnc_port, novnc_port,
		                      connection_type, direct_host, direct_port)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			default_vnc_port = EXCLUDED.default_vnc_port,
			novnc_port = EXCLUDED.novnc_port,
			connection_type = EXCLUDED.connection_type,
			direct_host = EXCLUDED.direct_host,
			direct_port = EXCLUDED.direct_port
	`, t.ID, t.Type, t.Width, t.Height, t.DefaultVNCPort, t.NoVNCPort,
		t.ConnectionType, t.DirectHost, t.DirectPort)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}
