// Package store implements the session store: a persistent record of
// each session's state, target binding, and network coordinates, accessed
// through a narrow query surface. Schema management proper lives with the
// main application; this package owns only the minimal CREATE TABLE IF
// NOT EXISTS bootstrap needed to run the query surface against a fresh
// database in tests and local development.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/legacy-use/gateway/internal/logger"
)

// Config holds session-store connection configuration.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

var (
	hostPattern   = regexp.MustCompile(`^[a-zA-Z0-9.\-]+$`)
	portPattern   = regexp.MustCompile(`^[0-9]{1,5}$`)
	identPattern  = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	validSSLModes = map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
)

func validateConfig(config Config) error {
	if !hostPattern.MatchString(config.Host) {
		return fmt.Errorf("invalid host: %s", config.Host)
	}
	if !portPattern.MatchString(config.Port) {
		return fmt.Errorf("invalid port: %s", config.Port)
	}
	if !identPattern.MatchString(config.User) {
		return fmt.Errorf("invalid user: %s", config.User)
	}
	if !identPattern.MatchString(config.DBName) {
		return fmt.Errorf("invalid dbname: %s", config.DBName)
	}
	if config.SSLMode != "" && !validSSLModes[config.SSLMode] {
		return fmt.Errorf("invalid sslmode: %s", config.SSLMode)
	}
	if config.SSLMode == "disable" {
		logger.Database().Warn().Msg("SSL disabled for session store connection; this is insecure for production")
	}
	return nil
}

// Store wraps a *sql.DB with the narrow query surface the lifecycle
// manager, gateway, and health monitor use.
type Store struct {
	db *sql.DB
}

// New opens and validates a connection to the session store.
func New(config Config) (*Store, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping session store: %w", err)
	}

	return &Store{db: db}, nil
}

// NewForTesting wraps an existing *sql.DB (e.g. from sqlmock). Testing only.
func NewForTesting(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping reports whether the underlying connection pool can reach the
// database, backing the GET /health probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate bootstraps the sessions and targets tables. Idempotent.
func (s *Store) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS targets (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			width INTEGER NOT NULL DEFAULT 1024,
			height INTEGER NOT NULL DEFAULT 768,
			default_vnc_port INTEGER NOT NULL DEFAULT 5900,
			novnc_port INTEGER NOT NULL DEFAULT 6080,
			connection_type TEXT NOT NULL DEFAULT 'pool',
			direct_host TEXT NOT NULL DEFAULT '',
			direct_port INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			target_id TEXT NOT NULL REFERENCES targets(id),
			state TEXT NOT NULL DEFAULT 'initializing',
			status TEXT NOT NULL DEFAULT '',
			container_id TEXT NOT NULL DEFAULT '',
			container_ip TEXT NOT NULL DEFAULT '',
			vnc_port INTEGER NOT NULL DEFAULT 0,
			novnc_port INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS job_logs (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
		`CREATE INDEX IF NOT EXISTS idx_job_logs_created_at ON job_logs(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
