package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteSink persists audit records in SQLite.
type SQLiteSink struct {
	db   *sql.DB
	path string
}

// SQLiteConfig holds SQLite sink configuration.
type SQLiteConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteSink creates a new SQLite sink instance.
func NewSQLiteSink(cfg SQLiteConfig) (*SQLiteSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteSink{
		path: cfg.Path,
	}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *SQLiteSink) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(on)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

// migrate runs the embedded schema migrations.
func (s *SQLiteSink) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record implements Sink. Records are append-only.
func (s *SQLiteSink) Record(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO step_attempts (
			batch_id, recommendation_id, resource_kind, resource_id,
			step_kind, step_name, idempotency_key, attempt, status,
			error, started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.BatchID,
		rec.RecommendationID,
		string(rec.ResourceKind),
		rec.ResourceID,
		string(rec.StepKind),
		rec.StepName,
		rec.IdempotencyKey,
		rec.Attempt,
		string(rec.Status),
		rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit record ID: %w", err)
	}

	rec.ID = id
	return nil
}

// ListByBatch returns all records of one batch in insertion order.
func (s *SQLiteSink) ListByBatch(ctx context.Context, batchID string) ([]*Record, error) {
	query := `
		SELECT id, batch_id, recommendation_id, resource_kind, resource_id,
			   step_kind, step_name, idempotency_key, attempt, status,
			   error, started_at, completed_at, duration_ms
		FROM step_attempts
		WHERE batch_id = ?
		ORDER BY id ASC
	`
	return s.list(ctx, query, batchID)
}

// ListByResource returns all records touching one resource, newest first.
func (s *SQLiteSink) ListByResource(ctx context.Context, resourceID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, batch_id, recommendation_id, resource_kind, resource_id,
			   step_kind, step_name, idempotency_key, attempt, status,
			   error, started_at, completed_at, duration_ms
		FROM step_attempts
		WHERE resource_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	return s.list(ctx, query, resourceID, limit)
}

func (s *SQLiteSink) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec := &Record{}
		var kind, stepKind, status, startedAt, completedAt string
		err := rows.Scan(
			&rec.ID,
			&rec.BatchID,
			&rec.RecommendationID,
			&kind,
			&rec.ResourceID,
			&stepKind,
			&rec.StepName,
			&rec.IdempotencyKey,
			&rec.Attempt,
			&status,
			&rec.Error,
			&startedAt,
			&completedAt,
			&rec.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.ResourceKind = optimizer.ResourceKind(kind)
		rec.StepKind = optimizer.StepKind(stepKind)
		rec.Status = Status(status)
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		rec.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return records, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteSink) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
