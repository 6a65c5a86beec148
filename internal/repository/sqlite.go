package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/teplovod/go-heatnet-alerts/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alert_events (
			id TEXT NOT NULL,
			object_id TEXT NOT NULL,
			object_type TEXT NOT NULL,
			message TEXT NOT NULL,
			comment TEXT,
			level TEXT NOT NULL,
			severity TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			duration_hours INTEGER NOT NULL,
			observed_at DATETIME NOT NULL,
			PRIMARY KEY (id, timestamp)
		);

		CREATE INDEX IF NOT EXISTS idx_alert_events_object_id ON alert_events(object_id);
		CREATE INDEX IF NOT EXISTS idx_alert_events_severity ON alert_events(severity);
		CREATE INDEX IF NOT EXISTS idx_alert_events_observed_at ON alert_events(observed_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Add(ctx context.Context, e *AlertEvent) error {
	query := `
		INSERT INTO alert_events (id, object_id, object_type, message, comment, level, severity, timestamp, duration_hours, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.ObjectID, e.ObjectType, e.Message, e.Comment,
		e.Level, string(e.Severity), e.Timestamp, e.DurationHours, e.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting alert event: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Exists(ctx context.Context, id, timestamp string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM alert_events WHERE id = ? AND timestamp = ?`
	if err := s.db.QueryRowContext(ctx, query, id, timestamp).Scan(&count); err != nil {
		return false, fmt.Errorf("error checking alert event existence: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteDB) ListEvents(ctx context.Context, opts Filter) ([]AlertEvent, error) {
	var (
		conds []string
		args  []any
	)

	if opts.Severity != nil {
		conds = append(conds, "severity = ?")
		args = append(args, string(*opts.Severity))
	}
	if opts.ObjectID != "" {
		conds = append(conds, "object_id = ?")
		args = append(args, opts.ObjectID)
	}
	if opts.Since != nil {
		conds = append(conds, "observed_at >= ?")
		args = append(args, *opts.Since)
	}

	query := `SELECT id, object_id, object_type, message, comment, level, severity, timestamp, duration_hours, observed_at FROM alert_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY observed_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying alert events: %w", err)
	}
	defer rows.Close()

	var events []AlertEvent
	for rows.Next() {
		var (
			e        AlertEvent
			severity string
		)
		if err := rows.Scan(&e.ID, &e.ObjectID, &e.ObjectType, &e.Message, &e.Comment,
			&e.Level, &severity, &e.Timestamp, &e.DurationHours, &e.ObservedAt); err != nil {
			return nil, fmt.Errorf("error scanning alert event: %w", err)
		}
		e.Severity = models.Severity(severity)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
