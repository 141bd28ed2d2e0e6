package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"toot2mail/internal/dedup"
	"toot2mail/internal/model"
	"toot2mail/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database. WAL journaling
// gives the atomic durability the seen state requires across crashes.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// IsKnownSource reports whether the source completed a cycle before.
func (s *SQLite) IsKnownSource(ctx context.Context, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sources WHERE key = ?`, key,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check source: %w", err)
	}
	return count > 0, nil
}

// RegisterSource records the source identity and its first-seen time.
func (s *SQLite) RegisterSource(ctx context.Context, src model.Source) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sources (key, kind, first_seen_at) VALUES (?, ?, ?)`,
		src.Key(), string(src.Kind), now,
	)
	if err != nil {
		return fmt.Errorf("register source: %w", err)
	}
	return nil
}

// LoadSeen returns all seen status identifiers of a source.
func (s *SQLite) LoadSeen(ctx context.Context, key string) (dedup.SeenSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status_uri FROM seen_statuses WHERE source_key = ?`, key,
	)
	if err != nil {
		return nil, fmt.Errorf("query seen: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(dedup.SeenSet)
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("scan seen: %w", err)
		}
		seen[uri] = struct{}{}
	}
	return seen, rows.Err()
}

// MarkSeen records a notified status identifier. Idempotent.
func (s *SQLite) MarkSeen(ctx context.Context, key, statusURI string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_statuses (source_key, status_uri, seen_at) VALUES (?, ?, ?)`,
		key, statusURI, now,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// PruneSeen deletes entries older than cutoff, keeping at least the
// keepAtLeast most recently seen entries of the source.
func (s *SQLite) PruneSeen(ctx context.Context, key string, cutoff time.Time, keepAtLeast int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_statuses
		  WHERE source_key = ? AND seen_at < ?
		    AND status_uri NOT IN (
		        SELECT status_uri FROM seen_statuses
		         WHERE source_key = ?
		         ORDER BY seen_at DESC, status_uri DESC
		         LIMIT ?)`,
		key, cutoff.UTC().Format(timeLayout), key, keepAtLeast,
	)
	if err != nil {
		return 0, fmt.Errorf("prune seen: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}
