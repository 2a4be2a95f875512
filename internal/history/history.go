// Package history records completed passes and sent notifications in a
// local sqlite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/alert"
)

const schema = `
CREATE TABLE IF NOT EXISTS passes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	object_id  TEXT NOT NULL,
	aos        INTEGER NOT NULL,
	los        INTEGER NOT NULL,
	UNIQUE (object_id, aos)
);
CREATE TABLE IF NOT EXISTS notifications (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	object_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	occurred_at INTEGER NOT NULL,
	payload     TEXT NOT NULL
);
`

// PassRecord is a completed pass occurrence.
type PassRecord struct {
	ObjectID string    `json:"object_id"`
	AOS      time.Time `json:"aos"`
	LOS      time.Time `json:"los"`
}

// NotificationRecord is a delivered notification.
type NotificationRecord struct {
	ObjectID   string    `json:"object_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    string    `json:"payload"`
}

// Store persists history rows. Safe for concurrent use; database/sql
// serializes access to the single sqlite connection pool.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordPass inserts a completed pass. Re-recording the same occurrence
// (same object and AOS) is a no-op.
func (s *Store) RecordPass(ctx context.Context, objectID string, aos, los time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO passes (object_id, aos, los) VALUES (?, ?, ?)`,
		objectID, aos.Unix(), los.Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording pass: %w", err)
	}
	return nil
}

// RecordNotification inserts a delivered notification.
func (s *Store) RecordNotification(ctx context.Context, n alert.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (object_id, kind, occurred_at, payload) VALUES (?, ?, ?, ?)`,
		n.ObjectID, string(n.Kind), n.OccurredAt.Unix(), n.Payload,
	)
	if err != nil {
		return fmt.Errorf("recording notification: %w", err)
	}
	return nil
}

// RecentPasses returns up to limit completed passes, newest first.
func (s *Store) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, aos, los FROM passes ORDER BY aos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying passes: %w", err)
	}
	defer rows.Close()

	var out []PassRecord
	for rows.Next() {
		var rec PassRecord
		var aos, los int64
		if err := rows.Scan(&rec.ObjectID, &aos, &los); err != nil {
			return nil, fmt.Errorf("scanning pass row: %w", err)
		}
		rec.AOS = time.Unix(aos, 0).UTC()
		rec.LOS = time.Unix(los, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentNotifications returns up to limit notifications, newest first.
func (s *Store) RecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, kind, occurred_at, payload FROM notifications ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []NotificationRecord
	for rows.Next() {
		var rec NotificationRecord
		var occurredAt int64
		if err := rows.Scan(&rec.ObjectID, &rec.Kind, &occurredAt, &rec.Payload); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		rec.OccurredAt = time.Unix(occurredAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
