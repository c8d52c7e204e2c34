package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/mscrnt/homecards/pkg/card"
)

// ErrNotDismissed is returned by Restore for a card that was never dismissed
var ErrNotDismissed = errors.New("card is not dismissed")

// DB wraps the SQL database connection
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.Migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate creates or updates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dismissals (
		card_id INTEGER PRIMARY KEY,
		dismissed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS refreshes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms REAL NOT NULL DEFAULT 0,
		shown TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_refreshes_session ON refreshes(session_id);
	CREATE INDEX IF NOT EXISTS idx_refreshes_started_at ON refreshes(started_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Dismiss hides id until it is restored. Dismissing twice moves the timestamp.
func (db *DB) Dismiss(id card.ID) error {
	_, err := db.conn.Exec(
		`INSERT INTO dismissals (card_id, dismissed_at) VALUES (?, ?)
		 ON CONFLICT(card_id) DO UPDATE SET dismissed_at = excluded.dismissed_at`,
		int64(id), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to dismiss card %d: %w", id, err)
	}
	return nil
}

// Restore makes a dismissed card eligible for display again
func (db *DB) Restore(id card.ID) error {
	result, err := db.conn.Exec(`DELETE FROM dismissals WHERE card_id = ?`, int64(id))
	if err != nil {
		return fmt.Errorf("failed to restore card %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotDismissed
	}
	return nil
}

// Dismissed returns every dismissed card with the time it was dismissed
func (db *DB) Dismissed() (map[card.ID]time.Time, error) {
	rows, err := db.conn.Query(`SELECT card_id, dismissed_at FROM dismissals`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dismissals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dismissed := make(map[card.ID]time.Time)
	for rows.Next() {
		var (
			id int64
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan dismissal: %w", err)
		}
		dismissed[card.ID(id)] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dismissals: %w", err)
	}

	return dismissed, nil
}

// RecordRefresh stores one monitoring pass and sets its ID
func (db *DB) RecordRefresh(r *Refresh) error {
	result, err := db.conn.Exec(
		`INSERT INTO refreshes (session_id, trigger_name, started_at, duration_ms, shown)
		 VALUES (?, ?, ?, ?, ?)`,
		r.SessionID, r.Trigger, r.StartedAt.UTC(), float64(r.Duration)/float64(time.Millisecond), r.Shown,
	)
	if err != nil {
		return fmt.Errorf("failed to record refresh: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	r.ID = id
	return nil
}

// ListRefreshes retrieves refreshes newest first
func (db *DB) ListRefreshes(filter RefreshFilter) ([]*Refresh, error) {
	query := `SELECT id, session_id, trigger_name, started_at, duration_ms, shown
	          FROM refreshes WHERE 1=1`
	args := []interface{}{}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}

	if filter.Trigger != "" {
		query += " AND trigger_name = ?"
		args = append(args, filter.Trigger)
	}

	if filter.Since != nil {
		query += " AND started_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY started_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list refreshes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refreshes []*Refresh
	for rows.Next() {
		r := &Refresh{}
		var durationMS float64
		err := rows.Scan(&r.ID, &r.SessionID, &r.Trigger, &r.StartedAt, &durationMS, &r.Shown)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh: %w", err)
		}
		r.Duration = time.Duration(durationMS * float64(time.Millisecond))
		refreshes = append(refreshes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list refreshes: %w", err)
	}

	return refreshes, nil
}

// PruneRefreshes deletes refreshes that started before cutoff
func (db *DB) PruneRefreshes(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM refreshes WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune refreshes: %w", err)
	}
	return result.RowsAffected()
}
