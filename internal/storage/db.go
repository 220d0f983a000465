package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned when a session does not exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// An in-memory database lives only as long as its connection.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_values (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (session_id, key)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateSession inserts a new, empty session.
func (db *DB) CreateSession(id string, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (id, created_at, expires_at) VALUES (?, ?, ?)",
		id, time.Now().Unix(), expiresAt.Unix(),
	)
	return err
}

// EnsureSession creates the session if it is missing or expired and leaves a live one untouched.
func (db *DB) EnsureSession(id string, expiresAt time.Time) error {
	if _, err := db.SessionExpiry(id); err == nil {
		return nil
	} else if !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	// An expired row may still be present; replace it.
	if err := db.DeleteSession(id); err != nil {
		return err
	}
	return db.CreateSession(id, expiresAt)
}

// SessionExpiry returns the expiry of a live session.
func (db *DB) SessionExpiry(id string) (time.Time, error) {
	var expiresAt int64
	err := db.conn.QueryRow(
		"SELECT expires_at FROM sessions WHERE id = ? AND expires_at > ?",
		id, time.Now().Unix(),
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrSessionNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(expiresAt, 0), nil
}

// RenewSession moves the expiry of a session forward.
func (db *DB) RenewSession(id string, newExpiresAt time.Time) error {
	_, err := db.conn.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", newExpiresAt.Unix(), id)
	return err
}

// DeleteSession removes a session and all of its values.
func (db *DB) DeleteSession(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM session_values WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// CleanExpiredSessions removes all expired sessions and returns how many were removed.
func (db *DB) CleanExpiredSessions() (int64, error) {
	now := time.Now().Unix()
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM session_values
		WHERE session_id IN (SELECT id FROM sessions WHERE expires_at <= ?)
	`, now); err != nil {
		return 0, err
	}
	res, err := tx.Exec("DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// SessionValues returns every stored key/value pair of a session.
func (db *DB) SessionValues(id string) (map[string]string, error) {
	rows, err := db.conn.Query("SELECT key, value FROM session_values WHERE session_id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}

// SetSessionValues upserts the given pairs in a single transaction.
func (db *DB) SetSessionValues(id string, values map[string]string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for k, v := range values {
		if _, err := tx.Exec(`
			INSERT INTO session_values (session_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value
		`, id, k, v); err != nil {
			return fmt.Errorf("setting %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// ClearSessionValues deletes every value of a session but keeps the session itself.
func (db *DB) ClearSessionValues(id string) error {
	_, err := db.conn.Exec("DELETE FROM session_values WHERE session_id = ?", id)
	return err
}

// SessionCount returns the number of stored sessions.
func (db *DB) SessionCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}
