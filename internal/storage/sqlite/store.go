// Package sqlite implements the chat credential and score store on an
// embedded SQLite database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/tcpchat/internal/storage"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store persists users and match results in a single SQLite file.
type Store struct {
	db *sql.DB
	storage.AliasCounter
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	// PRAGMAs are per connection; one connection keeps them in force and
	// serializes writers.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT    NOT NULL UNIQUE COLLATE NOCASE CHECK(length(username) > 0 AND length(username) <= 64),
		password_hash TEXT    NOT NULL,
		wins          INTEGER NOT NULL DEFAULT 0,
		losses        INTEGER NOT NULL DEFAULT 0,
		draws         INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS game_results (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		username  TEXT    NOT NULL COLLATE NOCASE,
		opponent  TEXT    NOT NULL COLLATE NOCASE,
		outcome   TEXT    NOT NULL CHECK(outcome IN ('win', 'loss', 'draw')),
		played_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_game_results_username ON game_results(username);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// UsernameExists reports whether name is registered.
func (s *Store) UsernameExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE username = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return n > 0, nil
}

// Register inserts a new user. Returns false with a nil error if the name is taken.
func (s *Store) Register(ctx context.Context, name, password string) (bool, error) {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hashing password: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (username, password_hash) VALUES (?, ?)`, name, hash)
	if err != nil {
		return false, fmt.Errorf("inserting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting user: %w", err)
	}
	return n == 1, nil
}

// Authenticate reports whether password matches; unknown names do not match.
func (s *Store) Authenticate(ctx context.Context, name, password string) (bool, error) {
	u, err := s.GetUser(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return storage.CheckPassword(password, u.PasswordHash), nil
}

// RenameUser moves oldName's account and history to newName. Returns false
// with a nil error if oldName is unknown or newName is taken.
func (s *Store) RenameUser(ctx context.Context, oldName, newName string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning rename: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE users SET username = ? WHERE username = ?`, newName, oldName)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("renaming user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE game_results SET username = ? WHERE username = ?`, newName, oldName); err != nil {
		return false, fmt.Errorf("renaming result owner: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE game_results SET opponent = ? WHERE opponent = ?`, newName, oldName); err != nil {
		return false, fmt.Errorf("renaming result opponent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing rename: %w", err)
	}
	return true, nil
}

// RecordResult adds the deltas to name's counters and appends a history row.
func (s *Store) RecordResult(ctx context.Context, name string, wins, losses, draws int, opponent string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning result: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET wins = wins + ?, losses = losses + ?, draws = draws + ? WHERE username = ?`,
		wins, losses, draws, name)
	if err != nil {
		return fmt.Errorf("updating counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrUserNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_results (username, opponent, outcome) VALUES (?, ?, ?)`,
		name, opponent, string(storage.OutcomeOf(wins, losses))); err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing result: %w", err)
	}
	return nil
}

// GetUser retrieves a user by case-insensitive name.
func (s *Store) GetUser(ctx context.Context, name string) (storage.User, error) {
	var u storage.User
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, wins, losses, draws, created_at FROM users WHERE username = ?`,
		name,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Wins, &u.Losses, &u.Draws, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.User{}, storage.ErrUserNotFound
		}
		return storage.User{}, fmt.Errorf("querying user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(dbTimeLayout, created)
	return u, nil
}

// History returns name's recorded games, newest first.
func (s *Store) History(ctx context.Context, name string, limit int) ([]storage.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, opponent, outcome, played_at FROM game_results
		 WHERE username = ? ORDER BY id DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []storage.Result
	for rows.Next() {
		var r storage.Result
		var outcome, played string
		if err := rows.Scan(&r.Username, &r.Opponent, &outcome, &played); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		r.Outcome = storage.Outcome(outcome)
		r.PlayedAt, _ = time.Parse(dbTimeLayout, played)
		out = append(out, r)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
