package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/tcpchat/internal/storage"
)

// Store persists users and match results. Username comparisons are
// case-insensitive; the stored spelling is the one given at registration.
type Store struct {
	db *pgxpool.Pool
	storage.AliasCounter
}

// NewStore creates a Store backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with migrations applied.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// UsernameExists reports whether name is registered.
func (s *Store) UsernameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(username) = lower($1))`,
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return exists, nil
}

// Register inserts a new user with a bcrypt-hashed password.
//
// Postcondition: Returns false with a nil error if the name is taken.
func (s *Store) Register(ctx context.Context, name, password string) (bool, error) {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hashing password: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)`,
		name, hash,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("inserting user: %w", err)
	}
	return true, nil
}

// Authenticate reports whether password matches the stored hash for name.
// An unknown name is reported as a mismatch.
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

// RenameUser moves oldName's account, counters, and history to newName.
//
// Postcondition: Returns false with a nil error if oldName is unknown or newName is taken.
func (s *Store) RenameUser(ctx context.Context, oldName, newName string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning rename: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE users SET username = $2 WHERE lower(username) = lower($1)`,
		oldName, newName,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("renaming user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE game_results SET username = $2 WHERE lower(username) = lower($1)`,
		oldName, newName,
	); err != nil {
		return false, fmt.Errorf("renaming result owner: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE game_results SET opponent = $2 WHERE lower(opponent) = lower($1)`,
		oldName, newName,
	); err != nil {
		return false, fmt.Errorf("renaming result opponent: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing rename: %w", err)
	}
	return true, nil
}

// RecordResult adds the deltas to name's counters and appends a history row.
//
// Postcondition: Returns storage.ErrUserNotFound if name is not registered.
func (s *Store) RecordResult(ctx context.Context, name string, wins, losses, draws int, opponent string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning result: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE users SET wins = wins + $2, losses = losses + $3, draws = draws + $4
		 WHERE lower(username) = lower($1)`,
		name, wins, losses, draws,
	)
	if err != nil {
		return fmt.Errorf("updating counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO game_results (username, opponent, outcome) VALUES ($1, $2, $3)`,
		name, opponent, string(storage.OutcomeOf(wins, losses)),
	); err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing result: %w", err)
	}
	return nil
}

// GetUser retrieves a user by case-insensitive name.
func (s *Store) GetUser(ctx context.Context, name string) (storage.User, error) {
	var u storage.User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, password_hash, wins, losses, draws, created_at
		 FROM users WHERE lower(username) = lower($1)`,
		name,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Wins, &u.Losses, &u.Draws, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.User{}, storage.ErrUserNotFound
		}
		return storage.User{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// History returns name's recorded games, newest first.
func (s *Store) History(ctx context.Context, name string, limit int) ([]storage.Result, error) {
	rows, err := s.db.Query(ctx,
		`SELECT username, opponent, outcome, played_at FROM game_results
		 WHERE lower(username) = lower($1)
		 ORDER BY played_at DESC, id DESC LIMIT $2`,
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []storage.Result
	for rows.Next() {
		var r storage.Result
		var outcome string
		if err := rows.Scan(&r.Username, &r.Opponent, &outcome, &r.PlayedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		r.Outcome = storage.Outcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
