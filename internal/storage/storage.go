// Package storage holds what the credential and score backends share:
// sentinel errors, the user record, password hashing, and guest aliases.
package storage

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound is returned when a lookup by username yields no row.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when a username is already registered.
var ErrUserExists = errors.New("user already exists")

// Outcome labels one row of match history.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// OutcomeOf maps a counter delta to the history label. Wins take precedence
// over losses, and anything else is a draw.
func OutcomeOf(wins, losses int) Outcome {
	switch {
	case wins > 0:
		return OutcomeWin
	case losses > 0:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

// User is a registered account with its game counters.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Wins         int
	Losses       int
	Draws        int
	CreatedAt    time.Time
}

// Result is one recorded game from a user's point of view.
type Result struct {
	Username string
	Opponent string
	Outcome  Outcome
	PlayedAt time.Time
}

// AliasCounter hands out guest aliases "user1", "user2", ... Safe for
// concurrent use; two calls never return the same alias.
type AliasCounter struct {
	n atomic.Int64
}

// NextGuestAlias returns the next alias in sequence.
func (c *AliasCounter) NextGuestAlias() string {
	return fmt.Sprintf("user%d", c.n.Add(1))
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty and at most 72 bytes.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
