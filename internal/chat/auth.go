package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tcpchat/internal/content"
)

// GuestPrefix starts every system-assigned alias and may not start a username.
const GuestPrefix = "user"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// MaxPasswordLength is the longest password in bytes bcrypt can hash.
const MaxPasswordLength = 72

// ValidPassword reports whether pw has at least six characters, at most
// MaxPasswordLength bytes, a digit and a character that is neither a letter
// nor a digit.
func ValidPassword(pw string) bool {
	if len(pw) < 6 || len(pw) > MaxPasswordLength {
		return false
	}
	var digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			special = true
		}
	}
	return digit && special
}

// checkName returns the notice explaining why s may not take name, or ""
// when the name is acceptable. The store is not consulted.
//
// Precondition: e.mu is held.
func (e *Engine) checkName(s *Session, name string) string {
	switch {
	case name == "":
		return "[Username can't be empty]"
	case !usernamePattern.MatchString(name):
		return "[Invalid username, no special characters allowed]"
	case strings.HasPrefix(strings.ToLower(name), GuestPrefix):
		return "[Username cannot start with 'user', prefix reserved for the system.]"
	case s.username != "" && strings.EqualFold(s.username, name):
		return "[You are already using this username]"
	case e.registry.NameInUse(name, s):
		return "[Username already in use by another connected user]"
	}
	return ""
}

// chooseUsername handles !username in the lobby: it reserves the name and
// moves to Login or Register depending on whether the store knows it.
//
// Precondition: e.mu is held.
func (e *Engine) chooseUsername(ctx context.Context, s *Session, name string, fx *effects) {
	if name == "" {
		e.send(s, "[Please specify a username after !username]")
		return
	}
	if s.state != Lobby {
		e.send(s, "[You are already signed in. To change username, use !user]")
		return
	}
	if msg := e.checkName(s, name); msg != "" {
		e.send(s, msg)
		return
	}

	var exists bool
	var err error
	if !e.unlocked(s, func() { exists, err = e.store.UsernameExists(ctx, name) }) {
		return
	}
	if err != nil {
		e.systemError(s, "[System error during username check]", "checking username", err, fx)
		return
	}
	// Another session may have claimed the name while the store was queried.
	if msg := e.checkName(s, name); msg != "" {
		e.send(s, msg)
		return
	}

	s.tempUsername = name
	s.loginAttempts = 0
	e.send(s, "__clearChat__")
	if exists {
		s.state = Login
		e.send(s, content.Fill(e.messages.LoginPrompt, name))
	} else {
		s.state = Register
		e.send(s, content.Fill(e.messages.RegisterPrompt, name))
	}
	e.logger.Debug("username chosen",
		zap.String("alias", s.alias),
		zap.String("username", name),
		zap.String("state", s.state.String()),
	)
}

// password handles raw input while Login or Register awaits a password.
//
// Precondition: e.mu is held.
func (e *Engine) password(ctx context.Context, s *Session, text string, fx *effects) {
	if strings.EqualFold(text, "cancel") {
		e.cancel(s, fx)
		return
	}
	switch s.state {
	case Login:
		e.login(ctx, s, text, fx)
	case Register:
		e.register(ctx, s, text, fx)
	}
}

// cancel abandons a pending login or registration.
//
// Precondition: e.mu is held.
func (e *Engine) cancel(s *Session, fx *effects) {
	if !s.state.awaitingPassword() {
		e.send(s, "[Nothing to cancel]")
		return
	}
	e.resetToLobby(s, "Login/Register cancelled. You are back at the welcome page.", fx)
}

func (e *Engine) login(ctx context.Context, s *Session, pw string, fx *effects) {
	name := s.tempUsername
	var ok bool
	var err error
	if !e.unlocked(s, func() { ok, err = e.store.Authenticate(ctx, name, pw) }) {
		return
	}
	if err != nil {
		e.systemError(s, "", "authenticating", err, fx)
		return
	}
	if !ok {
		s.loginAttempts++
		e.metrics.AuthFailures.Add(1)
		e.audit.LogEvent(fmt.Sprintf("failed login for %s from %s (attempt %d)", name, addrString(s.remote), s.loginAttempts))
		if s.loginAttempts >= e.maxAttempts {
			e.resetToLobby(s, "[Too many failed attempts. Returning to welcome page.]", fx)
			return
		}
		e.send(s, fmt.Sprintf("[Incorrect password. Attempt %d/%d] Try again or type 'Cancel':", s.loginAttempts, e.maxAttempts))
		return
	}
	e.signIn(s, name, "Login successful! Welcome back.", fx)
}

func (e *Engine) register(ctx context.Context, s *Session, pw string, fx *effects) {
	if !ValidPassword(pw) {
		e.send(s, e.messages.PasswordRules)
		e.send(s, "Please enter a valid password or type 'Cancel' to go back:")
		return
	}
	name := s.tempUsername
	var ok bool
	var err error
	if !e.unlocked(s, func() { ok, err = e.store.Register(ctx, name, pw) }) {
		return
	}
	if err != nil {
		e.systemError(s, "", "registering", err, fx)
		return
	}
	if !ok {
		e.send(s, "[Something went wrong. Username might already exist. Type 'Cancel' or try again.]")
		return
	}
	e.metrics.Registrations.Add(1)
	e.signIn(s, name, "Registration successful! Welcome to the Chat", fx)
}

// signIn makes name the authenticated identity of s.
//
// Precondition: e.mu is held.
func (e *Engine) signIn(s *Session, name, welcome string, fx *effects) {
	if other, taken := e.registry.ByUsername(name); taken && other != s {
		e.resetToLobby(s, "[Username already in use by another connected user]", fx)
		return
	}
	s.username = name
	s.tempUsername = ""
	s.loginAttempts = 0
	s.state = Chatting
	e.metrics.AuthSuccesses.Add(1)

	e.send(s, "__clearChat__")
	e.send(s, welcome)
	e.sendToAll("["+name+"] has joined the chat!", nil)

	e.logger.Info("user signed in",
		zap.String("session", s.id.String()),
		zap.String("alias", s.alias),
		zap.String("username", name),
	)
	e.audit.LogEvent(fmt.Sprintf("%s signed in as %s", s.alias, name))
}

// rename handles !user for an authenticated session.
//
// Precondition: e.mu is held.
func (e *Engine) rename(ctx context.Context, s *Session, name string, fx *effects) {
	if name == "" {
		e.send(s, "[Please specify a username after !user]")
		return
	}
	if s.state != Chatting {
		e.send(s, "[Please login to use this command]")
		return
	}
	if msg := e.checkName(s, name); msg != "" {
		e.send(s, msg)
		return
	}

	old := s.username
	var exists, renamed bool
	var err error
	stable := e.unlocked(s, func() {
		exists, err = e.store.UsernameExists(ctx, name)
		if err != nil || exists {
			return
		}
		renamed, err = e.store.RenameUser(ctx, old, name)
	})
	if !stable {
		return
	}
	if err != nil {
		e.systemError(s, "", "renaming user", err, fx)
		return
	}
	if exists || !renamed {
		e.send(s, "[Username is already registered by another user]")
		return
	}

	s.username = name
	e.send(s, "Your username has changed!")
	e.sendToAll(fmt.Sprintf("[%s] has changed their username to [%s]", old, name), s)
	e.logger.Info("user renamed", zap.String("old", old), zap.String("new", name))
	e.audit.LogEvent(fmt.Sprintf("%s renamed to %s", old, name))
}

// systemError reports a store failure to s and resets it to the lobby.
//
// Precondition: e.mu is held.
func (e *Engine) systemError(s *Session, notice, op string, err error, fx *effects) {
	if notice == "" {
		notice = "[A system error occurred. Please try again later.]"
	}
	e.logger.Error("store failure",
		zap.String("op", op),
		zap.String("session", s.id.String()),
		zap.Error(err),
	)
	e.audit.LogEvent(fmt.Sprintf("error %s for %s: %v", op, s.displayName(), err))
	e.resetToLobby(s, notice, fx)
}
