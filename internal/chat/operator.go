package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no connected session holds a username.
	ErrNotFound = errors.New("user not found")
	// ErrSelfKick is returned when a moderator targets themselves.
	ErrSelfKick = errors.New("cannot kick yourself")
	// ErrEmptyMessage is returned for a blank announcement.
	ErrEmptyMessage = errors.New("message is empty")
)

// operatorName signs kicks issued through the operator channel.
const operatorName = "SERVER"

// kick resets the session holding name to the lobby. A nil by means the
// operator channel issued it.
//
// Precondition: e.mu is held.
func (e *Engine) kick(by *Session, name string, fx *effects) error {
	t, ok := e.registry.ByUsername(name)
	if !ok {
		return ErrNotFound
	}
	if t == by {
		return ErrSelfKick
	}
	kicker := operatorName
	if by != nil {
		kicker = by.username
	}
	target := t.username

	e.send(t, "You have been kicked out!")
	e.resetToLobby(t, "", fx)

	notice := fmt.Sprintf("[%s] has been removed by moderator [%s]", target, kicker)
	e.sendToAll(notice, nil)
	if by != nil && (by.state != Chatting || by.private != uuid.Nil) {
		e.send(by, ServerPrefix+notice)
	}

	e.metrics.Kicks.Add(1)
	e.logger.Info("user kicked", zap.String("target", target), zap.String("by", kicker))
	e.audit.LogEvent(fmt.Sprintf("%s kicked by %s", target, kicker))
	return nil
}

// Kick resets the named user to the lobby on behalf of the operator.
func (e *Engine) Kick(ctx context.Context, name string) error {
	var fx effects
	e.mu.Lock()
	err := e.kick(nil, name, &fx)
	e.mu.Unlock()
	e.flush(ctx, fx)
	return err
}

// ToggleModerator flips the moderator flag of the named user and returns
// the new value.
func (e *Engine) ToggleModerator(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.registry.ByUsername(name)
	if !ok {
		return false, ErrNotFound
	}
	t.moderator = !t.moderator
	if t.moderator {
		e.send(t, "[Server Notice]: You have been promoted to moderator!")
	} else {
		e.send(t, "[Server Notice]: You have been demoted from moderator.")
	}
	e.logger.Info("moderator toggled", zap.String("username", t.username), zap.Bool("moderator", t.moderator))
	e.audit.LogEvent(fmt.Sprintf("moderator %s: %t", t.username, t.moderator))
	return t.moderator, nil
}

// Moderators lists the usernames currently holding moderator rights.
func (e *Engine) Moderators() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for _, s := range e.registry.Snapshot() {
		if s.moderator {
			names = append(names, s.username)
		}
	}
	sort.Strings(names)
	return names
}

// Announce broadcasts text as a server message.
func (e *Engine) Announce(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendToAll(text, nil)
	e.audit.LogEvent("announcement: " + text)
	return nil
}

// Online returns a consistent snapshot of every connected session.
func (e *Engine) Online() []SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Infos()
}

// Lookup returns the snapshot of the session holding username.
func (e *Engine) Lookup(username string) (SessionInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.registry.ByUsername(username)
	if !ok {
		return SessionInfo{}, false
	}
	return s.info(), true
}
