package chat

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServerPrefix tags server-originated broadcasts.
const ServerPrefix = "[Server]: "

// send delivers one line directly to s regardless of broadcast eligibility.
// A full or closed outbox drops the line and leaves the session connected.
//
// Precondition: e.mu is held.
func (e *Engine) send(s *Session, line string) {
	if s.enqueue(line) {
		return
	}
	if s.detached {
		return
	}
	e.metrics.OutboxDropped.Add(1)
	e.logger.Warn("outbox full, dropping line",
		zap.String("session", s.id.String()),
		zap.String("name", s.displayName()),
	)
}

// sendToAll broadcasts text to every Chatting session that is not in a
// private chat. A nil from marks a server message, which is prefixed and
// delivered to everyone eligible; otherwise from never receives its own line.
//
// Precondition: e.mu is held.
func (e *Engine) sendToAll(text string, from *Session) {
	line := text
	if from == nil {
		line = ServerPrefix + text
	}
	for _, s := range e.registry.Snapshot() {
		if s == from || s.state != Chatting || s.private != uuid.Nil {
			continue
		}
		e.send(s, line)
	}
}

// partner resolves s's private chat partner. A partner that is gone or does
// not point back at s breaks the pairing: both sides are cleared and the
// live side told the chat ended.
//
// Precondition: e.mu is held.
func (e *Engine) partner(s *Session) (*Session, bool) {
	if s.private == uuid.Nil {
		return nil, false
	}
	p, ok := e.registry.Get(s.private)
	if ok && p.private == s.id {
		return p, true
	}
	e.logger.Warn("broken private pairing",
		zap.String("session", s.id.String()),
		zap.String("partner", s.private.String()),
	)
	s.private = uuid.Nil
	e.send(s, "[Private chat ended]")
	return nil, false
}

// sendPrivate echoes text to the sender and delivers it to the partner.
// Nothing is delivered when the pairing turns out to be broken.
//
// Precondition: e.mu is held.
func (e *Engine) sendPrivate(s *Session, text string) {
	p, ok := e.partner(s)
	if !ok {
		return
	}
	e.metrics.PrivateLines.Add(1)
	e.send(s, fmt.Sprintf("[Private to %s]: %s", p.displayName(), text))
	e.send(p, fmt.Sprintf("[Private from %s]: %s", s.displayName(), text))
}

// pair links a and b symmetrically.
//
// Precondition: e.mu is held; neither is paired.
func (e *Engine) pair(a, b *Session) {
	a.private = b.id
	b.private = a.id
}

// endPrivate clears s's pairing on both sides and notifies the partner.
// It returns the former partner, or nil when s was not paired.
//
// Precondition: e.mu is held.
func (e *Engine) endPrivate(s *Session) *Session {
	if s.private == uuid.Nil {
		return nil
	}
	p, ok := e.partner(s)
	if !ok {
		return nil
	}
	s.private = uuid.Nil
	p.private = uuid.Nil
	e.send(p, fmt.Sprintf("[%s] has left the private chat. You are now in global chat.", s.displayName()))
	return p
}
