package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tcpchat/internal/chat/command"
)

// TimeFormat renders !time replies.
const TimeFormat = "03:04:05 PM"

func trimLine(line string) string {
	return strings.TrimSpace(line)
}

// dispatch routes one line: commands to their handlers, passwords to the
// authentication flow, moves to the game and everything else to chat.
//
// Precondition: e.mu is held.
func (e *Engine) dispatch(ctx context.Context, s *Session, line string, fx *effects) {
	switch {
	case command.IsCommand(line):
		e.runCommand(ctx, s, line, fx)
	case s.state.awaitingPassword():
		e.password(ctx, s, line, fx)
	case strings.HasPrefix(line, MovePrefix):
		e.move(s, line, fx)
	case s.state == Lobby:
		e.send(s, "You can't chat yet. Please complete the Login/Registration process first.")
	default:
		e.chat(s, line)
	}
}

func (e *Engine) runCommand(ctx context.Context, s *Session, line string, fx *effects) {
	p := command.Parse(line)
	cmd, known := e.commands.Resolve(p.Command)
	name := p.Command
	if known {
		name = cmd.Name
	}

	if !e.policy.Permits(s.state, name) {
		e.metrics.CommandsDenied.Add(1)
		e.logger.Debug("command denied",
			zap.String("name", s.displayName()),
			zap.String("state", s.state.String()),
			zap.String("command", name),
		)
		e.audit.LogEvent(fmt.Sprintf("denied !%s from %s in %s", name, s.displayName(), s.state))
		e.send(s, "[Command not allowed in your current state.]")
		return
	}
	if !known {
		e.metrics.UnknownCommands.Add(1)
		e.audit.LogEvent(fmt.Sprintf("unknown command !%s from %s", p.Command, s.displayName()))
		e.send(s, "Unknown command. Type !commands for a list of available commands.")
		return
	}
	if cmd.Operator {
		e.metrics.CommandsDenied.Add(1)
		e.audit.LogEvent(fmt.Sprintf("operator command !%s attempted by %s", cmd.Name, s.displayName()))
		e.send(s, "[This command is only available to server operators]")
		return
	}

	switch cmd.Handler {
	case command.HandlerAbout:
		e.send(s, e.messages.About)
	case command.HandlerCommands:
		e.send(s, e.commands.HelpText(false))
	case command.HandlerTime:
		e.send(s, "The current time is: "+e.now().Format(TimeFormat))
	case command.HandlerUsername:
		e.chooseUsername(ctx, s, p.Arg(), fx)
	case command.HandlerRename:
		e.rename(ctx, s, p.Arg(), fx)
	case command.HandlerCancel:
		e.cancel(s, fx)
	case command.HandlerWho:
		e.who(s)
	case command.HandlerWhisper:
		e.whisper(s, p.Arg())
	case command.HandlerGlobal:
		e.global(s)
	case command.HandlerExit:
		e.exit(s, fx)
	case command.HandlerJoin:
		e.join(s)
	case command.HandlerLeave:
		e.leave(s, fx)
	case command.HandlerKick:
		e.kickCommand(s, p.Arg(), fx)
	default:
		e.logger.Error("command has no handler", zap.String("command", cmd.Name))
		e.send(s, "Unknown command. Type !commands for a list of available commands.")
	}
}

// chat routes a line of text from an authenticated session.
//
// Precondition: e.mu is held.
func (e *Engine) chat(s *Session, text string) {
	if e.filter != nil {
		out, ok := e.filter.Filter(s.username, text)
		if !ok {
			e.send(s, "[Your message was blocked]")
			e.audit.LogEvent("blocked message from " + s.username)
			return
		}
		text = out
	}
	if s.private != uuid.Nil {
		e.sendPrivate(s, text)
		return
	}
	e.metrics.ChatLines.Add(1)
	e.sendToAll(fmt.Sprintf("[%s]: %s", s.username, text), s)
}

func (e *Engine) who(s *Session) {
	switch s.state {
	case Chatting:
	case Playing:
		e.send(s, "[!who is available again once your game ends]")
		return
	default:
		e.send(s, "[Please login to use this command]")
		return
	}

	var others []string
	for _, o := range e.registry.Snapshot() {
		if o != s && o.state == Chatting {
			others = append(others, o.username)
		}
	}
	if len(others) == 0 {
		e.send(s, "Online Users:\n\tJust you, for now! :)")
		return
	}
	sort.Slice(others, func(i, j int) bool { return strings.ToLower(others[i]) < strings.ToLower(others[j]) })

	var sb strings.Builder
	sb.WriteString("Online Users:")
	sb.WriteString("\n\t" + s.username + " (you)")
	for _, name := range others {
		sb.WriteString("\n\t" + name)
	}
	e.send(s, sb.String())
}

func (e *Engine) whisper(s *Session, name string) {
	if name == "" {
		e.send(s, "[Please specify a user]")
		return
	}
	if strings.EqualFold(name, s.username) {
		e.send(s, "[You can't whisper to yourself]")
		return
	}
	t, ok := e.registry.ByUsername(name)
	if !ok || !t.state.Authenticated() {
		e.send(s, "[User not found]")
		return
	}
	if t.private == s.id && s.private == t.id {
		e.send(s, fmt.Sprintf("[You are already in a private chat with %s]", t.username))
		return
	}
	if t.private != uuid.Nil {
		e.send(s, fmt.Sprintf("[%s is already in a private chat]", t.username))
		return
	}
	e.endPrivate(s)
	e.pair(s, t)
	e.send(s, fmt.Sprintf("Private chat with [%s] started! Type !global to return to main chat.", t.username))
	e.send(t, fmt.Sprintf("[%s] started a private chat with you! Type !global to return to main chat.", s.username))
	e.logger.Debug("private chat started", zap.String("from", s.username), zap.String("to", t.username))
}

func (e *Engine) global(s *Session) {
	if s.private == uuid.Nil {
		e.send(s, "Uh-oh, you are already in the global chat!")
		return
	}
	p := e.endPrivate(s)
	e.send(s, "You have exited the private chat. You are now in the global chat.")
	if p != nil {
		e.sendToAll(fmt.Sprintf("[%s] & [%s] have rejoined the global chat.", s.username, p.username), s)
	}
}

func (e *Engine) exit(s *Session, fx *effects) {
	name := s.username
	e.send(s, "You have been logged out.")
	e.resetToLobby(s, "", fx)
	e.sendToAll("["+name+"] has left the chat!", s)
	e.audit.LogEvent(name + " logged out")
}

func (e *Engine) kickCommand(s *Session, name string, fx *effects) {
	if !s.moderator {
		e.metrics.CommandsDenied.Add(1)
		e.logger.Warn("unauthorized kick attempt", zap.String("username", s.username), zap.String("target", name))
		e.audit.LogEvent(fmt.Sprintf("unauthorized kick attempt: [%s] tried to use !kick", s.username))
		e.send(s, "[You do not have permission to use this command]")
		return
	}
	if name == "" {
		e.send(s, "[Please specify a user]")
		return
	}
	switch err := e.kick(s, name, fx); {
	case errors.Is(err, ErrSelfKick):
		e.send(s, "[Nice try! You can't kick yourself.]")
	case errors.Is(err, ErrNotFound):
		e.send(s, fmt.Sprintf("[Kick Failed]: User '%s' not found.", name))
	}
}
