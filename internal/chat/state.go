package chat

import "github.com/cory-johannsen/tcpchat/internal/chat/command"

// State is a session's protocol state.
type State int

const (
	// Lobby is the initial state: connected under a guest alias.
	Lobby State = iota
	// Login awaits the password of an existing account.
	Login
	// Register awaits a password for a new account.
	Register
	// Chatting is fully authenticated.
	Chatting
	// Playing holds a tic-tac-toe seat.
	Playing
)

func (s State) String() string {
	switch s {
	case Lobby:
		return "Lobby"
	case Login:
		return "Login"
	case Register:
		return "Register"
	case Chatting:
		return "Chatting"
	case Playing:
		return "Playing"
	default:
		return "Unknown"
	}
}

// Authenticated reports whether the session holds a username.
func (s State) Authenticated() bool {
	return s == Chatting || s == Playing
}

// awaitingPassword reports whether non-command input is a password.
func (s State) awaitingPassword() bool {
	return s == Login || s == Register
}

// Allowed is the set of commands permitted in one state. The zero value
// permits nothing; Unrestricted permits everything.
type Allowed struct {
	unrestricted bool
	names        map[string]bool
}

// Unrestricted permits every command.
var Unrestricted = Allowed{unrestricted: true}

// Only permits exactly the named commands.
func Only(names ...string) Allowed {
	a := Allowed{names: make(map[string]bool, len(names))}
	for _, n := range names {
		a.names[n] = true
	}
	return a
}

// Permits reports whether the canonical command name is allowed.
func (a Allowed) Permits(name string) bool {
	return a.unrestricted || a.names[name]
}

// Policy maps each state to its permitted commands. States missing from
// the map permit nothing.
type Policy map[State]Allowed

// DefaultPolicy returns the standard per-state whitelist.
func DefaultPolicy() Policy {
	return Policy{
		Lobby:    Only(command.HandlerAbout, command.HandlerCommands, command.HandlerTime, command.HandlerUsername),
		Login:    Only(command.HandlerCancel),
		Register: Only(command.HandlerCancel),
		Chatting: Unrestricted,
		Playing: Only(command.HandlerAbout, command.HandlerCommands, command.HandlerTime, command.HandlerWho,
			command.HandlerLeave, command.HandlerExit),
	}
}

// Permits reports whether name may run in state.
func (p Policy) Permits(state State, name string) bool {
	a, ok := p[state]
	if !ok {
		return false
	}
	return a.Permits(name)
}
