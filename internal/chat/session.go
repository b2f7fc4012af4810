package chat

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tcpchat/internal/game/board"
)

// Session is the server-side state of one connection. Every field below
// the transport block is guarded by the engine lock.
type Session struct {
	id     uuid.UUID
	conn   Conn
	remote net.Addr

	out       chan string
	writeDone chan struct{}
	closeOnce sync.Once

	alias         string
	username      string
	tempUsername  string
	state         State
	loginAttempts int
	moderator     bool

	// private is the partner's ID, uuid.Nil when in global scope.
	private uuid.UUID
	// seat is Blank unless the session holds a game seat.
	seat   board.Tile
	myTurn bool

	// epoch increments on every reset and on detach, so a handler that
	// released the lock for store I/O can tell its session changed under it.
	epoch    uint64
	detached bool
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	ID            uuid.UUID
	RemoteAddr    string
	Alias         string
	Username      string
	TempUsername  string
	State         State
	LoginAttempts int
	Moderator     bool
	PrivateTarget uuid.UUID
	Seat          board.Tile
	MyTurn        bool
}

func newSession(conn Conn, outboxSize int) *Session {
	return &Session{
		id:        uuid.New(),
		conn:      conn,
		remote:    conn.RemoteAddr(),
		out:       make(chan string, outboxSize),
		writeDone: make(chan struct{}),
		state:     Lobby,
	}
}

// ID returns the session's stable identifier.
func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) info() SessionInfo {
	addr := ""
	if s.remote != nil {
		addr = s.remote.String()
	}
	return SessionInfo{
		ID:            s.id,
		RemoteAddr:    addr,
		Alias:         s.alias,
		Username:      s.username,
		TempUsername:  s.tempUsername,
		State:         s.state,
		LoginAttempts: s.loginAttempts,
		Moderator:     s.moderator,
		PrivateTarget: s.private,
		Seat:          s.seat,
		MyTurn:        s.myTurn,
	}
}

// displayName is the username once authenticated, the alias before.
func (s *Session) displayName() string {
	if s.username != "" {
		return s.username
	}
	return s.alias
}

// enqueue queues line for the writer goroutine. It never blocks; a full
// outbox drops the line. Must be called with the engine lock held.
func (s *Session) enqueue(line string) bool {
	if s.detached {
		return false
	}
	select {
	case s.out <- line:
		return true
	default:
		return false
	}
}

// writeLoop drains the outbox until it is closed. A write failure closes
// the transport, which ends the read loop and detaches the session.
func (s *Session) writeLoop(logger *zap.Logger) {
	defer close(s.writeDone)
	failed := false
	for line := range s.out {
		if failed {
			continue
		}
		if err := s.conn.WriteLine(line); err != nil {
			logger.Debug("write failed", zap.String("session", s.id.String()), zap.Error(err))
			failed = true
			s.closeConn()
		}
	}
}

// closeConn closes the transport once.
func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}
