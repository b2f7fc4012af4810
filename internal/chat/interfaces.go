package chat

import (
	"context"
	"net"
)

// Conn is one client transport. ReadLine returns one logical line without
// its terminator; WriteLine sends one logical message. Close must be
// idempotent and unblock a pending ReadLine.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() net.Addr
}

// Store is the credential and score backend. Register and RenameUser
// report refusal (name taken, unknown user) as false with a nil error;
// a non-nil error means the backend failed.
type Store interface {
	UsernameExists(ctx context.Context, name string) (bool, error)
	Register(ctx context.Context, name, password string) (bool, error)
	Authenticate(ctx context.Context, name, password string) (bool, error)
	RenameUser(ctx context.Context, oldName, newName string) (bool, error)
	RecordResult(ctx context.Context, name string, wins, losses, draws int, opponent string) error
	// NextGuestAlias is monotonic, process-wide, and safe for concurrent use.
	NextGuestAlias() string
}

// AuditSink receives operator-visible event lines. LogEvent must not block.
type AuditSink interface {
	LogEvent(line string)
}

// MessageFilter inspects a chat line before it is routed. It returns the
// text to deliver and false when the line must be dropped.
type MessageFilter interface {
	Filter(sender, text string) (string, bool)
}

type nopAudit struct{}

func (nopAudit) LogEvent(string) {}
