// Package chat implements the session protocol engine: the session
// registry, the per-connection state machine, command dispatch, message
// routing and the tic-tac-toe coordinator.
//
// All shared state is guarded by a single engine lock. Each connection is
// served by its own goroutine that reads one line at a time; outbound lines
// are queued to a per-session writer so a slow peer never stalls others.
package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tcpchat/internal/chat/command"
	"github.com/cory-johannsen/tcpchat/internal/content"
	"github.com/cory-johannsen/tcpchat/internal/game/board"
	"github.com/cory-johannsen/tcpchat/internal/observability"
)

// Default tuning values applied by NewEngine for zero Options fields.
const (
	DefaultMaxLoginAttempts = 3
	DefaultOutboxSize       = 64
	resultTimeout           = 5 * time.Second
)

// Options configures an Engine. Zero fields take defaults.
type Options struct {
	Audit            AuditSink
	Metrics          *observability.Metrics
	Messages         *content.Messages
	Policy           Policy
	Commands         *command.Registry
	Filter           MessageFilter
	MaxLoginAttempts int
	OutboxSize       int
	// Now is the clock used by !time.
	Now func() time.Time
}

// Engine owns every live session and serializes all protocol processing.
type Engine struct {
	mu       sync.Mutex
	registry *Registry
	table    table

	store       Store
	logger      *zap.Logger
	audit       AuditSink
	metrics     *observability.Metrics
	messages    content.Messages
	policy      Policy
	commands    *command.Registry
	filter      MessageFilter
	maxAttempts int
	outboxSize  int
	now         func() time.Time
}

// NewEngine creates an Engine backed by store.
//
// Precondition: store and logger must be non-nil.
func NewEngine(store Store, logger *zap.Logger, opts Options) *Engine {
	e := &Engine{
		registry:    NewRegistry(),
		store:       store,
		logger:      logger,
		audit:       opts.Audit,
		metrics:     opts.Metrics,
		policy:      opts.Policy,
		commands:    opts.Commands,
		filter:      opts.Filter,
		maxAttempts: opts.MaxLoginAttempts,
		outboxSize:  opts.OutboxSize,
		now:         opts.Now,
	}
	if e.audit == nil {
		e.audit = nopAudit{}
	}
	if e.metrics == nil {
		e.metrics = observability.NewMetrics()
	}
	if opts.Messages != nil {
		e.messages = *opts.Messages
	} else {
		e.messages = content.Default()
	}
	if e.policy == nil {
		e.policy = DefaultPolicy()
	}
	if e.commands == nil {
		e.commands = command.DefaultRegistry()
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = DefaultMaxLoginAttempts
	}
	if e.outboxSize <= 0 {
		e.outboxSize = DefaultOutboxSize
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Registry exposes the live session set.
func (e *Engine) Registry() *Registry { return e.registry }

// Serve runs the protocol for one connection until it closes or ctx is
// cancelled. It owns conn and closes it before returning.
func (e *Engine) Serve(ctx context.Context, conn Conn) error {
	s := e.attach(conn)
	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	var readErr error
	for {
		line, err := conn.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				readErr = err
			}
			break
		}
		e.handleLine(ctx, s, line)
	}

	e.detach(ctx, s)
	return readErr
}

// attach registers a new session for conn and greets it.
func (e *Engine) attach(conn Conn) *Session {
	s := newSession(conn, e.outboxSize)
	go s.writeLoop(e.logger)

	e.mu.Lock()
	defer e.mu.Unlock()
	s.alias = e.store.NextGuestAlias()
	e.registry.Add(s)
	e.metrics.ConnectionsTotal.Add(1)
	e.metrics.ConnectionsActive.Add(1)
	e.logger.Info("session connected",
		zap.String("session", s.id.String()),
		zap.String("remote_addr", addrString(s.remote)),
		zap.String("alias", s.alias),
	)
	e.audit.LogEvent("connect " + s.alias + " from " + addrString(s.remote))
	e.greet(s)
	return s
}

// detach tears down everything s participates in and releases it.
func (e *Engine) detach(ctx context.Context, s *Session) {
	var fx effects
	e.mu.Lock()
	e.endPrivate(s)
	e.vacateSeat(s, "disconnected", &fx)
	e.registry.Remove(s.id)
	if s.state.Authenticated() {
		e.sendToAll("["+s.username+"] has disconnected", s)
	}
	name := s.displayName()
	s.detached = true
	s.epoch++
	close(s.out)
	e.metrics.ConnectionsActive.Add(-1)
	e.mu.Unlock()

	<-s.writeDone
	s.closeConn()
	e.logger.Info("session disconnected",
		zap.String("session", s.id.String()),
		zap.String("name", name),
	)
	e.audit.LogEvent("disconnect " + name)
	e.flush(ctx, fx)
}

// handleLine processes one inbound line for s.
func (e *Engine) handleLine(ctx context.Context, s *Session, line string) {
	line = trimLine(line)
	if line == "" {
		return
	}
	var fx effects
	e.mu.Lock()
	if !s.detached {
		e.dispatch(ctx, s, line, &fx)
	}
	e.mu.Unlock()
	e.flush(ctx, fx)
}

// greet sends the lobby handshake: the alias marker and the welcome prompt.
//
// Precondition: e.mu is held.
func (e *Engine) greet(s *Session) {
	e.send(s, "__lobbyUsername__:"+s.alias)
	e.send(s, e.messages.LobbyPrompt)
}

// resetToLobby ends s's private chat, gives up its seat and drops its
// identity, returning it to the lobby under a fresh alias. The connection
// stays open.
//
// Precondition: e.mu is held.
func (e *Engine) resetToLobby(s *Session, reason string, fx *effects) {
	e.endPrivate(s)
	e.vacateSeat(s, "left the game", fx)
	s.username = ""
	s.tempUsername = ""
	s.loginAttempts = 0
	s.moderator = false
	s.private = uuid.Nil
	s.seat = board.Blank
	s.myTurn = false
	s.state = Lobby
	s.epoch++
	s.alias = e.store.NextGuestAlias()
	if reason != "" {
		e.send(s, reason)
	}
	e.greet(s)
}

// unlocked runs fn with the engine lock released and reports whether s is
// unchanged afterwards. A false return means s was reset or detached while
// fn ran and the caller must not act on fn's result.
//
// Precondition: e.mu is held. It is held again on return.
func (e *Engine) unlocked(s *Session, fn func()) bool {
	epoch := s.epoch
	e.mu.Unlock()
	fn()
	e.mu.Lock()
	return !s.detached && s.epoch == epoch
}

// pendingResult is a game outcome awaiting persistence.
type pendingResult struct {
	name                string
	wins, losses, draws int
	opponent            string
}

// effects collects store writes produced under the lock so they can run
// after it is released.
type effects struct {
	results []pendingResult
}

func (fx *effects) record(name string, wins, losses, draws int, opponent string) {
	fx.results = append(fx.results, pendingResult{name, wins, losses, draws, opponent})
}

// flush performs the collected store writes. Results are recorded even when
// the connection's context is already cancelled.
func (e *Engine) flush(ctx context.Context, fx effects) {
	if len(fx.results) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resultTimeout)
	defer cancel()
	for _, r := range fx.results {
		if err := e.store.RecordResult(ctx, r.name, r.wins, r.losses, r.draws, r.opponent); err != nil {
			e.logger.Error("recording game result",
				zap.String("username", r.name),
				zap.String("opponent", r.opponent),
				zap.Error(err),
			)
			e.audit.LogEvent("error recording result for " + r.name + ": " + err.Error())
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
