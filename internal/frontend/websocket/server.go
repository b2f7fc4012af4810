package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tcpchat/internal/config"
)

// SessionHandler serves one upgraded connection until it closes.
type SessionHandler interface {
	HandleWebSocket(ctx context.Context, conn *Conn) error
}

// Server upgrades HTTP requests on the configured path and hands each
// connection to a SessionHandler.
type Server struct {
	cfg          config.WebSocketConfig
	writeTimeout time.Duration
	maxLine      int
	handler      SessionHandler
	logger       *zap.Logger

	upgrader websocket.Upgrader
	router   *httprouter.Router
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds the server without binding. Origins are not checked;
// the protocol carries no ambient credentials.
func NewServer(cfg config.WebSocketConfig, listener config.ListenerConfig, handler SessionHandler, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:          cfg,
		writeTimeout: listener.WriteTimeout,
		maxLine:      listener.MaxLineLength,
		handler:      handler,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		router: httprouter.New(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.router.GET(cfg.Path, s.handleUpgrade)
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds and serves until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.logger.Info("websocket listener started",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Stop stops accepting upgrades, cancels every live session and waits for
// them to end.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("websocket shutdown", zap.Error(err))
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("websocket listener stopped")
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	conn := NewConn(ws, s.writeTimeout, s.maxLine)
	defer conn.Close()

	start := time.Now()
	if err := s.handler.HandleWebSocket(s.ctx, conn); err != nil &&
		websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		s.logger.Debug("websocket session ended",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
