// Package handlers connects the network transports to the chat engine.
package handlers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tcpchat/internal/chat"
	"github.com/cory-johannsen/tcpchat/internal/frontend/telnet"
	"github.com/cory-johannsen/tcpchat/internal/frontend/websocket"
)

// Engine runs the chat protocol over one connection.
type Engine interface {
	Serve(ctx context.Context, conn chat.Conn) error
}

// SessionHandler implements telnet.SessionHandler and
// websocket.SessionHandler by handing every connection to the engine.
type SessionHandler struct {
	engine Engine
	logger *zap.Logger
}

// NewSessionHandler creates a handler serving connections with engine.
//
// Precondition: engine and logger must be non-nil.
func NewSessionHandler(engine Engine, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{engine: engine, logger: logger}
}

// HandleSession serves a TCP connection.
func (h *SessionHandler) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	return h.serve(ctx, conn, "tcp")
}

// HandleWebSocket serves a websocket connection.
func (h *SessionHandler) HandleWebSocket(ctx context.Context, conn *websocket.Conn) error {
	return h.serve(ctx, conn, "websocket")
}

func (h *SessionHandler) serve(ctx context.Context, conn chat.Conn, transport string) error {
	start := time.Now()
	addr := ""
	if a := conn.RemoteAddr(); a != nil {
		addr = a.String()
	}

	err := h.engine.Serve(ctx, conn)
	switch {
	case errors.Is(err, telnet.ErrLineTooLong):
		h.logger.Warn("dropping connection: line too long",
			zap.String("transport", transport),
			zap.String("remote_addr", addr),
		)
	case err != nil:
		h.logger.Debug("connection read failed",
			zap.String("transport", transport),
			zap.String("remote_addr", addr),
			zap.Error(err),
		)
	}
	h.logger.Info("connection closed",
		zap.String("transport", transport),
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(start)),
	)
	return err
}
