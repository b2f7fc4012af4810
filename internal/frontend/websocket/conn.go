// Package websocket serves the chat line protocol to browsers. Each text
// frame carries exactly one logical line in either direction.
package websocket

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn adapts a websocket connection to the line-oriented chat transport.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps ws. Frames larger than maxLine bytes fail the read.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration, maxLine int) *Conn {
	if maxLine > 0 {
		ws.SetReadLimit(int64(maxLine))
	}
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// ReadLine returns the next text frame without a trailing line terminator.
// Binary frames are skipped.
func (c *Conn) ReadLine() (string, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

// WriteLine sends line as one text frame.
func (c *Conn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

// Close sends a close frame and closes the connection. Repeated calls
// return the result of the first.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		// WriteControl may run alongside WriteLine; it does not wait on c.mu.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}
