package testutil

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// ChatClient is a line-oriented TCP client for integration tests.
type ChatClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewChatClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected ChatClient or fails the test.
func NewChatClient(t *testing.T, addr string) *ChatClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return &ChatClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}
}

// ReadLine returns the next line without its terminator.
func (c *ChatClient) ReadLine(timeout time.Duration) (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return line, err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadUntil reads lines until one contains substr and returns every line
// read, joined by "\n". Lines after the match stay buffered.
//
// Precondition: substr must be non-empty.
func (c *ChatClient) ReadUntil(substr string, timeout time.Duration) string {
	c.t.Helper()
	deadline := time.Now().Add(timeout)

	var lines []string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("reading until %q: timed out, got %q", substr, strings.Join(lines, "\n"))
		}
		line, err := c.ReadLine(remaining)
		if err != nil {
			c.t.Fatalf("reading until %q: got %q, error: %v", substr, strings.Join(lines, "\n"), err)
		}
		lines = append(lines, line)
		if strings.Contains(line, substr) {
			return strings.Join(lines, "\n")
		}
	}
}

// Send writes a line of text to the server, appending \r\n.
func (c *ChatClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// SendRaw writes b without adding a terminator.
func (c *ChatClient) SendRaw(b []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("sending raw bytes: %v", err)
	}
}

// Close closes the underlying connection.
func (c *ChatClient) Close() {
	_ = c.conn.Close()
}
