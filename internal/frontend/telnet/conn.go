// Package telnet provides the line-oriented TCP transport for the chat
// server. It tolerates telnet clients (IAC negotiation is filtered out) as
// well as raw line clients such as netcat.
package telnet

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// Telnet IAC (Interpret As Command) constants per RFC 854.
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Sub-negotiation Begin
	SE   byte = 240 // Sub-negotiation End
	NOP  byte = 241
	GA   byte = 249 // Go Ahead

	// Telnet options
	OptEcho            byte = 1
	OptSuppressGoAhead byte = 3
	OptLinemode        byte = 34
)

// DefaultMaxLineLength caps inbound lines when none is configured.
const DefaultMaxLineLength = 4096

// ErrLineTooLong is returned by ReadLine when a line exceeds the limit.
var ErrLineTooLong = errors.New("line too long")

// Conn frames a TCP stream into newline-delimited lines.
type Conn struct {
	raw     net.Conn
	reader  *bufio.Reader
	mu      sync.Mutex
	maxLine int
	// skipLF drops a '\n' arriving right after a bare '\r' that ended the
	// previous line.
	skipLF bool

	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps a raw TCP connection. A maxLine of zero or less selects
// DefaultMaxLineLength.
//
// Precondition: raw must be a valid, open network connection.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration, maxLine int) *Conn {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		maxLine:      maxLine,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Negotiate asks a telnet client to suppress go-ahead.
func (c *Conn) Negotiate() error {
	return c.Write([]byte{IAC, WILL, OptSuppressGoAhead})
}

// ReadLine reads one line of input, filtering telnet IAC sequences, ANSI
// escapes and control characters. The terminator (\n, \r\n or a bare \r)
// is not included.
//
// Postcondition: Returns the next line, ErrLineTooLong, or the read error
// (io.EOF on orderly close).
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	var line bytes.Buffer
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return "", err
		}
		if c.skipLF {
			c.skipLF = false
			if b == '\n' {
				continue
			}
		}

		if b == IAC {
			if err := c.handleIAC(); err != nil {
				return "", err
			}
			continue
		}

		if b == '\n' {
			break
		}
		if b == '\r' {
			if c.reader.Buffered() == 0 {
				c.skipLF = true
				break
			}
			if next, err := c.reader.Peek(1); err == nil && next[0] == '\n' {
				_, _ = c.reader.ReadByte()
			}
			break
		}

		// ESC is kept so StripANSI can drop whole sequences.
		if b < 32 && b != '\t' && b != '\033' {
			continue
		}

		if line.Len() >= c.maxLine {
			return "", ErrLineTooLong
		}
		line.WriteByte(b)
	}

	return StripANSI(line.String()), nil
}

// handleIAC processes a telnet IAC sequence after the initial IAC byte
// has been read.
func (c *Conn) handleIAC() error {
	cmd, err := c.reader.ReadByte()
	if err != nil {
		return err
	}

	switch cmd {
	case WILL, WONT, DO, DONT:
		_, err := c.reader.ReadByte()
		return err
	case SB:
		for {
			b, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			if b != IAC {
				continue
			}
			next, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			if next == SE {
				return nil
			}
		}
	default:
		// NOP, GA and escaped IAC carry no text.
	}
	return nil
}

// WriteLine sends one message. Embedded newlines split it into several
// \r\n-terminated lines.
func (c *Conn) WriteLine(text string) error {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var buf bytes.Buffer
	for _, part := range strings.Split(text, "\n") {
		buf.WriteString(part)
		buf.WriteString("\r\n")
	}
	return c.Write(buf.Bytes())
}

// Write sends raw bytes to the client.
func (c *Conn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.raw.Write(data)
	return err
}

// Close closes the underlying TCP connection. Repeated calls return the
// result of the first.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
