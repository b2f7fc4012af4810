package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/tcpchat/internal/storage"
)

const (
	waitFor   = 2 * time.Second
	pollEvery = 5 * time.Millisecond
)

type fakeConn struct {
	in     chan string
	closed chan struct{}
	once   sync.Once
	port   int

	mu    sync.Mutex
	lines []string
}

func newFakeConn(port int) *fakeConn {
	return &fakeConn{in: make(chan string, 64), closed: make(chan struct{}), port: port}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case <-c.closed:
		return "", io.EOF
	default:
	}
	select {
	case line := <-c.in:
		return line, nil
	case <-c.closed:
		return "", io.EOF
	}
}

func (c *fakeConn) WriteLine(line string) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: c.port}
}

func (c *fakeConn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// memStore is an in-memory Store with injectable failures.
type memStore struct {
	storage.AliasCounter

	mu      sync.Mutex
	users   map[string]*memUser
	results []recorded
	failAll error
}

type memUser struct {
	name     string
	password string
}

type recorded struct {
	name                string
	wins, losses, draws int
	opponent            string
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*memUser)}
}

func (m *memStore) add(name, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[strings.ToLower(name)] = &memUser{name: name, password: password}
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err
}

func (m *memStore) UsernameExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return false, m.failAll
	}
	_, ok := m.users[strings.ToLower(name)]
	return ok, nil
}

func (m *memStore) Register(_ context.Context, name, password string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return false, m.failAll
	}
	if len(password) > 72 {
		return false, fmt.Errorf("hashing password: %w", bcrypt.ErrPasswordTooLong)
	}
	key := strings.ToLower(name)
	if _, ok := m.users[key]; ok {
		return false, nil
	}
	m.users[key] = &memUser{name: name, password: password}
	return true, nil
}

func (m *memStore) Authenticate(_ context.Context, name, password string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return false, m.failAll
	}
	u, ok := m.users[strings.ToLower(name)]
	return ok && u.password == password, nil
}

func (m *memStore) RenameUser(_ context.Context, oldName, newName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return false, m.failAll
	}
	u, ok := m.users[strings.ToLower(oldName)]
	if !ok {
		return false, nil
	}
	if _, taken := m.users[strings.ToLower(newName)]; taken {
		return false, nil
	}
	delete(m.users, strings.ToLower(oldName))
	u.name = newName
	m.users[strings.ToLower(newName)] = u
	return true, nil
}

func (m *memStore) RecordResult(_ context.Context, name string, wins, losses, draws int, opponent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	m.results = append(m.results, recorded{name, wins, losses, draws, opponent})
	return nil
}

func (m *memStore) recorded() []recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recorded(nil), m.results...)
}

var errBackend = errors.New("backend unavailable")

// harness runs an Engine over fake connections.
type harness struct {
	t      *testing.T
	engine *Engine
	store  *memStore
	ctx    context.Context
	cancel context.CancelFunc
	ports  int
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store := newMemStore()
	return &harness{
		t:      t,
		engine: NewEngine(store, zaptest.NewLogger(t), opts),
		store:  store,
		ctx:    ctx,
		cancel: cancel,
		ports:  40000,
	}
}

type client struct {
	t      *testing.T
	h      *harness
	conn   *fakeConn
	done   chan error
	cursor int
}

func (h *harness) connect() *client {
	h.t.Helper()
	h.ports++
	c := &client{t: h.t, h: h, conn: newFakeConn(h.ports), done: make(chan error, 1)}
	go func() { c.done <- h.engine.Serve(h.ctx, c.conn) }()
	c.expect("__lobbyUsername__:")
	h.t.Cleanup(func() { _ = c.conn.Close() })
	return c
}

// login connects a client and authenticates it as name, registering the
// account first when the store does not know it.
func (h *harness) login(name string) *client {
	h.t.Helper()
	h.store.add(name, "secret1!")
	c := h.connect()
	c.send("!username " + name)
	c.expect("Please enter your Password")
	c.send("secret1!")
	c.expect("Login successful! Welcome back.")
	c.expect("[Server]: [" + name + "] has joined the chat!")
	return c
}

func (c *client) send(line string) {
	c.conn.in <- line
}

// expect waits for a line containing substr after the last matched line.
func (c *client) expect(substr string) string {
	c.t.Helper()
	var found string
	require.Eventually(c.t, func() bool {
		lines := c.conn.snapshot()
		for i := c.cursor; i < len(lines); i++ {
			if strings.Contains(lines[i], substr) {
				c.cursor = i + 1
				found = lines[i]
				return true
			}
		}
		return false
	}, waitFor, pollEvery, "never received %q; got %q", substr, c.conn.snapshot())
	return found
}

// saw reports whether any line so far contains substr.
func (c *client) saw(substr string) bool {
	for _, l := range c.conn.snapshot() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// sync waits until every line sent so far has been processed.
func (c *client) sync() {
	c.t.Helper()
	c.send("!time")
	c.expect("The current time is:")
}

func (c *client) info() SessionInfo {
	c.t.Helper()
	for _, i := range c.h.engine.Online() {
		if i.RemoteAddr == c.conn.RemoteAddr().String() {
			return i
		}
	}
	c.t.Fatalf("session for %s not registered", c.conn.RemoteAddr())
	return SessionInfo{}
}

func (c *client) disconnect() {
	c.t.Helper()
	_ = c.conn.Close()
	select {
	case <-c.done:
	case <-time.After(waitFor):
		c.t.Fatal("Serve did not return after close")
	}
}
