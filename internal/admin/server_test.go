package admin

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cory-johannsen/tcpchat/internal/chat"
	"github.com/cory-johannsen/tcpchat/internal/config"
	"github.com/cory-johannsen/tcpchat/internal/game/board"
)

type fakeOperator struct {
	mu        sync.Mutex
	mods      map[string]bool
	online    map[string]bool
	kicked    []string
	announced []string
}

func newFakeOperator(users ...string) *fakeOperator {
	op := &fakeOperator{mods: map[string]bool{}, online: map[string]bool{}}
	for _, u := range users {
		op.online[u] = true
	}
	return op
}

func (f *fakeOperator) Kick(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[name] {
		return chat.ErrNotFound
	}
	f.kicked = append(f.kicked, name)
	return nil
}

func (f *fakeOperator) ToggleModerator(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[name] {
		return false, chat.ErrNotFound
	}
	f.mods[name] = !f.mods[name]
	return f.mods[name], nil
}

func (f *fakeOperator) Moderators() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for n, on := range f.mods {
		if on {
			names = append(names, n)
		}
	}
	return names
}

func (f *fakeOperator) Announce(text string) error {
	if text == "" {
		return chat.ErrEmptyMessage
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, text)
	return nil
}

func (f *fakeOperator) Online() []chat.SessionInfo {
	return []chat.SessionInfo{
		{ID: uuid.New(), Alias: "user3", State: chat.Lobby, RemoteAddr: "10.0.0.3:4000"},
		{ID: uuid.New(), Alias: "user1", Username: "alice", State: chat.Playing, Moderator: true, Seat: board.Cross},
		{ID: uuid.New(), Alias: "user2", Username: "bob", State: chat.Chatting, PrivateTarget: uuid.New()},
	}
}

func (f *fakeOperator) Lookup(username string) (chat.SessionInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[username] {
		return chat.SessionInfo{}, false
	}
	return chat.SessionInfo{ID: uuid.New(), Alias: "user9", Username: username, State: chat.Chatting, Moderator: f.mods[username]}, true
}

// startAdmin serves op over bufconn and returns a client presenting token.
func startAdmin(t *testing.T, op Operator, serverToken, clientToken string) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(config.AdminConfig{Enabled: true, Token: serverToken}, op, zaptest.NewLogger(t))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", clientToken,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestModTogglesAndMods(t *testing.T) {
	op := newFakeOperator("alice", "bob")
	c := startAdmin(t, op, "", "")
	ctx := callCtx(t)

	on, err := c.Mod(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, on)

	mods, err := c.Mods(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, mods)

	on, err = c.Mod(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, on)

	mods, err = c.Mods(ctx)
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	c := startAdmin(t, newFakeOperator("alice"), "", "")
	ctx := callCtx(t)

	_, err := c.Mod(ctx, "ghost")
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = c.Kick(ctx, "   ")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = c.Announce(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestKickAndAnnounceReachOperator(t *testing.T) {
	op := newFakeOperator("bob")
	c := startAdmin(t, op, "", "")
	ctx := callCtx(t)

	require.NoError(t, c.Kick(ctx, " bob "))
	require.NoError(t, c.Announce(ctx, "maintenance at noon"))

	op.mu.Lock()
	defer op.mu.Unlock()
	assert.Equal(t, []string{"bob"}, op.kicked)
	assert.Equal(t, []string{"maintenance at noon"}, op.announced)
}

func TestWhoListsSessions(t *testing.T) {
	c := startAdmin(t, newFakeOperator(), "", "")

	sessions, err := c.Who(callCtx(t))
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	assert.Equal(t, "user3", sessions[0].Alias)
	assert.Equal(t, "Lobby", sessions[0].State)
	assert.Equal(t, "10.0.0.3:4000", sessions[0].Remote)
	assert.False(t, sessions[0].Private)

	assert.Equal(t, "alice", sessions[1].Username)
	assert.Equal(t, "Playing", sessions[1].State)
	assert.True(t, sessions[1].Moderator)
	assert.Equal(t, "cross", sessions[1].Seat)

	assert.True(t, sessions[2].Private)
	assert.NotEmpty(t, sessions[2].ID)
}

func TestTokenRequired(t *testing.T) {
	op := newFakeOperator("alice")

	_, err := startAdmin(t, op, "s3cret", "").Mods(callCtx(t))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = startAdmin(t, op, "s3cret", "wrong").Mods(callCtx(t))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = startAdmin(t, op, "s3cret", "s3cret").Mods(callCtx(t))
	assert.NoError(t, err)
}

func TestWhoisDescribesOneUser(t *testing.T) {
	op := newFakeOperator("alice")
	c := startAdmin(t, op, "", "")
	ctx := callCtx(t)

	_, err := c.Mod(ctx, "alice")
	require.NoError(t, err)

	sess, err := c.Whois(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, "Chatting", sess.State)
	assert.True(t, sess.Moderator)

	_, err = c.Whois(ctx, "ghost")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Whois(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
