package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tcpchat/internal/game/board"
	"github.com/cory-johannsen/tcpchat/internal/observability"
)

func TestConnect_GreetsWithAliasAndPrompt(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect()

	lines := c.conn.snapshot()
	require.NotEmpty(t, lines)
	assert.Equal(t, "__lobbyUsername__:user1", lines[0])
	c.expect("To join the chat, please Login/Register.")

	info := c.info()
	assert.Equal(t, Lobby, info.State)
	assert.Equal(t, "user1", info.Alias)
	assert.Empty(t, info.Username)
}

func TestConnect_AliasesAreUnique(t *testing.T) {
	h := newHarness(t, Options{})
	seen := map[string]bool{}
	for range 5 {
		c := h.connect()
		alias := c.info().Alias
		assert.False(t, seen[alias], "alias %s reused", alias)
		seen[alias] = true
	}
}

func TestUsername_UnregisteredMovesToRegister(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect()

	c.send("!username Bob")
	c.expect("__clearChat__")
	c.expect("Username [Bob] is available!")
	assert.Equal(t, Register, c.info().State)
	assert.Equal(t, "Bob", c.info().TempUsername)
}

func TestUsername_RegisteredMovesToLogin(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.add("alice", "secret1!")
	c := h.connect()

	c.send("!username alice")
	c.expect("Username [alice] found!")
	assert.Equal(t, Login, c.info().State)
}

func TestUsername_Validation(t *testing.T) {
	h := newHarness(t, Options{})
	h.login("carol")
	c := h.connect()

	cases := []struct {
		line string
		want string
	}{
		{"!username", "[Please specify a username after !username]"},
		{"!username bad-name", "[Invalid username, no special characters allowed]"},
		{"!username User42", "[Username cannot start with 'user', prefix reserved for the system.]"},
		{"!username CAROL", "[Username already in use by another connected user]"},
	}
	for _, tc := range cases {
		c.send(tc.line)
		c.expect(tc.want)
		assert.Equal(t, Lobby, c.info().State, tc.line)
	}
}

func TestUsername_PendingNameIsReserved(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.connect()
	b := h.connect()

	a.send("!username dave")
	a.expect("Username [dave] is available!")
	b.send("!username Dave")
	b.expect("[Username already in use by another connected user]")
	assert.Equal(t, Lobby, b.info().State)
}

func TestUsername_StoreErrorResets(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect()
	h.store.fail(errBackend)

	c.send("!username erin")
	c.expect("[System error during username check]")
	c.expect("__lobbyUsername__:user2")
	assert.Equal(t, Lobby, c.info().State)
	assert.Empty(t, c.info().TempUsername)
}

func TestRegister_PasswordRules(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect()
	c.send("!username frank")
	c.expect("is available!")

	c.send("short")
	c.expect("[Password must be 6 to 72 characters long")
	c.expect("Please enter a valid password or type 'Cancel' to go back:")
	assert.Equal(t, Register, c.info().State)

	c.send("longenough1")
	c.expect("[Password must be 6 to 72 characters long")
	assert.Equal(t, Register, c.info().State)

	c.send("good1pass!")
	c.expect("Registration successful! Welcome to the Chat")
	c.expect("[Server]: [frank] has joined the chat!")
	info := c.info()
	assert.Equal(t, Chatting, info.State)
	assert.Equal(t, "frank", info.Username)

	exists, err := h.store.UsernameExists(h.ctx, "frank")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRegister_OverlongPasswordRetries(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect()
	c.send("!username alice")
	c.expect("is available!")

	long := strings.Repeat("a", 80) + "1!"
	require.Len(t, long, 82)
	c.send(long)
	c.expect("[Password must be 6 to 72 characters long")
	c.expect("Please enter a valid password or type 'Cancel' to go back:")
	info := c.info()
	assert.Equal(t, Register, info.State)
	assert.Equal(t, "alice", info.TempUsername)
	assert.False(t, c.saw("[A system error occurred"))

	c.send(strings.Repeat("a", 70) + "1!")
	c.expect("Registration successful! Welcome to the Chat")
	assert.Equal(t, Chatting, c.info().State)
}

func TestRegister_StoreRefusal(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect()
	c.send("!username gina")
	c.expect("is available!")
	h.store.add("gina", "other1!")

	c.send("good1pass!")
	c.expect("[Something went wrong. Username might already exist.")
	assert.Equal(t, Register, c.info().State)
}

func TestLogin_ThreeFailuresResetToLobby(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.add("hank", "right1!")
	c := h.connect()
	c.send("!username hank")
	c.expect("Username [hank] found!")

	c.send("wrong")
	c.expect("[Incorrect password. Attempt 1/3]")
	c.send("wrong")
	c.expect("[Incorrect password. Attempt 2/3]")
	assert.Equal(t, Login, c.info().State)
	c.send("wrong")
	c.expect("[Too many failed attempts. Returning to welcome page.]")
	c.expect("__lobbyUsername__:user2")
	c.expect("To join the chat, please Login/Register.")

	info := c.info()
	assert.Equal(t, Lobby, info.State)
	assert.Equal(t, 0, info.LoginAttempts)
	assert.Equal(t, "user2", info.Alias)
}

func TestLogin_CancelReturnsToLobby(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.add("ivan", "right1!")
	for _, cancel := range []string{"Cancel", "!cancel"} {
		c := h.connect()
		c.send("!username ivan")
		c.expect("Username [ivan] found!")
		c.send(cancel)
		c.expect("Login/Register cancelled. You are back at the welcome page.")
		assert.Equal(t, Lobby, c.info().State)
		assert.Empty(t, c.info().TempUsername)
	}
}

func TestLogin_StoreErrorResets(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.add("judy", "right1!")
	c := h.connect()
	c.send("!username judy")
	c.expect("found!")
	h.store.fail(errBackend)

	c.send("right1!")
	c.expect("[A system error occurred. Please try again later.]")
	assert.Equal(t, Lobby, c.info().State)
}

func TestWhitelist_DeniesOutsideState(t *testing.T) {
	metrics := observability.NewMetrics()
	h := newHarness(t, Options{Metrics: metrics})
	c := h.connect()

	c.send("!who")
	c.expect("[Command not allowed in your current state.]")
	c.send("!join")
	c.expect("[Command not allowed in your current state.]")
	c.send("!bogus")
	c.expect("[Command not allowed in your current state.]")

	c.send("!username kate")
	c.expect("is available!")
	c.send("!about")
	c.expect("[Command not allowed in your current state.]")
	assert.Equal(t, Register, c.info().State, "a denied command keeps the state")
	assert.Equal(t, int64(4), metrics.CommandsDenied.Load())
}

func TestLobby_CannotChat(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect()
	c.send("hello")
	c.expect("You can't chat yet. Please complete the Login/Registration process first.")
}

func TestInfoCommands(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 15, 4, 5, 0, time.UTC)
	h := newHarness(t, Options{Now: func() time.Time { return fixed }})
	c := h.connect()

	c.send("!time")
	c.expect("The current time is: 03:04:05 PM")
	c.send("!about")
	c.expect("TCP Chat Application")
	c.send("!help")
	line := c.expect("Commands are:")
	assert.Contains(t, line, "!username [your_username]")
	assert.NotContains(t, line, "!mods")
}

func TestChatting_UnknownCommand(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.login("liam")
	c.send("!dance")
	c.expect("Unknown command. Type !commands for a list of available commands.")
	assert.Equal(t, Chatting, c.info().State)
}

func TestChatting_OperatorCommandsRefused(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.login("mona")
	c.send("!mod mona")
	c.expect("[This command is only available to server operators]")
	c.send("!mods")
	c.expect("[This command is only available to server operators]")
	assert.Empty(t, h.engine.Moderators())
}

func TestBroadcast_ExcludesSenderLobbyAndPrivate(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("nina")
	b := h.login("omar")
	p := h.login("pia")
	q := h.login("quin")
	lobby := h.connect()

	p.send("!whisper quin")
	p.expect("Private chat with [quin] started!")

	a.send("hello all")
	b.expect("[nina]: hello all")
	a.sync()
	p.sync()
	q.sync()
	lobby.sync()

	assert.False(t, a.saw("[nina]: hello all"), "sender must not get its own line")
	assert.False(t, p.saw("hello all"))
	assert.False(t, q.saw("hello all"))
	assert.False(t, lobby.saw("hello all"))
}

func TestWho(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("rita")
	a.send("!who")
	a.expect("Online Users:\n\tJust you, for now! :)")

	h.login("sam")
	h.connect()
	a.send("!who")
	line := a.expect("Online Users:")
	assert.Equal(t, "Online Users:\n\trita (you)\n\tsam", line)
}

func TestWhisperAndGlobal(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("tom")
	b := h.login("uma")
	c := h.login("vic")

	a.send("!whisper uma")
	a.expect("Private chat with [uma] started! Type !global to return to main chat.")
	b.expect("[tom] started a private chat with you! Type !global to return to main chat.")
	assert.Equal(t, b.info().ID, a.info().PrivateTarget)
	assert.Equal(t, a.info().ID, b.info().PrivateTarget)

	a.send("psst")
	a.expect("[Private to uma]: psst")
	b.expect("[Private from tom]: psst")
	c.sync()
	assert.False(t, c.saw("psst"))

	b.send("!global")
	b.expect("You have exited the private chat. You are now in the global chat.")
	a.expect("[uma] has left the private chat. You are now in global chat.")
	c.expect("[uma] & [tom] have rejoined the global chat.")
	assert.Equal(t, uuid.Nil, a.info().PrivateTarget)
	assert.Equal(t, uuid.Nil, b.info().PrivateTarget)

	c.send("back to everyone")
	a.expect("[vic]: back to everyone")
	b.expect("[vic]: back to everyone")

	a.send("!global")
	a.expect("Uh-oh, you are already in the global chat!")
}

func TestWhisper_Errors(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("wade")
	b := h.login("xena")
	c := h.login("yuri")
	h.connect()

	a.send("!whisper")
	a.expect("[Please specify a user]")
	a.send("!whisper WADE")
	a.expect("[You can't whisper to yourself]")
	a.send("!whisper nobody")
	a.expect("[User not found]")

	b.send("!whisper yuri")
	c.expect("[xena] started a private chat with you!")
	a.send("!whisper xena")
	a.expect("[xena is already in a private chat]")
	assert.Equal(t, uuid.Nil, a.info().PrivateTarget)
}

func TestWhisper_PartnerDisconnect(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("zack")
	b := h.login("abby")
	a.send("!whisper abby")
	b.expect("started a private chat with you!")

	b.disconnect()
	a.expect("[abby] has left the private chat. You are now in global chat.")
	assert.Equal(t, uuid.Nil, a.info().PrivateTarget)
}

func TestRename(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("beth")
	b := h.login("cole")
	h.store.add("dora", "x1!abc")

	a.send("!user dora")
	a.expect("[Username is already registered by another user]")
	a.send("!user cole")
	a.expect("[Username already in use by another connected user]")
	a.send("!user beth")
	a.expect("[You are already using this username]")

	a.send("!user bea")
	a.expect("Your username has changed!")
	b.expect("[beth] has changed their username to [bea]")
	assert.Equal(t, "bea", a.info().Username)

	exists, err := h.store.UsernameExists(h.ctx, "beth")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExit(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("dan")
	b := h.login("eve")

	a.send("!exit")
	a.expect("You have been logged out.")
	a.expect("__lobbyUsername__:")
	b.expect("[dan] has left the chat!")
	info := a.info()
	assert.Equal(t, Lobby, info.State)
	assert.Empty(t, info.Username)

	a.send("!username dan")
	a.expect("Username [dan] found!")
}

func TestDisconnect_Broadcast(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("finn")
	b := h.login("gail")
	lobby := h.connect()

	a.disconnect()
	b.expect("[finn] has disconnected")
	assert.Equal(t, 2, h.engine.Registry().Count())

	alias := lobby.info().Alias
	lobby.disconnect()
	b.sync()
	assert.False(t, b.saw("["+alias+"] has disconnected"), "lobby sessions leave silently")
}

func TestKick(t *testing.T) {
	metrics := observability.NewMetrics()
	h := newHarness(t, Options{Metrics: metrics})
	mod := h.login("hugo")
	target := h.login("iris")
	watcher := h.login("jack")

	target.send("!kick hugo")
	target.expect("[You do not have permission to use this command]")

	_, err := h.engine.ToggleModerator("hugo")
	require.NoError(t, err)
	mod.expect("[Server Notice]: You have been promoted to moderator!")

	mod.send("!kick hugo")
	mod.expect("[Nice try! You can't kick yourself.]")
	mod.send("!kick ghost")
	mod.expect("[Kick Failed]: User 'ghost' not found.")

	mod.send("!kick IRIS")
	target.expect("You have been kicked out!")
	target.expect("__lobbyUsername__:")
	watcher.expect("[Server]: [iris] has been removed by moderator [hugo]")
	mod.expect("[Server]: [iris] has been removed by moderator [hugo]")

	info := target.info()
	assert.Equal(t, Lobby, info.State)
	assert.Empty(t, info.Username)
	assert.Equal(t, int64(1), metrics.Kicks.Load())

	target.send("!username iris")
	target.expect("Username [iris] found!")
}

func TestKick_RemovesModeratorFlag(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("kurt")
	h.login("lena")
	_, err := h.engine.ToggleModerator("kurt")
	require.NoError(t, err)

	require.NoError(t, h.engine.Kick(h.ctx, "kurt"))
	a.expect("You have been kicked out!")
	assert.False(t, a.info().Moderator)
	assert.Empty(t, h.engine.Moderators())
}

func TestOutboxFull_DropsWithoutBlocking(t *testing.T) {
	metrics := observability.NewMetrics()
	h := newHarness(t, Options{Metrics: metrics, OutboxSize: 1})
	e := h.engine

	conn := newFakeConn(1)
	s := newSession(conn, 1)
	e.mu.Lock()
	s.alias = "user99"
	s.state = Chatting
	s.username = "slow"
	e.registry.Add(s)
	e.send(s, "one")
	e.send(s, "two")
	e.send(s, "three")
	e.mu.Unlock()

	assert.Equal(t, int64(2), metrics.OutboxDropped.Load())
	assert.Len(t, s.out, 1)
}

func TestServe_ContextCancelCloses(t *testing.T) {
	h := newHarness(t, Options{})
	c := h.connect()

	h.cancel()
	select {
	case err := <-c.done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Serve did not return after context cancellation")
	}
	assert.Equal(t, 0, h.engine.Registry().Count())
}

func TestSeatState(t *testing.T) {
	h := newHarness(t, Options{})
	a := h.login("mia")
	a.send("!join")
	a.expect("You joined as Player 1 (X)")
	info := a.info()
	assert.Equal(t, Playing, info.State)
	assert.Equal(t, board.Cross, info.Seat)
	assert.False(t, info.MyTurn)
}
