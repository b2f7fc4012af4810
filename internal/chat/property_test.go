package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/tcpchat/internal/game/board"
)

// directEngine builds an engine whose sessions are driven synchronously
// through dispatch, without writer goroutines.
func directEngine(store *memStore) *Engine {
	return NewEngine(store, zap.NewNop(), Options{OutboxSize: 1 << 14})
}

func directSession(e *Engine, port int) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := newSession(newFakeConn(port), e.outboxSize)
	s.alias = e.store.NextGuestAlias()
	e.registry.Add(s)
	return s
}

func drive(e *Engine, s *Session, line string) {
	var fx effects
	e.mu.Lock()
	e.dispatch(context.Background(), s, line, &fx)
	e.mu.Unlock()
	e.flush(context.Background(), fx)
}

func checkPairing(t *rapid.T, e *Engine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.registry.Snapshot() {
		if s.private == uuid.Nil {
			continue
		}
		p, ok := e.registry.Get(s.private)
		if !ok {
			t.Fatalf("%s paired with a missing session", s.displayName())
		}
		if p.private != s.id {
			t.Fatalf("asymmetric pairing: %s -> %s -> %s", s.displayName(), p.displayName(), p.private)
		}
	}
}

func checkUniqueUsernames(t *rapid.T, e *Engine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := map[string]string{}
	for _, s := range e.registry.Snapshot() {
		if s.username == "" {
			continue
		}
		key := strings.ToLower(s.username)
		if other, dup := seen[key]; dup {
			t.Fatalf("username %q held by %s and %s", s.username, other, s.alias)
		}
		seen[key] = s.alias
	}
}

func TestPropertyPairingIsSymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newMemStore()
		e := directEngine(store)
		names := []string{"ann", "ben", "cat", "dov"}
		sessions := make([]*Session, len(names))
		for i, n := range names {
			store.add(n, "pass1!")
			sessions[i] = directSession(e, i+1)
			drive(e, sessions[i], "!username "+n)
			drive(e, sessions[i], "pass1!")
		}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for range steps {
			i := rapid.IntRange(0, len(names)-1).Draw(t, "actor")
			s := sessions[i]
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0, 1:
				j := rapid.IntRange(0, len(names)-1).Draw(t, "target")
				drive(e, s, "!whisper "+names[j])
			case 2:
				drive(e, s, "!global")
			case 3:
				drive(e, s, "!exit")
				drive(e, s, "!username "+names[i])
				drive(e, s, "pass1!")
			case 4:
				drive(e, s, "hello")
			}
			checkPairing(t, e)
		}
	})
}

func TestPropertyUsernamesStayUnique(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newMemStore()
		e := directEngine(store)
		pool := []string{"amy", "Amy", "bob", "BOB", "cy"}
		store.add("amy", "pass1!")

		sessions := make([]*Session, 4)
		for i := range sessions {
			sessions[i] = directSession(e, i+1)
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for range steps {
			s := sessions[rapid.IntRange(0, len(sessions)-1).Draw(t, "actor")]
			name := rapid.SampledFrom(pool).Draw(t, "name")
			switch rapid.IntRange(0, 5).Draw(t, "op") {
			case 0, 1:
				drive(e, s, "!username "+name)
			case 2:
				drive(e, s, rapid.SampledFrom([]string{"pass1!", "wrong1!"}).Draw(t, "password"))
			case 3:
				drive(e, s, "cancel")
			case 4:
				drive(e, s, "!user "+name)
			case 5:
				drive(e, s, "!exit")
			}
			checkUniqueUsernames(t, e)
		}
	})
}

func TestPropertyTurnAlternation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := newMemStore()
		e := directEngine(store)
		players := make([]*Session, 2)
		for i, n := range []string{"xena", "omar"} {
			store.add(n, "pass1!")
			players[i] = directSession(e, i+1)
			drive(e, players[i], "!username "+n)
			drive(e, players[i], "pass1!")
			drive(e, players[i], "!join")
		}

		for range rapid.IntRange(1, 30).Draw(t, "steps") {
			mover := players[rapid.IntRange(0, 1).Draw(t, "mover")]
			idx := rapid.IntRange(-1, 9).Draw(t, "index")

			e.mu.Lock()
			before := e.table.board
			hadTurn := mover.myTurn
			running := e.table.running()
			e.mu.Unlock()

			drive(e, mover, fmt.Sprintf("MOVE:%d", idx))

			e.mu.Lock()
			a, b := players[0], players[1]
			if a.myTurn && b.myTurn {
				e.mu.Unlock()
				t.Fatalf("both players hold the turn")
			}
			accepted := running && hadTurn && idx >= 0 && idx < board.Size && before.Tile(idx) == board.Blank
			if accepted && e.table.running() {
				other := a
				if mover == a {
					other = b
				}
				if mover.myTurn || !other.myTurn {
					e.mu.Unlock()
					t.Fatalf("turn did not pass after an accepted move")
				}
			}
			if !accepted && e.table.board != before {
				e.mu.Unlock()
				t.Fatalf("rejected move %d changed the board", idx)
			}
			finished := !e.table.running()
			e.mu.Unlock()
			if finished {
				return
			}
		}
	})
}
