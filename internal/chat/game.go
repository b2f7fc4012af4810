package chat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tcpchat/internal/game/board"
)

// MovePrefix introduces a client move, e.g. "MOVE:4".
const MovePrefix = "MOVE:"

// table is the single tic-tac-toe table. Seats hold session IDs; the game
// is running when both are filled.
type table struct {
	board  board.Board
	cross  uuid.UUID
	naught uuid.UUID
}

func (t *table) running() bool {
	return t.cross != uuid.Nil && t.naught != uuid.Nil
}

func (t *table) seatOf(id uuid.UUID) board.Tile {
	switch id {
	case uuid.Nil:
		return board.Blank
	case t.cross:
		return board.Cross
	case t.naught:
		return board.Naught
	}
	return board.Blank
}

func (t *table) occupant(seat board.Tile) uuid.UUID {
	switch seat {
	case board.Cross:
		return t.cross
	case board.Naught:
		return t.naught
	}
	return uuid.Nil
}

func (t *table) clear() {
	t.cross = uuid.Nil
	t.naught = uuid.Nil
	t.board.Reset()
}

// join seats s at the table. Cross is taken first, then naught; filling
// naught starts the game.
//
// Precondition: e.mu is held.
func (e *Engine) join(s *Session) {
	if s.state != Chatting {
		e.send(s, "[Please login before joining a game]")
		return
	}
	switch {
	case e.table.cross == uuid.Nil:
		e.table.cross = s.id
		s.seat = board.Cross
		s.state = Playing
		e.send(s, "You joined as Player 1 (X)")
	case e.table.naught == uuid.Nil:
		e.table.naught = s.id
		s.seat = board.Naught
		s.state = Playing
		e.send(s, "You joined as Player 2 (O)")
	default:
		e.send(s, "[Two players already joined. Please wait for the next game]")
		return
	}
	e.logger.Info("player joined",
		zap.String("username", s.username),
		zap.String("seat", s.seat.String()),
	)
	if e.table.running() {
		e.startGame()
	}
}

// startGame resets the board and hands cross the first turn.
//
// Precondition: e.mu is held; both seats are filled by live sessions.
func (e *Engine) startGame() {
	cross, okC := e.registry.Get(e.table.cross)
	naught, okN := e.registry.Get(e.table.naught)
	if !okC || !okN {
		e.logger.Error("starting game with a missing player")
		return
	}
	e.table.board.Reset()
	cross.myTurn = true
	naught.myTurn = false

	start := fmt.Sprintf("Game started: [%s] (X) vs [%s] (O)", cross.username, naught.username)
	state := "BOARD_STATE:" + e.table.board.String()
	for _, p := range []*Session{cross, naught} {
		e.send(p, state)
		e.send(p, start)
	}
	e.send(cross, "YOUR_TURN")
	e.send(naught, "WAIT_TURN|Waiting for Player 1...")
	e.metrics.GamesStarted.Add(1)
	e.audit.LogEvent("game started: " + cross.username + " vs " + naught.username)
}

// move applies a MOVE line from s. Invalid moves are logged and ignored.
//
// Precondition: e.mu is held.
func (e *Engine) move(s *Session, line string, fx *effects) {
	reject := func(reason string) {
		e.logger.Debug("move rejected",
			zap.String("name", s.displayName()),
			zap.String("move", line),
			zap.String("reason", reason),
		)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, MovePrefix)))
	if err != nil {
		reject("malformed index")
		return
	}
	if s.state != Playing || !e.table.running() {
		reject("no active game")
		return
	}
	seat := e.table.seatOf(s.id)
	if seat == board.Blank {
		reject("not seated")
		return
	}
	if !s.myTurn {
		reject("not your turn")
		return
	}
	opponent, ok := e.registry.Get(e.table.occupant(seat.Opponent()))
	if !ok {
		reject("opponent missing")
		return
	}
	if err := e.table.board.SetTile(idx, seat); err != nil {
		reject(err.Error())
		return
	}

	update := fmt.Sprintf("UPDATE_TILE:%d:%s", idx, seat)
	e.send(s, update)
	e.send(opponent, update)

	outcome := e.table.board.State()
	if !outcome.Terminal() {
		s.myTurn = false
		opponent.myTurn = true
		e.send(s, "WAIT_TURN|Waiting for opponent...")
		e.send(opponent, "YOUR_TURN")
		return
	}

	var banner string
	switch outcome {
	case board.CrossWins:
		banner = "X wins!"
	case board.NaughtWins:
		banner = "O wins!"
	default:
		banner = "It's a draw!"
	}
	e.send(s, banner)
	e.send(opponent, banner)

	switch outcome {
	case board.Draw:
		fx.record(s.username, 0, 0, 1, opponent.username)
		fx.record(opponent.username, 0, 0, 1, s.username)
	default:
		// Only the mover can complete a line.
		fx.record(s.username, 1, 0, 0, opponent.username)
		fx.record(opponent.username, 0, 1, 0, s.username)
	}
	e.audit.LogEvent(fmt.Sprintf("game over: %s vs %s, %s", s.username, opponent.username, outcome))
	e.endGame(s, opponent)
}

// endGame destroys the running game and returns both players to chat.
//
// Precondition: e.mu is held.
func (e *Engine) endGame(players ...*Session) {
	for _, p := range players {
		p.seat = board.Blank
		p.myTurn = false
		if p.state == Playing {
			p.state = Chatting
		}
	}
	e.table.clear()
	e.metrics.GamesFinished.Add(1)
}

// vacateSeat removes s from the table. Leaving a running game forfeits it:
// the opponent is credited with a win and returned to chat.
//
// Precondition: e.mu is held.
func (e *Engine) vacateSeat(s *Session, why string, fx *effects) {
	seat := e.table.seatOf(s.id)
	if seat == board.Blank {
		return
	}
	if !e.table.running() {
		if seat == board.Cross {
			e.table.cross = uuid.Nil
		} else {
			e.table.naught = uuid.Nil
		}
		s.seat = board.Blank
		s.myTurn = false
		if s.state == Playing {
			s.state = Chatting
		}
		e.table.board.Reset()
		return
	}

	opponent, ok := e.registry.Get(e.table.occupant(seat.Opponent()))
	if ok {
		e.send(opponent, fmt.Sprintf("[%s] %s. You win!", s.username, why))
		fx.record(opponent.username, 1, 0, 0, s.username)
		fx.record(s.username, 0, 1, 0, opponent.username)
		e.audit.LogEvent(fmt.Sprintf("game forfeited by %s to %s", s.username, opponent.username))
		e.endGame(s, opponent)
		return
	}
	e.endGame(s)
}

// leave handles !leave.
//
// Precondition: e.mu is held.
func (e *Engine) leave(s *Session, fx *effects) {
	if e.table.seatOf(s.id) == board.Blank {
		e.send(s, "[You are not in a game]")
		return
	}
	running := e.table.running()
	e.vacateSeat(s, "left the game", fx)
	if running {
		e.send(s, "You forfeited the game.")
		return
	}
	e.send(s, "You left the table.")
}
