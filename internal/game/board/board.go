// Package board implements the 3x3 tic-tac-toe grid: placement, terminal
// state detection, and the X/O/_ wire encoding.
package board

import (
	"errors"
	"fmt"
	"strings"
)

// Size is the number of cells on the board.
const Size = 9

// Tile is the content of one cell.
type Tile uint8

const (
	Blank Tile = iota
	Cross
	Naught
)

// String returns the wire name used in UPDATE_TILE lines.
func (t Tile) String() string {
	switch t {
	case Cross:
		return "cross"
	case Naught:
		return "naught"
	default:
		return "blank"
	}
}

// Rune returns the single-character encoding used in BOARD_STATE lines.
func (t Tile) Rune() byte {
	switch t {
	case Cross:
		return 'X'
	case Naught:
		return 'O'
	default:
		return '_'
	}
}

// Opponent returns the other playing tile. Blank maps to Blank.
func (t Tile) Opponent() Tile {
	switch t {
	case Cross:
		return Naught
	case Naught:
		return Cross
	default:
		return Blank
	}
}

// State is the board's game status.
type State uint8

const (
	Playing State = iota
	CrossWins
	NaughtWins
	Draw
)

// Terminal reports whether no further moves are possible.
func (s State) Terminal() bool { return s != Playing }

func (s State) String() string {
	switch s {
	case CrossWins:
		return "cross wins"
	case NaughtWins:
		return "naught wins"
	case Draw:
		return "draw"
	default:
		return "playing"
	}
}

// ErrOutOfRange is returned for a cell index outside 0..8.
var ErrOutOfRange = errors.New("cell index out of range")

// ErrOccupied is returned when placing on a non-blank cell.
var ErrOccupied = errors.New("cell already occupied")

// ErrBlankTile is returned when placing Blank.
var ErrBlankTile = errors.New("cannot place a blank tile")

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Board is a 3x3 grid indexed row-major from 0 (top-left) to 8 (bottom-right).
// The zero value is an empty board.
type Board struct {
	cells [Size]Tile
}

// Tile returns the tile at index i, or Blank when i is out of range.
func (b *Board) Tile(i int) Tile {
	if i < 0 || i >= Size {
		return Blank
	}
	return b.cells[i]
}

// SetTile places t at index i. A cell transitions from Blank exactly once;
// a failed placement leaves the board unchanged.
func (b *Board) SetTile(i int, t Tile) error {
	if i < 0 || i >= Size {
		return fmt.Errorf("set tile %d: %w", i, ErrOutOfRange)
	}
	if t == Blank {
		return ErrBlankTile
	}
	if b.cells[i] != Blank {
		return fmt.Errorf("set tile %d: %w", i, ErrOccupied)
	}
	b.cells[i] = t
	return nil
}

// State reports the current status. A completed line wins even on a full board.
func (b *Board) State() State {
	for _, l := range lines {
		t := b.cells[l[0]]
		if t != Blank && t == b.cells[l[1]] && t == b.cells[l[2]] {
			if t == Cross {
				return CrossWins
			}
			return NaughtWins
		}
	}
	for _, t := range b.cells {
		if t == Blank {
			return Playing
		}
	}
	return Draw
}

// Reset clears every cell.
func (b *Board) Reset() {
	b.cells = [Size]Tile{}
}

// Free returns the indexes of blank cells in ascending order.
func (b *Board) Free() []int {
	var out []int
	for i, t := range b.cells {
		if t == Blank {
			out = append(out, i)
		}
	}
	return out
}

// String encodes the board as 9 characters of X, O, and _.
func (b *Board) String() string {
	var sb strings.Builder
	sb.Grow(Size)
	for _, t := range b.cells {
		sb.WriteByte(t.Rune())
	}
	return sb.String()
}

// Parse decodes the 9-character X/O/_ encoding produced by String.
func Parse(s string) (Board, error) {
	var b Board
	if len(s) != Size {
		return b, fmt.Errorf("board encoding must be %d characters, got %d", Size, len(s))
	}
	for i := 0; i < Size; i++ {
		switch s[i] {
		case 'X', 'x':
			b.cells[i] = Cross
		case 'O', 'o':
			b.cells[i] = Naught
		case '_':
		default:
			return Board{}, fmt.Errorf("invalid board character %q at %d", s[i], i)
		}
	}
	return b, nil
}
