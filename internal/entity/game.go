package entity

import (
	"fmt"
	"strings"
)

// Cell values follow the wire convention the AI is prompted with:
// 0 is empty, 1 is the human player, 2 is the AI.
type Cell int

const (
	CellEmpty  Cell = 0
	CellPlayer Cell = 1
	CellAI     Cell = 2
)

type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type Move struct {
	Row    int  `json:"row"`
	Col    int  `json:"col"`
	Symbol Cell `json:"player"`
}

type Game struct {
	Board       [][]Cell `json:"board"`
	BoardSize   int      `json:"board_size"`
	WinLength   int      `json:"win_length"`
	CurrentTurn Cell     `json:"current_player"`
	GameOver    bool     `json:"game_over"`
	Winner      *Cell    `json:"winner"`
	MoveHistory []Move   `json:"move_history"`
	RoundNumber int      `json:"round_number"`
	LastAIMove  *Coord   `json:"last_ai_move,omitempty"`
}

// NewGame - creates an empty board with the human to move first.
func NewGame(boardSize, winLength int) *Game {
	board := make([][]Cell, boardSize)
	for i := range board {
		board[i] = make([]Cell, boardSize)
	}

	return &Game{
		Board:       board,
		BoardSize:   boardSize,
		WinLength:   winLength,
		CurrentTurn: CellPlayer,
		MoveHistory: []Move{},
	}
}

// Clone - deep copy of the game state. Callers that hand the state to
// anything outside the session lock (JSON encoding, API responses) must use
// a clone, never the live instance.
func (that *Game) Clone() *Game {
	clone := *that

	clone.Board = make([][]Cell, len(that.Board))
	for i, row := range that.Board {
		clone.Board[i] = append([]Cell(nil), row...)
	}

	clone.MoveHistory = append([]Move(nil), that.MoveHistory...)

	if that.Winner != nil {
		winner := *that.Winner
		clone.Winner = &winner
	}
	if that.LastAIMove != nil {
		last := *that.LastAIMove
		clone.LastAIMove = &last
	}

	return &clone
}

func (that *Game) InRange(row, col int) bool {
	return row >= 0 && row < that.BoardSize && col >= 0 && col < that.BoardSize
}

func (that *Game) IsValidMove(row, col int) bool {
	return that.InRange(row, col) && that.Board[row][col] == CellEmpty
}

func (that *Game) IsBoardFull() bool {
	for _, row := range that.Board {
		for _, cell := range row {
			if cell == CellEmpty {
				return false
			}
		}
	}
	return true
}

// EmptyCells - returns all empty positions in row-major order.
func (that *Game) EmptyCells() []Coord {
	var cells []Coord
	for row := range that.Board {
		for col, cell := range that.Board[row] {
			if cell == CellEmpty {
				cells = append(cells, Coord{Row: row, Col: col})
			}
		}
	}
	return cells
}

// BoardString - serializes the board into the textual form the AI is
// prompted with: a column header followed by one indexed line per row.
func (that *Game) BoardString() string {
	var sb strings.Builder

	sb.WriteString("current board (0=empty, 1=human, 2=ai):\n")

	sb.WriteString("   ")
	for col := 0; col < that.BoardSize; col++ {
		fmt.Fprintf(&sb, "%2d ", col)
	}
	sb.WriteString("\n")

	for row := 0; row < that.BoardSize; row++ {
		fmt.Fprintf(&sb, "%2d ", row)
		for col := 0; col < that.BoardSize; col++ {
			fmt.Fprintf(&sb, "%2d ", that.Board[row][col])
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
