package gomoku

import (
	"fmt"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/entity"
)

// directions are the four win axes: horizontal, vertical, diagonal down-right,
// diagonal down-left. Each is walked in both orientations from the placed cell.
var directions = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{1, -1},
}

// ApplyMove - validates and applies one move. On any validation failure the
// game is left untouched.
func ApplyMove(gameInstance *entity.Game, row, col int, symbol entity.Cell) error {
	if gameInstance.GameOver {
		return apperror.ErrGameFinished
	}

	if err := validateMove(gameInstance, row, col, symbol); err != nil {
		return fmt.Errorf("invalid turn: %w", err)
	}

	gameInstance.Board[row][col] = symbol
	gameInstance.MoveHistory = append(gameInstance.MoveHistory, entity.Move{Row: row, Col: col, Symbol: symbol})
	if symbol == entity.CellAI {
		gameInstance.LastAIMove = &entity.Coord{Row: row, Col: col}
	}

	updateGameStatus(gameInstance, row, col, symbol)

	return nil
}

// validateMove - checks if the move is valid.
func validateMove(gameInstance *entity.Game, row, col int, symbol entity.Cell) error {
	if !gameInstance.InRange(row, col) {
		return fmt.Errorf("%w: (%d, %d)", apperror.ErrOutOfRange, row, col)
	}

	if gameInstance.CurrentTurn != symbol {
		return apperror.ErrNotYourTurn
	}

	if gameInstance.Board[row][col] != entity.CellEmpty {
		return fmt.Errorf("%w: (%d, %d)", apperror.ErrCellOccupied, row, col)
	}

	return nil
}

// updateGameStatus - checks win and draw after a move and advances the turn.
// A round is one completed (human, ai) pair of turns.
func updateGameStatus(gameInstance *entity.Game, row, col int, symbol entity.Cell) {
	switch {
	case CheckWin(gameInstance, row, col, symbol):
		winner := symbol
		gameInstance.Winner = &winner
		gameInstance.GameOver = true
	case gameInstance.IsBoardFull():
		tie := entity.CellEmpty
		gameInstance.Winner = &tie
		gameInstance.GameOver = true
	default:
		gameInstance.CurrentTurn = toggleSymbol(symbol)
	}

	gameInstance.RoundNumber = len(gameInstance.MoveHistory) / 2
}

func toggleSymbol(symbol entity.Cell) entity.Cell {
	if symbol == entity.CellPlayer {
		return entity.CellAI
	}
	return entity.CellPlayer
}

// CheckWin - reports whether the symbol just placed at (row, col) completes
// a contiguous run of at least winLength along any of the four axes. The
// walk starts at the placed cell and extends in both orientations, so the
// cost is O(winLength) per axis rather than proportional to board area.
func CheckWin(gameInstance *entity.Game, row, col int, symbol entity.Cell) bool {
	for _, dir := range directions {
		count := 1 // the placed cell itself

		count += countRun(gameInstance, row, col, dir[0], dir[1], symbol)
		count += countRun(gameInstance, row, col, -dir[0], -dir[1], symbol)

		if count >= gameInstance.WinLength {
			return true
		}
	}

	return false
}

func countRun(gameInstance *entity.Game, row, col, dr, dc int, symbol entity.Cell) int {
	count := 0

	r, c := row+dr, col+dc
	for gameInstance.InRange(r, c) && gameInstance.Board[r][c] == symbol {
		count++
		r, c = r+dr, c+dc
	}

	return count
}

// CheckDraw - true when the board is full and nobody has won.
func CheckDraw(gameInstance *entity.Game) bool {
	return gameInstance.IsBoardFull() && (gameInstance.Winner == nil || *gameInstance.Winner == entity.CellEmpty)
}
