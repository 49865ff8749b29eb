package apperror

import "errors"

var (
	ErrGameFinished = errors.New("game is already finished")
	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrCellOccupied = errors.New("cell is already occupied")
	ErrOutOfRange   = errors.New("cell is out of board range")

	ErrSessionNotFound = errors.New("session not found")
	ErrNoEmptyCells    = errors.New("no empty cells left")

	// AI-turn failures, absorbed by the arbiter's retry/fallback chain.
	ErrProvider      = errors.New("provider request failed")
	ErrParse         = errors.New("provider response failed validation")
	ErrInvalidAIMove = errors.New("provider chose an illegal cell")
)
