package entity

import "github.com/llmgomoku/gomoku-backend/internal/conversation"

// Session owns one game and its conversation. There is no ambient "current
// game": every operation receives the session it acts on.
type Session struct {
	ID           string                `json:"id"`
	Game         *Game                 `json:"game"`
	Conversation *conversation.Context `json:"conversation"`
}

func NewSession(id string, boardSize, winLength, maxHistory int, systemPrompt string) *Session {
	return &Session{
		ID:           id,
		Game:         NewGame(boardSize, winLength),
		Conversation: conversation.New(maxHistory, systemPrompt),
	}
}

// Reset - reinitializes the board and the conversation in place, keeping
// the session identity.
func (that *Session) Reset() {
	boardSize := that.Game.BoardSize
	winLength := that.Game.WinLength
	snapshot := that.Conversation.Snapshot()

	that.Game = NewGame(boardSize, winLength)
	that.Conversation = conversation.New(snapshot.MaxHistory, that.Conversation.SystemPrompt())
}
