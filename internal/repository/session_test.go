package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/entity"
	"github.com/llmgomoku/gomoku-backend/testing/suite"
)

func TestSessionRepository_CreateOrUpdate(t *testing.T) {
	ctx, st := suite.New(t)

	sessionRepo := NewSessionRepository(st.Storage)

	// Given: a session with a started game and some conversation
	session := entity.NewSession("123", 15, 5, 10, "you play gomoku")
	session.Game.Board[7][7] = entity.CellPlayer
	session.Game.CurrentTurn = entity.CellAI
	session.Conversation.AppendTurn("board...", "reply...", 25)

	// When: CreateOrUpdate is called
	err := sessionRepo.CreateOrUpdate(ctx, session)

	// Then: no error should be returned
	require.NoError(t, err)
}

func TestSessionRepository_GetByID(t *testing.T) {
	t.Run("GetByID_Success", func(t *testing.T) {
		ctx, st := suite.New(t)

		sessionRepo := NewSessionRepository(st.Storage)

		// Given: a stored session with game and conversation state
		session := entity.NewSession("123", 15, 5, 10, "you play gomoku")
		session.Game.Board[7][7] = entity.CellPlayer
		session.Game.MoveHistory = []entity.Move{{Row: 7, Col: 7, Symbol: entity.CellPlayer}}
		session.Game.CurrentTurn = entity.CellAI
		session.Conversation.AppendTurn("board...", "reply...", 25)

		require.NoError(t, sessionRepo.CreateOrUpdate(ctx, session))

		// When: GetByID is called with the existing ID
		retrieved, err := sessionRepo.GetByID(ctx, session.ID)

		// Then: the whole session state survives the round trip
		require.NoError(t, err)
		require.Equal(t, session.ID, retrieved.ID)
		assert.Equal(t, entity.CellPlayer, retrieved.Game.Board[7][7])
		assert.Equal(t, entity.CellAI, retrieved.Game.CurrentTurn)
		assert.Equal(t, session.Game.MoveHistory, retrieved.Game.MoveHistory)
		assert.Equal(t, 25, retrieved.Conversation.TotalTokens())
		assert.Equal(t, 1, retrieved.Conversation.Pairs())
		assert.Equal(t, "you play gomoku", retrieved.Conversation.SystemPrompt())
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		sessionRepo := NewSessionRepository(st.Storage)

		// When: GetByID is called with a non-existent ID
		_, err := sessionRepo.GetByID(ctx, "9999999")

		// Then: an ErrSessionNotFound error should be returned
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})
}

func TestSessionRepository_DeleteByID(t *testing.T) {
	t.Run("DeleteByID_Success", func(t *testing.T) {
		ctx, st := suite.New(t)

		sessionRepo := NewSessionRepository(st.Storage)

		session := entity.NewSession("123", 15, 5, 10, "")
		require.NoError(t, sessionRepo.CreateOrUpdate(ctx, session))

		// When: DeleteByID is called with the existing ID
		require.NoError(t, sessionRepo.DeleteByID(ctx, session.ID))

		// Then: the session is gone
		_, err := sessionRepo.GetByID(ctx, session.ID)
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("DeleteByID_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		sessionRepo := NewSessionRepository(st.Storage)

		// When: DeleteByID is called with a non-existent ID
		err := sessionRepo.DeleteByID(ctx, "9999999")

		// Then: an ErrSessionNotFound error should be returned
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})
}
