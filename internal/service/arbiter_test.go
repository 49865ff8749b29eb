package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/entity"
	"github.com/llmgomoku/gomoku-backend/internal/provider"
)

const validReply = `{"analysis":"open board","move":{"row":7,"col":7},"reasoning":"take the center"}`

type stubResult struct {
	text string
	err  error
}

// stubProvider replays scripted results, one per call; the last result
// repeats once the script runs out.
type stubProvider struct {
	script []stubResult
	calls  []*provider.GenerateRequest
}

func (that *stubProvider) Name() string { return "stub" }

func (that *stubProvider) GenerateMove(_ context.Context, req *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	that.calls = append(that.calls, req)

	i := len(that.calls) - 1
	if i >= len(that.script) {
		i = len(that.script) - 1
	}

	result := that.script[i]
	if result.err != nil {
		return nil, result.err
	}

	return &provider.GenerateResponse{
		Text:  result.text,
		Usage: provider.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func newTestArbiter(prov provider.Provider, debugEnabled bool) (*MoveArbiter, *DebugRecorder) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := NewDebugRecorder(debugEnabled)

	return NewMoveArbiter(logger, prov, recorder, ArbiterOptions{
		MaxOutputTokens: 512,
		Temperature:     0.7,
	}), recorder
}

func newAITurnSession() *entity.Session {
	session := entity.NewSession("test", 15, 5, 10, "you play gomoku")
	session.Game.CurrentTurn = entity.CellAI
	return session
}

func TestMoveArbiter_ResolveTurn(t *testing.T) {
	t.Run("Applies a valid move on the first attempt", func(t *testing.T) {
		// Given: a provider that answers correctly right away
		prov := &stubProvider{script: []stubResult{{text: validReply}}}
		arbiter, recorder := newTestArbiter(prov, true)
		session := newAITurnSession()

		// When: the turn is resolved
		move, err := arbiter.ResolveTurn(context.Background(), session)

		// Then: the proposed move is applied as-is
		require.NoError(t, err)
		assert.Equal(t, 7, move.Row)
		assert.Equal(t, 7, move.Col)
		assert.False(t, move.Fallback)
		assert.Equal(t, "take the center", move.Reasoning)

		// And: exactly one board mutation, one conversation pair, one snapshot
		assert.Equal(t, entity.CellAI, session.Game.Board[7][7])
		assert.Len(t, session.Game.MoveHistory, 1)
		assert.Equal(t, entity.CellPlayer, session.Game.CurrentTurn)
		assert.Equal(t, 1, session.Conversation.Pairs())
		assert.Equal(t, 15, session.Conversation.TotalTokens())

		snapshot, ok := recorder.Snapshot()
		require.True(t, ok)
		assert.Equal(t, "stub", snapshot.Request.Provider)
		assert.Equal(t, validReply, snapshot.Response.Text)
	})

	t.Run("Recovers on the third attempt after malformed JSON", func(t *testing.T) {
		// Given: malformed replies on attempts 1 and 2, then a valid one
		prov := &stubProvider{script: []stubResult{
			{text: "the best move is clearly the center"},
			{text: `{"analysis":"missing the rest"}`},
			{text: validReply},
		}}
		arbiter, _ := newTestArbiter(prov, false)
		session := newAITurnSession()

		// When: the turn is resolved
		move, err := arbiter.ResolveTurn(context.Background(), session)

		// Then: the third reply is applied and no fallback was needed
		require.NoError(t, err)
		assert.False(t, move.Fallback)
		assert.Equal(t, 7, move.Row)
		require.Len(t, prov.calls, 3)

		// And: retries reuse the prompt, annotated with the rejection
		assert.Equal(t, prov.calls[0].UserTurnText, prov.calls[1].UserTurnText[:len(prov.calls[0].UserTurnText)])
		assert.Contains(t, prov.calls[1].UserTurnText, "rejected")
		assert.Contains(t, prov.calls[2].UserTurnText, "rejected")
	})

	t.Run("Falls back after the attempt budget is exhausted", func(t *testing.T) {
		// Given: a provider that fails on every attempt
		prov := &stubProvider{script: []stubResult{{err: apperror.ErrProvider}}}
		arbiter, _ := newTestArbiter(prov, false)
		session := newAITurnSession()

		// When: the turn is resolved
		move, err := arbiter.ResolveTurn(context.Background(), session)

		// Then: no provider error surfaces and the fallback move is applied
		require.NoError(t, err)
		require.NotNil(t, move)
		assert.True(t, move.Fallback)
		assert.Len(t, prov.calls, DefaultAttemptBudget)

		// And: the board center is chosen on an empty board, mutated exactly once
		assert.Equal(t, 7, move.Row)
		assert.Equal(t, 7, move.Col)
		assert.Len(t, session.Game.MoveHistory, 1)
		assert.Equal(t, 1, session.Conversation.Pairs())
	})

	t.Run("Occupied-cell proposals exhaust the budget and fall back", func(t *testing.T) {
		// Given: a board where the center is taken and a provider that keeps proposing it
		prov := &stubProvider{script: []stubResult{{text: validReply}}}
		arbiter, _ := newTestArbiter(prov, false)
		session := newAITurnSession()
		session.Game.Board[7][7] = entity.CellPlayer

		// When: the turn is resolved
		move, err := arbiter.ResolveTurn(context.Background(), session)

		// Then: the fallback picks the nearest free cell instead
		require.NoError(t, err)
		assert.True(t, move.Fallback)
		assert.Len(t, prov.calls, DefaultAttemptBudget)
		assert.NotEqual(t, entity.Coord{Row: 7, Col: 7}, entity.Coord{Row: move.Row, Col: move.Col})
		assert.Equal(t, entity.CellAI, session.Game.Board[move.Row][move.Col])
	})

	t.Run("Out-of-range coordinates are a parse failure", func(t *testing.T) {
		// Given: coordinates beyond the board, then a valid reply
		prov := &stubProvider{script: []stubResult{
			{text: `{"analysis":"a","move":{"row":15,"col":0},"reasoning":"r"}`},
			{text: validReply},
		}}
		arbiter, _ := newTestArbiter(prov, false)
		session := newAITurnSession()

		// When: the turn is resolved
		move, err := arbiter.ResolveTurn(context.Background(), session)

		// Then: the second, in-range reply wins
		require.NoError(t, err)
		assert.False(t, move.Fallback)
		require.Len(t, prov.calls, 2)
	})

	t.Run("Markdown-fenced JSON is tolerated", func(t *testing.T) {
		// Given: a reply wrapped in a code fence
		prov := &stubProvider{script: []stubResult{
			{text: "```json\n" + validReply + "\n```"},
		}}
		arbiter, _ := newTestArbiter(prov, false)
		session := newAITurnSession()

		// When: the turn is resolved
		move, err := arbiter.ResolveTurn(context.Background(), session)

		// Then: the fenced payload parses fine
		require.NoError(t, err)
		assert.False(t, move.Fallback)
		assert.Equal(t, 7, move.Row)
	})

	t.Run("Winning fallback move ends the game", func(t *testing.T) {
		// Given: the AI already has four in a row next to the center
		prov := &stubProvider{script: []stubResult{{err: apperror.ErrProvider}}}
		arbiter, _ := newTestArbiter(prov, false)
		session := newAITurnSession()
		for _, col := range []int{3, 4, 5, 6} {
			session.Game.Board[7][col] = entity.CellAI
		}

		// When: the fallback takes the center at (7,7)
		move, err := arbiter.ResolveTurn(context.Background(), session)

		// Then: the run is completed and the AI wins
		require.NoError(t, err)
		assert.Equal(t, 7, move.Row)
		assert.Equal(t, 7, move.Col)
		require.True(t, session.Game.GameOver)
		require.NotNil(t, session.Game.Winner)
		assert.Equal(t, entity.CellAI, *session.Game.Winner)
	})
}

func TestFallbackMove(t *testing.T) {
	t.Run("Prefers the cell nearest the center", func(t *testing.T) {
		// Given: an empty 15x15 board
		game := entity.NewGame(15, 5)
		game.CurrentTurn = entity.CellAI

		move, err := fallbackMove(game)

		require.NoError(t, err)
		assert.Equal(t, 7, move.Row)
		assert.Equal(t, 7, move.Col)
		assert.True(t, move.Fallback)
	})

	t.Run("Breaks distance ties in row-major order", func(t *testing.T) {
		// Given: a 3x3 board with the center taken; (0,1), (1,0), (1,2), (2,1)
		// are all at distance 1
		game := entity.NewGame(3, 3)
		game.Board[1][1] = entity.CellPlayer

		move, err := fallbackMove(game)

		// Then: the row-major smallest of the tied cells wins
		require.NoError(t, err)
		assert.Equal(t, 0, move.Row)
		assert.Equal(t, 1, move.Col)
	})

	t.Run("Full board yields ErrNoEmptyCells", func(t *testing.T) {
		game := entity.NewGame(2, 2)
		for row := range game.Board {
			for col := range game.Board[row] {
				game.Board[row][col] = entity.CellPlayer
			}
		}

		_, err := fallbackMove(game)
		require.ErrorIs(t, err, apperror.ErrNoEmptyCells)
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("Missing required fields", func(t *testing.T) {
		for _, text := range []string{
			`{}`,
			`{"analysis":"a","reasoning":"r"}`,
			`{"analysis":"a","move":{},"reasoning":"r"}`,
			`{"analysis":"a","move":{"row":1},"reasoning":"r"}`,
			`{"move":{"row":1,"col":1},"reasoning":"r"}`,
		} {
			_, err := parseResponse(text, 15)
			require.ErrorIs(t, err, apperror.ErrParse, "input: %s", text)
		}
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		_, err := parseResponse("definitely not json", 15)
		require.ErrorIs(t, err, apperror.ErrParse)
	})

	t.Run("Valid reply", func(t *testing.T) {
		move, err := parseResponse(validReply, 15)
		require.NoError(t, err)
		assert.Equal(t, 7, move.Row)
		assert.Equal(t, 7, move.Col)
		assert.Equal(t, "open board", move.Analysis)
		assert.Equal(t, "take the center", move.Reasoning)
	})
}
