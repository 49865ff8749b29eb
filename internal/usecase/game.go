package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/conversation"
	"github.com/llmgomoku/gomoku-backend/internal/entity"
	"github.com/llmgomoku/gomoku-backend/internal/gomoku"
	"github.com/llmgomoku/gomoku-backend/internal/repository"
	"github.com/llmgomoku/gomoku-backend/internal/service"
)

type turnResolver interface {
	ResolveTurn(ctx context.Context, session *entity.Session) (*service.AIMove, error)
}

type Options struct {
	BoardSize    int
	WinLength    int
	MaxHistory   int
	SystemPrompt string
	ProviderName string
	Model        string
}

// GameUseCase orchestrates one turn end to end: the human move is applied
// directly, the AI reply goes through the arbiter. Each session's mutations
// are serialized by a per-session lock; the arbiter itself is never entered
// twice for the same session.
type GameUseCase struct {
	logger   *slog.Logger
	sessions repository.SessionRepository
	arbiter  turnResolver
	recorder *service.DebugRecorder
	opts     Options

	// locks holds one mutex per session id, never evicted: a mutex is a
	// few words and the API has no session-delete operation that could
	// retire one safely while requests for the id may still arrive.
	locks sync.Map // session id -> *sync.Mutex
}

func NewGameUseCase(logger *slog.Logger, sessions repository.SessionRepository, arbiter turnResolver, recorder *service.DebugRecorder, opts Options) *GameUseCase {
	return &GameUseCase{
		logger:   logger.With("component", "game_usecase"),
		sessions: sessions,
		arbiter:  arbiter,
		recorder: recorder,
		opts:     opts,
	}
}

// TurnResult is the contract of the move endpoint.
type TurnResult struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	GameState *entity.Game    `json:"game_state"`
	AIMove    *service.AIMove `json:"ai_move,omitempty"`
}

type ContextInfo struct {
	Provider    string               `json:"llm_provider"`
	Model       string               `json:"model"`
	Pairs       int                  `json:"conversation_count"`
	MaxHistory  int                  `json:"max_conversation_history"`
	TotalTokens int                  `json:"total_consumed_tokens"`
	History     []conversation.Entry `json:"context_history"`
	LastAIMove  *entity.Coord        `json:"last_ai_move,omitempty"`
}

func (that *GameUseCase) sessionLock(id string) *sync.Mutex {
	lock, _ := that.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// GetOrCreateSession - returns the session for the given id, minting a new
// one (with a fresh uuid when id is empty) if none exists.
func (that *GameUseCase) GetOrCreateSession(ctx context.Context, id string) (*entity.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	session, err := that.sessions.GetByID(ctx, id)
	if err == nil {
		return session, nil
	}

	if !errors.Is(err, apperror.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session = entity.NewSession(id, that.opts.BoardSize, that.opts.WinLength, that.opts.MaxHistory, that.opts.SystemPrompt)
	if err = that.sessions.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	that.logger.Info("session created", "session_id", id)

	return session, nil
}

// MakeMove - applies the human move and, if the game continues, resolves the
// AI reply through the arbiter. Validation failures reject the move with no
// state change; AI-turn failures are absorbed inside the arbiter.
func (that *GameUseCase) MakeMove(ctx context.Context, sessionID string, row, col int) (*TurnResult, error) {
	lock := that.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := that.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	game := session.Game

	if game.GameOver {
		return nil, apperror.ErrGameFinished
	}

	if game.CurrentTurn != entity.CellPlayer {
		return nil, apperror.ErrNotYourTurn
	}

	if err = gomoku.ApplyMove(game, row, col, entity.CellPlayer); err != nil {
		return nil, err
	}

	that.logger.Info("player move applied", "session_id", sessionID, "row", row, "col", col)

	if game.GameOver {
		if err = that.sessions.CreateOrUpdate(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}

		return &TurnResult{
			Success:   true,
			Message:   endMessage(game),
			GameState: game.Clone(),
		}, nil
	}

	aiMove, err := that.arbiter.ResolveTurn(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve AI turn: %w", err)
	}

	if err = that.sessions.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	message := "move accepted, your turn"
	if game.GameOver {
		message = endMessage(game)
	}

	return &TurnResult{
		Success:   true,
		Message:   message,
		GameState: game.Clone(),
		AIMove:    aiMove,
	}, nil
}

// Reset - reinitializes the board and conversation in place. The returned
// session carries a detached copy of the game state.
func (that *GameUseCase) Reset(ctx context.Context, sessionID string) (*entity.Session, error) {
	lock := that.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := that.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.Reset()

	if err = that.sessions.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	that.logger.Info("session reset", "session_id", sessionID)

	return &entity.Session{
		ID:           session.ID,
		Game:         session.Game.Clone(),
		Conversation: session.Conversation,
	}, nil
}

// State - returns a detached copy of the board state. The read takes the
// session lock, so a state poll issued while a move is resolving observes
// the board either before or after the turn, never mid-mutation.
func (that *GameUseCase) State(ctx context.Context, sessionID string) (*entity.Game, error) {
	lock := that.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := that.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session.Game.Clone(), nil
}

func (that *GameUseCase) ContextInfo(ctx context.Context, sessionID string) (*ContextInfo, error) {
	lock := that.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := that.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	snapshot := session.Conversation.Snapshot()

	var lastAIMove *entity.Coord
	if session.Game.LastAIMove != nil {
		last := *session.Game.LastAIMove
		lastAIMove = &last
	}

	return &ContextInfo{
		Provider:    that.opts.ProviderName,
		Model:       that.opts.Model,
		Pairs:       snapshot.Pairs,
		MaxHistory:  snapshot.MaxHistory,
		TotalTokens: snapshot.TotalTokens,
		History:     snapshot.Entries,
		LastAIMove:  lastAIMove,
	}, nil
}

func (that *GameUseCase) DebugInfo() (service.DebugSnapshot, bool) {
	return that.recorder.Snapshot()
}

func endMessage(game *entity.Game) string {
	if game.Winner == nil {
		return "game over"
	}

	switch *game.Winner {
	case entity.CellPlayer:
		return "game over - you win!"
	case entity.CellAI:
		return "game over - AI wins!"
	default:
		return "game over - draw!"
	}
}
