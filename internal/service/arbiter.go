package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/entity"
	"github.com/llmgomoku/gomoku-backend/internal/gomoku"
	"github.com/llmgomoku/gomoku-backend/internal/provider"
)

// DefaultAttemptBudget is how many provider attempts a turn gets before the
// deterministic fallback takes over.
const DefaultAttemptBudget = 3

const recentMovesInPrompt = 6

// turnState enumerates the arbiter's per-turn state machine. Transitions are
// explicit so the attempt budget and each step can be tested without a
// network in sight.
type turnState int

const (
	stateBuildPrompt turnState = iota
	stateCallProvider
	stateParseResponse
	stateValidateMove
	stateApply
	stateFallback
)

// AIMove is the resolved outcome of one AI turn.
type AIMove struct {
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Analysis  string `json:"analysis,omitempty"`
	Reasoning string `json:"reasoning"`
	Fallback  bool   `json:"fallback,omitempty"`
}

type ArbiterOptions struct {
	AttemptBudget   int
	MaxOutputTokens int
	Temperature     float64
}

// MoveArbiter turns an unreliable completion backend into a guaranteed legal
// move. Not reentrant-safe for the same session; the caller serializes turns.
type MoveArbiter struct {
	logger   *slog.Logger
	provider provider.Provider
	recorder *DebugRecorder
	opts     ArbiterOptions
}

func NewMoveArbiter(logger *slog.Logger, prov provider.Provider, recorder *DebugRecorder, opts ArbiterOptions) *MoveArbiter {
	if opts.AttemptBudget <= 0 {
		opts.AttemptBudget = DefaultAttemptBudget
	}

	return &MoveArbiter{
		logger:   logger.With("component", "arbiter"),
		provider: prov,
		recorder: recorder,
		opts:     opts,
	}
}

// turn carries the mutable state of one resolution through the state machine.
type turn struct {
	session   *entity.Session
	prompt    string // built once, reused verbatim across attempts
	retryNote string // annotation describing the prior invalid attempt
	attempt   int
	raw       *provider.GenerateResponse
	candidate *AIMove
	started   time.Time
	latency   time.Duration
}

// ResolveTurn - resolves exactly one AI move for the session: build the
// prompt, call the provider, parse and validate, retry within the attempt
// budget, fall back deterministically once it is exhausted. Provider, parse
// and invalid-move failures never escape; the returned error is reserved for
// conditions no retry can fix (such as a finished or full board).
func (that *MoveArbiter) ResolveTurn(ctx context.Context, session *entity.Session) (*AIMove, error) {
	t := &turn{session: session}

	state := stateBuildPrompt
	for {
		switch state {
		case stateBuildPrompt:
			t.prompt = that.buildPrompt(session.Game)
			state = stateCallProvider

		case stateCallProvider:
			if err := that.callProvider(ctx, t); err != nil {
				state = that.failAttempt(t, err)
				continue
			}
			state = stateParseResponse

		case stateParseResponse:
			candidate, err := parseResponse(t.raw.Text, session.Game.BoardSize)
			if err != nil {
				state = that.failAttempt(t, err)
				continue
			}
			t.candidate = candidate
			state = stateValidateMove

		case stateValidateMove:
			if err := validateCandidate(session.Game, t.candidate); err != nil {
				state = that.failAttempt(t, err)
				continue
			}
			state = stateApply

		case stateFallback:
			candidate, err := fallbackMove(session.Game)
			if err != nil {
				return nil, err
			}
			t.candidate = candidate
			that.logger.Info("attempt budget exhausted, using fallback move",
				"row", candidate.Row, "col", candidate.Col)
			state = stateApply

		case stateApply:
			return that.apply(t)
		}
	}
}

// failAttempt - books one failed attempt and decides between retry and
// fallback. Retries reuse the same prompt, annotated with what went wrong.
func (that *MoveArbiter) failAttempt(t *turn, err error) turnState {
	t.attempt++
	that.logger.Warn("AI move attempt failed",
		"attempt", t.attempt, "budget", that.opts.AttemptBudget, "error", err)

	if t.attempt >= that.opts.AttemptBudget {
		return stateFallback
	}

	t.retryNote = fmt.Sprintf("Your previous reply was rejected: %v. "+
		"Reply with a single JSON object and choose an empty cell (value 0).", err)

	return stateCallProvider
}

func (that *MoveArbiter) callProvider(ctx context.Context, t *turn) error {
	game := t.session.Game

	userText := t.prompt
	if t.retryNote != "" {
		userText = t.prompt + "\n\n" + t.retryNote
	}

	snapshot := t.session.Conversation.Snapshot()
	history := make([]provider.Message, 0, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		history = append(history, provider.Message{Role: entry.Role, Parts: entry.Parts})
	}

	req := &provider.GenerateRequest{
		SystemPrompt: t.session.Conversation.SystemPrompt(),
		History:      history,
		UserTurnText: userText,
		Generation: provider.GenerationConfig{
			MaxOutputTokens: that.opts.MaxOutputTokens,
			Temperature:     that.opts.Temperature,
			ResponseSchema:  provider.MoveResponseSchema(game.BoardSize),
		},
	}

	t.started = time.Now()
	resp, err := that.provider.GenerateMove(ctx, req)
	t.latency = time.Since(t.started)
	if err != nil {
		return err
	}

	t.raw = resp

	return nil
}

// apply - commits the resolved move: exactly one board mutation, one
// conversation pair, one debug snapshot overwrite.
func (that *MoveArbiter) apply(t *turn) (*AIMove, error) {
	game := t.session.Game
	candidate := t.candidate

	if err := gomoku.ApplyMove(game, candidate.Row, candidate.Col, entity.CellAI); err != nil {
		return nil, fmt.Errorf("failed to apply AI move: %w", err)
	}

	modelText := candidate.modelText(t.raw)

	var tokens int
	if t.raw != nil {
		tokens = t.raw.Usage.Total()
	}
	t.session.Conversation.AppendTurn(t.prompt, modelText, tokens)

	that.recorder.Record(that.provider.Name(), t.prompt, t.raw, t.started, t.latency)

	that.logger.Info("AI move applied",
		"row", candidate.Row, "col", candidate.Col,
		"fallback", candidate.Fallback, "attempts_failed", t.attempt)

	return candidate, nil
}

// modelText - what gets recorded as the model's reply in the conversation.
// After a fallback there is no trustworthy raw text, so a reply claiming the
// fallback move is synthesized to keep the history consistent.
func (that *AIMove) modelText(raw *provider.GenerateResponse) string {
	if !that.Fallback && raw != nil {
		return raw.Text
	}

	synthesized, err := json.Marshal(struct {
		Analysis  string       `json:"analysis"`
		Move      entity.Coord `json:"move"`
		Reasoning string       `json:"reasoning"`
	}{
		Move:      entity.Coord{Row: that.Row, Col: that.Col},
		Reasoning: that.Reasoning,
	})
	if err != nil {
		return that.Reasoning
	}

	return string(synthesized)
}

func (that *MoveArbiter) buildPrompt(game *entity.Game) string {
	var sb strings.Builder

	sb.WriteString("Analyze the position and choose your next move.\n\n")
	sb.WriteString(game.BoardString())
	sb.WriteString("\ngame info:\n")
	sb.WriteString("- you are the AI, playing symbol 2\n")
	sb.WriteString("- the opponent is the human, playing symbol 1\n")
	sb.WriteString("- it is your turn\n")
	fmt.Fprintf(&sb, "- goal: connect %d in a row\n", game.WinLength)

	history := game.MoveHistory
	if len(history) > recentMovesInPrompt {
		history = history[len(history)-recentMovesInPrompt:]
	}

	if len(history) > 0 {
		sb.WriteString("\nrecent moves:\n")
		for i, move := range history {
			name := "human"
			if move.Symbol == entity.CellAI {
				name = "AI"
			}
			fmt.Fprintf(&sb, "%d. %s at (%d, %d)\n", i+1, name, move.Row, move.Col)
		}
	}

	sb.WriteString("\nPick the best cell. It must be empty (value 0)!")

	return sb.String()
}

// moveReply mirrors the response schema; pointers distinguish a missing
// field from a zero value.
type moveReply struct {
	Analysis *string `json:"analysis"`
	Move     *struct {
		Row *int `json:"row"`
		Col *int `json:"col"`
	} `json:"move"`
	Reasoning *string `json:"reasoning"`
}

// parseResponse - parses the raw completion text against the response
// schema. Markdown code fences are tolerated; everything else is strict.
func parseResponse(text string, boardSize int) (*AIMove, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var reply moveReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %w", apperror.ErrParse, err)
	}

	if reply.Analysis == nil || reply.Reasoning == nil || reply.Move == nil ||
		reply.Move.Row == nil || reply.Move.Col == nil {
		return nil, fmt.Errorf("%w: missing required fields", apperror.ErrParse)
	}

	row, col := *reply.Move.Row, *reply.Move.Col
	if row < 0 || row >= boardSize || col < 0 || col >= boardSize {
		return nil, fmt.Errorf("%w: coordinates (%d, %d) out of range", apperror.ErrParse, row, col)
	}

	return &AIMove{
		Row:       row,
		Col:       col,
		Analysis:  *reply.Analysis,
		Reasoning: *reply.Reasoning,
	}, nil
}

func validateCandidate(game *entity.Game, candidate *AIMove) error {
	if game.Board[candidate.Row][candidate.Col] != entity.CellEmpty {
		return fmt.Errorf("%w: (%d, %d)", apperror.ErrInvalidAIMove, candidate.Row, candidate.Col)
	}

	return nil
}

// fallbackMove - deterministic provider-independent move selection: the
// empty cell with the smallest Manhattan distance to the board center, ties
// broken by row-major order.
func fallbackMove(game *entity.Game) (*AIMove, error) {
	center := game.BoardSize / 2

	best := entity.Coord{Row: -1, Col: -1}
	bestDistance := -1

	for row := 0; row < game.BoardSize; row++ {
		for col := 0; col < game.BoardSize; col++ {
			if game.Board[row][col] != entity.CellEmpty {
				continue
			}

			distance := abs(row-center) + abs(col-center)
			if bestDistance < 0 || distance < bestDistance {
				bestDistance = distance
				best = entity.Coord{Row: row, Col: col}
			}
		}
	}

	if bestDistance < 0 {
		return nil, apperror.ErrNoEmptyCells
	}

	return &AIMove{
		Row:       best.Row,
		Col:       best.Col,
		Reasoning: "fallback: nearest empty cell to the board center",
		Fallback:  true,
	}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
