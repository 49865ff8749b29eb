package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/usecase"
)

// sessionHeader identifies the game session; a fresh id is minted and echoed
// back when the client does not send one.
const sessionHeader = "X-Session-ID"

type Handlers struct {
	logger *slog.Logger
	game   *usecase.GameUseCase
}

func NewHandlers(logger *slog.Logger, game *usecase.GameUseCase) *Handlers {
	return &Handlers{
		logger: logger.With("component", "rest"),
		game:   game,
	}
}

type moveRequest struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (that *Handlers) Ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func (that *Handlers) State(w http.ResponseWriter, r *http.Request) {
	session, err := that.game.GetOrCreateSession(r.Context(), r.Header.Get(sessionHeader))
	if err != nil {
		that.writeError(w, err)
		return
	}
	w.Header().Set(sessionHeader, session.ID)

	game, err := that.game.State(r.Context(), session.ID)
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, game)
}

func (that *Handlers) Move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	session, err := that.game.GetOrCreateSession(r.Context(), r.Header.Get(sessionHeader))
	if err != nil {
		that.writeError(w, err)
		return
	}
	w.Header().Set(sessionHeader, session.ID)

	result, err := that.game.MakeMove(r.Context(), session.ID, req.Row, req.Col)
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, result)
}

func (that *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	session, err := that.game.GetOrCreateSession(r.Context(), r.Header.Get(sessionHeader))
	if err != nil {
		that.writeError(w, err)
		return
	}
	w.Header().Set(sessionHeader, session.ID)

	session, err = that.game.Reset(r.Context(), session.ID)
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, usecase.TurnResult{
		Success:   true,
		Message:   "game reset",
		GameState: session.Game,
	})
}

func (that *Handlers) Context(w http.ResponseWriter, r *http.Request) {
	session, err := that.game.GetOrCreateSession(r.Context(), r.Header.Get(sessionHeader))
	if err != nil {
		that.writeError(w, err)
		return
	}
	w.Header().Set(sessionHeader, session.ID)

	info, err := that.game.ContextInfo(r.Context(), session.ID)
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, info)
}

func (that *Handlers) Debug(w http.ResponseWriter, _ *http.Request) {
	snapshot, ok := that.game.DebugInfo()
	if !ok {
		that.writeJSON(w, http.StatusOK, map[string]any{"debug_enabled": false})
		return
	}

	that.writeJSON(w, http.StatusOK, map[string]any{
		"debug_enabled":        true,
		"last_request":         snapshot.Request,
		"last_response":        snapshot.Response,
		"last_request_time_ms": snapshot.LatencyMS,
	})
}

func (that *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperror.ErrOutOfRange),
		errors.Is(err, apperror.ErrCellOccupied),
		errors.Is(err, apperror.ErrNotYourTurn),
		errors.Is(err, apperror.ErrGameFinished):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrSessionNotFound):
		status = http.StatusNotFound
	default:
		that.logger.Error("request failed", "error", err)
	}

	that.writeJSON(w, status, errorResponse{Message: err.Error()})
}

func (that *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}
