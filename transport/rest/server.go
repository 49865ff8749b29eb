package rest

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/llmgomoku/gomoku-backend/internal/usecase"
)

func NewRouter(logger *slog.Logger, game *usecase.GameUseCase) http.Handler {
	h := NewHandlers(logger, game)

	r := chi.NewRouter()
	r.Get("/ping", h.Ping)
	r.Route("/api/game", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Post("/move", h.Move)
		r.Post("/reset", h.Reset)
		r.Get("/context", h.Context)
		r.Get("/debug", h.Debug)
	})

	return r
}

// Start - starts the HTTP server.
func Start(logger *slog.Logger, port string, game *usecase.GameUseCase) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(logger, game),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // a move request waits for the provider's retries
		IdleTimeout:  30 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
