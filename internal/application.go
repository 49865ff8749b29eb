package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/llmgomoku/gomoku-backend/internal/config"
	"github.com/llmgomoku/gomoku-backend/internal/provider"
	"github.com/llmgomoku/gomoku-backend/internal/repository"
	"github.com/llmgomoku/gomoku-backend/internal/repository/storage"
	"github.com/llmgomoku/gomoku-backend/internal/service"
	"github.com/llmgomoku/gomoku-backend/internal/usecase"
	"github.com/llmgomoku/gomoku-backend/transport/rest"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	prov, model, err := buildProvider(conf)
	if err != nil {
		return err
	}
	log.Info("provider initialized", "kind", prov.Name(), "model", model)

	sessions, closeStorage, err := buildSessionRepository(ctx, conf)
	if err != nil {
		return err
	}
	defer func() {
		if err = closeStorage(); err != nil {
			log.Error("could not close session storage", "error", err)
		}
	}()

	recorder := service.NewDebugRecorder(conf.Debug)
	arbiter := service.NewMoveArbiter(logger, prov, recorder, service.ArbiterOptions{
		MaxOutputTokens: conf.Provider.MaxOutputTokens,
		Temperature:     conf.Provider.Temperature,
	})

	gameUseCase := usecase.NewGameUseCase(logger, sessions, arbiter, recorder, usecase.Options{
		BoardSize:    conf.Game.BoardSize,
		WinLength:    conf.Game.WinLength,
		MaxHistory:   conf.Game.MaxHistory,
		SystemPrompt: conf.Game.SystemPrompt,
		ProviderName: prov.Name(),
		Model:        model,
	})

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(logger, conf.HTTPPort, gameUseCase); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

func buildProvider(conf *config.Config) (provider.Provider, string, error) {
	timeout := conf.Provider.Timeout()

	switch conf.Provider.Kind {
	case config.ProviderGemini:
		gemini := conf.Provider.Gemini
		return provider.NewGemini(gemini.BaseURL, gemini.APIKey, gemini.Model, timeout), gemini.Model, nil
	case config.ProviderLMStudio:
		lmstudio := conf.Provider.LMStudio
		return provider.NewLMStudio(lmstudio.BaseURL, lmstudio.Model, timeout), lmstudio.Model, nil
	default:
		return nil, "", fmt.Errorf("%w: unknown provider kind %q", config.ErrInvalidConfig, conf.Provider.Kind)
	}
}

func buildSessionRepository(ctx context.Context, conf *config.Config) (repository.SessionRepository, func() error, error) {
	if conf.Storage.Kind == config.StorageRedis {
		client, err := storage.New(ctx, conf.Storage.Redis.GetRedisAddr())
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		return repository.NewSessionRepository(client), client.Close, nil
	}

	return repository.NewMemorySessionRepository(), func() error { return nil }, nil
}
