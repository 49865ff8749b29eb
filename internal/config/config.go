package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	ProviderGemini   = "gemini"
	ProviderLMStudio = "lmstudio"

	StorageMemory = "memory"
	StorageRedis  = "redis"
)

var ErrInvalidConfig = errors.New("invalid config")

// DefaultSystemPrompt is used when the config does not override it.
const DefaultSystemPrompt = `You are a gomoku (five-in-a-row) player. You play as symbol 2 (AI); ` +
	`your opponent is symbol 1 (human); 0 marks an empty cell. On every turn you receive the ` +
	`current board and the recent move history. Reply with a single JSON object containing the ` +
	`keys "analysis", "move" (an object with "row" and "col") and "reasoning". The move must ` +
	`address an empty cell.`

type Config struct {
	LogLevel string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort string   `yaml:"http-port" env:"HTTP_PORT" env-default:"8080"`
	Debug    bool     `yaml:"debug" env:"DEBUG" env-default:"false"`
	Game     Game     `yaml:"game"`
	Provider Provider `yaml:"provider"`
	Storage  Storage  `yaml:"storage"`
}

type Game struct {
	BoardSize    int    `yaml:"board-size" env-default:"15"`
	WinLength    int    `yaml:"win-length" env-default:"5"`
	MaxHistory   int    `yaml:"max-history" env-default:"10"`
	SystemPrompt string `yaml:"system-prompt"`
}

type Provider struct {
	Kind            string   `yaml:"kind" env:"PROVIDER_KIND" env-default:"lmstudio"`
	MaxOutputTokens int      `yaml:"max-output-tokens" env-default:"2048"`
	Temperature     float64  `yaml:"temperature" env-default:"0.7"`
	TimeoutSeconds  int      `yaml:"timeout-seconds" env-default:"60"`
	Gemini          Gemini   `yaml:"gemini"`
	LMStudio        LMStudio `yaml:"lmstudio"`
}

type Gemini struct {
	BaseURL string `yaml:"base-url" env-default:"https://generativelanguage.googleapis.com/v1beta"`
	APIKey  string `yaml:"api-key" env:"GEMINI_API_KEY"`
	Model   string `yaml:"model" env-default:"gemini-2.0-flash"`
}

type LMStudio struct {
	BaseURL string `yaml:"base-url" env:"LMSTUDIO_BASE_URL" env-default:"http://localhost:1234/v1"`
	Model   string `yaml:"model" env-default:"deepseek-r1-0528-qwen3-8b"`
}

type Storage struct {
	Kind  string `yaml:"kind" env-default:"memory"`
	Redis Redis  `yaml:"redis"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

// MustLoad - load all configurations from the config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	if config.Game.SystemPrompt == "" {
		config.Game.SystemPrompt = DefaultSystemPrompt
	}

	if err := config.Validate(); err != nil {
		panic(err)
	}

	return config
}

// Validate - checks the startup invariants. A violation is fatal: the
// arbiter can recover from a flaky provider, but not from a broken setup.
func (that *Config) Validate() error {
	if that.Game.BoardSize < 1 {
		return fmt.Errorf("%w: board size must be at least 1, got %d", ErrInvalidConfig, that.Game.BoardSize)
	}

	if that.Game.WinLength < 1 || that.Game.WinLength > that.Game.BoardSize {
		return fmt.Errorf("%w: win length must be between 1 and board size, got %d", ErrInvalidConfig, that.Game.WinLength)
	}

	if that.Game.MaxHistory < 1 {
		return fmt.Errorf("%w: max history must be at least 1, got %d", ErrInvalidConfig, that.Game.MaxHistory)
	}

	if that.Provider.MaxOutputTokens < 1 {
		return fmt.Errorf("%w: max output tokens must be at least 1", ErrInvalidConfig)
	}

	switch that.Provider.Kind {
	case ProviderGemini:
		if that.Provider.Gemini.APIKey == "" {
			return fmt.Errorf("%w: gemini provider requires an api key", ErrInvalidConfig)
		}
	case ProviderLMStudio:
		if that.Provider.LMStudio.BaseURL == "" {
			return fmt.Errorf("%w: lmstudio provider requires a base url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider kind %q", ErrInvalidConfig, that.Provider.Kind)
	}

	switch that.Storage.Kind {
	case StorageMemory, StorageRedis:
	default:
		return fmt.Errorf("%w: unknown storage kind %q", ErrInvalidConfig, that.Storage.Kind)
	}

	return nil
}

func (that *Provider) Timeout() time.Duration {
	return time.Duration(that.TimeoutSeconds) * time.Second
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
