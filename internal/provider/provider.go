// Package provider abstracts the text-completion backends that produce
// candidate moves. Both implementations speak plain HTTP; a call has no side
// effects beyond the network exchange and is safe to repeat verbatim.
package provider

import "context"

type Message struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

type GenerationConfig struct {
	MaxOutputTokens int
	Temperature     float64
	ResponseSchema  map[string]any
}

type GenerateRequest struct {
	SystemPrompt string
	History      []Message
	UserTurnText string
	Generation   GenerationConfig
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (that TokenUsage) Total() int {
	return that.PromptTokens + that.CompletionTokens
}

// GenerateResponse carries the raw completion text; parsing it into a move
// is the arbiter's job, not the provider's.
type GenerateResponse struct {
	Text  string
	Usage TokenUsage
}

type Provider interface {
	Name() string
	GenerateMove(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// MoveResponseSchema - the schema the completion is constrained to: an
// analysis, a move with in-range coordinates, and the reasoning behind it.
func MoveResponseSchema(boardSize int) map[string]any {
	coordinate := func() map[string]any {
		return map[string]any{
			"type":    "integer",
			"minimum": 0,
			"maximum": boardSize - 1,
		}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"analysis": map[string]any{"type": "string"},
			"move": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"row": coordinate(),
					"col": coordinate(),
				},
				"required": []string{"row", "col"},
			},
			"reasoning": map[string]any{"type": "string"},
		},
		"required": []string{"analysis", "move", "reasoning"},
	}
}
