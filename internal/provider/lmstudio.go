package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/conversation"
)

// LMStudio - client for a locally reachable OpenAI-compatible completion
// endpoint. The contract matches Gemini's at the Provider boundary; role
// names and the schema envelope differ on the wire.
type LMStudio struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewLMStudio(baseURL, model string, timeout time.Duration) *LMStudio {
	return &LMStudio{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}
}

func (that *LMStudio) Name() string { return "lmstudio" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (that *LMStudio) GenerateMove(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	messages := make([]chatMessage, 0, len(req.History)+2)

	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}

	for _, msg := range req.History {
		role := msg.Role
		switch role {
		case conversation.RoleModel:
			role = "assistant"
		case conversation.RoleSystem:
			continue // already sent as the leading system message
		}
		messages = append(messages, chatMessage{Role: role, Content: strings.Join(msg.Parts, "\n")})
	}

	messages = append(messages, chatMessage{Role: "user", Content: req.UserTurnText})

	payload := chatRequest{
		Model:       that.model,
		Messages:    messages,
		MaxTokens:   req.Generation.MaxOutputTokens,
		Temperature: req.Generation.Temperature,
	}

	if req.Generation.ResponseSchema != nil {
		payload.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "gomoku_move",
				Schema: req.Generation.ResponseSchema,
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lmstudio request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, that.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %w", apperror.ErrProvider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := that.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: lmstudio call: %w", apperror.ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read lmstudio response: %w", apperror.ErrProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: lmstudio returned status %d: %s", apperror.ErrProvider, resp.StatusCode, truncate(raw, 200))
	}

	var decoded chatResponse
	if err = json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: failed to decode lmstudio response: %w", apperror.ErrProvider, err)
	}

	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%w: lmstudio returned no choices", apperror.ErrProvider)
	}

	text := decoded.Choices[0].Message.Content

	usage := TokenUsage{
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
	}
	// local backends often omit usage; fall back to a rough estimate
	if usage.Total() == 0 {
		usage.PromptTokens = conversation.EstimateTokens(req.UserTurnText)
		usage.CompletionTokens = conversation.EstimateTokens(text)
	}

	return &GenerateResponse{Text: text, Usage: usage}, nil
}
