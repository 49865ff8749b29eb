package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/conversation"
)

// Gemini - client for the hosted generateContent API with schema-constrained
// JSON output.
type Gemini struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewGemini(baseURL, apiKey, model string, timeout time.Duration) *Gemini {
	return &Gemini{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

func (that *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  geminiGeneration `json:"generationConfig"`
}

type geminiGeneration struct {
	MaxOutputTokens  int            `json:"maxOutputTokens"`
	Temperature      float64        `json:"temperature"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (that *Gemini) GenerateMove(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	payload := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.History)+1),
		GenerationConfig: geminiGeneration{
			MaxOutputTokens: req.Generation.MaxOutputTokens,
			Temperature:     req.Generation.Temperature,
		},
	}

	if req.SystemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	if req.Generation.ResponseSchema != nil {
		payload.GenerationConfig.ResponseMimeType = "application/json"
		payload.GenerationConfig.ResponseSchema = req.Generation.ResponseSchema
	}

	for _, msg := range req.History {
		if msg.Role == conversation.RoleSystem {
			continue // carried in systemInstruction instead
		}
		parts := make([]geminiPart, 0, len(msg.Parts))
		for _, text := range msg.Parts {
			parts = append(parts, geminiPart{Text: text})
		}
		payload.Contents = append(payload.Contents, geminiContent{Role: msg.Role, Parts: parts})
	}

	payload.Contents = append(payload.Contents, geminiContent{
		Role:  conversation.RoleUser,
		Parts: []geminiPart{{Text: req.UserTurnText}},
	})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", that.baseURL, that.model, url.QueryEscape(that.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %w", apperror.ErrProvider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := that.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini call: %w", apperror.ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read gemini response: %w", apperror.ErrProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gemini returned status %d: %s", apperror.ErrProvider, resp.StatusCode, truncate(raw, 200))
	}

	var decoded geminiResponse
	if err = json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: failed to decode gemini response: %w", apperror.ErrProvider, err)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no candidates", apperror.ErrProvider)
	}

	return &GenerateResponse{
		Text: decoded.Candidates[0].Content.Parts[0].Text,
		Usage: TokenUsage{
			PromptTokens:     decoded.UsageMetadata.PromptTokenCount,
			CompletionTokens: decoded.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

func truncate(raw []byte, limit int) string {
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
