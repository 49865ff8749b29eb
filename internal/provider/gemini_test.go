package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgomoku/gomoku-backend/internal/apperror"
	"github.com/llmgomoku/gomoku-backend/internal/conversation"
)

func TestGemini_GenerateMove(t *testing.T) {
	t.Run("Sends the schema-constrained request and extracts the candidate text", func(t *testing.T) {
		// Given: a server that captures the request and answers with one candidate
		var captured map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
			require.Equal(t, "test-key", r.URL.Query().Get("key"))

			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"parts": []map[string]any{{"text": `{"analysis":"a","move":{"row":7,"col":7},"reasoning":"r"}`}},
					},
					"finishReason": "STOP",
				}},
				"usageMetadata": map[string]any{
					"promptTokenCount":     120,
					"candidatesTokenCount": 30,
				},
			})
		}))
		defer server.Close()

		client := NewGemini(server.URL, "test-key", "gemini-2.0-flash", time.Second)

		// When: a move is generated with one prior pair of history
		resp, err := client.GenerateMove(context.Background(), &GenerateRequest{
			SystemPrompt: "you play gomoku",
			History: []Message{
				{Role: conversation.RoleUser, Parts: []string{"earlier board"}},
				{Role: conversation.RoleModel, Parts: []string{"earlier reply"}},
			},
			UserTurnText: "current board",
			Generation: GenerationConfig{
				MaxOutputTokens: 512,
				Temperature:     0.7,
				ResponseSchema:  MoveResponseSchema(15),
			},
		})

		// Then: the raw text and token usage come back
		require.NoError(t, err)
		assert.Contains(t, resp.Text, `"row":7`)
		assert.Equal(t, 150, resp.Usage.Total())

		// And: the wire request carries system instruction, history and schema mode
		require.NotNil(t, captured["systemInstruction"])

		contents := captured["contents"].([]any)
		require.Len(t, contents, 3) // history pair + current turn
		last := contents[2].(map[string]any)
		assert.Equal(t, "user", last["role"])

		generation := captured["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", generation["responseMimeType"])
		assert.NotNil(t, generation["responseSchema"])
		assert.EqualValues(t, 512, generation["maxOutputTokens"])
	})

	t.Run("Non-success status wraps ErrProvider", func(t *testing.T) {
		// Given: a server that always fails
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewGemini(server.URL, "test-key", "gemini-2.0-flash", time.Second)

		// When: a move is requested
		_, err := client.GenerateMove(context.Background(), &GenerateRequest{UserTurnText: "board"})

		// Then: the failure is a provider error
		require.ErrorIs(t, err, apperror.ErrProvider)
	})

	t.Run("Empty candidate list wraps ErrProvider", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
		}))
		defer server.Close()

		client := NewGemini(server.URL, "test-key", "gemini-2.0-flash", time.Second)

		_, err := client.GenerateMove(context.Background(), &GenerateRequest{UserTurnText: "board"})
		require.ErrorIs(t, err, apperror.ErrProvider)
	})

	t.Run("Transport failure wraps ErrProvider", func(t *testing.T) {
		// Given: a server that is already gone
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close()

		client := NewGemini(server.URL, "test-key", "gemini-2.0-flash", time.Second)

		_, err := client.GenerateMove(context.Background(), &GenerateRequest{UserTurnText: "board"})
		require.ErrorIs(t, err, apperror.ErrProvider)
	})
}
