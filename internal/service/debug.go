package service

import (
	"sync"
	"time"

	"github.com/llmgomoku/gomoku-backend/internal/provider"
)

type DebugRequest struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Prompt    string    `json:"prompt"`
}

type DebugResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

type DebugSnapshot struct {
	Request   DebugRequest  `json:"last_request"`
	Response  DebugResponse `json:"last_response"`
	LatencyMS int64         `json:"last_request_time_ms"`
}

// DebugRecorder keeps only the most recent request/response pair; every AI
// turn overwrites the previous one. Nothing is ever persisted.
type DebugRecorder struct {
	mu      sync.Mutex
	enabled bool
	last    *DebugSnapshot
}

func NewDebugRecorder(enabled bool) *DebugRecorder {
	return &DebugRecorder{enabled: enabled}
}

func (that *DebugRecorder) Enabled() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.enabled
}

func (that *DebugRecorder) SetEnabled(enabled bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.enabled = enabled
	if !enabled {
		that.last = nil
	}
}

func (that *DebugRecorder) Record(providerName, prompt string, resp *provider.GenerateResponse, started time.Time, latency time.Duration) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.enabled {
		return
	}

	snapshot := &DebugSnapshot{
		Request: DebugRequest{
			Timestamp: started,
			Provider:  providerName,
			Prompt:    prompt,
		},
		LatencyMS: latency.Milliseconds(),
	}

	if resp != nil {
		snapshot.Response = DebugResponse{
			Timestamp: started.Add(latency),
			Text:      resp.Text,
		}
	}

	that.last = snapshot
}

// Snapshot - returns a copy of the last recorded exchange; ok is false when
// debugging is disabled or nothing has been recorded yet.
func (that *DebugRecorder) Snapshot() (DebugSnapshot, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.enabled || that.last == nil {
		return DebugSnapshot{}, false
	}

	return *that.last, true
}
