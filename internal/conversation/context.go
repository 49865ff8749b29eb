package conversation

import (
	"encoding/json"
	"fmt"
	"unicode"
)

const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

type Entry struct {
	Role   string   `json:"role"`
	Parts  []string `json:"parts"`
	Tokens int      `json:"tokens"`
}

// Snapshot is the read-only view the arbiter builds prompts from and the
// context endpoint exposes.
type Snapshot struct {
	Entries     []Entry `json:"entries"`
	Pairs       int     `json:"pairs"`
	MaxHistory  int     `json:"max_history"`
	TotalTokens int     `json:"total_tokens"`
}

// Context is a sliding window over (user, model) turn pairs. The system
// entry is pinned and never trimmed; the cumulative token counter keeps
// growing even when old pairs are evicted.
type Context struct {
	maxHistory  int
	system      *Entry
	entries     []Entry
	totalTokens int
}

func New(maxHistory int, systemPrompt string) *Context {
	ctx := &Context{maxHistory: maxHistory}

	if systemPrompt != "" {
		ctx.system = &Entry{
			Role:   RoleSystem,
			Parts:  []string{systemPrompt},
			Tokens: EstimateTokens(systemPrompt),
		}
	}

	return ctx
}

// AppendTurn - appends one (user, model) pair and trims the oldest pair
// once the window bound is exceeded. tokenCount is the provider-reported
// usage for the exchange; when it is not reported a local estimate is used
// for the cumulative counter.
func (that *Context) AppendTurn(userText, modelText string, tokenCount int) {
	userTokens := EstimateTokens(userText)
	modelTokens := EstimateTokens(modelText)

	that.entries = append(that.entries,
		Entry{Role: RoleUser, Parts: []string{userText}, Tokens: userTokens},
		Entry{Role: RoleModel, Parts: []string{modelText}, Tokens: modelTokens},
	)

	if tokenCount <= 0 {
		tokenCount = userTokens + modelTokens
	}
	that.totalTokens += tokenCount

	for len(that.entries)/2 > that.maxHistory {
		that.entries = that.entries[2:]
	}
}

func (that *Context) Pairs() int {
	return len(that.entries) / 2
}

func (that *Context) TotalTokens() int {
	return that.totalTokens
}

func (that *Context) SystemPrompt() string {
	if that.system == nil {
		return ""
	}
	return that.system.Parts[0]
}

func (that *Context) Snapshot() Snapshot {
	entries := make([]Entry, 0, len(that.entries)+1)
	if that.system != nil {
		entries = append(entries, *that.system)
	}
	entries = append(entries, that.entries...)

	return Snapshot{
		Entries:     entries,
		Pairs:       len(that.entries) / 2,
		MaxHistory:  that.maxHistory,
		TotalTokens: that.totalTokens,
	}
}

type contextState struct {
	MaxHistory  int     `json:"max_history"`
	System      *Entry  `json:"system,omitempty"`
	Entries     []Entry `json:"entries"`
	TotalTokens int     `json:"total_tokens"`
}

func (that *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextState{
		MaxHistory:  that.maxHistory,
		System:      that.system,
		Entries:     that.entries,
		TotalTokens: that.totalTokens,
	})
}

func (that *Context) UnmarshalJSON(data []byte) error {
	var state contextState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}

	that.maxHistory = state.MaxHistory
	that.system = state.System
	that.entries = state.Entries
	that.totalTokens = state.TotalTokens

	return nil
}

// EstimateTokens - rough token estimate for backends that do not report
// usage: CJK runes count as one token, everything else as 0.75 per rune.
func EstimateTokens(text string) int {
	var han, other int
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			han++
		} else {
			other++
		}
	}
	return han + other*3/4
}
