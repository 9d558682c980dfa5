// Package executor runs agent prompts against the model CLI.
//
// An Executor turns (agent, prompt, options) into a Result. Subprocess is the
// production implementation; Retrying wraps any Executor with categorized
// retries, fallback models, session continuity and the invocation audit
// trail.
package executor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fyrsmithlabs/conductor/internal/state"
)

// Executor runs one prompt for one agent.
type Executor interface {
	Execute(ctx context.Context, agent, prompt string, opts Options) (*Result, error)
}

// Options tune one call.
type Options struct {
	// Model overrides the agent's configured model.
	Model string

	// SessionID continues a previous conversation. Retrying fills it from
	// the session registry when empty.
	SessionID string

	// Timeout bounds a single attempt. Zero uses the executor default.
	Timeout time.Duration
}

// Result is what an agent said.
type Result struct {
	Response         string           `json:"response"`
	StructuredOutput json.RawMessage  `json:"structuredOutput,omitempty"`
	ToolCalls        []state.ToolCall `json:"toolCalls,omitempty"`
	SessionID        string           `json:"sessionId,omitempty"`
	Model            string           `json:"model,omitempty"`
	CostUSD          float64          `json:"costUsd"`
	TokensIn         int              `json:"tokensIn"`
	TokensOut        int              `json:"tokensOut"`
	DurationMS       int64            `json:"durationMs"`
}

// Decode unmarshals the structured output into v. It reports false when
// there is none or it does not fit v.
func (r *Result) Decode(v any) bool {
	if r == nil || len(r.StructuredOutput) == 0 {
		return false
	}
	return json.Unmarshal(r.StructuredOutput, v) == nil
}

// ExtractJSON finds the JSON object in a model response: a ```json fenced
// block when present, otherwise the outermost braces.
func ExtractJSON(text string) (json.RawMessage, bool) {
	candidate := text
	if start := strings.Index(text, "```json"); start != -1 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			candidate = rest[:end]
		}
	}
	open := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if open == -1 || end <= open {
		return nil, false
	}
	raw := json.RawMessage(strings.TrimSpace(candidate[open : end+1]))
	if !json.Valid(raw) {
		return nil, false
	}
	return raw, true
}
