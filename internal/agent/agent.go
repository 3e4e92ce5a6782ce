// Package agent defines the Agent interface for AI-powered PR review.
// Concrete agents wrap an LLM endpoint; tests use scripted fakes.
package agent

import (
	"context"
)

// Response is the opaque result of one agent invocation.
// Content may be a *schema.Review (structured output decoded upstream),
// a map[string]any, a raw string, or nil; the retry engine normalizes it.
type Response struct {
	// Content is the agent's output in whatever shape the transport produced
	Content any

	// Model is the model identifier the endpoint reports, if any
	Model string

	// TokensUsed is the total token count for the call, if reported
	TokensUsed int
}

// Agent produces a review candidate when given a user message.
type Agent interface {
	// Run sends a user message and returns the raw response.
	// Implementations retain conversation history across calls within one
	// run so corrective retry messages carry context.
	Run(ctx context.Context, message string) (*Response, error)
}

// Tool is a capability exposed to the LLM during a review run.
// Parameters is a JSON-schema object describing the arguments.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Call        func(ctx context.Context, argsJSON string) (string, error)
}

// AgentError represents an agent-related error
type AgentError struct {
	Agent   string
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return "[agent:" + e.Agent + "] " + e.Message + ": " + e.Err.Error()
	}
	return "[agent:" + e.Agent + "] " + e.Message
}

func (e *AgentError) Unwrap() error {
	return e.Err
}
