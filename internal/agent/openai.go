package agent

import (
	"context"
	"os"

	"github.com/rs/xid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/grippy/grippy/pkg/errors"
	"github.com/grippy/grippy/pkg/logger"
)

// Transport names accepted by the factories in this package.
const (
	TransportOpenAI = "openai"
	TransportLocal  = "local"

	// localAPIKey is the placeholder key local OpenAI-compatible endpoints
	// (LM Studio, llama.cpp server) accept for any non-empty value.
	localAPIKey = "lm-studio"
)

// ReviewerOptions configures a reviewer agent.
type ReviewerOptions struct {
	ModelID    string
	BaseURL    string
	Transport  string // "openai" or "local"
	APIKey     string // overrides the transport default when set
	PromptsDir string
	Mode       string // review mode, see prompts.go
	Tools      []Tool
	// ToolCallLimit bounds tool-call rounds per Run; 0 disables tools.
	ToolCallLimit int
	// SessionID tags log lines for this run (convention: "pr-{number}").
	SessionID string
}

// Reviewer is an Agent backed by an OpenAI-compatible chat endpoint.
// It keeps conversation history across Run calls so retry feedback
// messages are seen in context.
type Reviewer struct {
	llm           *openai.LLM
	modelID       string
	requestID     string
	sessionID     string
	tools         []Tool
	toolCallLimit int
	history       []llms.MessageContent
}

// NewReviewer creates a review agent with the composed prompt chain as its
// system message. Invalid transport returns a config error.
func NewReviewer(opts ReviewerOptions) (*Reviewer, error) {
	key := opts.APIKey
	switch opts.Transport {
	case TransportOpenAI:
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, errors.New(errors.ErrCodeConfigMissing, "OPENAI_API_KEY not set for openai transport")
		}
	case TransportLocal:
		if key == "" {
			key = localAPIKey
		}
	default:
		return nil, errors.ErrTransport(opts.Transport)
	}

	llmOpts := []openai.Option{
		openai.WithModel(opts.ModelID),
		openai.WithToken(key),
	}
	if opts.Transport == TransportLocal || opts.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(opts.BaseURL))
	}

	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, &AgentError{Agent: "reviewer", Message: "failed to create LLM client", Err: err}
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModePRReview
	}
	system, err := LoadChain(opts.PromptsDir, mode)
	if err != nil {
		return nil, err
	}

	r := &Reviewer{
		llm:           llm,
		modelID:       opts.ModelID,
		requestID:     xid.New().String(),
		sessionID:     opts.SessionID,
		tools:         opts.Tools,
		toolCallLimit: opts.ToolCallLimit,
		history: []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, system),
		},
	}
	return r, nil
}

// Run sends the message and returns the model's text content.
// When tools are configured, tool-call rounds are executed inline up to
// the configured limit before the final content is returned.
func (r *Reviewer) Run(ctx context.Context, message string) (*Response, error) {
	r.history = append(r.history, llms.TextParts(llms.ChatMessageTypeHuman, message))

	callOpts := []llms.CallOption{llms.WithJSONMode()}
	var toolDefs []llms.Tool
	if r.toolCallLimit > 0 && len(r.tools) > 0 {
		for _, t := range r.tools {
			toolDefs = append(toolDefs, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		callOpts = append(callOpts, llms.WithTools(toolDefs))
	}

	toolRounds := 0
	for {
		resp, err := r.llm.GenerateContent(ctx, r.history, callOpts...)
		if err != nil {
			return nil, &AgentError{Agent: "reviewer", Message: "generation failed", Err: err}
		}
		if len(resp.Choices) == 0 {
			return &Response{Content: nil, Model: r.modelID}, nil
		}
		choice := resp.Choices[0]

		if len(choice.ToolCalls) > 0 && toolRounds < r.toolCallLimit {
			toolRounds++
			r.appendToolRound(ctx, choice)
			continue
		}

		r.history = append(r.history, llms.TextParts(llms.ChatMessageTypeAI, choice.Content))
		return &Response{
			Content: choice.Content,
			Model:   r.modelID,
		}, nil
	}
}

// appendToolRound executes the choice's tool calls and appends the
// assistant turn plus tool results to the history.
func (r *Reviewer) appendToolRound(ctx context.Context, choice *llms.ContentChoice) {
	assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	for _, tc := range choice.ToolCalls {
		assistant.Parts = append(assistant.Parts, tc)
	}
	r.history = append(r.history, assistant)

	for _, tc := range choice.ToolCalls {
		result := r.callTool(ctx, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
		r.history = append(r.history, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{
				llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       tc.FunctionCall.Name,
					Content:    result,
				},
			},
		})
	}
}

// callTool dispatches a single tool invocation. Tool failures are returned
// to the model as text so the review can continue without the tool result.
func (r *Reviewer) callTool(ctx context.Context, name, argsJSON string) string {
	for _, t := range r.tools {
		if t.Name != name {
			continue
		}
		out, err := t.Call(ctx, argsJSON)
		if err != nil {
			logger.Warn("Tool call failed",
				zap.String("tool", name),
				zap.String("session_id", r.sessionID),
				zap.Error(err),
			)
			return "Tool error: " + err.Error()
		}
		return out
	}
	return "Unknown tool: " + name
}
