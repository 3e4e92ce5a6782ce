// Package retry implements the structured-output retry engine.
// It coerces arbitrary agent output into a validated schema.Review,
// feeding validation errors back to the agent up to a retry bound.
package retry

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/grippy/grippy/internal/agent"
	"github.com/grippy/grippy/internal/schema"
)

// DefaultMaxRetries is the number of retries after the initial attempt.
const DefaultMaxRetries = 3

// lastRawLimit caps the raw output preview kept in ParseError.
const lastRawLimit = 2000

// ParseError is raised when all attempts fail to produce a valid review.
type ParseError struct {
	// Attempts is the total number of attempts made (maxRetries + 1)
	Attempts int
	// LastRaw is the final attempt's raw output, truncated to 2000 chars
	LastRaw string
	// Errors holds one entry per failed attempt, oldest first
	Errors []string
}

func (e *ParseError) Error() string {
	tail := e.Errors
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	preview := e.LastRaw
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return fmt.Sprintf("failed to parse review after %d attempts. Last raw output: %q. Errors: %s",
		e.Attempts, preview, strings.Join(tail, "; "))
}

// ValidationCallback fires on each failed attempt.
type ValidationCallback func(attempt int, err error)

// Options configures RunReview.
type Options struct {
	// MaxRetries is the number of retries after the initial attempt.
	// 0 means a single attempt with no retry message.
	MaxRetries int
	// OnValidationError, when set, fires on each failed attempt.
	OnValidationError ValidationCallback
}

// fenceRe matches a markdown code fence wrapping JSON output.
var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?\\s*```")

// stripMarkdownFences removes a markdown code fence wrapping JSON.
func stripMarkdownFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// parseResponse normalizes agent response content into a validated review.
// Handles: *schema.Review, schema.Review, map, JSON string, fenced JSON.
func parseResponse(content any) (*schema.Review, error) {
	switch v := content.(type) {
	case *schema.Review:
		return v, nil
	case schema.Review:
		return &v, nil
	case map[string]any:
		return schema.FromMap(v)
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return nil, fmt.Errorf("agent returned empty string")
		}
		return schema.FromJSON([]byte(stripMarkdownFences(text)))
	case nil:
		return nil, fmt.Errorf("agent returned nil content")
	default:
		return nil, fmt.Errorf("unexpected response type: %T", content)
	}
}

// rawPreview renders content for the error history.
func rawPreview(content any) string {
	if content == nil {
		return "<nil>"
	}
	s := fmt.Sprintf("%v", content)
	if len(s) > lastRawLimit {
		s = s[:lastRawLimit]
	}
	return s
}

// retryMessage is the corrective prompt sent when validation fails.
func retryMessage(err error) string {
	return fmt.Sprintf(
		"Your previous output failed validation. Error: %s\n\n"+
			"Please fix the errors and output a valid JSON object matching "+
			"the review schema. Output ONLY the JSON.",
		err,
	)
}

// RunReview invokes the agent and validates its output, retrying with
// error feedback. It returns the first valid review, or a ParseError
// after maxRetries+1 failed attempts. Transport errors from the agent
// propagate immediately; they are not validation failures.
func RunReview(ctx context.Context, ag agent.Agent, message string, opts Options) (*schema.Review, error) {
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var errs []string
	lastRaw := "<nil>"
	current := message

	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		resp, err := ag.Run(ctx, current)
		if err != nil {
			return nil, err
		}

		var content any
		if resp != nil {
			content = resp.Content
		}
		lastRaw = rawPreview(content)

		review, parseErr := parseResponse(content)
		if parseErr == nil {
			return review, nil
		}

		errs = append(errs, fmt.Sprintf("Attempt %d: %s", attempt, parseErr))
		if opts.OnValidationError != nil {
			opts.OnValidationError(attempt, parseErr)
		}
		if attempt <= maxRetries {
			current = retryMessage(parseErr)
		}
	}

	return nil, &ParseError{
		Attempts: maxRetries + 1,
		LastRaw:  lastRaw,
		Errors:   errs,
	}
}
