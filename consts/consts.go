// Package consts defines cross-module constants used throughout the application.
package consts

import "fmt"

// ServiceName is the application service name
const ServiceName = "grippy"

// Project information constants
const (
	// ProjectName is the display name of the project
	ProjectName = "Grippy"

	// ProjectURL is the GitHub repository URL
	ProjectURL = "https://github.com/grippy/grippy"
)

// Review pipeline limits
const (
	// MaxDiffChars is the diff size cap sent to the LLM.
	// ~200K chars is roughly 50K tokens.
	MaxDiffChars = 200_000

	// ReviewBatchSize is the maximum number of inline comments submitted
	// in a single PR review. GitHub rejects oversized review payloads.
	ReviewBatchSize = 25

	// MaxToolResultChars caps codebase tool output returned to the LLM.
	MaxToolResultChars = 12_000

	// MaxIndexFiles caps the number of files indexed per build.
	MaxIndexFiles = 5_000
)

// Comment marker formats. Markers are hidden HTML comments that let
// subsequent runs locate and update previously posted comments.
const (
	// FindingMarkerFormat wraps a finding fingerprint.
	FindingMarkerFormat = "<!-- grippy-finding-%s -->"

	// SummaryMarkerFormat wraps a PR number.
	SummaryMarkerFormat = "<!-- grippy-summary-%d -->"

	// ErrorMarker tags error comments posted on failure paths.
	ErrorMarker = "<!-- grippy-error -->"
)

// FindingMarker returns the hidden marker for a finding fingerprint.
func FindingMarker(fingerprint string) string {
	return fmt.Sprintf(FindingMarkerFormat, fingerprint)
}

// SummaryMarker returns the hidden marker for a PR's summary comment.
func SummaryMarker(prNumber int) string {
	return fmt.Sprintf(SummaryMarkerFormat, prNumber)
}

// SessionID returns the session identifier scoping finding lifecycle to one PR.
func SessionID(prNumber int) string {
	return fmt.Sprintf("pr-%d", prNumber)
}

// Build information - set via ldflags during build or programmatically
var (
	// Version is the application version
	Version = "dev"

	// BuildTime is the build timestamp
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)
