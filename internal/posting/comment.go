package posting

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/grippy/grippy/consts"
	"github.com/grippy/grippy/internal/schema"
)

// severityEmoji maps severities to their comment markers.
var severityEmoji = map[schema.Severity]string{
	schema.SeverityCritical: "\U0001f534",
	schema.SeverityHigh:     "\U0001f7e0",
	schema.SeverityMedium:   "\U0001f7e1",
	schema.SeverityLow:      "\U0001f535",
}

func emojiFor(sev schema.Severity) string {
	if e, ok := severityEmoji[sev]; ok {
		return e
	}
	return "⚪"
}

// BuildReviewComment renders a finding as an inline draft review comment,
// anchored to the right side of the diff and tagged with its fingerprint
// marker.
func BuildReviewComment(f *schema.Finding) *github.DraftReviewComment {
	body := strings.Join([]string{
		fmt.Sprintf("#### %s %s: %s", emojiFor(f.Severity), f.Severity, f.Title),
		fmt.Sprintf("Confidence: %d%%", f.Confidence),
		"",
		f.Description,
		"",
		fmt.Sprintf("**Suggestion:** %s", f.Suggestion),
		"",
		fmt.Sprintf("*— %s*", f.GrippyNote),
		"",
		consts.FindingMarker(f.Fingerprint()),
	}, "\n")

	return &github.DraftReviewComment{
		Path: github.String(f.File),
		Body: github.String(body),
		Line: github.Int(f.LineStart),
		Side: github.String("RIGHT"),
	}
}

// SummaryInput carries everything the dashboard renders.
type SummaryInput struct {
	Score           int
	Verdict         string
	FindingCount    int
	NewCount        int
	PersistsCount   int
	ResolvedCount   int
	OffDiffFindings []schema.Finding
	Escalations     []schema.Escalation
	HeadSHA         string
	PRNumber        int
}

// FormatSummaryComment renders the summary dashboard posted (or updated)
// as a single issue comment per PR.
func FormatSummaryComment(in SummaryInput) string {
	statusEmoji := map[string]string{
		"PASS":        "✅",
		"FAIL":        "❌",
		"PROVISIONAL": "⚠️",
	}[in.Verdict]
	if statusEmoji == "" {
		statusEmoji = "\U0001f50d"
	}

	var lines []string
	lines = append(lines,
		fmt.Sprintf("## %s Grippy Review — %s", statusEmoji, in.Verdict),
		"",
		fmt.Sprintf("**Score: %d/100** | **Findings: %d**", in.Score, in.FindingCount),
		"",
	)

	if in.NewCount > 0 || in.PersistsCount > 0 || in.ResolvedCount > 0 {
		var parts []string
		if in.NewCount > 0 {
			parts = append(parts, fmt.Sprintf("%d new", in.NewCount))
		}
		if in.PersistsCount > 0 {
			parts = append(parts, fmt.Sprintf("%d persists", in.PersistsCount))
		}
		if in.ResolvedCount > 0 {
			parts = append(parts, fmt.Sprintf("✅ %d resolved", in.ResolvedCount))
		}
		lines = append(lines,
			fmt.Sprintf("**Delta:** %s", strings.Join(parts, " · ")),
			"",
		)
	}

	for _, esc := range in.Escalations {
		if !esc.Blocking {
			continue
		}
		lines = append(lines,
			fmt.Sprintf("**⛔ Escalated to %s:** %s", esc.RecommendedTarget, esc.Summary),
			"",
		)
	}

	if len(in.OffDiffFindings) > 0 {
		lines = append(lines,
			"<details>",
			fmt.Sprintf("<summary>Off-diff findings (%d)</summary>", len(in.OffDiffFindings)),
			"",
		)
		for i := range in.OffDiffFindings {
			f := &in.OffDiffFindings[i]
			lines = append(lines,
				fmt.Sprintf("#### %s %s: %s", emojiFor(f.Severity), f.Severity, f.Title),
				fmt.Sprintf("\U0001f4c1 `%s:%d`", f.File, f.LineStart),
				"",
				f.Description,
				"",
				fmt.Sprintf("**Suggestion:** %s", f.Suggestion),
				"",
			)
		}
		lines = append(lines, "</details>", "")
	}

	sha := in.HeadSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	lines = append(lines,
		"---",
		fmt.Sprintf("<sub>Commit: %s</sub>", sha),
		"",
		consts.SummaryMarker(in.PRNumber),
	)

	return strings.Join(lines, "\n")
}
