package agent

import (
	"fmt"
	"strings"
)

// PRContext holds the inputs rendered into the user message for a review.
type PRContext struct {
	Title           string
	Author          string
	Branch          string // "source → target"
	Description     string
	Labels          string
	Diff            string
	FileContext     string
	GovernanceRules string
	Learnings       string
}

// FormatPRContext renders the PR context as the user message, matching the
// input format the pr-review prompt documents.
func FormatPRContext(c PRContext) string {
	var sections []string

	if c.GovernanceRules != "" {
		sections = append(sections, fmt.Sprintf("<governance_rules>\n%s\n</governance_rules>", c.GovernanceRules))
	}

	// Diff stats: +/- line counts excluding the file header markers
	additions := strings.Count(c.Diff, "\n+") - strings.Count(c.Diff, "\n+++")
	deletions := strings.Count(c.Diff, "\n-") - strings.Count(c.Diff, "\n---")
	changedFiles := strings.Count(c.Diff, "diff --git")

	sections = append(sections, fmt.Sprintf(
		"<pr_metadata>\n"+
			"Title: %s\n"+
			"Author: %s\n"+
			"Branch: %s\n"+
			"Description: %s\n"+
			"Labels: %s\n"+
			"Changed Files: %d\n"+
			"Additions: %d\n"+
			"Deletions: %d\n"+
			"</pr_metadata>",
		c.Title, c.Author, c.Branch, c.Description, c.Labels,
		changedFiles, additions, deletions,
	))

	sections = append(sections, fmt.Sprintf("<diff>\n%s\n</diff>", c.Diff))

	if c.FileContext != "" {
		sections = append(sections, fmt.Sprintf("<file_context>\n%s\n</file_context>", c.FileContext))
	}
	if c.Learnings != "" {
		sections = append(sections, fmt.Sprintf("<learnings>\n%s\n</learnings>", c.Learnings))
	}

	return strings.Join(sections, "\n\n")
}
