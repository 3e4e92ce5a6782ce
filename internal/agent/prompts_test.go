package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePromptFixtures creates a full prompt directory with per-file markers.
func writePromptFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := []string{
		"CONSTITUTION.md", "PERSONA.md", "system-core.md", "pr-review.md",
		"security-audit.md", "governance-check.md", "surprise-audit.md",
		"cli-mode.md", "github-app.md",
		"tone-calibration.md", "confidence-filter.md", "escalation.md",
		"context-builder.md", "catchphrases.md", "disguises.md",
		"ascii-art.md", "all-clear.md",
		"scoring-rubric.md", "output-schema.md",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("["+f+"]"), 0644))
	}
	return dir
}

func TestLoadIdentity(t *testing.T) {
	dir := writePromptFixtures(t)
	identity, err := LoadIdentity(dir)
	require.NoError(t, err)
	assert.Equal(t, "[CONSTITUTION.md]\n\n[PERSONA.md]", identity)
}

func TestLoadInstructions_Order(t *testing.T) {
	dir := writePromptFixtures(t)
	instr, err := LoadInstructions(dir, ModePRReview)
	require.NoError(t, err)

	// Mode prefix first, shared prompts in the middle, rubric + schema last.
	require.GreaterOrEqual(t, len(instr), 4)
	assert.Equal(t, "[system-core.md]", instr[0])
	assert.Equal(t, "[pr-review.md]", instr[1])
	assert.Equal(t, "[scoring-rubric.md]", instr[len(instr)-2])
	assert.Equal(t, "[output-schema.md]", instr[len(instr)-1])
}

func TestLoadInstructions_UnknownMode(t *testing.T) {
	dir := writePromptFixtures(t)
	_, err := LoadInstructions(dir, "interpretive_dance")
	assert.Error(t, err)
}

func TestLoadChain_MissingFile(t *testing.T) {
	dir := t.TempDir() // empty: every file missing
	_, err := LoadChain(dir, ModePRReview)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONSTITUTION.md")
}

func TestFormatPRContext(t *testing.T) {
	diff := "diff --git a/a.py b/a.py\n--- a/a.py\n+++ b/a.py\n@@ -1,1 +1,2 @@\n ctx\n+new\n"
	msg := FormatPRContext(PRContext{
		Title:       "Fix thing",
		Author:      "octocat",
		Branch:      "fix → main",
		Description: "does a fix",
		Diff:        diff,
	})

	assert.Contains(t, msg, "<pr_metadata>")
	assert.Contains(t, msg, "Title: Fix thing")
	assert.Contains(t, msg, "Changed Files: 1")
	assert.Contains(t, msg, "Additions: 1")
	assert.Contains(t, msg, "Deletions: 0")
	assert.Contains(t, msg, "<diff>\n"+diff+"\n</diff>")
	assert.NotContains(t, msg, "<governance_rules>")
	assert.NotContains(t, msg, "<learnings>")
}

func TestFormatPRContext_OptionalSections(t *testing.T) {
	msg := FormatPRContext(PRContext{
		Title:           "t",
		Diff:            "",
		GovernanceRules: "G-001: no secrets",
		Learnings:       "author tends to skip error checks",
	})
	assert.True(t, strings.HasPrefix(msg, "<governance_rules>"))
	assert.Contains(t, msg, "<learnings>")
}
