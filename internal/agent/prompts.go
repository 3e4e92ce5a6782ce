package agent

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/grippy/grippy/pkg/errors"
)

// Review modes. Each mode selects a prompt chain prefix.
const (
	ModePRReview        = "pr_review"
	ModeSecurityAudit   = "security_audit"
	ModeGovernanceCheck = "governance_check"
	ModeSurpriseAudit   = "surprise_audit"
	ModeCLI             = "cli"
	ModeGitHubApp       = "github_app"
)

// identityFiles form the identity layer, always first.
var identityFiles = []string{"CONSTITUTION.md", "PERSONA.md"}

// modeChains maps each review mode to its mode-specific prefix.
var modeChains = map[string][]string{
	ModePRReview:        {"system-core.md", "pr-review.md"},
	ModeSecurityAudit:   {"system-core.md", "security-audit.md"},
	ModeGovernanceCheck: {"system-core.md", "governance-check.md"},
	ModeSurpriseAudit:   {"system-core.md", "surprise-audit.md"},
	ModeCLI:             {"system-core.md", "cli-mode.md"},
	ModeGitHubApp:       {"system-core.md", "github-app.md"},
}

// sharedPrompts are always-on personality and quality-gate prompts.
var sharedPrompts = []string{
	"tone-calibration.md",
	"confidence-filter.md",
	"escalation.md",
	"context-builder.md",
	"catchphrases.md",
	"disguises.md",
	"ascii-art.md",
	"all-clear.md",
}

// chainSuffix anchors the scoring rubric and output schema at the end.
var chainSuffix = []string{"scoring-rubric.md", "output-schema.md"}

// loadPromptFile reads a single prompt file.
func loadPromptFile(promptsDir, filename string) (string, error) {
	path := filepath.Join(promptsDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfigMissing, "prompt file not found: "+path, err)
	}
	return string(data), nil
}

// LoadIdentity composes the identity layer (CONSTITUTION + PERSONA).
func LoadIdentity(promptsDir string) (string, error) {
	parts := make([]string, 0, len(identityFiles))
	for _, f := range identityFiles {
		content, err := loadPromptFile(promptsDir, f)
		if err != nil {
			return "", err
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n"), nil
}

// LoadInstructions composes the instruction chain for a review mode:
// modeChains[mode] + sharedPrompts + chainSuffix.
func LoadInstructions(promptsDir, mode string) ([]string, error) {
	prefix, ok := modeChains[mode]
	if !ok {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "unknown review mode: "+mode)
	}
	chain := make([]string, 0, len(prefix)+len(sharedPrompts)+len(chainSuffix))
	chain = append(chain, prefix...)
	chain = append(chain, sharedPrompts...)
	chain = append(chain, chainSuffix...)

	out := make([]string, 0, len(chain))
	for _, f := range chain {
		content, err := loadPromptFile(promptsDir, f)
		if err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	return out, nil
}

// LoadChain composes identity and instructions into one system prompt.
func LoadChain(promptsDir, mode string) (string, error) {
	identity, err := LoadIdentity(promptsDir)
	if err != nil {
		return "", err
	}
	instructions, err := LoadInstructions(promptsDir, mode)
	if err != nil {
		return "", err
	}
	return identity + "\n\n" + strings.Join(instructions, "\n\n"), nil
}

// Modes returns the known review modes.
func Modes() []string {
	return []string{
		ModePRReview, ModeSecurityAudit, ModeGovernanceCheck,
		ModeSurpriseAudit, ModeCLI, ModeGitHubApp,
	}
}
