// Package schema defines the typed review record produced by the agent.
// External input (JSON or generic maps) is validated against this schema
// before anything downstream touches it.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/grippy/grippy/pkg/errors"
)

// Severity is a finding severity level
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// ComplexityTier classifies how demanding a PR is to review
type ComplexityTier string

const (
	TierTrivial  ComplexityTier = "TRIVIAL"
	TierStandard ComplexityTier = "STANDARD"
	TierComplex  ComplexityTier = "COMPLEX"
	TierCritical ComplexityTier = "CRITICAL"
)

// FindingCategory is one of the five scoring axes
type FindingCategory string

const (
	CategorySecurity      FindingCategory = "security"
	CategoryLogic         FindingCategory = "logic"
	CategoryGovernance    FindingCategory = "governance"
	CategoryReliability   FindingCategory = "reliability"
	CategoryObservability FindingCategory = "observability"
)

// VerdictStatus is the review's overall verdict
type VerdictStatus string

const (
	VerdictPass        VerdictStatus = "PASS"
	VerdictFail        VerdictStatus = "FAIL"
	VerdictProvisional VerdictStatus = "PROVISIONAL"
)

// AuditType identifies the review mode that produced the record
type AuditType string

const (
	AuditPRReview        AuditType = "pr_review"
	AuditSecurityAudit   AuditType = "security_audit"
	AuditGovernanceCheck AuditType = "governance_check"
	AuditSurpriseAudit   AuditType = "surprise_audit"
)

// PRMetadata describes the pull request under review
type PRMetadata struct {
	Title          string         `json:"title" validate:"required"`
	Author         string         `json:"author" validate:"required"`
	Branch         string         `json:"branch"` // "source → target"
	ComplexityTier ComplexityTier `json:"complexity_tier" validate:"oneof=TRIVIAL STANDARD COMPLEX CRITICAL"`
}

// ReviewScope records what the review actually covered
type ReviewScope struct {
	FilesInDiff            int      `json:"files_in_diff" validate:"gte=0"`
	FilesReviewed          int      `json:"files_reviewed" validate:"gte=0"`
	CoveragePercentage     float64  `json:"coverage_percentage"`
	GovernanceRulesApplied []string `json:"governance_rules_applied"`
	ModesActive            []string `json:"modes_active"`
}

// Finding is a single review finding. Equality is by content; identity across
// rounds is the fingerprint. The struct is treated as frozen after validation.
type Finding struct {
	ID               string          `json:"id" validate:"required"`
	Severity         Severity        `json:"severity" validate:"oneof=CRITICAL HIGH MEDIUM LOW"`
	Confidence       int             `json:"confidence" validate:"gte=0,lte=100"`
	Category         FindingCategory `json:"category" validate:"oneof=security logic governance reliability observability"`
	File             string          `json:"file" validate:"required"`
	LineStart        int             `json:"line_start" validate:"gte=0"`
	LineEnd          int             `json:"line_end" validate:"gte=0"`
	Title            string          `json:"title" validate:"required"`
	Description      string          `json:"description"`
	Suggestion       string          `json:"suggestion"`
	GovernanceRuleID string          `json:"governance_rule_id,omitempty"`
	Evidence         string          `json:"evidence"`
	GrippyNote       string          `json:"grippy_note" validate:"max=280"`

	// fp memoizes the fingerprint; the inputs are frozen after validation
	fp string
}

// Fingerprint returns the deterministic 12-char hex hash used for
// cross-round finding matching. It depends only on file, category, and
// title, so it is stable across line number shifts, severity re-ratings,
// and description rewrites.
func (f *Finding) Fingerprint() string {
	if f.fp == "" {
		f.fp = ComputeFingerprint(f.File, f.Category, f.Title)
	}
	return f.fp
}

// Escalation flags an issue for a human team rather than the PR author
type Escalation struct {
	ID                string `json:"id" validate:"required"`
	Severity          string `json:"severity" validate:"oneof=CRITICAL HIGH MEDIUM"`
	Category          string `json:"category" validate:"oneof=security compliance architecture pattern domain"`
	Summary           string `json:"summary" validate:"required"`
	Details           string `json:"details"`
	RecommendedTarget string `json:"recommended_target" validate:"oneof=security-team infrastructure domain-expert tech-lead compliance"`
	Blocking          bool   `json:"blocking"`
}

// ScoreBreakdown carries per-axis scores
type ScoreBreakdown struct {
	Security      int `json:"security" validate:"gte=0,lte=100"`
	Logic         int `json:"logic" validate:"gte=0,lte=100"`
	Governance    int `json:"governance" validate:"gte=0,lte=100"`
	Reliability   int `json:"reliability" validate:"gte=0,lte=100"`
	Observability int `json:"observability" validate:"gte=0,lte=100"`
}

// ScoreDeductions counts deductions per severity level
type ScoreDeductions struct {
	CriticalCount  int `json:"critical_count" validate:"gte=0"`
	HighCount      int `json:"high_count" validate:"gte=0"`
	MediumCount    int `json:"medium_count" validate:"gte=0"`
	LowCount       int `json:"low_count" validate:"gte=0"`
	TotalDeduction int `json:"total_deduction"`
}

// Score is the review's numeric assessment
type Score struct {
	Overall    int             `json:"overall" validate:"gte=0,lte=100"`
	Breakdown  ScoreBreakdown  `json:"breakdown"`
	Deductions ScoreDeductions `json:"deductions"`
}

// Verdict is the review's pass/fail decision
type Verdict struct {
	Status           VerdictStatus `json:"status" validate:"oneof=PASS FAIL PROVISIONAL"`
	ThresholdApplied int           `json:"threshold_applied"`
	MergeBlocking    bool          `json:"merge_blocking"`
	Summary          string        `json:"summary"`
}

// Personality carries tone fields the core passes through verbatim
type Personality struct {
	ToneRegister       string `json:"tone_register"`
	OpeningCatchphrase string `json:"opening_catchphrase"`
	ClosingLine        string `json:"closing_line"`
	DisguiseUsed       string `json:"disguise_used,omitempty"`
	AsciiArtKey        string `json:"ascii_art_key"`
}

// ReviewMeta records run statistics
type ReviewMeta struct {
	ReviewDurationMS           int `json:"review_duration_ms" validate:"gte=0"`
	TokensUsed                 int `json:"tokens_used" validate:"gte=0"`
	ContextFilesLoaded         int `json:"context_files_loaded" validate:"gte=0"`
	ConfidenceFilterSuppressed int `json:"confidence_filter_suppressed" validate:"gte=0"`
	DuplicateFilterSuppressed  int `json:"duplicate_filter_suppressed" validate:"gte=0"`
}

// Review is the complete structured output of one review run.
// It maps 1:1 to the JSON contract the agent is instructed to produce.
type Review struct {
	Version   string    `json:"version" validate:"required"`
	AuditType AuditType `json:"audit_type" validate:"oneof=pr_review security_audit governance_check surprise_audit"`
	Timestamp string    `json:"timestamp" validate:"required"` // ISO-8601
	Model     string    `json:"model" validate:"required"`

	PR          PRMetadata   `json:"pr"`
	Scope       ReviewScope  `json:"scope"`
	Findings    []Finding    `json:"findings" validate:"dive"`
	Escalations []Escalation `json:"escalations" validate:"dive"`
	Score       Score        `json:"score"`
	Verdict     Verdict      `json:"verdict"`
	Personality Personality  `json:"personality"`
	Meta        ReviewMeta   `json:"meta"`
}

// validate is the shared validator instance; validator caches struct
// metadata internally, so a single instance is the intended usage.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a review against the schema constraints.
func Validate(r *Review) error {
	if r == nil {
		return errors.New(errors.ErrCodeValidation, "review is nil")
	}
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, "review failed schema validation", err)
	}
	return nil
}

// FromJSON parses and validates a review from raw JSON.
func FromJSON(data []byte) (*Review, error) {
	var r Review
	dec := json.NewDecoder(strings.NewReader(string(data)))
	if err := dec.Decode(&r); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "failed to parse review JSON", err)
	}
	if err := Validate(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// FromMap validates a review supplied as a generic map (e.g. decoded
// upstream by the agent transport). The map is round-tripped through JSON
// so field names and types are checked identically to FromJSON.
func FromMap(m map[string]any) (*Review, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "failed to encode review map", err)
	}
	return FromJSON(data)
}

// String implements fmt.Stringer for log-friendly output.
func (r *Review) String() string {
	return fmt.Sprintf("Review{%s score=%d verdict=%s findings=%d}",
		r.AuditType, r.Score.Overall, r.Verdict.Status, len(r.Findings))
}
