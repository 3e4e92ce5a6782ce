package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grippy/grippy/internal/schema"
)

func sampleReview() *schema.Review {
	return &schema.Review{
		Version:   "1.0",
		AuditType: schema.AuditPRReview,
		Timestamp: "2026-01-10T12:00:00Z",
		Model:     "devstral",
		PR: schema.PRMetadata{
			Title:          "Fix auth bypass",
			Author:         "octocat",
			Branch:         "fix-auth → main",
			ComplexityTier: schema.TierStandard,
		},
		Score:   schema.Score{Overall: 60},
		Verdict: schema.Verdict{Status: schema.VerdictFail, MergeBlocking: true},
		Findings: []schema.Finding{
			{
				ID: "F-1", Severity: schema.SeverityCritical, Confidence: 95,
				Category: schema.CategorySecurity, File: "auth.py",
				LineStart: 10, LineEnd: 12, Title: "Token not verified",
				Suggestion: "verify the token", GovernanceRuleID: "G-007",
				Evidence: "jwt.decode(token, verify=False)",
			},
			{
				ID: "F-2", Severity: schema.SeverityLow, Confidence: 70,
				Category: schema.CategoryLogic, File: "auth.py",
				LineStart: 30, Title: "Off by one",
				Suggestion: "use <=",
			},
		},
	}
}

func TestNodeID_Deterministic(t *testing.T) {
	a := NodeID(NodeFinding, "auth.py", 10, "Token not verified")
	b := NodeID(NodeFinding, "auth.py", 10, "Token not verified")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "FINDING:"))
	assert.Len(t, a, len("FINDING:")+12)

	assert.NotEqual(t, a, NodeID(NodeFinding, "auth.py", 11, "Token not verified"))
	assert.NotEqual(t, a, NodeID(NodeSuggestion, "auth.py", 10, "Token not verified"))
}

func TestReviewToGraph(t *testing.T) {
	g := ReviewToGraph(sampleReview())

	assert.True(t, strings.HasPrefix(g.ReviewID, "REVIEW:"))
	assert.Equal(t, "2026-01-10T12:00:00Z", g.Timestamp)

	byType := map[NodeType][]Node{}
	for _, n := range g.Nodes {
		byType[n.Type] = append(byType[n.Type], n)
	}

	// two findings on one file share a single FILE node
	require.Len(t, byType[NodeFile], 1)
	assert.Equal(t, "auth.py", byType[NodeFile][0].Label)

	require.Len(t, byType[NodeFinding], 2)
	require.Len(t, byType[NodeSuggestion], 2)
	require.Len(t, byType[NodeRule], 1)
	require.Len(t, byType[NodeAuthor], 1)
	assert.Equal(t, "octocat", byType[NodeAuthor][0].Label)

	review := byType[NodeReview][0]
	assert.Equal(t, "Review: Fix auth bypass", review.Label)
	assert.Equal(t, "FAIL", review.Properties["verdict"])
	require.Len(t, review.Edges, 1)
	assert.Equal(t, EdgeReviewedBy, review.Edges[0].Type)
	assert.Equal(t, NodeID(NodeAuthor, "agent", "devstral"), review.Edges[0].TargetID)

	first := byType[NodeFinding][0]
	assert.Equal(t, "open", first.Properties["status"])
	assert.Equal(t, schema.ComputeFingerprint("auth.py", schema.CategorySecurity, "Token not verified"),
		first.Properties["fingerprint"])
	require.Len(t, first.Edges, 3)
	assert.Equal(t, EdgeFoundIn, first.Edges[0].Type)
	assert.Equal(t, EdgeFixedBy, first.Edges[1].Type)
	assert.Equal(t, EdgeViolates, first.Edges[2].Type)

	second := byType[NodeFinding][1]
	assert.Len(t, second.Edges, 2, "no rule edge without a governance rule id")
}

func TestReviewToGraph_Deterministic(t *testing.T) {
	a := ReviewToGraph(sampleReview())
	b := ReviewToGraph(sampleReview())
	require.Equal(t, len(a.Nodes), len(b.Nodes))
	for i := range a.Nodes {
		assert.Equal(t, a.Nodes[i].ID, b.Nodes[i].ID)
	}
}

func TestCrossReference(t *testing.T) {
	persisting := schema.Finding{File: "a.py", Category: schema.CategoryLogic, Title: "stays", LineStart: 1}
	fresh := schema.Finding{File: "a.py", Category: schema.CategorySecurity, Title: "brand new", LineStart: 2}
	gone := schema.Finding{File: "b.py", Category: schema.CategoryLogic, Title: "was fixed", LineStart: 3}

	// same fingerprint as persisting despite a shifted line and new severity
	movedCopy := persisting
	movedCopy.LineStart = 40
	movedCopy.Severity = schema.SeverityHigh

	lc := CrossReference(
		[]schema.Finding{movedCopy, fresh},
		[]schema.Finding{persisting, gone},
	)

	require.Len(t, lc.New, 1)
	assert.Equal(t, "brand new", lc.New[0].Title)
	require.Len(t, lc.Persists, 1)
	assert.Equal(t, "stays", lc.Persists[0].Title)
	require.Len(t, lc.Resolved, 1)
	assert.Equal(t, "was fixed", lc.Resolved[0].Title)
}

func TestCrossReference_Empty(t *testing.T) {
	lc := CrossReference(nil, nil)
	assert.Empty(t, lc.New)
	assert.Empty(t, lc.Persists)
	assert.Empty(t, lc.Resolved)
}
