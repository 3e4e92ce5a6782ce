package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grippy/grippy/internal/graph"
	"github.com/grippy/grippy/internal/schema"
)

// fakeEmbedder maps text to a deterministic 8-dim byte histogram, so
// identical texts embed identically and search ranks exact matches first.
type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	vec := make([]float32, 8)
	for _, b := range []byte(text) {
		vec[int(b)%8]++
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func testReview() *schema.Review {
	return &schema.Review{
		Version:   "1.0",
		AuditType: schema.AuditPRReview,
		Timestamp: "2026-01-10T12:00:00Z",
		Model:     "devstral",
		PR: schema.PRMetadata{
			Title: "Fix auth bypass", Author: "octocat",
			Branch: "fix → main", ComplexityTier: schema.TierStandard,
		},
		Score:   schema.Score{Overall: 60},
		Verdict: schema.Verdict{Status: schema.VerdictFail},
		Findings: []schema.Finding{
			{
				ID: "F-1", Severity: schema.SeverityCritical, Confidence: 95,
				Category: schema.CategorySecurity, File: "auth.py",
				LineStart: 10, LineEnd: 12, Title: "Token not verified",
				Suggestion: "verify the token", GovernanceRuleID: "G-007",
			},
			{
				ID: "F-2", Severity: schema.SeverityLow, Confidence: 70,
				Category: schema.CategoryLogic, File: "auth.py",
				LineStart: 30, Title: "Off by one", Suggestion: "use <=",
			},
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), &fakeEmbedder{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreReview_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	g := graph.ReviewToGraph(testReview())

	require.NoError(t, s.StoreReview(ctx, g, "pr-7"))
	first, err := s.Graph.AllEdges()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	require.NoError(t, s.StoreReview(ctx, g, "pr-7"))
	second, err := s.Graph.AllEdges()
	require.NoError(t, err)
	assert.Len(t, second, len(first), "re-storing the same graph must not duplicate edges")
}

func TestGetPriorFindings_SessionScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreReview(ctx, graph.ReviewToGraph(testReview()), "pr-7"))

	prior, err := s.GetPriorFindings("pr-7")
	require.NoError(t, err)
	require.Len(t, prior, 2)
	assert.NotEmpty(t, prior[0].NodeID())
	assert.NotEmpty(t, prior[0].Fingerprint())
	titles := []string{prior[0].Title(), prior[1].Title()}
	assert.Contains(t, titles, "Token not verified")

	other, err := s.GetPriorFindings("pr-99")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateFindingStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreReview(ctx, graph.ReviewToGraph(testReview()), "pr-7"))

	prior, err := s.GetPriorFindings("pr-7")
	require.NoError(t, err)
	require.Len(t, prior, 2)

	require.NoError(t, s.UpdateFindingStatus(prior[0].NodeID(), graph.StatusResolved))

	remaining, err := s.GetPriorFindings("pr-7")
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "resolved findings drop out of the open set")
}

func TestEdgeQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreReview(ctx, graph.ReviewToGraph(testReview()), "pr-7"))

	byType, err := s.Graph.EdgesByType(graph.EdgeFoundIn)
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	fileID := graph.NodeID(graph.NodeFile, "auth.py")
	toFile, err := s.Graph.EdgesByTarget(fileID)
	require.NoError(t, err)
	assert.Len(t, toFile, 2)

	findingID := graph.NodeID(graph.NodeFinding, "auth.py", 10, "Token not verified")
	from, err := s.Graph.EdgesBySource(findingID)
	require.NoError(t, err)
	assert.Len(t, from, 3) // FOUND_IN, FIXED_BY, VIOLATES
}

func TestGetPatternsForFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreReview(ctx, graph.ReviewToGraph(testReview()), "pr-7"))

	patterns, err := s.Graph.GetPatternsForFile("auth.py")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Contains(t, patterns[0], "severity")
	assert.Contains(t, patterns[0], "title")

	none, err := s.Graph.GetPatternsForFile("unseen.py")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetAuthorTendencies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreReview(ctx, graph.ReviewToGraph(testReview()), "pr-7"))

	tendencies, err := s.Graph.GetAuthorTendencies("octocat")
	require.NoError(t, err)
	assert.Len(t, tendencies, 2)

	none, err := s.Graph.GetAuthorTendencies("stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchNodes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	g := graph.ReviewToGraph(testReview())
	require.NoError(t, s.StoreReview(ctx, g, "pr-7"))

	var fileNode graph.Node
	for _, n := range g.Nodes {
		if n.Type == graph.NodeFile {
			fileNode = n
		}
	}

	hits, err := s.Vectors.SearchNodes(ctx, NodeText(fileNode), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, fileNode.ID, hits[0].NodeID, "exact text match ranks first")
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.Vectors.HasChunks()
	require.NoError(t, err)
	assert.False(t, empty)

	chunks := []Chunk{
		{File: "auth.py", LineStart: 1, LineEnd: 40, Text: "def verify_token(token):"},
		{File: "db.py", LineStart: 1, LineEnd: 30, Text: "def connect(dsn):"},
	}
	require.NoError(t, s.Vectors.ReplaceChunks(ctx, chunks))

	has, err := s.Vectors.HasChunks()
	require.NoError(t, err)
	assert.True(t, has)

	hits, err := s.Vectors.SearchChunks(ctx, "def verify_token(token):", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "auth.py", hits[0].File)

	// re-index replaces rather than appends
	require.NoError(t, s.Vectors.ReplaceChunks(ctx, chunks[:1]))
	var count int64
	require.NoError(t, s.Vectors.db.Model(&ChunkVector{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestNodeText(t *testing.T) {
	node := graph.Node{
		Type:  graph.NodeFinding,
		Label: "Token not verified",
		Properties: map[string]any{
			"severity": "CRITICAL",
			"file":     "auth.py",
		},
	}
	assert.Equal(t, "FINDING: Token not verified file=auth.py severity=CRITICAL", NodeText(node))

	bare := graph.Node{Type: graph.NodeFile, Label: "auth.py"}
	assert.Equal(t, "FILE: auth.py", NodeText(bare))
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	assert.Equal(t, vec, decodeVector(encodeVector(vec)))
	assert.Len(t, encodeVector(vec), 12)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}), "length mismatch")
	assert.Zero(t, cosineSimilarity(nil, nil))
}
