package review

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grippy/grippy/internal/agent"
	"github.com/grippy/grippy/internal/config"
	"github.com/grippy/grippy/pkg/errors"
)

const eventJSON = `{
  "pull_request": {
    "number": 7,
    "title": "Fix auth",
    "body": "Tightens token checks",
    "user": {"login": "octocat"},
    "head": {"ref": "fix-auth", "sha": "0123456789abcdef"},
    "base": {"ref": "main"}
  },
  "repository": {"full_name": "acme/widgets"}
}`

const testDiff = `diff --git a/a.py b/a.py
--- a/a.py
+++ b/a.py
@@ -10,2 +10,3 @@
 ctx
+added
 ctx2
`

// reviewJSON returns a valid review document with the given findings array
// and verdict, keeping the boilerplate in one place.
func reviewJSON(findings, verdictStatus string, mergeBlocking bool) string {
	return fmt.Sprintf(`{
  "version": "1.0",
  "audit_type": "pr_review",
  "timestamp": "2026-01-10T12:00:00Z",
  "model": "self-reported",
  "pr": {"title": "Fix auth", "author": "octocat", "branch": "fix-auth → main", "complexity_tier": "STANDARD"},
  "scope": {"files_in_diff": 1, "files_reviewed": 1, "coverage_percentage": 100, "governance_rules_applied": [], "modes_active": ["pr_review"]},
  "findings": [%s],
  "escalations": [],
  "score": {
    "overall": 80,
    "breakdown": {"security": 80, "logic": 90, "governance": 100, "reliability": 90, "observability": 80},
    "deductions": {"critical_count": 0, "high_count": 1, "medium_count": 0, "low_count": 0, "total_deduction": 20}
  },
  "verdict": {"status": "%s", "threshold_applied": 70, "merge_blocking": %t, "summary": "summary"},
  "personality": {"tone_register": "dry", "opening_catchphrase": "", "closing_line": "", "ascii_art_key": ""},
  "meta": {"review_duration_ms": 1200, "tokens_used": 900, "context_files_loaded": 0, "confidence_filter_suppressed": 0, "duplicate_filter_suppressed": 0}
}`, findings, verdictStatus, mergeBlocking)
}

const findingJSON = `{
  "id": "F-1", "severity": "HIGH", "confidence": 90, "category": "security",
  "file": "a.py", "line_start": 11, "line_end": 11,
  "title": "Token not verified", "description": "desc", "suggestion": "verify",
  "evidence": "added", "grippy_note": "hm"
}`

// fakeGitHub implements posting.Client without the network.
type fakeGitHub struct {
	diff    string
	diffErr error

	reviews []*github.PullRequestReviewRequest
	created []string
}

func (f *fakeGitHub) GetPullRequest(context.Context, string, string, int) (*github.PullRequest, error) {
	same := github.String("acme/widgets")
	return &github.PullRequest{
		Head: &github.PullRequestBranch{Repo: &github.Repository{FullName: same}},
		Base: &github.PullRequestBranch{Repo: &github.Repository{FullName: same}},
	}, nil
}

func (f *fakeGitHub) GetRawDiff(context.Context, string, string, int) (string, error) {
	return f.diff, f.diffErr
}

func (f *fakeGitHub) CreateReview(_ context.Context, _, _ string, _ int, r *github.PullRequestReviewRequest) error {
	f.reviews = append(f.reviews, r)
	return nil
}

func (f *fakeGitHub) ListIssueComments(context.Context, string, string, int) ([]*github.IssueComment, error) {
	return nil, nil
}

func (f *fakeGitHub) EditIssueComment(context.Context, string, string, int64, string) error {
	return nil
}

func (f *fakeGitHub) CreateIssueComment(_ context.Context, _, _ string, _ int, body string) error {
	f.created = append(f.created, body)
	return nil
}

// scriptedAgent replays canned response contents in order.
type scriptedAgent struct {
	responses []any
	errs      []error
	calls     int
}

func (s *scriptedAgent) Run(context.Context, string) (*agent.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	var content any
	if i < len(s.responses) {
		content = s.responses[i]
	}
	return &agent.Response{Content: content, Model: "self-reported"}, nil
}

// blockingAgent waits out the deadline.
type blockingAgent struct{}

func (blockingAgent) Run(ctx context.Context, _ string) (*agent.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// histEmbedder is a deterministic offline embedder.
type histEmbedder struct{}

func (histEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	for _, b := range []byte(text) {
		v[int(b)%8]++
	}
	return v, nil
}

func (h histEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = h.Embed(ctx, t)
	}
	return out, nil
}

func newTestPipeline(t *testing.T, ag agent.Agent) (*Pipeline, *fakeGitHub) {
	t.Helper()
	dir := t.TempDir()

	eventPath := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(eventPath, []byte(eventJSON), 0644))

	cfg := &config.Config{
		GitHubToken:    "test-token",
		EventPath:      eventPath,
		Repository:     "acme/widgets",
		OutputPath:     filepath.Join(dir, "output"),
		BaseURL:        "http://127.0.0.1:1/v1",
		ModelID:        "devstral",
		EmbeddingModel: "embedder",
		Transport:      agent.TransportLocal,
		DataDir:        filepath.Join(dir, "data"),
		PromptsDir:     "prompts",
		TimeoutSeconds: 30,
	}

	gh := &fakeGitHub{diff: testDiff}
	return &Pipeline{
		Cfg:      cfg,
		Client:   gh,
		Embedder: histEmbedder{},
		NewAgent: func(agent.ReviewerOptions) (agent.Agent, error) { return ag, nil },
	}, gh
}

func TestLoadPREvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(eventJSON), 0644))

	ev, err := LoadPREvent(path)
	require.NoError(t, err)
	assert.Equal(t, 7, ev.Number)
	assert.Equal(t, "acme/widgets", ev.Repo)
	assert.Equal(t, "octocat", ev.Author)
	assert.Equal(t, "fix-auth", ev.HeadRef)
	assert.Equal(t, "0123456789abcdef", ev.HeadSHA)
	assert.Equal(t, "main", ev.BaseRef)
	assert.Equal(t, "Tightens token checks", ev.Description)
}

func TestLoadPREvent_NullBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	payload := strings.Replace(eventJSON, `"body": "Tightens token checks"`, `"body": null`, 1)
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))

	ev, err := LoadPREvent(path)
	require.NoError(t, err)
	assert.Equal(t, "", ev.Description)
}

func TestLoadPREvent_NotAPullRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"repository": {"full_name": "acme/widgets"}}`), 0644))

	_, err := LoadPREvent(path)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestLoadPREvent_MissingFile(t *testing.T) {
	_, err := LoadPREvent(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigMissing))
}

func TestRun_Success(t *testing.T) {
	ag := &scriptedAgent{responses: []any{reviewJSON(findingJSON, "PASS", false)}}
	p, gh := newTestPipeline(t, ag)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.MergeBlocking)
	assert.Equal(t, "devstral", res.Review.Model, "configured model overrides the self-reported one")

	require.Len(t, gh.reviews, 1, "finding on a diff line posts inline")
	require.Len(t, gh.created, 1)
	assert.Contains(t, gh.created[0], "## ✅ Grippy Review — PASS")
	assert.Contains(t, gh.created[0], "<!-- grippy-summary-7 -->")

	out, err := os.ReadFile(p.Cfg.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(out), "score=80\n")
	assert.Contains(t, string(out), "verdict=PASS\n")
	assert.Contains(t, string(out), "findings-count=1\n")
	assert.Contains(t, string(out), "merge-blocking=false\n")
}

func TestRun_MergeBlocking(t *testing.T) {
	ag := &scriptedAgent{responses: []any{reviewJSON(findingJSON, "FAIL", true)}}
	p, _ := newTestPipeline(t, ag)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.MergeBlocking)
}

func TestRun_CrossRoundResolution(t *testing.T) {
	ag := &scriptedAgent{responses: []any{
		reviewJSON(findingJSON, "PROVISIONAL", false),
		reviewJSON("", "PASS", false),
	}}
	p, gh := newTestPipeline(t, ag)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// Same data dir, same PR: the second round sees the first round's
	// finding as prior and reports it resolved.
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, gh.created, 2)
	assert.Contains(t, gh.created[1], "✅ 1 resolved")

	// A third round starts clean because the finding was marked resolved.
	ag.responses = append(ag.responses, reviewJSON("", "PASS", false))
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, gh.created[2], "resolved")
}

func TestRun_MissingToken(t *testing.T) {
	p, _ := newTestPipeline(t, &scriptedAgent{})
	p.Cfg.GitHubToken = ""

	_, err := p.Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigMissing))
}

func TestRun_InvalidTransport(t *testing.T) {
	p, gh := newTestPipeline(t, &scriptedAgent{})
	p.Cfg.Transport = "carrier-pigeon"

	_, err := p.Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigTransport))

	require.Len(t, gh.created, 1)
	assert.Contains(t, gh.created[0], "CONFIG ERROR")
	assert.Contains(t, gh.created[0], "<!-- grippy-error -->")
}

func TestRun_DiffFetchError(t *testing.T) {
	p, gh := newTestPipeline(t, &scriptedAgent{})
	gh.diffErr = fmt.Errorf("403 Forbidden")

	_, err := p.Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeDiffFetch))

	require.Len(t, gh.created, 1)
	assert.Contains(t, gh.created[0], "DIFF FETCH ERROR")
}

func TestRun_ParseError(t *testing.T) {
	ag := &scriptedAgent{responses: []any{"garbage", "more garbage", "still garbage", "garbage forever"}}
	p, gh := newTestPipeline(t, ag)

	_, err := p.Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeReviewParse))

	require.Len(t, gh.created, 1)
	assert.Contains(t, gh.created[0], "PARSE ERROR")
	assert.Contains(t, gh.created[0], "garbage forever")
}

func TestRun_Timeout(t *testing.T) {
	p, gh := newTestPipeline(t, blockingAgent{})
	p.Cfg.TimeoutSeconds = 1

	_, err := p.Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeAgentTimeout))

	require.Len(t, gh.created, 1)
	assert.Contains(t, gh.created[0], "TIMEOUT")
	assert.Contains(t, gh.created[0], "Review timed out after 1s")
}
