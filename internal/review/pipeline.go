package review

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/grippy/grippy/consts"
	"github.com/grippy/grippy/internal/agent"
	"github.com/grippy/grippy/internal/codebase"
	"github.com/grippy/grippy/internal/config"
	"github.com/grippy/grippy/internal/diffparse"
	"github.com/grippy/grippy/internal/graph"
	"github.com/grippy/grippy/internal/posting"
	"github.com/grippy/grippy/internal/resolve"
	"github.com/grippy/grippy/internal/retry"
	"github.com/grippy/grippy/internal/schema"
	"github.com/grippy/grippy/internal/store"
	"github.com/grippy/grippy/pkg/errors"
	"github.com/grippy/grippy/pkg/logger"
)

// toolCallLimit bounds agent tool rounds when codebase tools are wired
const toolCallLimit = 10

// Result is what a completed run reports back to the CLI.
type Result struct {
	Review        *schema.Review
	MergeBlocking bool
}

// Pipeline wires the run's collaborators. Tests replace Client and
// NewAgent; production uses the defaults from New.
type Pipeline struct {
	Cfg    *config.Config
	Client posting.Client

	// NewAgent builds the review agent; overridable in tests.
	NewAgent func(agent.ReviewerOptions) (agent.Agent, error)

	// Embedder overrides the config-derived embedder when set.
	Embedder store.Embedder
}

// New builds a production pipeline.
func New(ctx context.Context, cfg *config.Config) *Pipeline {
	return &Pipeline{
		Cfg:    cfg,
		Client: posting.NewClient(ctx, cfg.GitHubToken),
		NewAgent: func(opts agent.ReviewerOptions) (agent.Agent, error) {
			r, err := agent.NewReviewer(opts)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

// Run executes the full review round. Fatal failures (config, diff fetch,
// agent, parse, timeout) post an error comment and return an error whose
// code maps to a non-zero exit. Persistence and posting problems degrade:
// they are logged, and the run continues.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	cfg := p.Cfg

	if cfg.GitHubToken == "" {
		return nil, errors.New(errors.ErrCodeConfigMissing, "GITHUB_TOKEN not set")
	}
	if cfg.EventPath == "" {
		return nil, errors.New(errors.ErrCodeConfigMissing, "GITHUB_EVENT_PATH not set")
	}

	ev, err := LoadPREvent(cfg.EventPath)
	if err != nil {
		return nil, err
	}
	sessionID := consts.SessionID(ev.Number)
	logger.Info("Starting review",
		zap.Int("pr", ev.Number),
		zap.String("repo", ev.Repo),
		zap.String("branch", ev.HeadRef+" → "+ev.BaseRef),
	)

	transport, err := cfg.ResolveTransport()
	if err != nil {
		p.postErrorComment(ctx, ev, "CONFIG ERROR", fmt.Sprintf(
			"Invalid configuration: `%v`\n\nValid GRIPPY_TRANSPORT values: `openai`, `local`", err))
		return nil, err
	}

	// Persistence and codebase tooling degrade to diff-only review.
	st := p.openStore(transport)
	if st != nil {
		defer st.Close()
	}
	tools := p.buildTools(ctx, st)

	ag, err := p.NewAgent(agent.ReviewerOptions{
		ModelID:       cfg.ModelID,
		BaseURL:       cfg.BaseURL,
		Transport:     transport,
		APIKey:        cfg.APIKey,
		PromptsDir:    cfg.PromptsDir,
		Mode:          cfg.Mode,
		Tools:         tools,
		ToolCallLimit: limitIf(len(tools) > 0),
		SessionID:     sessionID,
	})
	if err != nil {
		p.postErrorComment(ctx, ev, "CONFIG ERROR",
			fmt.Sprintf("Could not configure review agent: `%v`", err))
		return nil, err
	}

	diff, err := p.fetchDiff(ctx, ev)
	if err != nil {
		return nil, err
	}
	diff = diffparse.TruncateDiff(diff, consts.MaxDiffChars)

	message := agent.FormatPRContext(agent.PRContext{
		Title:       ev.Title,
		Author:      ev.Author,
		Branch:      ev.HeadRef + " → " + ev.BaseRef,
		Description: ev.Description,
		Diff:        diff,
	})

	rev, err := p.runAgent(ctx, ev, ag, message)
	if err != nil {
		return nil, err
	}

	// The model's self-reported name is unreliable; pin the configured one.
	rev.Model = cfg.ModelID
	logger.Info("Review complete",
		zap.Int("score", rev.Score.Overall),
		zap.String("verdict", string(rev.Verdict.Status)),
		zap.Int("findings", len(rev.Findings)),
	)

	prior := p.persistGraph(ctx, st, rev, sessionID)

	resolution := p.postReview(ctx, ev, rev, prior, diff)

	if st != nil && resolution != nil {
		for _, r := range resolution.Resolved {
			if err := st.UpdateFindingStatus(r.NodeID(), graph.StatusResolved); err != nil {
				logger.Warn("Failed to mark finding resolved",
					zap.String("node_id", r.NodeID()), zap.Error(err))
			}
		}
		if n := len(resolution.Resolved); n > 0 {
			logger.Info("Marked findings resolved", zap.Int("count", n))
		}
	}

	p.writeOutputs(rev)

	return &Result{Review: rev, MergeBlocking: rev.Verdict.MergeBlocking}, nil
}

func limitIf(hasTools bool) int {
	if hasTools {
		return toolCallLimit
	}
	return 0
}

// openStore opens the graph and vector stores; nil means persistence is
// off for this run.
func (p *Pipeline) openStore(transport string) *store.Store {
	embedder := p.Embedder
	if embedder == nil {
		var err error
		embedder, err = store.NewEmbedder(store.EmbedderOptions{
			Model:     p.Cfg.EmbeddingModel,
			BaseURL:   p.Cfg.BaseURL,
			Transport: transport,
			APIKey:    p.Cfg.APIKey,
		})
		if err != nil {
			logger.Warn("Embedder unavailable, persistence disabled", zap.Error(err))
			return nil
		}
	}
	st, err := store.Open(p.Cfg.DataDir, embedder)
	if err != nil {
		logger.Warn("Store unavailable, persistence disabled", zap.Error(err))
		return nil
	}
	return st
}

// buildTools indexes the checked-out workspace and returns the codebase
// toolkit. Any failure here downgrades to a diff-only review.
func (p *Pipeline) buildTools(ctx context.Context, st *store.Store) []agent.Tool {
	if p.Cfg.Workspace == "" || st == nil {
		return nil
	}
	ix := codebase.NewIndex(p.Cfg.Workspace, st.Vectors)
	if !ix.IsIndexed() {
		if _, err := ix.Build(ctx); err != nil {
			logger.Warn("Codebase indexing failed", zap.Error(err))
			return nil
		}
	}
	return codebase.Tools(ix, p.Cfg.Workspace)
}

func (p *Pipeline) fetchDiff(ctx context.Context, ev *PREvent) (string, error) {
	owner, name, err := posting.SplitRepo(ev.Repo)
	if err != nil {
		return "", err
	}
	diff, err := p.Client.GetRawDiff(ctx, owner, name, ev.Number)
	if err != nil {
		if strings.Contains(err.Error(), "403") {
			logger.Error("Diff fetch forbidden; for fork PRs the workflow needs " +
				"the pull_request_target trigger or a token with read access to the fork")
		}
		p.postErrorComment(ctx, ev, "DIFF FETCH ERROR",
			fmt.Sprintf("Could not fetch PR diff: `%v`", err))
		return "", errors.Wrap(errors.ErrCodeDiffFetch, "failed to fetch PR diff", err)
	}
	logger.Info("Fetched diff",
		zap.Int("files", strings.Count(diff, "diff --git")),
		zap.Int("chars", len(diff)),
	)
	return diff, nil
}

// runAgent executes the retry engine under the configured deadline and
// maps each failure class to its error comment.
func (p *Pipeline) runAgent(ctx context.Context, ev *PREvent, ag agent.Agent, message string) (*schema.Review, error) {
	runCtx := ctx
	if timeout := p.Cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rev, err := retry.RunReview(runCtx, ag, message, retry.Options{
		MaxRetries: retry.DefaultMaxRetries,
		OnValidationError: func(attempt int, err error) {
			logger.Warn("Review output failed validation",
				zap.Int("attempt", attempt), zap.Error(err))
		},
	})
	if err == nil {
		return rev, nil
	}

	var parseErr *retry.ParseError
	switch {
	case stderrors.As(err, &parseErr):
		preview := parseErr.LastRaw
		if len(preview) > 500 {
			preview = preview[:500]
		}
		p.postErrorComment(ctx, ev, "PARSE ERROR", fmt.Sprintf(
			"Failed after %d attempts.\n\n```\n%s\n```", parseErr.Attempts, preview))
		return nil, errors.Wrap(errors.ErrCodeReviewParse, "review output never validated", err)

	case runCtx.Err() == context.DeadlineExceeded:
		p.postErrorComment(ctx, ev, "TIMEOUT", fmt.Sprintf(
			"Review timed out after %ds.\n\nModel: %s at %s",
			p.Cfg.TimeoutSeconds, p.Cfg.ModelID, p.Cfg.BaseURL))
		return nil, errors.Wrap(errors.ErrCodeAgentTimeout, "review timed out", err)

	default:
		p.postErrorComment(ctx, ev, "ERROR", fmt.Sprintf(
			"Review agent failed: `%v`\n\nModel: %s at %s",
			err, p.Cfg.ModelID, p.Cfg.BaseURL))
		return nil, errors.Wrap(errors.ErrCodeAgentExecution, "review agent failed", err)
	}
}

// persistGraph stores the round's graph and returns the prior round's
// open findings. Prior findings are read before the current round lands,
// otherwise the round would match against itself.
func (p *Pipeline) persistGraph(ctx context.Context, st *store.Store, rev *schema.Review, sessionID string) []resolve.PriorFinding {
	if st == nil {
		return nil
	}

	g := graph.ReviewToGraph(rev)

	prior, err := st.GetPriorFindings(sessionID)
	if err != nil {
		logger.Warn("Failed to load prior findings", zap.Error(err))
		prior = nil
	}

	if err := st.StoreReview(ctx, g, sessionID); err != nil {
		logger.Warn("Graph persistence failed", zap.Error(err))
		workflowCommand("warning", "Graph persistence failed: "+err.Error())
	} else {
		logger.Info("Persisted review graph", zap.Int("nodes", len(g.Nodes)))
	}
	return prior
}

// postReview publishes inline comments and the dashboard. On failure a
// rescue comment records that the review ran but could not be posted.
func (p *Pipeline) postReview(ctx context.Context, ev *PREvent, rev *schema.Review, prior []resolve.PriorFinding, diff string) *resolve.Result {
	resolution, err := posting.PostReview(ctx, p.Client, posting.ReviewInput{
		Repo:          ev.Repo,
		PRNumber:      ev.Number,
		Findings:      rev.Findings,
		Escalations:   rev.Escalations,
		PriorFindings: prior,
		HeadSHA:       ev.HeadSHA,
		Diff:          diff,
		Score:         rev.Score.Overall,
		Verdict:       string(rev.Verdict.Status),
	})
	if err != nil {
		logger.Warn("Failed to post review", zap.Error(err))
		workflowCommand("warning", "Failed to post review: "+err.Error())
		rescue := fmt.Sprintf(
			"## Grippy Review\n\n**Review completed** (score: %d/100, %s) "+
				"but **failed to post inline comments**: %v\n\n%s",
			rev.Score.Overall, rev.Verdict.Status, err, consts.ErrorMarker)
		if perr := posting.PostComment(ctx, p.Client, ev.Repo, ev.Number, rescue); perr != nil {
			logger.Warn("Failed to post rescue comment", zap.Error(perr))
		}
		return nil
	}
	return &resolution
}

// workflowCommand emits a GitHub Actions annotation. Newlines are encoded
// per the workflow command format. No-op outside Actions.
func workflowCommand(level, msg string) {
	if os.Getenv("GITHUB_ACTIONS") != "true" {
		return
	}
	fmt.Printf("::%s::%s\n", level, strings.ReplaceAll(msg, "\n", "%0A"))
}

// postErrorComment posts a tagged failure comment; never fatal itself.
func (p *Pipeline) postErrorComment(ctx context.Context, ev *PREvent, kind, detail string) {
	workflowCommand("error", kind+": "+detail)
	body := fmt.Sprintf("## ❌ Grippy Review — %s\n\n%s\n\n%s", kind, detail, consts.ErrorMarker)
	if err := posting.PostComment(ctx, p.Client, ev.Repo, ev.Number, body); err != nil {
		logger.Warn("Failed to post error comment",
			zap.String("kind", kind), zap.Error(err))
	}
}

// writeOutputs appends the step outputs GitHub Actions exposes to later
// workflow steps.
func (p *Pipeline) writeOutputs(rev *schema.Review) {
	path := p.Cfg.OutputPath
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Warn("Failed to open GITHUB_OUTPUT", zap.Error(err))
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "score=%d\n", rev.Score.Overall)
	fmt.Fprintf(f, "verdict=%s\n", rev.Verdict.Status)
	fmt.Fprintf(f, "findings-count=%d\n", len(rev.Findings))
	fmt.Fprintf(f, "merge-blocking=%t\n", rev.Verdict.MergeBlocking)
}
