package posting

import (
	"context"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/grippy/grippy/consts"
	"github.com/grippy/grippy/internal/diffparse"
	"github.com/grippy/grippy/internal/resolve"
	"github.com/grippy/grippy/internal/schema"
	"github.com/grippy/grippy/pkg/errors"
	"github.com/grippy/grippy/pkg/logger"
)

// ReviewInput is everything PostReview needs for one round.
type ReviewInput struct {
	Repo     string // owner/name
	PRNumber int

	Findings      []schema.Finding
	Escalations   []schema.Escalation
	PriorFindings []resolve.PriorFinding
	HeadSHA       string
	Diff          string
	Score         int
	Verdict       string
}

// PostReview publishes the round: inline comments for findings anchored
// on the diff, then the summary dashboard as an upserted issue comment.
// It returns the lifecycle resolution so the caller can update finding
// status in the store.
//
// Fork PRs get no inline comments (the CI token is read-only there), so
// every finding moves to the summary's off-diff section. Batches GitHub
// rejects with 422 fall back to off-diff the same way.
func PostReview(ctx context.Context, client Client, in ReviewInput) (resolve.Result, error) {
	var zero resolve.Result

	owner, name, err := SplitRepo(in.Repo)
	if err != nil {
		return zero, err
	}

	// Delta counts reflect the round itself, before any posting fallback.
	resolution := resolve.Against(in.Findings, in.PriorFindings)

	pr, err := client.GetPullRequest(ctx, owner, name, in.PRNumber)
	if err != nil {
		return zero, errors.Wrap(errors.ErrCodePosting, "failed to fetch pull request", err)
	}
	isFork := pr.GetHead().GetRepo().GetFullName() != "" &&
		pr.GetBase().GetRepo().GetFullName() != "" &&
		pr.GetHead().GetRepo().GetFullName() != pr.GetBase().GetRepo().GetFullName()

	diffLines := diffparse.ParseDiffLines(in.Diff)
	inline, offDiff := diffparse.Classify(in.Findings, diffLines)
	if isFork {
		logger.Info("Fork PR detected, posting all findings off-diff",
			zap.String("head", pr.GetHead().GetRepo().GetFullName()),
		)
		inline = nil
		offDiff = in.Findings
	}

	for start := 0; start < len(inline); start += consts.ReviewBatchSize {
		end := start + consts.ReviewBatchSize
		if end > len(inline) {
			end = len(inline)
		}
		batch := inline[start:end]

		comments := make([]*github.DraftReviewComment, len(batch))
		for i := range batch {
			comments[i] = BuildReviewComment(&batch[i])
		}
		err := client.CreateReview(ctx, owner, name, in.PRNumber, &github.PullRequestReviewRequest{
			Event:    github.String("COMMENT"),
			Comments: comments,
		})
		if err != nil {
			if !IsUnprocessable(err) {
				return zero, errors.Wrap(errors.ErrCodePosting, "failed to create review", err)
			}
			// GitHub could not anchor something in this batch; surface the
			// findings in the summary instead of dropping them.
			logger.Warn("Review batch rejected, moving findings off-diff",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
			)
			offDiff = append(offDiff, batch...)
		}
	}

	summary := FormatSummaryComment(SummaryInput{
		Score:           in.Score,
		Verdict:         in.Verdict,
		FindingCount:    len(in.Findings),
		NewCount:        len(resolution.New),
		PersistsCount:   len(resolution.Persisting),
		ResolvedCount:   len(resolution.Resolved),
		OffDiffFindings: offDiff,
		Escalations:     in.Escalations,
		HeadSHA:         in.HeadSHA,
		PRNumber:        in.PRNumber,
	})
	if err := UpsertSummary(ctx, client, owner, name, in.PRNumber, summary); err != nil {
		return zero, err
	}
	return resolution, nil
}

// UpsertSummary edits the existing summary comment when the PR already
// has one, otherwise creates it. One dashboard per PR, updated in place.
func UpsertSummary(ctx context.Context, client Client, owner, name string, prNumber int, body string) error {
	marker := consts.SummaryMarker(prNumber)

	comments, err := client.ListIssueComments(ctx, owner, name, prNumber)
	if err != nil {
		return errors.Wrap(errors.ErrCodePosting, "failed to list comments", err)
	}
	for _, c := range comments {
		if containsMarker(c.GetBody(), marker) {
			if err := client.EditIssueComment(ctx, owner, name, c.GetID(), body); err != nil {
				return errors.Wrap(errors.ErrCodePosting, "failed to update summary comment", err)
			}
			return nil
		}
	}
	if err := client.CreateIssueComment(ctx, owner, name, prNumber, body); err != nil {
		return errors.Wrap(errors.ErrCodePosting, "failed to create summary comment", err)
	}
	return nil
}

// PostComment posts a standalone issue comment. Error paths use this for
// CONFIG ERROR / PARSE ERROR / TIMEOUT comments.
func PostComment(ctx context.Context, client Client, repo string, prNumber int, body string) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}
	if err := client.CreateIssueComment(ctx, owner, name, prNumber, body); err != nil {
		return errors.Wrap(errors.ErrCodePosting, "failed to post comment", err)
	}
	return nil
}

func containsMarker(body, marker string) bool {
	return body != "" && strings.Contains(body, marker)
}
