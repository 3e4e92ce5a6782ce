// Package posting publishes review results to GitHub: inline review
// comments, the summary dashboard, error comments, and review thread
// resolution.
package posting

import (
	"context"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/grippy/grippy/pkg/errors"
)

// Client is the slice of the GitHub API the pipeline needs. Tests swap in
// a fake; production uses the go-github implementation below.
type Client interface {
	// GetPullRequest fetches PR metadata (fork detection, head SHA).
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	// GetRawDiff fetches the complete unified diff in one request.
	GetRawDiff(ctx context.Context, owner, repo string, number int) (string, error)
	// CreateReview submits a batch of inline comments as one review.
	CreateReview(ctx context.Context, owner, repo string, number int, review *github.PullRequestReviewRequest) error
	// ListIssueComments returns the PR's issue comments (for upserts).
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error)
	// EditIssueComment rewrites an existing comment body.
	EditIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error
	// CreateIssueComment posts a new issue comment on the PR.
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}

// githubClient backs Client with go-github over an OAuth2 token.
type githubClient struct {
	gh *github.Client
}

// NewClient builds a token-authenticated GitHub client.
func NewClient(ctx context.Context, token string) Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &githubClient{gh: github.NewClient(oauth2.NewClient(ctx, ts))}
}

func (c *githubClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	return pr, err
}

func (c *githubClient) GetRawDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, _, err := c.gh.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	return diff, err
}

func (c *githubClient) CreateReview(ctx context.Context, owner, repo string, number int, review *github.PullRequestReviewRequest) error {
	_, _, err := c.gh.PullRequests.CreateReview(ctx, owner, repo, number, review)
	return err
}

func (c *githubClient) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error) {
	var all []*github.IssueComment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, comments...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *githubClient) EditIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	_, _, err := c.gh.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{Body: github.String(body)})
	return err
}

func (c *githubClient) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.String(body)})
	return err
}

// SplitRepo splits "owner/name" into its parts.
func SplitRepo(full string) (owner, name string, err error) {
	owner, name, found := strings.Cut(full, "/")
	if !found || owner == "" || name == "" {
		return "", "", errors.New(errors.ErrCodeConfigInvalid, "repository must be owner/name, got: "+full)
	}
	return owner, name, nil
}

// IsUnprocessable reports whether err is a GitHub 422 response, which the
// review API returns for comment positions it cannot anchor.
func IsUnprocessable(err error) bool {
	if errResp, ok := err.(*github.ErrorResponse); ok {
		return errResp.Response != nil && errResp.Response.StatusCode == 422
	}
	return false
}
