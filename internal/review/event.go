// Package review runs the CI pipeline end to end: parse the PR event,
// fetch the diff, run the agent with validation retries, persist the
// review graph, and publish comments.
package review

import (
	"encoding/json"
	"os"

	"github.com/grippy/grippy/pkg/errors"
)

// PREvent is the slice of the GitHub Actions pull_request payload the
// pipeline consumes.
type PREvent struct {
	Number      int
	Repo        string // owner/name
	Title       string
	Author      string
	HeadRef     string
	HeadSHA     string
	BaseRef     string
	Description string
}

// eventPayload mirrors the raw Actions event JSON.
type eventPayload struct {
	PullRequest *struct {
		Number int     `json:"number"`
		Title  string  `json:"title"`
		Body   *string `json:"body"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// LoadPREvent parses the event file GitHub Actions points
// GITHUB_EVENT_PATH at. A null PR body becomes an empty description.
func LoadPREvent(path string) (*PREvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigMissing, "event file not found: "+path, err)
	}

	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to parse event JSON", err)
	}
	if payload.PullRequest == nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "event payload has no pull_request")
	}

	pr := payload.PullRequest
	description := ""
	if pr.Body != nil {
		description = *pr.Body
	}
	return &PREvent{
		Number:      pr.Number,
		Repo:        payload.Repository.FullName,
		Title:       pr.Title,
		Author:      pr.User.Login,
		HeadRef:     pr.Head.Ref,
		HeadSHA:     pr.Head.SHA,
		BaseRef:     pr.Base.Ref,
		Description: description,
	}, nil
}
