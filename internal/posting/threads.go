package posting

import (
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/grippy/grippy/pkg/logger"
)

// resolveThreadMutation marks a review thread resolved. The thread ID is
// passed as a GraphQL variable, never interpolated into the query.
const resolveThreadMutation = "mutation ResolveThread($threadId: ID!) { " +
	"resolveReviewThread(input: {threadId: $threadId}) { " +
	"thread { id isResolved } } }"

// threadResolveTimeout bounds each gh invocation
const threadResolveTimeout = 30 * time.Second

// ResolveThreads marks review threads resolved via the GraphQL API,
// shelling out to gh for authentication. Failures are logged and skipped;
// the return value is the count actually resolved.
func ResolveThreads(ctx context.Context, repo string, prNumber int, threadIDs []string) int {
	resolved := 0
	for _, id := range threadIDs {
		runCtx, cancel := context.WithTimeout(ctx, threadResolveTimeout)
		cmd := exec.CommandContext(runCtx, "gh", "api", "graphql",
			"-f", "query="+resolveThreadMutation,
			"-f", "threadId="+id,
		)
		out, err := cmd.CombinedOutput()
		cancel()
		if err != nil {
			logger.Warn("Failed to resolve review thread",
				zap.String("repo", repo),
				zap.Int("pr", prNumber),
				zap.String("thread_id", id),
				zap.String("output", string(out)),
				zap.Error(err),
			)
			continue
		}
		resolved++
	}
	return resolved
}
