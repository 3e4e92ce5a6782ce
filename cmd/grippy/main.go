// Package main is the entry point for Grippy, an AI-assisted pull request
// reviewer that runs inside GitHub Actions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grippy/grippy/consts"
	"github.com/grippy/grippy/internal/codebase"
	"github.com/grippy/grippy/internal/config"
	"github.com/grippy/grippy/internal/posting"
	"github.com/grippy/grippy/internal/review"
	"github.com/grippy/grippy/internal/store"
	"github.com/grippy/grippy/pkg/errors"
	"github.com/grippy/grippy/pkg/logger"
)

// Build information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

var rootCmd = &cobra.Command{
	Use:   "grippy",
	Short: "Grippy - AI-assisted pull request review for CI",
	Long: `Grippy reviews pull requests with an LLM and posts the results back
to GitHub: inline comments for findings it can anchor on the diff, plus a
summary dashboard comment that is updated in place across review rounds.`,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run one review round for the current pull request",
	Long: `Run the full review pipeline: read the Actions event, fetch the
diff, run the review agent, persist the finding graph, and post comments.

Exits non-zero when the run fails or the verdict is merge-blocking.`,
	Run: runReview,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the codebase vector index",
	Long: `Index the repository's source files into the vector store so the
review agent can search the codebase beyond the diff. Run this once per
checkout; review runs reuse the index when it exists.`,
	Run: runIndex,
}

var resolveThreadsCmd = &cobra.Command{
	Use:   "resolve-threads [thread-id...]",
	Short: "Resolve review threads by their GraphQL node IDs",
	Long: `Mark review threads resolved via the GitHub GraphQL API. Thread IDs
are the PRRT_... node IDs. Requires an authenticated gh CLI.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runResolveThreads,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", consts.ProjectName, Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(resolveThreadsCmd)
	rootCmd.AddCommand(versionCmd)

	resolveThreadsCmd.Flags().String("repo", "", "repository (owner/name), for logging")
	resolveThreadsCmd.Flags().Int("pr", 0, "pull request number, for logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .dev.vars, the config, and initializes logging. Shared by the
// review and index commands.
func setup() *config.Config {
	config.LoadDevVars(".dev.vars")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// runReview executes one review round and maps the outcome to the process
// exit code: 1 for fatal pipeline errors and merge-blocking verdicts.
func runReview(cmd *cobra.Command, args []string) {
	cfg := setup()
	defer logger.Sync()

	logger.Info("Starting Grippy", zap.String("version", Version))

	ctx := context.Background()
	pipeline := review.New(ctx, cfg)

	res, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("Review run failed", zap.Error(err))
		logger.Sync()
		if appErr, ok := errors.AsAppError(err); ok && appErr.ExitCode() != 0 {
			os.Exit(appErr.ExitCode())
		}
		os.Exit(1)
	}

	if res.MergeBlocking {
		color.Red("Verdict: %s (merge blocking)", res.Review.Verdict.Status)
		logger.Sync()
		os.Exit(1)
	}
	color.Green("Verdict: %s (score %d/100, %d findings)",
		res.Review.Verdict.Status, res.Review.Score.Overall, len(res.Review.Findings))
}

// runResolveThreads resolves the given review threads.
func runResolveThreads(cmd *cobra.Command, args []string) {
	cfg := setup()
	defer logger.Sync()

	repo, _ := cmd.Flags().GetString("repo")
	if repo == "" {
		repo = cfg.Repository
	}
	pr, _ := cmd.Flags().GetInt("pr")

	resolved := posting.ResolveThreads(context.Background(), repo, pr, args)
	if resolved < len(args) {
		color.Yellow("Resolved %d of %d threads", resolved, len(args))
		os.Exit(1)
	}
	color.Green("Resolved %d threads", resolved)
}

// runIndex builds the codebase vector index for the workspace.
func runIndex(cmd *cobra.Command, args []string) {
	cfg := setup()
	defer logger.Sync()

	root := cfg.Workspace
	if root == "" {
		root = "."
	}

	transport, err := cfg.ResolveTransport()
	if err != nil {
		logger.Error("Invalid transport", zap.Error(err))
		os.Exit(1)
	}
	embedder, err := store.NewEmbedder(store.EmbedderOptions{
		Model:     cfg.EmbeddingModel,
		BaseURL:   cfg.BaseURL,
		Transport: transport,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		logger.Error("Failed to create embedder", zap.Error(err))
		os.Exit(1)
	}
	st, err := store.Open(cfg.DataDir, embedder)
	if err != nil {
		logger.Error("Failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	ix := codebase.NewIndex(root, st.Vectors)
	count, err := ix.Build(context.Background())
	if err != nil {
		logger.Error("Indexing failed", zap.Error(err))
		os.Exit(1)
	}
	color.Green("Indexed %d chunks from %s", count, root)
}
