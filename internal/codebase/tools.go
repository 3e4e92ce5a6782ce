package codebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/grippy/grippy/internal/agent"
)

// grepTimeout bounds each grep subprocess
const grepTimeout = 10 * time.Second

// NewSearchCodeTool exposes semantic search over the index.
func NewSearchCodeTool(ix *Index) agent.Tool {
	return agent.Tool{
		Name: "search_code",
		Description: "Search the codebase by semantic similarity. Use this to find " +
			"definitions, patterns, or implementations across the full codebase, " +
			"not just the diff.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "natural language description of what to find",
				},
				"k": map[string]any{
					"type":        "integer",
					"description": "number of results to return (default 5)",
				},
			},
			"required": []string{"query"},
		},
		Call: func(ctx context.Context, argsJSON string) (string, error) {
			var args struct {
				Query string `json:"query"`
				K     int    `json:"k"`
			}
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if args.K <= 0 {
				args.K = 5
			}

			if !ix.IsIndexed() {
				return "Codebase not indexed; proceed with diff-only analysis.", nil
			}
			hits, err := ix.Search(ctx, args.Query, args.K)
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return "No results found.", nil
			}

			var b strings.Builder
			for _, h := range hits {
				fmt.Fprintf(&b, "--- %s (lines %d-%d) ---\n%s\n\n", h.File, h.LineStart, h.LineEnd, h.Text)
			}
			return limitResult(strings.TrimRight(b.String(), "\n") + "\n"), nil
		},
	}
}

// NewGrepCodeTool exposes regex search via the system grep.
func NewGrepCodeTool(repoRoot string) agent.Tool {
	return agent.Tool{
		Name: "grep_code",
		Description: "Regex search across the codebase with context lines. Use this " +
			"to find exact definitions, class names, or string patterns across all files.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "regex pattern to search for",
				},
				"glob": map[string]any{
					"type":        "string",
					"description": `file glob to filter (default "*.go")`,
				},
				"context_lines": map[string]any{
					"type":        "integer",
					"description": "lines of context before/after match (default 2)",
				},
			},
			"required": []string{"pattern"},
		},
		Call: func(ctx context.Context, argsJSON string) (string, error) {
			var args struct {
				Pattern      string `json:"pattern"`
				Glob         string `json:"glob"`
				ContextLines int    `json:"context_lines"`
			}
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if args.Glob == "" {
				args.Glob = "*.go"
			}
			if args.ContextLines <= 0 {
				args.ContextLines = 2
			}

			if _, err := regexp.Compile(args.Pattern); err != nil {
				return fmt.Sprintf("Invalid regex: %v", err), nil
			}

			ctx, cancel := context.WithTimeout(ctx, grepTimeout)
			defer cancel()
			cmd := exec.CommandContext(ctx, "grep",
				"-rn",
				"--max-count=50",
				"--include="+args.Glob,
				fmt.Sprintf("-C%d", args.ContextLines),
				"-E",
				args.Pattern,
				repoRoot,
			)
			out, err := cmd.Output()
			if ctx.Err() == context.DeadlineExceeded {
				return "Search timed out; try a more specific pattern.", nil
			}
			if err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					if exitErr.ExitCode() == 1 {
						return "No matches found.", nil
					}
					return fmt.Sprintf("Search failed: %s", strings.TrimSpace(string(exitErr.Stderr))), nil
				}
				return "grep not available on this system.", nil
			}
			return limitResult(string(out)), nil
		},
	}
}

// NewReadFileTool exposes file reads with line numbers.
func NewReadFileTool(repoRoot string) agent.Tool {
	return agent.Tool{
		Name:        "read_file",
		Description: "Read a file or line range from the codebase with line numbers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "relative file path from the repo root",
				},
				"start_line": map[string]any{
					"type":        "integer",
					"description": "first line to read (1-based, 0 = from start)",
				},
				"end_line": map[string]any{
					"type":        "integer",
					"description": "last line to read (1-based, 0 = to end)",
				},
			},
			"required": []string{"path"},
		},
		Call: func(_ context.Context, argsJSON string) (string, error) {
			var args struct {
				Path      string `json:"path"`
				StartLine int    `json:"start_line"`
				EndLine   int    `json:"end_line"`
			}
			if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}

			target, ok := resolveUnder(repoRoot, args.Path)
			if !ok {
				return "Error: path traversal not allowed.", nil
			}
			info, err := os.Stat(target)
			if err != nil || info.IsDir() {
				return fmt.Sprintf("File not found: %s", args.Path), nil
			}
			data, err := os.ReadFile(target)
			if err != nil {
				return fmt.Sprintf("Error reading file: %v", err), nil
			}

			lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
			startIdx := 0
			if args.StartLine > 0 {
				startIdx = args.StartLine - 1
			}
			endIdx := len(lines)
			if args.EndLine > 0 && args.EndLine < endIdx {
				endIdx = args.EndLine
			}
			if startIdx >= len(lines) {
				startIdx = len(lines)
			}
			selected := lines[startIdx:endIdx]

			var b strings.Builder
			fmt.Fprintf(&b, "# %s (lines %d-%d)\n", args.Path, startIdx+1, startIdx+len(selected))
			for i, line := range selected {
				fmt.Fprintf(&b, "%4d | %s\n", startIdx+i+1, line)
			}
			return limitResult(strings.TrimSuffix(b.String(), "\n")), nil
		},
	}
}

// NewListFilesTool exposes directory listings with glob filtering.
func NewListFilesTool(repoRoot string) agent.Tool {
	return agent.Tool{
		Name:        "list_files",
		Description: "List files in a directory, optionally filtered by glob.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": `relative directory path from the repo root (default ".")`,
				},
				"glob_pattern": map[string]any{
					"type":        "string",
					"description": `glob pattern to filter files (default "*")`,
				},
			},
		},
		Call: func(_ context.Context, argsJSON string) (string, error) {
			var args struct {
				Path        string `json:"path"`
				GlobPattern string `json:"glob_pattern"`
			}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
			}
			if args.Path == "" {
				args.Path = "."
			}
			if args.GlobPattern == "" {
				args.GlobPattern = "*"
			}

			target, ok := resolveUnder(repoRoot, args.Path)
			if !ok {
				return "Error: path traversal not allowed.", nil
			}
			if info, err := os.Stat(target); err != nil || !info.IsDir() {
				return fmt.Sprintf("Directory not found: %s", args.Path), nil
			}

			matches, err := doublestar.Glob(os.DirFS(target), args.GlobPattern)
			if err != nil {
				return fmt.Sprintf("Error listing files: %v", err), nil
			}
			sort.Strings(matches)

			var lines []string
			for _, m := range matches {
				full := filepath.Join(target, m)
				rel, err := filepath.Rel(repoRoot, full)
				if err != nil {
					continue
				}
				rel = filepath.ToSlash(rel)
				if info, err := os.Stat(full); err == nil && info.IsDir() {
					rel += "/"
				}
				lines = append(lines, rel)
			}
			if len(lines) == 0 {
				return fmt.Sprintf("No files matching '%s' in %s/", args.GlobPattern, args.Path), nil
			}
			return limitResult(strings.Join(lines, "\n")), nil
		},
	}
}

// Tools returns the full toolkit for a review run.
func Tools(ix *Index, repoRoot string) []agent.Tool {
	return []agent.Tool{
		NewSearchCodeTool(ix),
		NewGrepCodeTool(repoRoot),
		NewReadFileTool(repoRoot),
		NewListFilesTool(repoRoot),
	}
}

// resolveUnder joins rel onto root and rejects escapes above root.
func resolveUnder(root, rel string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	target := filepath.Clean(filepath.Join(absRoot, rel))
	if target != absRoot && !strings.HasPrefix(target, absRoot+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}
