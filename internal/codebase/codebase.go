// Package codebase indexes repository source files for semantic search and
// exposes the search/read tools the review agent can call. The agent sees
// the whole repository this way, not just the diff.
package codebase

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/grippy/grippy/consts"
)

// DefaultExtensions are the file suffixes worth indexing.
var DefaultExtensions = map[string]bool{
	".go":   true,
	".py":   true,
	".js":   true,
	".ts":   true,
	".md":   true,
	".yaml": true,
	".yml":  true,
	".toml": true,
}

// DefaultIgnoreDirs are skipped during the filesystem walk fallback.
// Entries may be glob patterns.
var DefaultIgnoreDirs = []string{
	"__pycache__",
	".git",
	".venv",
	"venv",
	"node_modules",
	"vendor",
	".mypy_cache",
	".pytest_cache",
	".ruff_cache",
	".tox",
	"dist",
	"build",
	".eggs",
	"*.egg-info",
}

const (
	defaultChunkChars   = 4000
	defaultChunkOverlap = 200
)

// limitResult truncates tool output to the cap, appending guidance when cut.
func limitResult(text string) string {
	if len(text) <= consts.MaxToolResultChars {
		return text
	}
	return text[:consts.MaxToolResultChars] +
		"\n\n... (truncated; narrow your query with a more specific pattern or " +
		"smaller line range to see full results)"
}

// WalkSourceFiles lists indexable files under root, relative to root and
// sorted. It respects .gitignore via git ls-files when available, falling
// back to a manual walk with directory filtering.
func WalkSourceFiles(root string, extensions map[string]bool, ignoreDirs []string) ([]string, error) {
	if extensions == nil {
		extensions = DefaultExtensions
	}
	if ignoreDirs == nil {
		ignoreDirs = DefaultIgnoreDirs
	}

	if files, err := gitListFiles(root, extensions); err == nil {
		return files, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if matchesAny(d.Name(), ignoreDirs) {
				return filepath.SkipDir
			}
			return nil
		}
		if extensions[filepath.Ext(path)] {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// gitListFiles shells out to git for a .gitignore-aware file list.
func gitListFiles(root string, extensions map[string]bool) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" || !extensions[filepath.Ext(line)] {
			continue
		}
		if info, err := os.Stat(filepath.Join(root, line)); err != nil || info.IsDir() {
			continue
		}
		files = append(files, filepath.ToSlash(line))
	}
	sort.Strings(files)
	return files, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}

// FileChunk is one slice of a source file, with 1-based line metadata.
type FileChunk struct {
	FilePath   string
	ChunkIndex int
	StartLine  int
	EndLine    int
	Text       string
}

// ChunkFile splits file content into embedding-sized pieces. Content at or
// under maxChunkChars becomes a single chunk; larger content is split into
// overlapping character windows. Overlap is clamped below the window size
// so the cursor always advances.
func ChunkFile(relPath, content string, maxChunkChars, overlap int) []FileChunk {
	if maxChunkChars <= 0 {
		maxChunkChars = defaultChunkChars
	}
	if overlap >= maxChunkChars {
		overlap = maxChunkChars - 1
	}
	if overlap < 0 {
		overlap = 0
	}

	if strings.TrimSpace(content) == "" {
		return nil
	}

	totalLines := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		totalLines++
	}

	if len(content) <= maxChunkChars {
		return []FileChunk{{
			FilePath:  relPath,
			StartLine: 1,
			EndLine:   totalLines,
			Text:      content,
		}}
	}

	var chunks []FileChunk
	pos := 0
	idx := 0
	for pos < len(content) {
		end := pos + maxChunkChars
		if end > len(content) {
			end = len(content)
		}
		text := content[pos:end]
		startLine := strings.Count(content[:pos], "\n") + 1
		chunks = append(chunks, FileChunk{
			FilePath:   relPath,
			ChunkIndex: idx,
			StartLine:  startLine,
			EndLine:    startLine + strings.Count(text, "\n"),
			Text:       text,
		})
		idx++

		if end < len(content) {
			pos = end - overlap
		} else {
			pos = end
		}
	}
	return chunks
}
