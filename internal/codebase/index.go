package codebase

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grippy/grippy/consts"
	"github.com/grippy/grippy/internal/store"
	"github.com/grippy/grippy/pkg/logger"
)

// chunkWorkers bounds concurrent file reads during an index build.
const chunkWorkers = 8

// Index builds and queries the semantic codebase index.
type Index struct {
	root       string
	vectors    *store.VectorStore
	extensions map[string]bool
	ignoreDirs []string
	// IndexPaths restricts indexing to these paths under root when set
	IndexPaths []string
}

// NewIndex binds an index to a repository root and vector store.
func NewIndex(root string, vectors *store.VectorStore) *Index {
	return &Index{
		root:       root,
		vectors:    vectors,
		extensions: DefaultExtensions,
		ignoreDirs: DefaultIgnoreDirs,
	}
}

// IsIndexed reports whether chunks exist from a previous build.
func (ix *Index) IsIndexed() bool {
	ok, err := ix.vectors.HasChunks()
	return err == nil && ok
}

// Build walks, chunks, embeds, and stores source files, replacing any
// previous index. Returns the chunk count.
func (ix *Index) Build(ctx context.Context) (int, error) {
	var files []string

	roots := ix.IndexPaths
	if len(roots) == 0 {
		roots = []string{"."}
	}
	for _, sub := range roots {
		abs := filepath.Join(ix.root, sub)
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			files = append(files, filepath.ToSlash(sub))
			continue
		}
		subFiles, err := WalkSourceFiles(abs, ix.extensions, ix.ignoreDirs)
		if err != nil {
			return 0, err
		}
		for _, f := range subFiles {
			if sub != "." {
				f = filepath.ToSlash(filepath.Join(sub, f))
			}
			files = append(files, f)
		}
	}

	if len(files) > consts.MaxIndexFiles {
		logger.Warn("Capping indexing",
			zap.Int("limit", consts.MaxIndexFiles),
			zap.Int("found", len(files)),
		)
		files = files[:consts.MaxIndexFiles]
	}

	// Files are read and chunked in parallel; perFile keeps the output in
	// walk order so the index is deterministic.
	perFile := make([][]store.Chunk, len(files))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(chunkWorkers)
	for i, rel := range files {
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(ix.root, rel))
			if err != nil {
				return nil
			}
			for _, c := range ChunkFile(rel, string(data), defaultChunkChars, defaultChunkOverlap) {
				perFile[i] = append(perFile[i], store.Chunk{
					File:      c.FilePath,
					LineStart: c.StartLine,
					LineEnd:   c.EndLine,
					Text:      c.Text,
				})
			}
			return nil
		})
	}
	g.Wait()

	var chunks []store.Chunk
	for _, fc := range perFile {
		chunks = append(chunks, fc...)
	}

	if len(chunks) == 0 {
		logger.Warn("No files found to index", zap.String("root", ix.root))
		return 0, nil
	}

	if err := ix.vectors.ReplaceChunks(ctx, chunks); err != nil {
		return 0, err
	}
	logger.Info("Indexed codebase",
		zap.Int("chunks", len(chunks)),
		zap.Int("files", len(files)),
	)
	return len(chunks), nil
}

// Search runs vector similarity search over indexed chunks.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]store.ChunkHit, error) {
	return ix.vectors.SearchChunks(ctx, query, k)
}
