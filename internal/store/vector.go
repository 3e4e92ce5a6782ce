package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/glebarez/sqlite"
	"github.com/grippy/grippy/internal/graph"
	"github.com/grippy/grippy/pkg/errors"
)

// NodeVector is one embedded graph node in the vector store.
type NodeVector struct {
	NodeID   string `gorm:"primaryKey"`
	NodeType string `gorm:"not null"`
	Label    string `gorm:"not null"`
	Text     string `gorm:"not null"`
	ReviewID string
	Vector   []byte `gorm:"not null"`
}

// TableName overrides the GORM default
func (NodeVector) TableName() string {
	return "nodes"
}

// ChunkVector is one embedded codebase chunk, rebuilt on every index run.
type ChunkVector struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	File      string `gorm:"not null;index"`
	LineStart int    `gorm:"not null"`
	LineEnd   int    `gorm:"not null"`
	Text      string `gorm:"not null"`
	Vector    []byte `gorm:"not null"`
}

// TableName overrides the GORM default
func (ChunkVector) TableName() string {
	return "codebase_chunks"
}

// NodeHit is a semantic search result over graph nodes.
type NodeHit struct {
	NodeID   string
	NodeType string
	Label    string
	Text     string
	ReviewID string
	Score    float64
}

// ChunkHit is a semantic search result over codebase chunks.
type ChunkHit struct {
	File      string
	LineStart int
	LineEnd   int
	Text      string
	Score     float64
}

// VectorStore holds embeddings in SQLite and ranks by cosine similarity
// in process. Corpus sizes here (nodes per PR, chunks per repo) stay far
// below where an ANN index would matter.
type VectorStore struct {
	db       *gorm.DB
	embedder Embedder
}

// NewVectorStore opens (or creates) the vector database under dir.
func NewVectorStore(dir string, embedder Embedder) (*VectorStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeVectorStore, "failed to create vector store directory", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "vectors.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVectorStore, "failed to open vector store", err)
	}
	if err := db.AutoMigrate(&NodeVector{}, &ChunkVector{}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeVectorStore, "failed to migrate vector store", err)
	}
	return &VectorStore{db: db, embedder: embedder}, nil
}

// Close closes the underlying connection.
func (v *VectorStore) Close() error {
	sqlDB, err := v.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StoreNodes embeds and persists the graph's nodes. Already-stored node
// IDs are skipped, so the table only grows with genuinely new nodes.
func (v *VectorStore) StoreNodes(ctx context.Context, g *graph.ReviewGraph) error {
	if len(g.Nodes) == 0 {
		return nil
	}

	var existing []string
	if err := v.db.Model(&NodeVector{}).Pluck("node_id", &existing).Error; err != nil {
		return errors.Wrap(errors.ErrCodeVectorStore, "failed to list stored nodes", err)
	}
	seen := map[string]bool{}
	for _, id := range existing {
		seen[id] = true
	}

	var fresh []graph.Node
	var texts []string
	for _, node := range g.Nodes {
		if seen[node.ID] {
			continue
		}
		fresh = append(fresh, node)
		texts = append(texts, NodeText(node))
	}
	if len(fresh) == 0 {
		return nil
	}

	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	rows := make([]NodeVector, len(fresh))
	for i, node := range fresh {
		rows[i] = NodeVector{
			NodeID:   node.ID,
			NodeType: string(node.Type),
			Label:    node.Label,
			Text:     texts[i],
			ReviewID: node.SourceReviewID,
			Vector:   encodeVector(vectors[i]),
		}
	}
	if err := v.db.Create(&rows).Error; err != nil {
		return errors.Wrap(errors.ErrCodeVectorStore, "failed to store node vectors", err)
	}
	return nil
}

// SearchNodes ranks stored nodes against the query, best first.
func (v *VectorStore) SearchNodes(ctx context.Context, query string, k int) ([]NodeHit, error) {
	queryVec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var rows []NodeVector
	if err := v.db.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.ErrCodeVectorStore, "failed to load node vectors", err)
	}

	hits := make([]NodeHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, NodeHit{
			NodeID:   row.NodeID,
			NodeType: row.NodeType,
			Label:    row.Label,
			Text:     row.Text,
			ReviewID: row.ReviewID,
			Score:    cosineSimilarity(queryVec, decodeVector(row.Vector)),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Chunk is an un-embedded codebase slice handed in by the indexer.
type Chunk struct {
	File      string
	LineStart int
	LineEnd   int
	Text      string
}

// ReplaceChunks rebuilds the codebase chunk table from scratch. Indexing
// always reflects the working tree, so stale chunks are dropped first.
func (v *VectorStore) ReplaceChunks(ctx context.Context, chunks []Chunk) error {
	if err := v.db.Where("1 = 1").Delete(&ChunkVector{}).Error; err != nil {
		return errors.Wrap(errors.ErrCodeVectorStore, "failed to clear chunk table", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	rows := make([]ChunkVector, len(chunks))
	for i, c := range chunks {
		rows[i] = ChunkVector{
			File:      c.File,
			LineStart: c.LineStart,
			LineEnd:   c.LineEnd,
			Text:      c.Text,
			Vector:    encodeVector(vectors[i]),
		}
	}
	if err := v.db.CreateInBatches(&rows, 200).Error; err != nil {
		return errors.Wrap(errors.ErrCodeVectorStore, "failed to store chunk vectors", err)
	}
	return nil
}

// SearchChunks ranks indexed codebase chunks against the query, best first.
func (v *VectorStore) SearchChunks(ctx context.Context, query string, k int) ([]ChunkHit, error) {
	queryVec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var rows []ChunkVector
	if err := v.db.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.ErrCodeVectorStore, "failed to load chunk vectors", err)
	}

	hits := make([]ChunkHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, ChunkHit{
			File:      row.File,
			LineStart: row.LineStart,
			LineEnd:   row.LineEnd,
			Text:      row.Text,
			Score:     cosineSimilarity(queryVec, decodeVector(row.Vector)),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// HasChunks reports whether a codebase index exists.
func (v *VectorStore) HasChunks() (bool, error) {
	var count int64
	if err := v.db.Model(&ChunkVector{}).Count(&count).Error; err != nil {
		return false, errors.Wrap(errors.ErrCodeVectorStore, "failed to count chunks", err)
	}
	return count > 0, nil
}

// NodeText renders a node into the text that gets embedded: type, label,
// then properties as key=value pairs in sorted key order.
func NodeText(node graph.Node) string {
	text := string(node.Type) + ": " + node.Label
	if len(node.Properties) > 0 {
		keys := make([]string, 0, len(node.Properties))
		for k := range node.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			text += " " + k + "=" + stringify(node.Properties[k])
		}
	}
	return text
}

// stringify matches the original node text format: whole-number floats
// (JSON decoding turns all numbers into float64) print without a decimal.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// encodeVector packs float32 components little-endian.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
