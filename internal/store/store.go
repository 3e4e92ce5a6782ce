package store

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/grippy/grippy/internal/database"
	"github.com/grippy/grippy/internal/graph"
	"github.com/grippy/grippy/internal/resolve"
)

// Store combines the relational edge store and the vector store behind
// one handle. Everything lives under a single data directory:
//
//	{dataDir}/grippy-graph.db   edges + node metadata
//	{dataDir}/vectors/          embedded nodes and codebase chunks
type Store struct {
	Graph   *GraphStore
	Vectors *VectorStore

	db *gorm.DB
}

// Open initializes both backends under dataDir.
func Open(dataDir string, embedder Embedder) (*Store, error) {
	db, err := database.Open(filepath.Join(dataDir, database.DefaultDBFile))
	if err != nil {
		return nil, err
	}

	vectors, err := NewVectorStore(filepath.Join(dataDir, "vectors"), embedder)
	if err != nil {
		database.Close(db)
		return nil, err
	}

	return &Store{
		Graph:   NewGraphStore(db),
		Vectors: vectors,
		db:      db,
	}, nil
}

// StoreReview persists a review graph to both backends. Edge writes and
// node embedding run concurrently; either failure fails the store.
func (s *Store) StoreReview(ctx context.Context, g *graph.ReviewGraph, sessionID string) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.Graph.StoreEdges(g, sessionID)
	})
	eg.Go(func() error {
		return s.Vectors.StoreNodes(ctx, g)
	})
	return eg.Wait()
}

// GetPriorFindings proxies to the edge store.
func (s *Store) GetPriorFindings(sessionID string) ([]resolve.PriorFinding, error) {
	return s.Graph.GetPriorFindings(sessionID)
}

// UpdateFindingStatus proxies to the edge store.
func (s *Store) UpdateFindingStatus(nodeID string, status graph.FindingStatus) error {
	return s.Graph.UpdateFindingStatus(nodeID, status)
}

// Close closes both backends.
func (s *Store) Close() error {
	verr := s.Vectors.Close()
	if err := database.Close(s.db); err != nil {
		return err
	}
	return verr
}
