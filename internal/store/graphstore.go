// Package store persists review graphs across two embedded backends: a
// relational edge store for graph queries and a vector store for semantic
// search. Both are file-based; no servers.
package store

import (
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grippy/grippy/internal/database"
	"github.com/grippy/grippy/internal/graph"
	"github.com/grippy/grippy/internal/resolve"
	"github.com/grippy/grippy/pkg/errors"
)

// GraphStore persists nodes and edges to the relational store.
type GraphStore struct {
	db *gorm.DB
}

// NewGraphStore wraps an open database handle.
func NewGraphStore(db *gorm.DB) *GraphStore {
	return &GraphStore{db: db}
}

// StoreEdges persists every node and edge of a review graph in one
// transaction. Conflicting rows are skipped, so storing the same graph
// twice leaves the tables unchanged.
func (s *GraphStore) StoreEdges(g *graph.ReviewGraph, sessionID string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, node := range g.Nodes {
			props, err := json.Marshal(orEmpty(node.Properties))
			if err != nil {
				return err
			}
			row := database.NodeMeta{
				NodeID:     node.ID,
				NodeType:   string(node.Type),
				Label:      node.Label,
				Properties: string(props),
				ReviewID:   node.SourceReviewID,
				SessionID:  sessionID,
				CreatedAt:  node.CreatedAt,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}

			for _, edge := range node.Edges {
				meta, err := json.Marshal(orEmpty(edge.Metadata))
				if err != nil {
					return err
				}
				edgeRow := database.EdgeRow{
					SourceID:   node.ID,
					EdgeType:   string(edge.Type),
					TargetID:   edge.TargetID,
					TargetType: string(edge.TargetType),
					Metadata:   string(meta),
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edgeRow).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to store review graph", err)
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// AllEdges returns every edge row.
func (s *GraphStore) AllEdges() ([]database.EdgeRow, error) {
	var rows []database.EdgeRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query edges", err)
	}
	return rows, nil
}

// EdgesBySource returns edges originating from a node.
func (s *GraphStore) EdgesBySource(sourceID string) ([]database.EdgeRow, error) {
	var rows []database.EdgeRow
	if err := s.db.Where("source_id = ?", sourceID).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query edges by source", err)
	}
	return rows, nil
}

// EdgesByTarget returns edges pointing at a node.
func (s *GraphStore) EdgesByTarget(targetID string) ([]database.EdgeRow, error) {
	var rows []database.EdgeRow
	if err := s.db.Where("target_id = ?", targetID).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query edges by target", err)
	}
	return rows, nil
}

// EdgesByType returns edges of one relation kind.
func (s *GraphStore) EdgesByType(t graph.EdgeType) ([]database.EdgeRow, error) {
	var rows []database.EdgeRow
	if err := s.db.Where("edge_type = ?", string(t)).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query edges by type", err)
	}
	return rows, nil
}

// GetPriorFindings returns the open findings stored under a session,
// as property maps carrying node_id, fingerprint, and title. Used at the
// start of a round, before the current graph is stored.
func (s *GraphStore) GetPriorFindings(sessionID string) ([]resolve.PriorFinding, error) {
	var rows []database.NodeMeta
	err := s.db.
		Where("node_type = ? AND session_id = ?", string(graph.NodeFinding), sessionID).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query prior findings", err)
	}

	var out []resolve.PriorFinding
	for _, row := range rows {
		props := map[string]any{}
		if err := json.Unmarshal([]byte(row.Properties), &props); err != nil {
			continue
		}
		if status, _ := props["status"].(string); status != string(graph.StatusOpen) {
			continue
		}
		props["node_id"] = row.NodeID
		props["title"] = row.Label
		out = append(out, resolve.PriorFinding(props))
	}
	return out, nil
}

// UpdateFindingStatus rewrites the status inside a finding node's
// properties JSON.
func (s *GraphStore) UpdateFindingStatus(nodeID string, status graph.FindingStatus) error {
	var row database.NodeMeta
	if err := s.db.First(&row, "node_id = ?", nodeID).Error; err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "finding node not found: "+nodeID, err)
	}

	props := map[string]any{}
	if err := json.Unmarshal([]byte(row.Properties), &props); err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "corrupt properties for node: "+nodeID, err)
	}
	props["status"] = string(status)
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}

	err = s.db.Model(&database.NodeMeta{}).
		Where("node_id = ?", nodeID).
		Update("properties", string(data)).Error
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to update finding status", err)
	}
	return nil
}

// GetAuthorTendencies returns finding properties from every review a PR
// author appears in. Walks AUTHOR nodes to their review IDs, then collects
// FINDING nodes sharing those reviews.
func (s *GraphStore) GetAuthorTendencies(author string) ([]map[string]any, error) {
	var authorRows []database.NodeMeta
	err := s.db.
		Where("node_type = ? AND label = ?", string(graph.NodeAuthor), author).
		Find(&authorRows).Error
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query author nodes", err)
	}

	var reviewIDs []string
	for _, row := range authorRows {
		if row.ReviewID != "" {
			reviewIDs = append(reviewIDs, row.ReviewID)
		}
	}
	if len(reviewIDs) == 0 {
		return nil, nil
	}

	var findingRows []database.NodeMeta
	err = s.db.
		Where("node_type = ? AND review_id IN ?", string(graph.NodeFinding), reviewIDs).
		Find(&findingRows).Error
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query author findings", err)
	}
	return propsWithTitle(findingRows), nil
}

// GetPatternsForFile returns finding properties attached to a file node
// through FOUND_IN edges.
func (s *GraphStore) GetPatternsForFile(filePath string) ([]map[string]any, error) {
	var fileRow database.NodeMeta
	err := s.db.
		First(&fileRow, "node_type = ? AND label = ?", string(graph.NodeFile), filePath).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query file node", err)
	}

	var edgeRows []database.EdgeRow
	err = s.db.
		Where("edge_type = ? AND target_id = ?", string(graph.EdgeFoundIn), fileRow.NodeID).
		Find(&edgeRows).Error
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query file edges", err)
	}

	var findingIDs []string
	for _, e := range edgeRows {
		findingIDs = append(findingIDs, e.SourceID)
	}
	if len(findingIDs) == 0 {
		return nil, nil
	}

	var findingRows []database.NodeMeta
	if err := s.db.Where("node_id IN ?", findingIDs).Find(&findingRows).Error; err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to query file findings", err)
	}
	return propsWithTitle(findingRows), nil
}

func propsWithTitle(rows []database.NodeMeta) []map[string]any {
	var out []map[string]any
	for _, row := range rows {
		props := map[string]any{}
		if err := json.Unmarshal([]byte(row.Properties), &props); err != nil {
			continue
		}
		props["title"] = row.Label
		out = append(out, props)
	}
	return out
}
