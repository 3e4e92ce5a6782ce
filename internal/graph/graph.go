// Package graph builds the typed node and edge model persisted after a
// review. Flat review output becomes a graph: the edge list lands in the
// relational store, node text lands in the vector store.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/grippy/grippy/internal/schema"
)

// FindingStatus tracks a finding across review rounds.
type FindingStatus string

const (
	StatusOpen     FindingStatus = "open"
	StatusResolved FindingStatus = "resolved"
)

// NodeType enumerates the node kinds in the review graph.
type NodeType string

const (
	NodeReview     NodeType = "REVIEW"
	NodeFinding    NodeType = "FINDING"
	NodeRule       NodeType = "RULE"
	NodePattern    NodeType = "PATTERN"
	NodeAuthor     NodeType = "AUTHOR"
	NodeFile       NodeType = "FILE"
	NodeSuggestion NodeType = "SUGGESTION"
)

// EdgeType enumerates the directed relation kinds.
type EdgeType string

const (
	EdgeViolates        EdgeType = "VIOLATES"
	EdgeFoundIn         EdgeType = "FOUND_IN"
	EdgeFixedBy         EdgeType = "FIXED_BY"
	EdgeIsA             EdgeType = "IS_A"
	EdgePrerequisiteFor EdgeType = "PREREQUISITE_FOR"
	EdgeExtractedFrom   EdgeType = "EXTRACTED_FROM"
	EdgeTendency        EdgeType = "TENDENCY"
	EdgeReviewedBy      EdgeType = "REVIEWED_BY"
	EdgeResolves        EdgeType = "RESOLVES"
	EdgePersistsAs      EdgeType = "PERSISTS_AS"
)

// Edge is a directed, typed relation from its owning node.
type Edge struct {
	Type       EdgeType       `json:"type"`
	TargetID   string         `json:"target_id"`
	TargetType NodeType       `json:"target_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Node is a typed graph node with its outgoing edges.
type Node struct {
	ID             string         `json:"id"`
	Type           NodeType       `json:"type"`
	Label          string         `json:"label"`
	Properties     map[string]any `json:"properties,omitempty"`
	Edges          []Edge         `json:"edges,omitempty"`
	CreatedAt      string         `json:"created_at"`
	SourceReviewID string         `json:"source_review_id,omitempty"`
}

// ReviewGraph holds every node produced by one review run.
type ReviewGraph struct {
	ReviewID  string `json:"review_id"`
	Nodes     []Node `json:"nodes"`
	Timestamp string `json:"timestamp"`
}

// NodeID derives a deterministic node ID from the type and content parts.
// Format: {TYPE}:{sha256_hex[:12]}. The same inputs always produce the
// same ID, which is what makes cross-review deduplication work.
func NodeID(t NodeType, parts ...any) string {
	raw := string(t)
	for _, p := range parts {
		raw += ":" + fmt.Sprintf("%v", p)
	}
	sum := sha256.Sum256([]byte(raw))
	return string(t) + ":" + hex.EncodeToString(sum[:])[:12]
}

// ReviewToGraph transforms a validated review into typed nodes and edges.
// FILE, SUGGESTION, and RULE nodes are deduplicated by ID in insertion
// order, so repeated findings against one file share a single FILE node.
func ReviewToGraph(review *schema.Review) *ReviewGraph {
	var nodes []Node
	seen := map[string]bool{}
	add := func(n Node) {
		if !seen[n.ID] {
			nodes = append(nodes, n)
			seen[n.ID] = true
		}
	}

	reviewID := NodeID(NodeReview, review.Timestamp, review.PR.Title)
	add(Node{
		ID:    reviewID,
		Type:  NodeReview,
		Label: "Review: " + review.PR.Title,
		Properties: map[string]any{
			"audit_type":    string(review.AuditType),
			"overall_score": review.Score.Overall,
			"verdict":       string(review.Verdict.Status),
			"model":         review.Model,
			"escalations":   len(review.Escalations),
		},
		Edges: []Edge{{
			Type:       EdgeReviewedBy,
			TargetID:   NodeID(NodeAuthor, "agent", review.Model),
			TargetType: NodeAuthor,
		}},
		CreatedAt: review.Timestamp,
	})

	add(Node{
		ID:             NodeID(NodeAuthor, review.PR.Author),
		Type:           NodeAuthor,
		Label:          review.PR.Author,
		Properties:     map[string]any{"branch": review.PR.Branch},
		CreatedAt:      review.Timestamp,
		SourceReviewID: reviewID,
	})

	for i := range review.Findings {
		f := &review.Findings[i]

		fileID := NodeID(NodeFile, f.File)
		add(Node{
			ID:             fileID,
			Type:           NodeFile,
			Label:          f.File,
			CreatedAt:      review.Timestamp,
			SourceReviewID: reviewID,
		})

		suggestionID := NodeID(NodeSuggestion, f.File, f.LineStart, f.Suggestion)
		add(Node{
			ID:             suggestionID,
			Type:           NodeSuggestion,
			Label:          f.Suggestion,
			CreatedAt:      review.Timestamp,
			SourceReviewID: reviewID,
		})

		edges := []Edge{
			{Type: EdgeFoundIn, TargetID: fileID, TargetType: NodeFile},
			{Type: EdgeFixedBy, TargetID: suggestionID, TargetType: NodeSuggestion},
		}

		if f.GovernanceRuleID != "" {
			ruleID := NodeID(NodeRule, f.GovernanceRuleID)
			add(Node{
				ID:             ruleID,
				Type:           NodeRule,
				Label:          f.GovernanceRuleID,
				CreatedAt:      review.Timestamp,
				SourceReviewID: reviewID,
			})
			edges = append(edges, Edge{Type: EdgeViolates, TargetID: ruleID, TargetType: NodeRule})
		}

		add(Node{
			ID:    NodeID(NodeFinding, f.File, f.LineStart, f.Title),
			Type:  NodeFinding,
			Label: f.Title,
			Properties: map[string]any{
				"severity":    string(f.Severity),
				"confidence":  f.Confidence,
				"category":    string(f.Category),
				"file":        f.File,
				"line_start":  f.LineStart,
				"line_end":    f.LineEnd,
				"evidence":    f.Evidence,
				"fingerprint": f.Fingerprint(),
				"status":      string(StatusOpen),
			},
			Edges:          edges,
			CreatedAt:      review.Timestamp,
			SourceReviewID: reviewID,
		})
	}

	return &ReviewGraph{
		ReviewID:  reviewID,
		Nodes:     nodes,
		Timestamp: review.Timestamp,
	}
}

// FindingLifecycle is the result of comparing two finding lists.
type FindingLifecycle struct {
	New      []schema.Finding
	Persists []schema.Finding
	Resolved []schema.Finding
}

// CrossReference compares current against previous findings by fingerprint.
// It is pure and store-independent; the CI pipeline uses the store-backed
// resolver in package resolve instead, which carries prior node IDs for
// thread resolution.
func CrossReference(current, previous []schema.Finding) FindingLifecycle {
	prevFPs := map[string]bool{}
	for i := range previous {
		prevFPs[previous[i].Fingerprint()] = true
	}
	currFPs := map[string]bool{}
	for i := range current {
		currFPs[current[i].Fingerprint()] = true
	}

	var lc FindingLifecycle
	for i := range current {
		if prevFPs[current[i].Fingerprint()] {
			lc.Persists = append(lc.Persists, current[i])
		} else {
			lc.New = append(lc.New, current[i])
		}
	}
	for i := range previous {
		if !currFPs[previous[i].Fingerprint()] {
			lc.Resolved = append(lc.Resolved, previous[i])
		}
	}
	return lc
}
