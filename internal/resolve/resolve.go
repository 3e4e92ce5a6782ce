// Package resolve matches a round's findings against the prior round using
// fingerprints. Unlike graph.CrossReference, prior findings here come from
// the edge store as property maps and carry the node IDs needed to update
// finding status and resolve review threads.
package resolve

import (
	"github.com/grippy/grippy/internal/schema"
)

// PriorFinding is an open finding loaded from the edge store.
type PriorFinding map[string]any

// NodeID returns the stored graph node ID, if present.
func (p PriorFinding) NodeID() string {
	s, _ := p["node_id"].(string)
	return s
}

// Fingerprint returns the stored fingerprint, if present.
func (p PriorFinding) Fingerprint() string {
	s, _ := p["fingerprint"].(string)
	return s
}

// Title returns the stored title, if present.
func (p PriorFinding) Title() string {
	s, _ := p["title"].(string)
	return s
}

// PersistingFinding pairs a current finding with the node ID of its prior
// occurrence, so status updates target the original node.
type PersistingFinding struct {
	Finding     schema.Finding
	PriorNodeID string
}

// Result classifies findings into the three lifecycle buckets.
type Result struct {
	// New appeared this round with no prior match
	New []schema.Finding
	// Persisting matched a prior open finding by fingerprint
	Persisting []PersistingFinding
	// Resolved were open last round and are gone this round
	Resolved []PriorFinding
}

// Against matches current findings to prior open findings by fingerprint.
// An exact match persists, an unmatched current finding is new, and an
// unmatched prior finding is resolved. Duplicate prior fingerprints keep
// the last entry, matching store read order.
func Against(current []schema.Finding, prior []PriorFinding) Result {
	priorByFP := make(map[string]PriorFinding, len(prior))
	for _, p := range prior {
		priorByFP[p.Fingerprint()] = p
	}

	var res Result
	matched := map[string]bool{}

	for i := range current {
		fp := current[i].Fingerprint()
		if p, ok := priorByFP[fp]; ok {
			res.Persisting = append(res.Persisting, PersistingFinding{
				Finding:     current[i],
				PriorNodeID: p.NodeID(),
			})
			matched[fp] = true
		} else {
			res.New = append(res.New, current[i])
		}
	}

	for _, p := range prior {
		if !matched[p.Fingerprint()] {
			res.Resolved = append(res.Resolved, p)
		}
	}
	return res
}
