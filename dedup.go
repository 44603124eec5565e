package phototriage

import (
	"sort"
	"sync"
)

// hashRecord is what the resolver remembers about one item.
type hashRecord struct {
	exact      string
	perceptual uint64
	degraded   bool
}

// Match is the outcome of resolving one item against the corpus.
type Match struct {
	// Found reports whether any duplicate or near-duplicate was accepted.
	Found bool
	// Tag is TagDuplicate or TagNearDuplicate when Found.
	Tag Tag
	// Similarity of the best candidate (1.0 for exact matches).
	Similarity float64
	// PartnerID is the best-matching prior item.
	PartnerID string
	// Related is the item's full adjacency set after this resolve, sorted.
	Related []string
}

// DuplicateResolver maintains an append-only index of item hashes and a
// bidirectional relationship graph. Inserting the edge X→Y also inserts Y→X,
// which is what lets "find duplicates of X" return items discovered while
// processing a later item Y.
//
// All mutation goes through a single mutex: the bidirectional edge insert is
// a two-step write and must never interleave.
type DuplicateResolver struct {
	mu        sync.Mutex
	index     map[string]hashRecord
	adjacency map[string]map[string]struct{}
}

// NewDuplicateResolver returns an empty resolver.
func NewDuplicateResolver() *DuplicateResolver {
	return &DuplicateResolver{
		index:     make(map[string]hashRecord),
		adjacency: make(map[string]map[string]struct{}),
	}
}

// Resolve registers the item's hashes and finds its best-matching prior item.
// An exact-hash match is a duplicate at similarity 1.0; otherwise perceptual
// similarity (1 − hamming/64) is compared against the near-duplicate bar.
// Among candidates the maximum similarity wins, ties broken by smallest item
// id. On acceptance a bidirectional edge is inserted.
func (r *DuplicateResolver) Resolve(id string, fs FeatureSet, th Thresholds) Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := hashRecord{exact: fs.ExactHash, perceptual: fs.PerceptualHash, degraded: fs.Degraded}
	if _, seen := r.index[id]; !seen {
		r.index[id] = rec
	}

	bestID, bestSim := r.bestCandidateLocked(id, rec, th)
	if bestID == "" {
		return Match{Related: r.relatedLocked(id)}
	}

	r.linkLocked(id, bestID)

	m := Match{
		Found:      true,
		Tag:        TagNearDuplicate,
		Similarity: bestSim,
		PartnerID:  bestID,
		Related:    r.relatedLocked(id),
	}
	if bestSim >= th.Duplicate {
		m.Tag = TagDuplicate
	}
	return m
}

// bestCandidateLocked scans the index for the highest-similarity prior item.
// Exact-hash comparison runs for every pair: a degraded record may still carry
// the real digest of its encoded bytes, so byte-identical blobs group even
// when neither could be decoded. Perceptual comparison is skipped whenever
// either side is degraded, since a degraded perceptual hash is a sentinel.
func (r *DuplicateResolver) bestCandidateLocked(id string, rec hashRecord, th Thresholds) (string, float64) {
	var bestID string
	var bestSim float64
	for otherID, other := range r.index {
		if otherID == id {
			continue
		}
		var sim float64
		if other.exact == rec.exact {
			sim = 1.0
		} else {
			if rec.degraded || other.degraded {
				continue
			}
			sim = perceptualSimilarity(rec.perceptual, other.perceptual)
			if sim < th.NearDuplicate {
				continue
			}
		}
		if sim > bestSim || (sim == bestSim && (bestID == "" || otherID < bestID)) {
			bestID, bestSim = otherID, sim
		}
	}
	return bestID, bestSim
}

// linkLocked inserts the bidirectional edge a↔b.
func (r *DuplicateResolver) linkLocked(a, b string) {
	if r.adjacency[a] == nil {
		r.adjacency[a] = make(map[string]struct{})
	}
	if r.adjacency[b] == nil {
		r.adjacency[b] = make(map[string]struct{})
	}
	r.adjacency[a][b] = struct{}{}
	r.adjacency[b][a] = struct{}{}
}

// FindRelated returns the item's duplicate-graph neighbors, sorted.
func (r *DuplicateResolver) FindRelated(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relatedLocked(id)
}

func (r *DuplicateResolver) relatedLocked(id string) []string {
	neighbors := r.adjacency[id]
	if len(neighbors) == 0 {
		return nil
	}
	out := make([]string, 0, len(neighbors))
	for n := range neighbors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Unlink removes the edge a↔b, e.g. after a user declares the pair distinct.
func (r *DuplicateResolver) Unlink(a, b string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adjacency[a], b)
	delete(r.adjacency[b], a)
}

// Orphaned filters ids down to those that carry no graph neighbors. Used by
// the stale-tag maintenance sweep.
func (r *DuplicateResolver) Orphaned(ids []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, id := range ids {
		if len(r.adjacency[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// snapshot copies the hash index for persistence.
func (r *DuplicateResolver) snapshot() map[string]hashRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]hashRecord, len(r.index))
	for id, rec := range r.index {
		out[id] = rec
	}
	return out
}

// restore replaces the index and rebuilds the adjacency graph from scratch.
// The persisted record carries hashes only; edges are re-derived by replaying
// items in id order against the given thresholds, which keeps the rebuild
// deterministic.
func (r *DuplicateResolver) restore(index map[string]hashRecord, th Thresholds) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.index = make(map[string]hashRecord, len(index))
	r.adjacency = make(map[string]map[string]struct{})

	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := index[id]
		r.index[id] = rec
		if bestID, _ := r.bestCandidateLocked(id, rec, th); bestID != "" {
			r.linkLocked(id, bestID)
		}
	}
}
