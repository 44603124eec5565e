package phototriage

import (
	"context"
	"fmt"
)

// Engine ties the extractor, classifier, resolver, learner, and training
// session together behind the core's public surface, with one shared
// persisted record.
type Engine struct {
	cfg      Config
	tuning   Tuning
	learner  *ThresholdLearner
	resolver *DuplicateResolver
	session  *TrainingSession
}

// New builds an engine and restores any persisted state from cfg.Store.
// Missing or corrupt state degrades to compiled-in defaults; the only error
// New returns is an invalid Tuning.
func New(cfg Config) (*Engine, error) {
	cfg.defaults()

	tuning := DefaultTuning()
	if cfg.Tuning != nil {
		tuning = *cfg.Tuning
		if err := tuning.Validate(); err != nil {
			return nil, fmt.Errorf("invalid tuning: %w", err)
		}
	}

	e := &Engine{
		cfg:      cfg,
		tuning:   tuning,
		resolver: NewDuplicateResolver(),
	}
	e.learner = NewThresholdLearner(tuning, e.persistState)
	e.session = NewTrainingSession(tuning, e.learner, cfg.OnRefill)
	e.loadState(context.Background())
	return e, nil
}

// Classify runs the rule chain for one item against the current thresholds
// snapshot and reports the decision to the audit callback.
func (e *Engine) Classify(photoID string, fs FeatureSet, confirmed TagSet) Assessment {
	th := e.learner.Snapshot()
	a := Classify(fs, th, confirmed)
	if e.cfg.OnClassification != nil {
		e.cfg.OnClassification(ClassificationEvent{
			PhotoID:    photoID,
			Features:   fs,
			Tags:       a.Tags,
			Confidence: a.Confidence,
			Revision:   th.Revision,
		})
	}
	return a
}

// ResolveDuplicates registers the item's hashes and finds its best-matching
// prior item. When Match.Found, the partner named by Match.PartnerID now
// carries the same relationship and should be retagged by the host.
func (e *Engine) ResolveDuplicates(photoID string, fs FeatureSet) Match {
	return e.resolver.Resolve(photoID, fs, e.learner.Snapshot())
}

// FindRelated returns the item's duplicate-graph neighbors, including ones
// discovered while processing later items.
func (e *Engine) FindRelated(photoID string) []string {
	return e.resolver.FindRelated(photoID)
}

// MarkUnique removes the edge between a pair the user declared distinct.
// Follow with SweepStaleDuplicates to drop orphaned duplicate tags.
func (e *Engine) MarkUnique(a, b string) {
	e.resolver.Unlink(a, b)
}

// SweepStaleDuplicates strips duplicate/near-duplicate tags from items whose
// adjacency set has become empty. This is graph maintenance, not a new
// classification. Returns how many items were cleaned.
func (e *Engine) SweepStaleDuplicates(items []*PhotoItem) int {
	var carrying []string
	byID := make(map[string]*PhotoItem, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		byID[item.ID] = item
		if item.Predicted.Has(TagDuplicate) || item.Predicted.Has(TagNearDuplicate) ||
			item.Confirmed.Has(TagDuplicate) || item.Confirmed.Has(TagNearDuplicate) {
			carrying = append(carrying, item.ID)
		}
	}

	cleaned := 0
	for _, id := range e.resolver.Orphaned(carrying) {
		item := byID[id]
		item.Predicted = item.Predicted.Remove(TagDuplicate).Remove(TagNearDuplicate)
		item.Confirmed = item.Confirmed.Remove(TagDuplicate).Remove(TagNearDuplicate)
		delete(item.Confidence, TagDuplicate)
		delete(item.Confidence, TagNearDuplicate)
		item.RelatedIDs = nil
		cleaned++
	}
	return cleaned
}

// RecordFeedback ingests one user correction: the photo is marked rated, the
// learner recomputes thresholds, and the state record is persisted.
func (e *Engine) RecordFeedback(ctx context.Context, photoID string, predicted, actual TagSet, correct bool, fs FeatureSet) {
	e.session.MarkRated(photoID)
	e.learner.RecordFeedback(ctx, photoID, predicted, actual, correct, fs.Snapshot())
}

// SaveState forces a checkpoint of the persisted record. The engine already
// checkpoints after every feedback recompute; call this on shutdown to keep
// hash-index growth from classification-only sessions.
func (e *Engine) SaveState(ctx context.Context) {
	e.persistState(ctx)
}

// Thresholds returns the current atomic snapshot.
func (e *Engine) Thresholds() Thresholds {
	return e.learner.Snapshot()
}

// TrainingState returns a read-only view of session progress.
func (e *Engine) TrainingState() TrainingSessionState {
	return e.session.State()
}

// Session exposes the training session for hosts that drive the review queue
// directly (queue depth reporting, cursor advancement).
func (e *Engine) Session() *TrainingSession {
	return e.session
}

// Learner exposes the threshold learner for standalone use and inspection.
func (e *Engine) Learner() *ThresholdLearner {
	return e.learner
}
