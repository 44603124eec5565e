package phototriage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ThresholdLearner ingests feedback entries and adapts the learnable
// thresholds with bounded, auditable steps. It owns the feedback log and the
// published Thresholds snapshot; construct one per corpus with the
// persistence of your choice injected through the persist callback.
type ThresholdLearner struct {
	mu      sync.Mutex
	tuning  Tuning
	log     []FeedbackEntry
	current atomic.Pointer[Thresholds]

	// persist is invoked after every successful recompute, outside the hot
	// lock ordering concerns of readers (they only touch the snapshot).
	persist func(ctx context.Context)
}

// NewThresholdLearner builds a learner publishing revision-zero defaults.
// persist may be nil for in-memory use.
func NewThresholdLearner(tuning Tuning, persist func(ctx context.Context)) *ThresholdLearner {
	l := &ThresholdLearner{tuning: tuning, persist: persist}
	th := defaultThresholds(tuning)
	l.current.Store(&th)
	return l
}

// Snapshot returns the current thresholds. The value is immutable; readers
// keep using an already-fetched snapshot even while a recompute publishes a
// new one, so no reader ever observes a torn set of fields.
func (l *ThresholdLearner) Snapshot() Thresholds {
	return *l.current.Load()
}

// RecordFeedback appends one correction, evicting the oldest entry beyond
// the retention cap, then synchronously recomputes every learnable dimension
// over the recent window and publishes the result atomically.
func (l *ThresholdLearner) RecordFeedback(ctx context.Context, photoID string, predicted, actual TagSet, correct bool, features FeatureSnapshot) {
	entry := FeedbackEntry{
		ID:        uuid.NewString(),
		PhotoID:   photoID,
		Timestamp: time.Now().UTC(),
		Predicted: predicted,
		Actual:    actual,
		Correct:   correct,
		Features:  features,
	}

	l.mu.Lock()
	l.log = append(l.log, entry)
	if over := len(l.log) - l.tuning.FeedbackRetention; over > 0 {
		l.log = append(l.log[:0:0], l.log[over:]...)
	}
	l.recomputeLocked()
	l.mu.Unlock()

	if l.persist != nil {
		l.persist(ctx)
	}
}

// recomputeLocked rebuilds the full Thresholds value from the recent window
// and swaps it in with a single pointer store. Each recompute steps from the
// previously published values, so two learners fed the same entry sequence
// publish the same fields.
func (l *ThresholdLearner) recomputeLocked() {
	window := l.log
	if len(window) > l.tuning.FeedbackWindow {
		window = window[len(window)-l.tuning.FeedbackWindow:]
	}

	old := l.current.Load()
	next := *old
	next.Revision = old.Revision + 1

	for d := Dimension(0); d < dimensionCount; d++ {
		next.setValue(d, l.adjustDimension(d, old.value(d), window))
	}

	l.current.Store(&next)
}

// adjustDimension applies the proportional false-positive/false-negative
// correction rule for one dimension and returns the new, clamped cutoff.
func (l *ThresholdLearner) adjustDimension(d Dimension, current float64, window []FeedbackEntry) float64 {
	tag := d.tag()
	bound := l.tuning.bound(d)

	var total, falsePos, falseNeg int
	for _, e := range window {
		predicted := e.Predicted.Has(tag)
		actual := e.Actual.Has(tag)
		if !predicted && !actual {
			continue
		}
		total++
		switch {
		case predicted && !actual:
			falsePos++
		case !predicted && actual:
			falseNeg++
		}
	}

	if total < l.tuning.MinSamples {
		return bound.Clamp(current)
	}
	accuracy := float64(total-falsePos-falseNeg) / float64(total)
	if accuracy >= l.tuning.AcceptableAccuracy {
		return bound.Clamp(current)
	}
	if falsePos == falseNeg {
		return bound.Clamp(current)
	}

	step := bound.Step * d.catchMoreDirection()
	if falsePos > falseNeg {
		// Over-flagging: move away from the catch-more direction.
		step = -step
	}
	next := bound.Clamp(current + step)

	slog.Debug("phototriage: threshold adjusted",
		"dimension", d.String(),
		"old", current,
		"new", next,
		"false_positives", falsePos,
		"false_negatives", falseNeg,
		"samples", total,
	)
	return next
}

// Log returns a copy of the feedback log, oldest first.
func (l *ThresholdLearner) Log() []FeedbackEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FeedbackEntry(nil), l.log...)
}

// Stats returns how many logged corrections were correct overall.
func (l *ThresholdLearner) Stats() (correct, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.log {
		if e.Correct {
			correct++
		}
	}
	return correct, len(l.log)
}

// restore replaces the log and snapshot from persisted state. Out-of-bound
// persisted values are clamped rather than trusted.
func (l *ThresholdLearner) restore(log []FeedbackEntry, th Thresholds) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit := l.tuning.FeedbackRetention; len(log) > limit {
		log = log[len(log)-limit:]
	}
	l.log = append([]FeedbackEntry(nil), log...)
	th.clampAll(l.tuning)
	l.current.Store(&th)
}
