package phototriage

import (
	"sort"
	"sync"
)

// TrainingSession tracks review progress: which items are rated, the cursor
// into the external corpus, and whether training has converged. Confidence
// comes from the learner's feedback log, so a session is always constructed
// around one.
type TrainingSession struct {
	mu      sync.Mutex
	tuning  Tuning
	learner *ThresholdLearner

	cursor          int
	rated           map[string]struct{}
	unratedRemained int

	// onRefill signals the external corpus loader; fire-and-forget.
	onRefill func(offset, count int)
}

// NewTrainingSession builds a session over the given learner. onRefill may
// be nil when the host drives loading itself.
func NewTrainingSession(tuning Tuning, learner *ThresholdLearner, onRefill func(offset, count int)) *TrainingSession {
	return &TrainingSession{
		tuning:   tuning,
		learner:  learner,
		rated:    make(map[string]struct{}),
		onRefill: onRefill,
	}
}

// MarkRated records a human judgment for id and advances the unrated count.
func (s *TrainingSession) MarkRated(id string) {
	s.mu.Lock()
	if _, seen := s.rated[id]; !seen {
		s.rated[id] = struct{}{}
		if s.unratedRemained > 0 {
			s.unratedRemained--
		}
	}
	refill := s.needsRefillLocked()
	offset, count := s.cursor, s.tuning.RefillBatchSize
	cb := s.onRefill
	s.mu.Unlock()

	if refill && cb != nil {
		go cb(offset, count)
	}
}

// SetQueueDepth tells the session how many unrated items the external review
// queue currently holds. Dropping to the watermark triggers a refill signal.
func (s *TrainingSession) SetQueueDepth(n int) {
	s.mu.Lock()
	s.unratedRemained = n
	refill := s.needsRefillLocked()
	offset, count := s.cursor, s.tuning.RefillBatchSize
	cb := s.onRefill
	s.mu.Unlock()

	if refill && cb != nil {
		go cb(offset, count)
	}
}

func (s *TrainingSession) needsRefillLocked() bool {
	return s.unratedRemained <= s.tuning.RefillWatermark
}

// AdvanceCursor moves the corpus cursor forward by n. The cursor never moves
// backwards.
func (s *TrainingSession) AdvanceCursor(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.cursor += n
	s.mu.Unlock()
}

// Confidence is the overall correction accuracy: correct / total over the
// learner's feedback log, 0 with no feedback yet.
func (s *TrainingSession) Confidence() float64 {
	correct, total := s.learner.Stats()
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// IsComplete reports whether training has converged: confidence must reach
// the accuracy bound AND the rated count must reach the minimum-samples
// floor. The dual gate keeps a lucky streak of a few correct answers from
// short-circuiting training.
func (s *TrainingSession) IsComplete() bool {
	s.mu.Lock()
	ratedCount := len(s.rated)
	s.mu.Unlock()

	return s.Confidence() >= s.tuning.CompletionAccuracy &&
		ratedCount >= s.tuning.CompletionMinSamples
}

// State returns a read-only view of session progress. The completion flag is
// derived, never independently settable.
func (s *TrainingSession) State() TrainingSessionState {
	s.mu.Lock()
	cursor, ratedCount := s.cursor, len(s.rated)
	s.mu.Unlock()

	return TrainingSessionState{
		Cursor:     cursor,
		RatedCount: ratedCount,
		Confidence: s.Confidence(),
		Complete:   s.IsComplete(),
	}
}

// RatedIDs returns the rated set, sorted, for persistence.
func (s *TrainingSession) RatedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rated))
	for id := range s.rated {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// restore replaces the rated set and cursor from persisted state.
func (s *TrainingSession) restore(ratedIDs []string, cursor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rated = make(map[string]struct{}, len(ratedIDs))
	for _, id := range ratedIDs {
		s.rated[id] = struct{}{}
	}
	if cursor > 0 {
		s.cursor = cursor
	}
}
