package phototriage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// stateVersion tags the persisted record. Readers accept any version at or
// below their own: the JSON layout is self-describing, so a missing or older
// field deserializes to its default instead of failing the whole blob.
const stateVersion = 1

// ErrCorruptState wraps decode failures of the persisted record. It is only
// ever reported through Config.OnCorruptState; the engine itself resets to
// defaults and continues.
var ErrCorruptState = errors.New("corrupt persisted state")

type persistedHashes struct {
	Exact      string `json:"exact"`
	Perceptual uint64 `json:"perceptual"`
	Degraded   bool   `json:"degraded,omitempty"`
}

type persistedThresholds struct {
	Thresholds
	// Bounds are stored alongside the values so the record is auditable on
	// its own; on load the live tuning still wins.
	Bounds map[string]Bound `json:"bounds"`
}

// persistedState is the single versioned record owned by the core.
type persistedState struct {
	Version     int                        `json:"version"`
	Thresholds  *persistedThresholds       `json:"thresholds,omitempty"`
	FeedbackLog []FeedbackEntry            `json:"feedback_log"`
	RatedIDs    []string                   `json:"rated_ids"`
	Cursor      int                        `json:"cursor"`
	HashIndex   map[string]persistedHashes `json:"hash_index"`
}

// persistState serializes thresholds, feedback log, rated ids, and the hash
// index into the store. Failures are logged and swallowed: persistence is
// best-effort and the in-memory state stays authoritative.
func (e *Engine) persistState(ctx context.Context) {
	if e.cfg.Store == nil {
		return
	}

	index := e.resolver.snapshot()
	hashes := make(map[string]persistedHashes, len(index))
	for id, rec := range index {
		hashes[id] = persistedHashes{Exact: rec.exact, Perceptual: rec.perceptual, Degraded: rec.degraded}
	}

	state := persistedState{
		Version: stateVersion,
		Thresholds: &persistedThresholds{
			Thresholds: e.learner.Snapshot(),
			Bounds: map[string]Bound{
				DimBlur.String():          e.tuning.Blur,
				DimScreenshot.String():    e.tuning.Screenshot,
				DimLowQuality.String():    e.tuning.LowQuality,
				DimDuplicate.String():     e.tuning.Duplicate,
				DimNearDuplicate.String(): e.tuning.NearDuplicate,
			},
		},
		FeedbackLog: e.learner.Log(),
		RatedIDs:    e.session.RatedIDs(),
		Cursor:      e.session.State().Cursor,
		HashIndex:   hashes,
	}

	data, err := json.Marshal(state)
	if err != nil {
		slog.Warn("phototriage: marshal state failed", "error", err.Error())
		return
	}
	if err := e.cfg.Store.Set(ctx, e.cfg.StateKey, data); err != nil {
		slog.Warn("phototriage: persist state failed", "error", err.Error())
	}
}

// loadState restores from the store. A missing blob is a fresh start; an
// unparseable one resets to compiled-in defaults and reports through
// OnCorruptState instead of failing the caller.
func (e *Engine) loadState(ctx context.Context) {
	if e.cfg.Store == nil {
		return
	}
	data, ok := e.cfg.Store.Get(ctx, e.cfg.StateKey)
	if !ok || len(data) == 0 {
		return
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrCorruptState, err)
		slog.Warn("phototriage: resetting to defaults", "error", wrapped.Error())
		if e.cfg.OnCorruptState != nil {
			e.cfg.OnCorruptState(wrapped)
		}
		return
	}
	if state.Version > stateVersion {
		wrapped := fmt.Errorf("%w: record version %d is newer than %d", ErrCorruptState, state.Version, stateVersion)
		slog.Warn("phototriage: resetting to defaults", "error", wrapped.Error())
		if e.cfg.OnCorruptState != nil {
			e.cfg.OnCorruptState(wrapped)
		}
		return
	}

	// A record missing the thresholds object restores defaults; present
	// fields win, absent ones stay at their defaults.
	th := defaultThresholds(e.tuning)
	if state.Thresholds != nil {
		th = state.Thresholds.Thresholds
	}
	e.learner.restore(state.FeedbackLog, th)
	e.session.restore(state.RatedIDs, state.Cursor)

	index := make(map[string]hashRecord, len(state.HashIndex))
	for id, h := range state.HashIndex {
		index[id] = hashRecord{exact: h.Exact, perceptual: h.Perceptual, degraded: h.Degraded}
	}
	e.resolver.restore(index, e.learner.Snapshot())
}
