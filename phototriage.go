// Package phototriage incrementally classifies a personal photo corpus
// (duplicates, blur, screenshots, documents, low quality) and adapts its own
// classification thresholds from user corrections. It is a library surface
// only: asset enumeration, decoding, persistence backends, and all UI are the
// host application's job and reach the core through the interfaces below.
package phototriage

import (
	"context"
	"image"
)

// DefaultWorkers is the extraction worker-pool size used when Config.Workers
// is zero.
const DefaultWorkers = 4

// DefaultStateKey is the store key for the engine's single persisted record.
const DefaultStateKey = "phototriage/state"

// Store abstracts the external key/value store. Implementations must provide
// atomic get/set of opaque byte blobs; the core owns the blob layout.
type Store interface {
	// Get returns the blob for key, or ok=false when absent.
	Get(ctx context.Context, key string) (data []byte, ok bool)
	// Set atomically replaces the blob for key.
	Set(ctx context.Context, key string, data []byte) error
}

// TextDetector abstracts an external text detector (e.g. a platform vision
// API or an OCR binding). When nil, the extractor falls back to a built-in
// high-frequency-edge heuristic.
type TextDetector interface {
	// DetectText returns the estimated fraction of image area covered by
	// text and whether structured text patterning was found.
	DetectText(img image.Image) (density float64, pattern bool, err error)
}

// Decoder abstracts asset decoding. The core never talks to the asset store
// directly; ProcessBatch asks the decoder for pixels and encoded bytes.
type Decoder interface {
	// Decode resolves an opaque asset reference to a decoded image and its
	// encoded byte stream. Either return value may be nil on failure; the
	// pipeline degrades to neutral features instead of failing the item.
	Decode(ctx context.Context, assetRef string) (img image.Image, encoded []byte, err error)
}

// ClassificationEvent is delivered to Config.OnClassification for every
// classification decision, for host-side audit logging.
type ClassificationEvent struct {
	PhotoID    string
	Features   FeatureSet
	Tags       TagSet
	Confidence ConfidenceMap
	Revision   uint64 // thresholds revision used for the decision
}

// Config holds all dependencies injected by the consumer.
type Config struct {
	Store        Store        // persistence; nil = in-memory only
	TextDetector TextDetector // optional external text detector
	Decoder      Decoder      // required for ProcessBatch

	// Tuning overrides the compiled-in numeric defaults. Nil = DefaultTuning.
	Tuning *Tuning

	// Workers bounds the parallel extraction pool (default: DefaultWorkers).
	Workers int

	// StateKey overrides the store key for persisted state.
	StateKey string

	// Optional callbacks for audit/metrics.
	OnClassification func(ClassificationEvent)
	// OnRefill fires when the review queue drops to the watermark; the host
	// should fetch Count more items starting at Offset. Fire-and-forget.
	OnRefill func(offset, count int)
	// OnCorruptState fires when persisted state could not be decoded and
	// defaults were used instead.
	OnCorruptState func(err error)
	// OnPanic observes recovered panics from extraction workers.
	OnPanic func(tag string, r any)
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.StateKey == "" {
		c.StateKey = DefaultStateKey
	}
}
