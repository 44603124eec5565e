package phototriage

import (
	"time"
)

// AspectClass is the categorical aspect-ratio bucket of an image.
type AspectClass uint8

const (
	AspectUnknown AspectClass = iota
	AspectScreen              // matches a common device screen ratio
	AspectPaper               // matches a common document/paper ratio
)

// String returns the class name.
func (c AspectClass) String() string {
	switch c {
	case AspectScreen:
		return "screen"
	case AspectPaper:
		return "paper"
	default:
		return "unknown"
	}
}

// CaptureMetadata is the capture-time information a host platform supplies
// alongside pixel data. All fields are optional; the zero value is valid.
type CaptureMetadata struct {
	Timestamp      time.Time // capture time, zero if unknown
	Source         string    // capture-source label, e.g. camera model or software
	ScreenshotHint bool      // OS-provided screenshot flag
}

// FeatureSet is the deterministic feature vector extracted from one image.
type FeatureSet struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// BlurScore is the normalized Laplacian response in [0,1]; higher = sharper.
	BlurScore float64 `json:"blur_score"`
	// Brightness is the mean luma in [0,1] sampled on a coarse grid.
	Brightness float64 `json:"brightness"`
	// Noise estimates residual high-frequency noise in [0,1]; higher = noisier.
	Noise float64 `json:"noise"`

	AspectClass AspectClass `json:"aspect_class"`

	// TextDensity is the estimated fraction of area covered by text-like
	// regions, from the injected detector or the built-in edge fallback.
	TextDensity float64 `json:"text_density"`
	// TextPattern reports whether structured text-like patterning was seen.
	TextPattern bool `json:"text_pattern"`

	// ExactHash is the hex sha256 of the encoded byte stream.
	ExactHash string `json:"exact_hash"`
	// PerceptualHash is the 64-bit average hash of the downsampled grayscale.
	PerceptualHash uint64 `json:"perceptual_hash"`

	ScreenshotHint bool `json:"screenshot_hint"`

	// Degraded marks a set produced without pixel data. Its hashes are
	// sentinels that never match a real image.
	Degraded bool `json:"degraded,omitempty"`
}

// PhotoItem is the core's view of one corpus item. Identity is the opaque,
// corpus-stable ID; the core never deletes items.
type PhotoItem struct {
	ID        string
	Width     int
	Height    int
	CreatedAt time.Time // zero if unknown
	Source    string

	TextDensity    float64
	ExactHash      string
	PerceptualHash uint64

	Confirmed  TagSet
	Predicted  TagSet
	Confidence ConfidenceMap
	RelatedIDs []string
	Rated      bool
}

// Confirm records a human judgment: the confirmed set replaces any previous
// one, the rated flag is set, and the unrated sentinel is stripped so the
// rated invariant holds.
func (p *PhotoItem) Confirm(tags TagSet) {
	p.Confirmed = tags.Remove(TagUnrated)
	p.Rated = true
}

// ApplyAssessment copies a classification result onto the item.
func (p *PhotoItem) ApplyAssessment(a Assessment) {
	p.Predicted = a.Tags
	p.Confidence = a.Confidence
}

// FeedbackEntry is one immutable user correction. Entries are append-only;
// the learner evicts the oldest beyond its retention cap.
type FeedbackEntry struct {
	ID        string    `json:"id"`
	PhotoID   string    `json:"photo_id"`
	Timestamp time.Time `json:"timestamp"`
	Predicted TagSet    `json:"predicted"`
	Actual    TagSet    `json:"actual"`
	Correct   bool      `json:"correct"`

	// Features is the snapshot needed to re-derive which per-tag threshold
	// was responsible for the prediction.
	Features FeatureSnapshot `json:"features"`
}

// FeatureSnapshot is the subset of FeatureSet retained with feedback.
type FeatureSnapshot struct {
	BlurScore   float64 `json:"blur_score"`
	Brightness  float64 `json:"brightness"`
	TextDensity float64 `json:"text_density"`
}

// Snapshot extracts the retained fields from a full feature set.
func (f FeatureSet) Snapshot() FeatureSnapshot {
	return FeatureSnapshot{
		BlurScore:   f.BlurScore,
		Brightness:  f.Brightness,
		TextDensity: f.TextDensity,
	}
}

// TrainingSessionState is a read-only view of session progress.
type TrainingSessionState struct {
	Cursor     int     `json:"cursor"`
	RatedCount int     `json:"rated_count"`
	Confidence float64 `json:"confidence"`
	Complete   bool    `json:"complete"`
}
