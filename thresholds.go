package phototriage

// Dimension identifies one learnable threshold.
type Dimension uint8

const (
	DimBlur Dimension = iota
	DimScreenshot
	DimLowQuality
	DimDuplicate
	DimNearDuplicate

	dimensionCount
)

// String returns the dimension name.
func (d Dimension) String() string {
	switch d {
	case DimBlur:
		return "blur"
	case DimScreenshot:
		return "screenshot"
	case DimLowQuality:
		return "lowQuality"
	case DimDuplicate:
		return "duplicate"
	case DimNearDuplicate:
		return "nearDuplicate"
	default:
		return "dimension(?)"
	}
}

// tag returns the classification tag this dimension's threshold drives.
func (d Dimension) tag() Tag {
	switch d {
	case DimBlur:
		return TagBlurry
	case DimScreenshot:
		return TagScreenshot
	case DimLowQuality:
		return TagLowQuality
	case DimDuplicate:
		return TagDuplicate
	default:
		return TagNearDuplicate
	}
}

// catchMoreDirection is +1 when raising the threshold flags more items
// (features below the cutoff trigger the tag) and -1 when lowering it does
// (features at or above the cutoff trigger the tag).
func (d Dimension) catchMoreDirection() float64 {
	switch d {
	case DimBlur, DimLowQuality:
		return 1
	default: // screenshot density, duplicate and near-duplicate similarity
		return -1
	}
}

// Thresholds is one immutable snapshot of every learnable cutoff. Consumers
// always read a whole snapshot; the learner publishes replacements with a
// single pointer swap, so no reader ever sees a half-updated set.
type Thresholds struct {
	// Revision increases by one on every published recompute.
	Revision uint64 `json:"revision"`

	// Blur: blur scores below this are tagged blurry.
	Blur float64 `json:"blur"`
	// Screenshot: text densities above this contribute to the screenshot tag.
	Screenshot float64 `json:"screenshot"`
	// LowQuality: composite quality scores below this are tagged lowQuality.
	LowQuality float64 `json:"low_quality"`
	// Duplicate: similarities at or above this are duplicates.
	Duplicate float64 `json:"duplicate"`
	// NearDuplicate: similarities at or above this (but below Duplicate)
	// are near-duplicates.
	NearDuplicate float64 `json:"near_duplicate"`
}

// defaultThresholds builds revision-zero thresholds from a tuning.
func defaultThresholds(t Tuning) Thresholds {
	return Thresholds{
		Blur:          t.Blur.Default,
		Screenshot:    t.Screenshot.Default,
		LowQuality:    t.LowQuality.Default,
		Duplicate:     t.Duplicate.Default,
		NearDuplicate: t.NearDuplicate.Default,
	}
}

// value returns the snapshot's cutoff for a dimension.
func (th Thresholds) value(d Dimension) float64 {
	switch d {
	case DimBlur:
		return th.Blur
	case DimScreenshot:
		return th.Screenshot
	case DimLowQuality:
		return th.LowQuality
	case DimDuplicate:
		return th.Duplicate
	default:
		return th.NearDuplicate
	}
}

// setValue writes a dimension's cutoff on a snapshot under construction.
func (th *Thresholds) setValue(d Dimension, v float64) {
	switch d {
	case DimBlur:
		th.Blur = v
	case DimScreenshot:
		th.Screenshot = v
	case DimLowQuality:
		th.LowQuality = v
	case DimDuplicate:
		th.Duplicate = v
	default:
		th.NearDuplicate = v
	}
}

// clampAll forces every field into its tuning bound. Used on snapshots that
// arrive from persistence, which may predate a tightened bound.
func (th *Thresholds) clampAll(t Tuning) {
	for d := Dimension(0); d < dimensionCount; d++ {
		th.setValue(d, t.bound(d).Clamp(th.value(d)))
	}
}
