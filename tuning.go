package phototriage

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Compiled-in tuning defaults. Every learnable threshold is configuration,
// never a hard-coded literal in the rule chain.
const (
	defaultBlurThreshold      = 0.30
	defaultBlurMin            = 0.05
	defaultBlurMax            = 0.80
	defaultBlurStep           = 0.05
	defaultScreenshotDensity  = 0.60
	defaultScreenshotMin      = 0.30
	defaultScreenshotMax      = 0.90
	defaultScreenshotStep     = 0.05
	defaultLowQualityCutoff   = 0.40
	defaultLowQualityMin      = 0.10
	defaultLowQualityMax      = 0.70
	defaultLowQualityStep     = 0.05
	defaultDuplicateSim       = 0.97
	defaultDuplicateMin       = 0.90
	defaultDuplicateMax       = 1.0
	defaultDuplicateStep      = 0.01
	defaultNearDuplicateSim   = 0.85
	defaultNearDuplicateMin   = 0.70
	defaultNearDuplicateMax   = 0.95
	defaultNearDuplicateStep  = 0.01
	defaultFeedbackWindow     = 64
	defaultFeedbackRetention  = 1000
	defaultMinSamples         = 4
	defaultAcceptableAccuracy = 0.80
	defaultCompletionSamples  = 10
	defaultCompletionAccuracy = 0.90
	defaultRefillWatermark    = 5
	defaultRefillBatchSize    = 20
)

// Bound describes one learnable threshold: its starting value, the hard
// range it may never leave, and the per-adjustment step.
type Bound struct {
	Default float64 `toml:"default" json:"default"`
	Min     float64 `toml:"min" json:"min"`
	Max     float64 `toml:"max" json:"max"`
	Step    float64 `toml:"step" json:"step"`
}

// Clamp forces v into the bound's range.
func (b Bound) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Tuning holds every numeric knob of the engine. Load one from TOML with
// LoadTuning or start from DefaultTuning and override fields.
type Tuning struct {
	Blur          Bound `toml:"blur"`
	Screenshot    Bound `toml:"screenshot"`
	LowQuality    Bound `toml:"low_quality"`
	Duplicate     Bound `toml:"duplicate"`
	NearDuplicate Bound `toml:"near_duplicate"`

	// FeedbackWindow is how many recent entries each recompute considers.
	FeedbackWindow int `toml:"feedback_window"`
	// FeedbackRetention caps the append-only log; oldest entries evict.
	FeedbackRetention int `toml:"feedback_retention"`
	// MinSamples is the per-dimension sample floor before any adjustment.
	MinSamples int `toml:"min_samples"`
	// AcceptableAccuracy leaves a dimension untouched when it is met.
	AcceptableAccuracy float64 `toml:"acceptable_accuracy"`

	CompletionMinSamples int     `toml:"completion_min_samples"`
	CompletionAccuracy   float64 `toml:"completion_accuracy"`
	RefillWatermark      int     `toml:"refill_watermark"`
	RefillBatchSize      int     `toml:"refill_batch_size"`
}

// DefaultTuning returns the compiled-in defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Blur:                 Bound{Default: defaultBlurThreshold, Min: defaultBlurMin, Max: defaultBlurMax, Step: defaultBlurStep},
		Screenshot:           Bound{Default: defaultScreenshotDensity, Min: defaultScreenshotMin, Max: defaultScreenshotMax, Step: defaultScreenshotStep},
		LowQuality:           Bound{Default: defaultLowQualityCutoff, Min: defaultLowQualityMin, Max: defaultLowQualityMax, Step: defaultLowQualityStep},
		Duplicate:            Bound{Default: defaultDuplicateSim, Min: defaultDuplicateMin, Max: defaultDuplicateMax, Step: defaultDuplicateStep},
		NearDuplicate:        Bound{Default: defaultNearDuplicateSim, Min: defaultNearDuplicateMin, Max: defaultNearDuplicateMax, Step: defaultNearDuplicateStep},
		FeedbackWindow:       defaultFeedbackWindow,
		FeedbackRetention:    defaultFeedbackRetention,
		MinSamples:           defaultMinSamples,
		AcceptableAccuracy:   defaultAcceptableAccuracy,
		CompletionMinSamples: defaultCompletionSamples,
		CompletionAccuracy:   defaultCompletionAccuracy,
		RefillWatermark:      defaultRefillWatermark,
		RefillBatchSize:      defaultRefillBatchSize,
	}
}

// LoadTuning reads a TOML tuning file over the defaults, so a partial file
// only overrides the fields it names.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := toml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// Validate rejects tunings whose bounds cannot hold their own defaults.
func (t Tuning) Validate() error {
	var errs []error
	check := func(name string, b Bound) {
		if b.Min > b.Max {
			errs = append(errs, fmt.Errorf("%s: min %.3f exceeds max %.3f", name, b.Min, b.Max))
		}
		if b.Default < b.Min || b.Default > b.Max {
			errs = append(errs, fmt.Errorf("%s: default %.3f outside [%.3f, %.3f]", name, b.Default, b.Min, b.Max))
		}
		if b.Step <= 0 {
			errs = append(errs, fmt.Errorf("%s: step must be positive, got %.3f", name, b.Step))
		}
	}
	check("blur", t.Blur)
	check("screenshot", t.Screenshot)
	check("low_quality", t.LowQuality)
	check("duplicate", t.Duplicate)
	check("near_duplicate", t.NearDuplicate)

	if t.FeedbackWindow <= 0 {
		errs = append(errs, errors.New("feedback_window must be positive"))
	}
	if t.FeedbackRetention < t.FeedbackWindow {
		errs = append(errs, errors.New("feedback_retention must be at least feedback_window"))
	}
	if t.MinSamples <= 0 {
		errs = append(errs, errors.New("min_samples must be positive"))
	}
	if t.AcceptableAccuracy < 0 || t.AcceptableAccuracy > 1 {
		errs = append(errs, errors.New("acceptable_accuracy must be in [0,1]"))
	}
	if t.CompletionAccuracy < 0 || t.CompletionAccuracy > 1 {
		errs = append(errs, errors.New("completion_accuracy must be in [0,1]"))
	}
	if t.CompletionMinSamples < 0 {
		errs = append(errs, errors.New("completion_min_samples must not be negative"))
	}
	return errors.Join(errs...)
}

// bound returns the Bound for a learnable dimension.
func (t Tuning) bound(d Dimension) Bound {
	switch d {
	case DimBlur:
		return t.Blur
	case DimScreenshot:
		return t.Screenshot
	case DimLowQuality:
		return t.LowQuality
	case DimDuplicate:
		return t.Duplicate
	default:
		return t.NearDuplicate
	}
}
