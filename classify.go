package phototriage

// Fixed rule constants. These are not learnable: they gate rules whose
// discriminating threshold lives elsewhere or is inherently structural.
const (
	documentMinSharpness = 0.7 // documents must be sharp to count as documents
	textHeavyMinDensity  = 0.5
	lowLightBrightness   = 0.3
	lowLightMinSharpness = 0.2 // dark but with recoverable detail

	// Composite quality weights: resolution, sharpness, inverse noise.
	qualityResolutionWeight = 0.4
	qualitySharpnessWeight  = 0.4
	qualityNoiseWeight      = 0.2

	// fullResolutionPixels is the pixel count that scores full marks on the
	// resolution component of the composite quality score.
	fullResolutionPixels = 2_000_000
)

// Signal is one evidence point behind an emitted tag.
type Signal struct {
	Rule   string // rule that fired: "screenshot", "document", ...
	Detail string // human-readable detail
	Tag    Tag    // the tag this signal supports
}

// Assessment is the classification verdict for one feature set: the emitted
// tags, a confidence per tag, and the contributing evidence.
type Assessment struct {
	Tags       TagSet
	Confidence ConfidenceMap
	Signals    []Signal // contributing evidence (never nil, may be empty)
}

// Classify maps a feature set and a thresholds snapshot to a tag set with
// per-tag confidence. Rules run in fixed precedence order: screenshot,
// document, text-heavy, blurry, low-light, low-quality. Earlier rules
// suppress specific later ones, never vice versa. Confirmed tags are carried
// through at full confidence and never removed here.
//
// The call is idempotent: identical inputs always produce identical output.
// Duplicate tagging is the resolver's job, not this function's.
func Classify(fs FeatureSet, th Thresholds, confirmed TagSet) Assessment {
	a := Assessment{
		Confidence: make(ConfidenceMap),
		Signals:    make([]Signal, 0, 4),
	}

	isScreenshot := fs.AspectClass == AspectScreen ||
		fs.TextDensity > th.Screenshot ||
		fs.ScreenshotHint
	if isScreenshot {
		conf, detail := 0.6, "aspect ratio matches a device screen"
		switch {
		case fs.ScreenshotHint:
			conf, detail = 0.95, "capture source reported a screenshot"
		case fs.TextDensity > th.Screenshot:
			conf, detail = 0.8, "text density above screenshot threshold"
		}
		a.emit(TagScreenshot, conf, Signal{Rule: "screenshot", Detail: detail, Tag: TagScreenshot})
	}

	// Document: suppressed by screenshot; suppresses text-heavy.
	isDocument := !isScreenshot &&
		fs.AspectClass == AspectPaper &&
		fs.BlurScore > documentMinSharpness &&
		fs.TextPattern
	if isDocument {
		a.emit(TagDocument, 0.8, Signal{
			Rule: "document", Detail: "paper aspect with sharp text patterning", Tag: TagDocument,
		})
	}

	if !isScreenshot && !isDocument && fs.TextPattern && fs.TextDensity > textHeavyMinDensity {
		a.emit(TagTextHeavy, clamp01(fs.TextDensity), Signal{
			Rule: "textHeavy", Detail: "text patterning over half the frame", Tag: TagTextHeavy,
		})
	}

	if fs.BlurScore < th.Blur {
		// Confidence scales linearly with distance from the threshold.
		conf := clamp01((th.Blur - fs.BlurScore) / th.Blur)
		a.emit(TagBlurry, conf, Signal{
			Rule: "blurry", Detail: "sharpness below blur threshold", Tag: TagBlurry,
		})
	}

	if fs.Brightness < lowLightBrightness && fs.BlurScore > lowLightMinSharpness {
		conf := clamp01((lowLightBrightness - fs.Brightness) / lowLightBrightness)
		a.emit(TagLowLight, conf, Signal{
			Rule: "lowLight", Detail: "dark frame with recoverable detail", Tag: TagLowLight,
		})
	}

	if !isScreenshot && fs.TextDensity <= th.Screenshot {
		if q := qualityScore(fs); q < th.LowQuality {
			conf := clamp01((th.LowQuality - q) / th.LowQuality)
			a.emit(TagLowQuality, conf, Signal{
				Rule: "lowQuality", Detail: "composite quality below cutoff", Tag: TagLowQuality,
			})
		}
	}

	// Confirmed human judgments pass through at full confidence.
	for _, t := range confirmed.Remove(TagUnrated).Tags() {
		if !a.Tags.Has(t) {
			a.Tags = a.Tags.Add(t)
		}
		a.Confidence[t] = 1.0
	}

	return a
}

func (a *Assessment) emit(t Tag, conf float64, sig Signal) {
	a.Tags = a.Tags.Add(t)
	a.Confidence[t] = conf
	a.Signals = append(a.Signals, sig)
}

// qualityScore blends resolution, sharpness, and inverse noise into one
// composite score in [0,1].
func qualityScore(fs FeatureSet) float64 {
	resolution := clamp01(float64(fs.Width*fs.Height) / fullResolutionPixels)
	return qualityResolutionWeight*resolution +
		qualitySharpnessWeight*fs.BlurScore +
		qualityNoiseWeight*(1-fs.Noise)
}
