package phototriage

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// workBound caps the working-copy dimensions so every pixel pass has a
	// bounded cost regardless of source resolution.
	workBound = 512

	// brightnessSamples is the approximate luma sample count for the
	// brightness grid, independent of image size.
	brightnessSamples = 4096

	// laplacianNorm normalizes the mean absolute Laplacian response into
	// [0,1]. Responses at or above it count as fully sharp.
	laplacianNorm = 0.25

	// noiseBlurRadius and noiseNorm tune the Gaussian-residual noise estimate.
	noiseBlurRadius = 1.5
	noiseNorm       = 0.08

	// Fallback text-detection knobs (used when no TextDetector is injected).
	textEdgeGradient    = 0.20
	textTransitionDelta = 0.25
	textMinDensity      = 0.15
	textMinTransitions  = 8.0
)

// aspectTolerance is the absolute tolerance when matching an image ratio (or
// its reciprocal) against the known ratio tables.
const aspectTolerance = 0.1

// screenRatios are common device screen proportions.
var screenRatios = []float64{16.0 / 9, 16.0 / 10, 4.0 / 3, 3.0 / 2, 19.5 / 9}

// paperRatios are common document/paper proportions (ISO A-series, US letter).
var paperRatios = []float64{math.Sqrt2, 11.0 / 8.5}

// ExtractFeatures maps decoded pixels plus capture metadata to a FeatureSet.
// It is pure and deterministic for non-degraded inputs: identical pixels and
// metadata always produce the identical set. A nil image degrades to neutral
// features and never fails.
func (e *Engine) ExtractFeatures(img image.Image, encoded []byte, meta CaptureMetadata) FeatureSet {
	return extractFeatures(img, encoded, meta, e.cfg.TextDetector)
}

// ExtractFeaturesBytes decodes the encoded stream first (JPEG, PNG, GIF, or
// WebP) and then extracts features. Undecodable data degrades to neutral
// features keyed by the stream's exact hash, so byte-identical blobs still
// group as duplicates.
func (e *Engine) ExtractFeaturesBytes(encoded []byte, meta CaptureMetadata) FeatureSet {
	img, _, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		slog.Debug("phototriage: decode failed, degrading to neutral features", "error", err.Error())
		fs := neutralFeatures(meta)
		if len(encoded) > 0 {
			fs.ExactHash = exactHash(encoded)
		}
		return fs
	}
	return extractFeatures(img, encoded, meta, e.cfg.TextDetector)
}

func extractFeatures(img image.Image, encoded []byte, meta CaptureMetadata, det TextDetector) FeatureSet {
	if img == nil {
		return neutralFeatures(meta)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return neutralFeatures(meta)
	}

	work := img
	if width > workBound || height > workBound {
		work = imaging.Fit(img, workBound, workBound, imaging.Box)
	}
	plane := lumaPlane(work)

	fs := FeatureSet{
		Width:          width,
		Height:         height,
		BlurScore:      blurScore(plane),
		Brightness:     brightnessScore(plane),
		Noise:          noiseScore(work, plane),
		AspectClass:    classifyAspect(width, height),
		ScreenshotHint: meta.ScreenshotHint,
	}
	fs.TextDensity, fs.TextPattern = textFeatures(work, plane, det)

	if len(encoded) > 0 {
		fs.ExactHash = exactHash(encoded)
	} else {
		fs.ExactHash = exactHashPixels(img)
	}

	if h, ok := perceptualHash(img); ok {
		fs.PerceptualHash = h
	} else {
		// Hash failure must not group this item with anything.
		fs.PerceptualHash = randomPerceptualHash()
		fs.Degraded = true
	}
	return fs
}

// neutralFeatures is the degraded result for items without pixel data:
// assume sharp, mid brightness, and hashes that never match a real image.
func neutralFeatures(meta CaptureMetadata) FeatureSet {
	return FeatureSet{
		BlurScore:      1.0,
		Brightness:     0.5,
		AspectClass:    AspectUnknown,
		ExactHash:      sentinelExactHash(),
		PerceptualHash: randomPerceptualHash(),
		ScreenshotHint: meta.ScreenshotHint,
		Degraded:       true,
	}
}

func randomPerceptualHash() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

// lumaPlane converts an image to a row-major luma grid using ITU-R BT.601
// weights, values in [0,1].
func lumaPlane(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := make([][]float64, height)
	for y := 0; y < height; y++ {
		row := make([]float64, width)
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			rf := float64(r>>8) / 255.0
			gf := float64(g>>8) / 255.0
			bf := float64(b>>8) / 255.0
			row[x] = 0.299*rf + 0.587*gf + 0.114*bf
		}
		plane[y] = row
	}
	return plane
}

// blurScore is the mean absolute response of the 4-neighbor Laplacian kernel
// over interior pixels, normalized and clamped to [0,1]. Higher = sharper.
func blurScore(plane [][]float64) float64 {
	height := len(plane)
	if height < 3 {
		return 1.0
	}
	width := len(plane[0])
	if width < 3 {
		return 1.0
	}

	var sum float64
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			lap := 4*plane[y][x] - plane[y-1][x] - plane[y+1][x] - plane[y][x-1] - plane[y][x+1]
			sum += math.Abs(lap)
		}
	}
	mean := sum / float64((height-2)*(width-2))
	return clamp01(mean / laplacianNorm)
}

// brightnessScore is the mean luma over a coarse grid whose stride keeps the
// total sample count roughly constant.
func brightnessScore(plane [][]float64) float64 {
	height := len(plane)
	if height == 0 {
		return 0.5
	}
	width := len(plane[0])
	if width == 0 {
		return 0.5
	}

	stride := int(math.Sqrt(float64(width*height) / brightnessSamples))
	if stride < 1 {
		stride = 1
	}

	var sum float64
	var n int
	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			sum += plane[y][x]
			n++
		}
	}
	return sum / float64(n)
}

// noiseScore estimates residual noise as the mean luma difference between the
// image and a Gaussian-blurred copy, scaled to [0,1].
func noiseScore(work image.Image, plane [][]float64) float64 {
	blurred := blur.Gaussian(work, noiseBlurRadius)
	smooth := lumaPlane(blurred)

	height := len(plane)
	if height == 0 || len(smooth) != height {
		return 0
	}
	width := len(plane[0])
	if width == 0 || len(smooth[0]) != width {
		return 0
	}

	var sum float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum += math.Abs(plane[y][x] - smooth[y][x])
		}
	}
	mean := sum / float64(width*height)
	return clamp01(mean / noiseNorm)
}

// classifyAspect buckets width:height against the known ratio tables,
// matching either the ratio or its reciprocal within the tolerance band.
func classifyAspect(width, height int) AspectClass {
	if width <= 0 || height <= 0 {
		return AspectUnknown
	}
	ratio := float64(width) / float64(height)
	if matchesRatio(ratio, screenRatios) {
		return AspectScreen
	}
	if matchesRatio(ratio, paperRatios) {
		return AspectPaper
	}
	return AspectUnknown
}

func matchesRatio(ratio float64, table []float64) bool {
	for _, r := range table {
		if math.Abs(ratio-r) <= aspectTolerance || math.Abs(1/ratio-r) <= aspectTolerance {
			return true
		}
	}
	return false
}

// textFeatures asks the injected detector first and falls back to the
// built-in heuristic on error or when no detector is configured.
func textFeatures(work image.Image, plane [][]float64, det TextDetector) (density float64, pattern bool) {
	if det != nil {
		d, p, err := det.DetectText(work)
		if err == nil {
			return clamp01(d), p
		}
		slog.Debug("phototriage: text detector failed, using fallback", "error", err.Error())
	}
	return fallbackTextFeatures(plane)
}

// fallbackTextFeatures estimates text coverage from the high-frequency edge
// ratio over the central half of the image, plus a per-row luma-transition
// count that fires on the regular striping produced by lines of text.
func fallbackTextFeatures(plane [][]float64) (density float64, pattern bool) {
	height := len(plane)
	if height < 4 {
		return 0, false
	}
	width := len(plane[0])
	if width < 4 {
		return 0, false
	}

	y0, y1 := height/4, height*3/4
	x0, x1 := width/4, width*3/4

	stride := int(math.Sqrt(float64((y1 - y0) * (x1 - x0) / brightnessSamples)))
	if stride < 1 {
		stride = 1
	}

	var edges, samples int
	var transitions float64
	var rows int
	for y := y0; y < y1; y += stride {
		rowTransitions := 0
		for x := x0; x < x1-1; x += stride {
			dx := math.Abs(plane[y][x+1] - plane[y][x])
			dy := 0.0
			if y+1 < y1 {
				dy = math.Abs(plane[y+1][x] - plane[y][x])
			}
			if dx+dy > textEdgeGradient {
				edges++
			}
			if dx > textTransitionDelta {
				rowTransitions++
			}
			samples++
		}
		transitions += float64(rowTransitions)
		rows++
	}
	if samples == 0 {
		return 0, false
	}

	density = clamp01(float64(edges) / float64(samples))
	pattern = density >= textMinDensity && transitions/float64(rows) >= textMinTransitions
	return density, pattern
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
