package phototriage

import (
	"bytes"
	"strings"
	"time"

	"github.com/bep/imagemeta"
)

// exifTimeLayout is the classic EXIF datetime string format.
const exifTimeLayout = "2006:01:02 15:04:05"

// screenshotSourceKeywords are substrings that mark a capture source as a
// screenshot tool when found (case-insensitive) in software/creator fields.
var screenshotSourceKeywords = []string{
	"screenshot",
	"screen capture",
	"screencapture",
	"snipping tool",
	"grab",
}

// captureWantedTags maps (source, tag-name) → true for every tag the capture
// extractor cares about.
var captureWantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"DateTimeOriginal": true,
		"DateTime":         true,
		"Software":         true,
		"Make":             true,
		"Model":            true,
		"UserComment":      true,
	},
	imagemeta.XMP: {
		"CreatorTool": true,
		"CreateDate":  true,
	},
}

// ExtractCaptureMetadata parses capture time, source label, and a screenshot
// hint out of the encoded image bytes. Hosts that already know these (e.g.
// from a platform photo library) can skip this and fill CaptureMetadata
// directly. Returns the zero value if nothing useful was found.
// Graceful degradation: never returns an error.
func ExtractCaptureMetadata(data []byte) CaptureMetadata {
	if len(data) == 0 {
		return CaptureMetadata{}
	}

	var (
		meta     CaptureMetadata
		software string
		device   string
		model    string
		comment  string
	)

	err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := captureWantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			switch ti.Tag {
			case "DateTimeOriginal", "CreateDate":
				if ts, ok := tagValueTime(ti.Value); ok {
					meta.Timestamp = ts
				}
			case "DateTime":
				// Fallback only; DateTimeOriginal wins when present.
				if meta.Timestamp.IsZero() {
					if ts, ok := tagValueTime(ti.Value); ok {
						meta.Timestamp = ts
					}
				}
			case "Software":
				software = tagValueString(ti.Value)
			case "CreatorTool":
				if software == "" {
					software = tagValueString(ti.Value)
				}
			case "Make":
				device = tagValueString(ti.Value)
			case "Model":
				model = tagValueString(ti.Value)
			case "UserComment":
				comment = tagValueString(ti.Value)
			}
			return nil
		},
	})
	if err != nil {
		return CaptureMetadata{}
	}

	switch {
	case device != "" && model != "":
		meta.Source = device + " " + model
	case model != "":
		meta.Source = model
	case device != "":
		meta.Source = device
	default:
		meta.Source = software
	}

	meta.ScreenshotHint = isScreenshotSource(software) ||
		isScreenshotSource(comment) ||
		isScreenshotSource(meta.Source)
	return meta
}

// isScreenshotSource reports whether a software/creator field names a known
// screenshot tool.
func isScreenshotSource(field string) bool {
	if field == "" {
		return false
	}
	lower := strings.ToLower(field)
	for _, kw := range screenshotSourceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// tagValueTime extracts a timestamp from a tag value, which may arrive as a
// parsed time.Time or an EXIF-formatted string.
func tagValueTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val, true
	case string:
		if ts, err := time.Parse(exifTimeLayout, val); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, val); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList).
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
		return ""
	default:
		return ""
	}
}
