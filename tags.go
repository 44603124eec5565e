package phototriage

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Tag is a closed enumeration of the classifications a photo can carry.
type Tag uint8

const (
	TagUnrated Tag = iota
	TagDuplicate
	TagNearDuplicate
	TagBlurry
	TagLowQuality
	TagScreenshot
	TagDocument
	TagTextHeavy
	TagLowLight

	tagCount
)

var tagNames = [...]string{
	TagUnrated:       "unrated",
	TagDuplicate:     "duplicate",
	TagNearDuplicate: "nearDuplicate",
	TagBlurry:        "blurry",
	TagLowQuality:    "lowQuality",
	TagScreenshot:    "screenshot",
	TagDocument:      "document",
	TagTextHeavy:     "textHeavy",
	TagLowLight:      "lowLight",
}

// String returns the canonical tag name.
func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// MarshalText encodes the tag by name so confidence maps serialize with
// readable keys.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tag name. Unknown names map to TagUnrated so an
// older reader can load a record written by a newer version.
func (t *Tag) UnmarshalText(b []byte) error {
	name := string(b)
	for i, n := range tagNames {
		if n == name {
			*t = Tag(i)
			return nil
		}
	}
	*t = TagUnrated
	return nil
}

// TagSet is a bitmask of tags. The zero value is the empty set.
type TagSet uint16

// NewTagSet builds a set from the given tags.
func NewTagSet(tags ...Tag) TagSet {
	var s TagSet
	for _, t := range tags {
		s = s.Add(t)
	}
	return s
}

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool { return s&(1<<t) != 0 }

// Add returns a copy of the set with t included.
func (s TagSet) Add(t Tag) TagSet { return s | 1<<t }

// Remove returns a copy of the set with t excluded.
func (s TagSet) Remove(t Tag) TagSet { return s &^ (1 << t) }

// Union returns the set union.
func (s TagSet) Union(o TagSet) TagSet { return s | o }

// Empty reports whether no tag is set.
func (s TagSet) Empty() bool { return s == 0 }

// Len returns the number of tags in the set.
func (s TagSet) Len() int { return bits.OnesCount16(uint16(s)) }

// Tags returns the members in enum order.
func (s TagSet) Tags() []Tag {
	out := make([]Tag, 0, s.Len())
	for t := Tag(0); t < tagCount; t++ {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// String renders the set as a comma-joined list of tag names.
func (s TagSet) String() string {
	names := make([]string, 0, s.Len())
	for _, t := range s.Tags() {
		names = append(names, t.String())
	}
	return strings.Join(names, ",")
}

// MarshalJSON encodes the set as a sorted array of tag names.
func (s TagSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, s.Len())
	for _, t := range s.Tags() {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return json.Marshal(names)
}

// UnmarshalJSON decodes an array of tag names, ignoring unknown ones.
func (s *TagSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	set := TagSet(0)
	for _, name := range names {
		var t Tag
		if err := t.UnmarshalText([]byte(name)); err != nil {
			continue
		}
		if t == TagUnrated && name != tagNames[TagUnrated] {
			continue // unknown name from a newer writer
		}
		set = set.Add(t)
	}
	*s = set
	return nil
}

// ConfidenceMap holds a confidence in [0,1] per emitted tag.
type ConfidenceMap map[Tag]float64
