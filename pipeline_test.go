package phototriage

import (
	"context"
	"errors"
	"image"
	"reflect"
	"testing"
)

// fakeDecoder is a test double for the Decoder interface. Each ref maps to
// an image plus encoded bytes; unknown refs fail to decode.
type fakeDecoder struct {
	assets map[string]struct {
		img     image.Image
		encoded []byte
	}
}

func (d *fakeDecoder) Decode(_ context.Context, ref string) (image.Image, []byte, error) {
	a, ok := d.assets[ref]
	if !ok {
		return nil, nil, errors.New("asset not found")
	}
	return a.img, a.encoded, nil
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{assets: make(map[string]struct {
		img     image.Image
		encoded []byte
	})}
}

func (d *fakeDecoder) add(ref string, img image.Image, encoded []byte) {
	d.assets[ref] = struct {
		img     image.Image
		encoded []byte
	}{img, encoded}
}

func TestProcessBatchFindsDuplicatesAcrossBatch(t *testing.T) {
	t.Parallel()

	img := grayImage(100, 100, func(x, y int) uint8 { return uint8((x + y) % 256) })
	dec := newFakeDecoder()
	dec.add("asset-1", img, []byte("identical-bytes"))
	dec.add("asset-2", img, []byte("identical-bytes"))

	e, err := New(Config{Decoder: dec, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	out, err := e.ProcessBatch(context.Background(), []string{"asset-1", "asset-2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("processed %d items, want 2", len(out))
	}

	second := out[1]
	if !second.Assessment.Tags.Has(TagDuplicate) {
		t.Errorf("byte-identical second item tags = %v, want duplicate", second.Assessment.Tags)
	}
	if !reflect.DeepEqual(second.Item.RelatedIDs, []string{"asset-1"}) {
		t.Errorf("second item related = %v, want [asset-1]", second.Item.RelatedIDs)
	}
	if second.Match.PartnerID != "asset-1" {
		t.Errorf("second item partner = %q, want asset-1", second.Match.PartnerID)
	}

	// Both halves of the pair carry the tag, even though the first item was
	// resolved before its partner existed.
	first := out[0]
	if !first.Assessment.Tags.Has(TagDuplicate) {
		t.Errorf("first item tags = %v, want duplicate", first.Assessment.Tags)
	}
	if !first.Item.Predicted.Has(TagDuplicate) {
		t.Errorf("first item predicted = %v, want duplicate", first.Item.Predicted)
	}
	if got := first.Assessment.Confidence[TagDuplicate]; got != 1.0 {
		t.Errorf("first item duplicate confidence = %v, want 1.0", got)
	}
	if !reflect.DeepEqual(first.Item.RelatedIDs, []string{"asset-2"}) {
		t.Errorf("first item related = %v, want [asset-2]", first.Item.RelatedIDs)
	}
	if got := e.FindRelated("asset-1"); !reflect.DeepEqual(got, []string{"asset-2"}) {
		t.Errorf("FindRelated(asset-1) = %v, want [asset-2]", got)
	}
}

func TestProcessBatchDegradesUndecodableAssets(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder()
	dec.add("ok", checkerboard(64, 64), []byte("ok-bytes"))

	e, err := New(Config{Decoder: dec})
	if err != nil {
		t.Fatal(err)
	}

	out, err := e.ProcessBatch(context.Background(), []string{"ok", "broken"})
	if err != nil {
		t.Fatalf("decode failure must not fail the batch: %v", err)
	}

	broken := out[1]
	if !broken.Features.Degraded {
		t.Error("undecodable asset should carry degraded features")
	}
	if broken.Features.BlurScore != 1.0 {
		t.Errorf("degraded blur score = %v, want 1.0", broken.Features.BlurScore)
	}
	if broken.Assessment.Tags.Has(TagDuplicate) || broken.Assessment.Tags.Has(TagNearDuplicate) {
		t.Errorf("degraded asset must not group as duplicate, tags = %v", broken.Assessment.Tags)
	}
}

func TestProcessBatchRequiresDecoder(t *testing.T) {
	t.Parallel()

	e, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.ProcessBatch(context.Background(), []string{"x"}); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("err = %v, want ErrNoDecoder", err)
	}
}

func TestProcessBatchAuditCallback(t *testing.T) {
	t.Parallel()

	dec := newFakeDecoder()
	dec.add("a", flatImage(64, 64, 128), []byte("a-bytes"))

	var events []ClassificationEvent
	e, err := New(Config{
		Decoder:          dec,
		OnClassification: func(ev ClassificationEvent) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.ProcessBatch(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("audit callback fired %d times, want 1", len(events))
	}
	if events[0].PhotoID != "a" {
		t.Errorf("event photo id = %q, want a", events[0].PhotoID)
	}
}

func TestProcessBatchAuditEventsCarryDuplicateTags(t *testing.T) {
	t.Parallel()

	img := grayImage(100, 100, func(x, y int) uint8 { return uint8((x + y) % 256) })
	dec := newFakeDecoder()
	dec.add("a", img, []byte("same-bytes"))
	dec.add("b", img, []byte("same-bytes"))

	events := make(map[string]ClassificationEvent)
	e, err := New(Config{
		Decoder:          dec,
		OnClassification: func(ev ClassificationEvent) { events[ev.PhotoID] = ev },
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.ProcessBatch(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}

	// Events fire after duplicate resolution, so both carry the tag.
	for _, id := range []string{"a", "b"} {
		ev, ok := events[id]
		if !ok {
			t.Fatalf("no audit event for %q", id)
		}
		if !ev.Tags.Has(TagDuplicate) {
			t.Errorf("event for %q tags = %v, want duplicate", id, ev.Tags)
		}
	}
}
