package phototriage

import (
	"reflect"
	"testing"
)

func fsWithHashes(exact string, perceptual uint64) FeatureSet {
	return FeatureSet{ExactHash: exact, PerceptualHash: perceptual}
}

func TestResolveExactDuplicateClosure(t *testing.T) {
	t.Parallel()

	r := NewDuplicateResolver()
	th := testThresholds()

	first := r.Resolve("A", fsWithHashes("hash-1", 0xAAAA), th)
	if first.Found {
		t.Fatalf("first item cannot match anything, got %+v", first)
	}

	second := r.Resolve("B", fsWithHashes("hash-1", 0xAAAA), th)
	if !second.Found || second.Tag != TagDuplicate {
		t.Fatalf("byte-identical item should be a duplicate, got %+v", second)
	}
	if second.Similarity != 1.0 {
		t.Errorf("exact match similarity = %v, want 1.0", second.Similarity)
	}
	if second.PartnerID != "A" {
		t.Errorf("partner = %q, want A", second.PartnerID)
	}

	// Bidirectional closure: each appears in the other's related set, even
	// though A was processed before B existed.
	if got := r.FindRelated("A"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("FindRelated(A) = %v, want [B]", got)
	}
	if got := r.FindRelated("B"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("FindRelated(B) = %v, want [A]", got)
	}
}

func TestResolvePerceptualNearDuplicate(t *testing.T) {
	t.Parallel()

	r := NewDuplicateResolver()
	th := testThresholds() // near 0.85, duplicate 0.97

	base := uint64(0xFFFF000000000000)
	r.Resolve("A", fsWithHashes("hash-a", base), th)

	// 5 differing bits: similarity 1 - 5/64 ≈ 0.922, between the bars.
	m := r.Resolve("B", fsWithHashes("hash-b", base^0x1F), th)
	if !m.Found || m.Tag != TagNearDuplicate {
		t.Fatalf("5-bit distance should be a near-duplicate, got %+v", m)
	}

	// 20 differing bits: similarity 0.6875, below the near-duplicate bar.
	far := r.Resolve("C", fsWithHashes("hash-c", base^0xFFFFF), th)
	if far.Found {
		t.Errorf("20-bit distance should not match, got %+v", far)
	}
}

func TestResolveTieBreaksOnSmallestID(t *testing.T) {
	t.Parallel()

	r := NewDuplicateResolver()
	th := testThresholds()

	r.Resolve("zed", fsWithHashes("same", 0x1), th)
	r.Resolve("alpha", fsWithHashes("same", 0x1), th)

	m := r.Resolve("new", fsWithHashes("same", 0x1), th)
	if m.PartnerID != "alpha" {
		t.Errorf("tie should break to smallest id, got %q", m.PartnerID)
	}
}

func TestResolveDegradedSkipsPerceptualMatching(t *testing.T) {
	t.Parallel()

	r := NewDuplicateResolver()
	th := testThresholds()

	// A degraded perceptual hash is a sentinel; an identical value on a real
	// item is coincidence, not similarity.
	degraded := fsWithHashes("unavailable:x", 0xBEEF)
	degraded.Degraded = true

	r.Resolve("A", degraded, th)
	m := r.Resolve("B", fsWithHashes("hash-b", 0xBEEF), th)
	if m.Found {
		t.Errorf("degraded items must not group perceptually, got %+v", m)
	}
	if r.FindRelated("A") != nil {
		t.Error("degraded item should have no neighbors")
	}
}

func TestResolveDegradedExactHashStillGroups(t *testing.T) {
	t.Parallel()

	r := NewDuplicateResolver()
	th := testThresholds()

	// Undecodable blobs keep the real digest of their bytes, so two
	// byte-identical blobs group even though neither has pixel data.
	a := fsWithHashes("blob-digest", 0x1111)
	a.Degraded = true
	b := fsWithHashes("blob-digest", 0x2222)
	b.Degraded = true

	r.Resolve("A", a, th)
	m := r.Resolve("B", b, th)
	if !m.Found || m.Tag != TagDuplicate {
		t.Fatalf("byte-identical degraded blobs should be duplicates, got %+v", m)
	}
	if m.Similarity != 1.0 {
		t.Errorf("exact match similarity = %v, want 1.0", m.Similarity)
	}
	if got := r.FindRelated("A"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("FindRelated(A) = %v, want [B]", got)
	}
}

func TestEngineGroupsUndecodableByteIdenticalBlobs(t *testing.T) {
	t.Parallel()

	e, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}

	blob := []byte("not an image, but stable bytes")
	fsA := e.ExtractFeaturesBytes(blob, CaptureMetadata{})
	fsB := e.ExtractFeaturesBytes(blob, CaptureMetadata{})
	if !fsA.Degraded || !fsB.Degraded {
		t.Fatal("undecodable blobs should extract as degraded")
	}
	if fsA.ExactHash != fsB.ExactHash {
		t.Fatalf("equal bytes produced different exact hashes: %q vs %q", fsA.ExactHash, fsB.ExactHash)
	}

	e.ResolveDuplicates("A", fsA)
	m := e.ResolveDuplicates("B", fsB)
	if !m.Found || m.Tag != TagDuplicate || m.PartnerID != "A" {
		t.Fatalf("byte-identical undecodable blobs should group, got %+v", m)
	}
}

func TestResolveIsIdempotentPerItem(t *testing.T) {
	t.Parallel()

	r := NewDuplicateResolver()
	th := testThresholds()

	r.Resolve("A", fsWithHashes("h1", 0x1), th)
	r.Resolve("B", fsWithHashes("h1", 0x1), th)
	// Re-resolving B must not create phantom partners or change the graph.
	again := r.Resolve("B", fsWithHashes("h1", 0x1), th)
	if again.PartnerID != "A" {
		t.Errorf("re-resolve partner = %q, want A", again.PartnerID)
	}
	if got := r.FindRelated("B"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("FindRelated(B) = %v, want [A]", got)
	}
}

func TestUnlinkAndOrphaned(t *testing.T) {
	t.Parallel()

	r := NewDuplicateResolver()
	th := testThresholds()

	r.Resolve("A", fsWithHashes("h1", 0x1), th)
	r.Resolve("B", fsWithHashes("h1", 0x1), th)

	r.Unlink("A", "B")

	orphans := r.Orphaned([]string{"A", "B"})
	if !reflect.DeepEqual(orphans, []string{"A", "B"}) {
		t.Errorf("Orphaned = %v, want both items", orphans)
	}
}

func TestSweepStaleDuplicates(t *testing.T) {
	t.Parallel()

	e, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}

	fsA := fsWithHashes("h1", 0x1)
	fsB := fsWithHashes("h1", 0x1)
	e.ResolveDuplicates("A", fsA)
	m := e.ResolveDuplicates("B", fsB)
	if !m.Found || m.Tag != TagDuplicate {
		t.Fatalf("setup: expected duplicate match, got %+v", m)
	}

	items := []*PhotoItem{
		{ID: "A", Predicted: NewTagSet(TagDuplicate), Confidence: ConfidenceMap{TagDuplicate: 1}},
		{ID: "B", Predicted: NewTagSet(TagDuplicate), Confidence: ConfidenceMap{TagDuplicate: 1}},
	}

	// Nothing is orphaned yet.
	if n := e.SweepStaleDuplicates(items); n != 0 {
		t.Fatalf("sweep before unlink cleaned %d items, want 0", n)
	}

	e.MarkUnique("A", "B")
	if n := e.SweepStaleDuplicates(items); n != 2 {
		t.Fatalf("sweep after unlink cleaned %d items, want 2", n)
	}
	for _, item := range items {
		if item.Predicted.Has(TagDuplicate) {
			t.Errorf("item %s still tagged duplicate after sweep", item.ID)
		}
		if _, ok := item.Confidence[TagDuplicate]; ok {
			t.Errorf("item %s still has duplicate confidence after sweep", item.ID)
		}
	}
}

func TestRestoreRebuildsAdjacency(t *testing.T) {
	t.Parallel()

	th := testThresholds()
	index := map[string]hashRecord{
		"A": {exact: "h1", perceptual: 0x1},
		"B": {exact: "h1", perceptual: 0x1},
		"C": {exact: "h2", perceptual: ^uint64(0)},
		"D": {exact: "blob", perceptual: 0x3, degraded: true},
		"E": {exact: "blob", perceptual: 0x4, degraded: true},
	}

	r := NewDuplicateResolver()
	r.restore(index, th)

	if got := r.FindRelated("A"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("FindRelated(A) after restore = %v, want [B]", got)
	}
	if got := r.FindRelated("C"); got != nil {
		t.Errorf("FindRelated(C) after restore = %v, want none", got)
	}

	// Degraded records relink through their exact hashes.
	if got := r.FindRelated("D"); !reflect.DeepEqual(got, []string{"E"}) {
		t.Errorf("FindRelated(D) after restore = %v, want [E]", got)
	}
}
