package phototriage

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ErrNoDecoder is returned by ProcessBatch when no Decoder was injected.
var ErrNoDecoder = errors.New("no decoder configured")

// ProcessedItem is the result of running one asset through the pipeline.
type ProcessedItem struct {
	Item       *PhotoItem
	Features   FeatureSet
	Assessment Assessment

	// Match is the duplicate-resolution outcome. When Match.PartnerID names
	// an item outside this batch, the host should retag that item itself;
	// in-batch partners are retagged before ProcessBatch returns.
	Match Match
}

// ProcessBatch runs the full flow for a batch of asset references:
// decode → extract (parallel, bounded by Config.Workers) → classify →
// resolve duplicates (serialized, single writer). Asset references double as
// item ids. Decode failures degrade the item to neutral features rather than
// failing the batch; the only errors returned are a missing decoder or a
// cancelled context.
func (e *Engine) ProcessBatch(ctx context.Context, assetRefs []string) ([]ProcessedItem, error) {
	if e.cfg.Decoder == nil {
		return nil, ErrNoDecoder
	}

	// Extraction is pure and stateless per item, so it fans out freely.
	features := make([]FeatureSet, len(assetRefs))
	metas := make([]CaptureMetadata, len(assetRefs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, ref := range assetRefs {
		i, ref := i, ref
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("phototriage: extraction panic", "asset", ref, "panic", r)
					if e.cfg.OnPanic != nil {
						e.cfg.OnPanic("extract", r)
					}
					features[i] = neutralFeatures(CaptureMetadata{})
				}
			}()

			img, encoded, err := e.cfg.Decoder.Decode(gctx, ref)
			if err != nil || img == nil {
				if err != nil {
					slog.Debug("phototriage: decode unavailable", "asset", ref, "error", err.Error())
				}
				features[i] = neutralFeatures(CaptureMetadata{})
				return gctx.Err()
			}

			meta := ExtractCaptureMetadata(encoded)
			metas[i] = meta
			features[i] = extractFeatures(img, encoded, meta, e.cfg.TextDetector)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Classification and resolution mutate shared state; keep them on one
	// goroutine so the resolver sees items in batch order. One thresholds
	// snapshot covers the whole batch.
	th := e.learner.Snapshot()
	out := make([]ProcessedItem, len(assetRefs))
	batchIndex := make(map[string]int, len(assetRefs))
	for i, ref := range assetRefs {
		fs := features[i]
		item := &PhotoItem{
			ID:             ref,
			Width:          fs.Width,
			Height:         fs.Height,
			CreatedAt:      metas[i].Timestamp,
			Source:         metas[i].Source,
			TextDensity:    fs.TextDensity,
			ExactHash:      fs.ExactHash,
			PerceptualHash: fs.PerceptualHash,
		}

		a := Classify(fs, th, 0)
		m := e.resolver.Resolve(ref, fs, th)
		if m.Found {
			a.Tags = a.Tags.Add(m.Tag)
			a.Confidence[m.Tag] = m.Similarity
		}
		item.ApplyAssessment(a)
		item.RelatedIDs = m.Related

		batchIndex[ref] = i
		out[i] = ProcessedItem{Item: item, Features: fs, Assessment: a, Match: m}
	}

	// Duplicate closure: a match discovered for a later item also tags its
	// earlier partner. In-batch partners are retagged here; for out-of-batch
	// partners Match.PartnerID tells the host which item to retag.
	for i := range out {
		m := out[i].Match
		if !m.Found {
			continue
		}
		j, ok := batchIndex[m.PartnerID]
		if !ok {
			continue
		}
		partner := &out[j]
		partner.Assessment.Tags = partner.Assessment.Tags.Add(m.Tag)
		partner.Assessment.Confidence[m.Tag] = m.Similarity
		partner.Item.Predicted = partner.Item.Predicted.Add(m.Tag)
		partner.Item.RelatedIDs = e.resolver.FindRelated(m.PartnerID)
	}

	// Audit events fire only after the closure pass so they carry the final
	// tag set, duplicate tags included.
	if e.cfg.OnClassification != nil {
		for i := range out {
			e.cfg.OnClassification(ClassificationEvent{
				PhotoID:    out[i].Item.ID,
				Features:   out[i].Features,
				Tags:       out[i].Assessment.Tags,
				Confidence: out[i].Assessment.Confidence,
				Revision:   th.Revision,
			})
		}
	}
	return out, nil
}
