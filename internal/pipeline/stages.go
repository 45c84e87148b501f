package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fabric-fusion-backend/internal/assets"
	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/prompts"
)

// Perception stages degrade to a recorded error. They only return an error
// when the job record itself cannot be written.

func (o *Orchestrator) protectFace(ctx context.Context, r *jobRun) (stageResult, error) {
	meta := Metadata{"userConsent": r.job.UserConsent}

	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	res, err := o.deps.Face.Detect(sctx, r.modelURL)
	if err != nil {
		r.log.Warn("Face protection unavailable", "stage", "face", "error", err)
		meta["faceProtected"] = false
		meta["faceProtectionStatus"] = "unavailable"
		meta["faceProtectionError"] = err.Error()
		return stageResult{detail: "face_unavailable", meta: meta}, nil
	}

	meta["faceProtected"] = res.Detected
	if !res.Detected {
		meta["faceProtectionStatus"] = "no_face"
		return stageResult{detail: "face_done", meta: meta}, nil
	}

	meta["faceProtectionStatus"] = "protected"
	if len(res.Mask) > 0 {
		url, err := o.deps.Assets.Upload(sctx, assets.MaskPath(r.job.ID, "face-mask"), res.Mask, "image/png")
		if err != nil {
			r.log.Warn("Face mask upload failed", "stage", "face", "error", err)
			meta["faceProtected"] = false
			meta["faceProtectionStatus"] = "unavailable"
			meta["faceProtectionError"] = err.Error()
			return stageResult{detail: "face_unavailable", meta: meta}, nil
		}
		r.faceMaskURL = url
		meta["faceMaskUrl"] = url
	}
	return stageResult{detail: "face_done", meta: meta}, nil
}

func (o *Orchestrator) segmentGarment(ctx context.Context, r *jobRun) (stageResult, error) {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	masks, err := o.deps.Segmenter.Segment(sctx, r.modelURL)
	if err != nil {
		r.log.Warn("Segmentation unavailable", "stage", "segmentation", "error", err)
		return stageResult{
			detail: "segmentation_unavailable",
			meta:   Metadata{"segmentationError": errorText(err)},
		}, nil
	}

	recorded := map[string]interface{}{}
	var uploadErrs []string
	for _, m := range []struct {
		key  string
		file string
		data []byte
	}{
		{maskTop, "top", masks.Top},
		{maskBottom, "bottom", masks.Bottom},
		{maskSilhouette, "mannequin", masks.Silhouette},
	} {
		if len(m.data) == 0 {
			continue
		}
		url, err := o.deps.Assets.Upload(sctx, assets.MaskPath(r.job.ID, m.file), m.data, "image/png")
		if err != nil {
			uploadErrs = append(uploadErrs, fmt.Sprintf("%s: %v", m.key, err))
			continue
		}
		r.masks[m.key] = m.data
		r.maskURLs[m.key] = url
		recorded[m.key] = url
	}

	meta := Metadata{}
	if len(uploadErrs) > 0 {
		meta["segmentationError"] = strings.Join(uploadErrs, "; ")
	}
	if len(recorded) == 0 {
		if _, ok := meta["segmentationError"]; !ok {
			meta["segmentationError"] = "no garment masks returned"
		}
		r.log.Warn("No garment masks available", "stage", "segmentation")
		return stageResult{detail: "segmentation_unavailable", meta: meta}, nil
	}
	meta["masks"] = recorded
	return stageResult{detail: "segmentation_done", meta: meta}, nil
}

func (o *Orchestrator) mapEdges(ctx context.Context, r *jobRun) (stageResult, error) {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	edge, err := o.deps.Edges.Map(sctx, r.modelURL)
	if err == nil {
		var url string
		url, err = o.deps.Assets.Upload(sctx, assets.EdgePath(r.job.ID), edge, "image/png")
		if err == nil {
			r.edgeURL = url
			return stageResult{detail: "edge_done", meta: Metadata{"edgeMapUrl": url}}, nil
		}
	}

	r.log.Warn("Edge map unavailable", "stage", "edge", "error", err)
	return stageResult{detail: "edge_unavailable", meta: Metadata{"edgeMapError": err.Error()}}, nil
}

func (o *Orchestrator) extractFabric(ctx context.Context, r *jobRun) (stageResult, error) {
	var errs []string
	extract := func(slot, url string) *models.FabricFeatures {
		if url == "" {
			return nil
		}
		sctx, cancel := o.stageContext(ctx)
		defer cancel()

		features, err := o.deps.Fabric.Extract(sctx, url)
		if err != nil {
			r.log.Warn("Fabric analysis failed", "stage", "fabric", "slot", slot, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", slot, err))
			return nil
		}
		return features
	}

	r.topFeatures = extract("top", r.job.FabricTopURL)
	r.bottomFeatures = extract("bottom", r.job.FabricBottomURL)

	meta := Metadata{
		"paletteTop":      palette(r.topFeatures),
		"paletteBottom":   palette(r.bottomFeatures),
		"dominantPattern": nil,
	}
	if f := firstFeatures(r.topFeatures, r.bottomFeatures); f != nil {
		meta["dominantPattern"] = f.Texture
	}
	if len(errs) > 0 {
		meta["fabricFeaturesError"] = strings.Join(errs, "; ")
	}
	return stageResult{detail: "fabric_features_done", meta: meta}, nil
}

func palette(f *models.FabricFeatures) interface{} {
	if f == nil {
		return nil
	}
	return f.Colors
}

func (o *Orchestrator) buildPrompts(_ context.Context, r *jobRun) (stageResult, error) {
	r.prompts = prompts.Build(r.job.Category, r.topFeatures, r.bottomFeatures)
	return stageResult{detail: "prompts_built", meta: Metadata{"prompts": r.prompts.AsMetadata()}}, nil
}

// errorText flattens joined errors onto one line for the job record.
func errorText(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}

var errNoImage = errors.New("no image available")
