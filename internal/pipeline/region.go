package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"fabric-fusion-backend/internal/assets"
	"fabric-fusion-backend/internal/imaging"
	"fabric-fusion-backend/internal/inference"
	"fabric-fusion-backend/internal/models"
)

const (
	ipAdapterScale = 0.8

	regionGuidance    = 8.0
	regionSteps       = 28
	regionControlNet  = 1.0
	hybridGuidance    = 7.5
	hybridSteps       = 20
	hybridControlNet  = 0.8
	hybridStrength    = 0.45
	hybridAttempts    = 2
	topStrength       = 0.45
	bottomStrength    = 0.6
	topFallbackMix    = 0.45
	bottomFallbackMix = 0.5
)

type generationRequest struct {
	base          string
	mask          string
	prompt        string
	reference     string
	strength      float64
	guidance      float64
	steps         int
	controlWeight float64
	attempts      int
}

// imageRef is a stored image. data is set when the bytes are already in hand.
type imageRef struct {
	url  string
	data []byte
}

func (o *Orchestrator) generationPayload(r *jobRun, req generationRequest) map[string]interface{} {
	params := map[string]interface{}{
		"strength":            req.strength,
		"guidance_scale":      req.guidance,
		"num_inference_steps": req.steps,
	}
	if r.edgeURL != "" {
		params["controlnet"] = map[string]interface{}{
			"image":  r.edgeURL,
			"weight": req.controlWeight,
		}
	}

	payload := map[string]interface{}{
		"init_image":      req.base,
		"prompt":          req.prompt,
		"negative_prompt": r.prompts.Negative,
		"parameters":      params,
	}
	if req.mask != "" {
		payload["mask"] = req.mask
	}
	if req.reference != "" {
		payload["reference_image"] = req.reference
		payload["ip_adapter_image"] = req.reference
		payload["ip_adapter_scale"] = ipAdapterScale
	}
	if r.faceMaskURL != "" {
		payload["protect_mask"] = r.faceMaskURL
	}
	return payload
}

func (o *Orchestrator) generate(ctx context.Context, r *jobRun, req generationRequest) (inference.GeneratedImage, error) {
	raw, err := o.deps.Generator.Run(ctx, o.opts.GenerationModelID, o.generationPayload(r, req), req.attempts)
	if err != nil {
		return inference.GeneratedImage{}, err
	}
	return inference.NormalizeImage(raw)
}

// persistImage copies a model output into the asset store under path.
// Provider URLs expire, so URL output is downloaded first.
func (o *Orchestrator) persistImage(ctx context.Context, img inference.GeneratedImage, path string) (imageRef, error) {
	data, err := img.Bytes(ctx, o.deps.Fetcher)
	if err != nil {
		if img.Kind == inference.ImageURL {
			return imageRef{}, fmt.Errorf("fetch %s: %w", img.Value, err)
		}
		return imageRef{}, err
	}
	url, err := o.deps.Assets.Upload(ctx, path, data, http.DetectContentType(data))
	if err != nil {
		return imageRef{}, fmt.Errorf("upload %s: %w", path, err)
	}
	return imageRef{url: url, data: data}, nil
}

func (o *Orchestrator) bytesOf(ctx context.Context, ref imageRef) ([]byte, error) {
	if ref.data != nil {
		return ref.data, nil
	}
	if ref.url == "" {
		return nil, errNoImage
	}
	return o.deps.Fetcher.Fetch(ctx, ref.url)
}

type fallbackRequest struct {
	baseURL   string
	baseData  []byte
	fabricURL string
	features  *models.FabricFeatures
	region    imaging.Region
	strength  float64
	path      string
}

// fallbackImage synthesizes a local stand-in over the base image. Without
// fabric bytes it tints the region with the known palette, and without either
// it reuses the base unchanged.
func (o *Orchestrator) fallbackImage(ctx context.Context, r *jobRun, req fallbackRequest) (imageRef, error) {
	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	base, err := o.bytesOf(sctx, imageRef{url: req.baseURL, data: req.baseData})
	if err != nil {
		return imageRef{}, fmt.Errorf("fallback base: %w", err)
	}

	out := base
	var fabric []byte
	if req.fabricURL != "" {
		fabric, err = o.deps.Fetcher.Fetch(sctx, req.fabricURL)
		if err != nil {
			r.log.Warn("Fallback fabric unavailable", "stage", r.stage, "error", err)
		}
	}
	switch {
	case len(fabric) > 0:
		out = imaging.Synthesize(base, fabric, req.strength)
	case req.features != nil && req.features.DominantColor != "":
		if tinted, err := imaging.TintRegion(base, req.features.DominantColor, req.region, req.strength); err == nil {
			out = tinted
		}
	}

	url, err := o.deps.Assets.Upload(sctx, req.path, out, "image/png")
	if err != nil {
		return imageRef{}, fmt.Errorf("upload %s: %w", req.path, err)
	}
	return imageRef{url: url, data: out}, nil
}

func (o *Orchestrator) generateTop(ctx context.Context, r *jobRun) (stageResult, error) {
	ts := o.opts.Now().UnixMilli()
	ref, genErr := func() (imageRef, error) {
		sctx, cancel := o.stageContext(ctx)
		defer cancel()

		img, err := o.generate(sctx, r, generationRequest{
			base:          r.baseURL,
			mask:          r.maskURLs[maskTop],
			prompt:        r.prompts.Silhouette,
			reference:     firstNonEmpty(r.job.FabricTopURL, r.job.FabricBottomURL),
			strength:      strengthOr(r.job.Strength, topStrength),
			guidance:      regionGuidance,
			steps:         regionSteps,
			controlWeight: regionControlNet,
			attempts:      o.opts.GenerationAttempts,
		})
		if err != nil {
			return imageRef{}, err
		}
		return o.persistImage(sctx, img, assets.CandidatePath(r.job.ID, "top", ts))
	}()
	if genErr == nil {
		r.setBase(ref.url, ref.data)
		return stageResult{detail: "top_done"}, nil
	}

	r.log.Warn("Top region generation failed, using fallback", "stage", "top", "error", genErr)
	fb, err := o.fallbackImage(ctx, r, fallbackRequest{
		baseURL:   r.modelURL,
		fabricURL: firstNonEmpty(r.job.FabricTopURL, r.job.FabricBottomURL),
		features:  firstFeatures(r.topFeatures, r.bottomFeatures),
		region:    imaging.RegionTop,
		strength:  topFallbackMix,
		path:      assets.FallbackPath(r.job.ID, "top", ts),
	})
	if err != nil {
		return stageResult{}, fmt.Errorf("top fallback: %w (generation: %v)", err, genErr)
	}
	r.setBase(fb.url, fb.data)

	candidate := models.Candidate{
		URL:  fb.url,
		Mode: models.ModeSilhouetteFirst,
		Meta: map[string]interface{}{"fallback": true, "region": "top", "error": genErr.Error()},
	}
	return stageResult{
		detail: "top_fallback",
		meta:   Metadata{"topFallback": candidateMeta(candidate), "error": genErr.Error()},
		err:    genErr.Error(),
	}, nil
}

func (o *Orchestrator) generateBottom(ctx context.Context, r *jobRun) (stageResult, error) {
	ts := o.opts.Now().UnixMilli()
	ref, genErr := func() (imageRef, error) {
		sctx, cancel := o.stageContext(ctx)
		defer cancel()

		img, err := o.generate(sctx, r, generationRequest{
			base:          r.baseURL,
			mask:          r.maskURLs[maskBottom],
			prompt:        r.prompts.Texture,
			reference:     firstNonEmpty(r.job.FabricBottomURL, r.job.FabricTopURL),
			strength:      strengthOr(r.job.Strength, bottomStrength),
			guidance:      regionGuidance,
			steps:         regionSteps,
			controlWeight: regionControlNet,
			attempts:      o.opts.GenerationAttempts,
		})
		if err != nil {
			return imageRef{}, err
		}
		path := assets.CandidatePath(r.job.ID, "final", ts)
		mask := r.masks[maskBottom]
		if mask == nil {
			return o.persistImage(sctx, img, path)
		}
		return o.composite(sctx, r, img, mask, path)
	}()
	if genErr == nil {
		r.addCandidate(models.Candidate{
			URL:  ref.url,
			Mode: models.ModeHybrid,
			Meta: map[string]interface{}{"mode": "top-then-bottom"},
		})
		return stageResult{detail: "bottom_done"}, nil
	}

	r.log.Warn("Bottom region generation failed, using fallback", "stage", "bottom", "error", genErr)
	fb, err := o.fallbackImage(ctx, r, fallbackRequest{
		baseURL:   r.baseURL,
		baseData:  r.baseData,
		fabricURL: firstNonEmpty(r.job.FabricBottomURL, r.job.FabricTopURL),
		features:  firstFeatures(r.bottomFeatures, r.topFeatures),
		region:    imaging.RegionBottom,
		strength:  bottomFallbackMix,
		path:      assets.FallbackPath(r.job.ID, "bottom", ts),
	})
	if err != nil {
		return stageResult{}, fmt.Errorf("bottom fallback: %w (generation: %v)", err, genErr)
	}

	candidate := models.Candidate{
		URL:  fb.url,
		Mode: models.ModeTextureFirst,
		Meta: map[string]interface{}{"fallback": true, "region": "bottom", "error": genErr.Error()},
	}
	r.addCandidate(candidate)
	return stageResult{
		detail: "bottom_fallback",
		meta:   Metadata{"bottomFallback": candidateMeta(candidate), "error": genErr.Error()},
		err:    genErr.Error(),
	}, nil
}

// composite pastes the generated bottom region onto the running base through
// the bottom mask.
func (o *Orchestrator) composite(ctx context.Context, r *jobRun, img inference.GeneratedImage, mask []byte, path string) (imageRef, error) {
	overlay, err := img.Bytes(ctx, o.deps.Fetcher)
	if err != nil {
		return imageRef{}, fmt.Errorf("fetch generated image: %w", err)
	}
	base, err := o.bytesOf(ctx, imageRef{url: r.baseURL, data: r.baseData})
	if err != nil {
		return imageRef{}, fmt.Errorf("fetch base image: %w", err)
	}
	blended, err := imaging.BlendBytes(base, overlay, mask, imaging.DefaultFeather)
	if err != nil {
		return imageRef{}, fmt.Errorf("composite: %w", err)
	}
	url, err := o.deps.Assets.Upload(ctx, path, blended, "image/png")
	if err != nil {
		return imageRef{}, fmt.Errorf("upload %s: %w", path, err)
	}
	return imageRef{url: url, data: blended}, nil
}

// hybridPass reconciles seams across the whole image, so it sends no mask.
func (o *Orchestrator) hybridPass(ctx context.Context, r *jobRun) (stageResult, error) {
	if len(r.candidates) == 0 || len(r.candidates) >= r.maxCands {
		return stageResult{detail: "hybrid_skipped"}, nil
	}

	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	img, err := o.generate(sctx, r, generationRequest{
		base:          r.candidates[0].URL,
		prompt:        r.prompts.Hybrid,
		reference:     r.job.PrimaryFabricURL(),
		strength:      hybridStrength,
		guidance:      hybridGuidance,
		steps:         hybridSteps,
		controlWeight: hybridControlNet,
		attempts:      hybridAttempts,
	})
	var ref imageRef
	if err == nil {
		ref, err = o.persistImage(sctx, img, assets.CandidatePath(r.job.ID, "hybrid", o.opts.Now().UnixMilli()))
	}
	if err != nil {
		r.log.Warn("Hybrid pass skipped", "stage", "hybrid", "error", err)
		return stageResult{detail: "hybrid_skipped"}, nil
	}

	r.addCandidate(models.Candidate{
		URL:  ref.url,
		Mode: models.ModeHybrid,
		Meta: map[string]interface{}{"mode": "final-hybrid"},
	})
	return stageResult{detail: "hybrid_done"}, nil
}
