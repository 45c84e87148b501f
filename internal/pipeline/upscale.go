package pipeline

import (
	"context"
	"fmt"

	"fabric-fusion-backend/internal/assets"
	"fabric-fusion-backend/internal/imaging"
	"fabric-fusion-backend/internal/models"
)

const localUpscaleFactor = 2

// upscaleCandidates never drops a candidate: each one is upscaled remotely,
// locally, or kept as it is.
func (o *Orchestrator) upscaleCandidates(ctx context.Context, r *jobRun) (stageResult, error) {
	for i, c := range r.candidates {
		path := assets.CandidatePath(r.job.ID, fmt.Sprintf("upscaled-%d", i), o.opts.Now().UnixMilli())
		url, how := o.upscaleOne(ctx, r, c, path)
		if how == "" {
			continue
		}
		r.candidates[i] = withMeta(c, url, "upscaled", how)
	}
	return stageResult{detail: "upscaled"}, nil
}

func (o *Orchestrator) upscaleOne(ctx context.Context, r *jobRun, c models.Candidate, path string) (string, string) {
	if o.deps.Upscaler != nil {
		url, err := func() (string, error) {
			sctx, cancel := o.stageContext(ctx)
			defer cancel()

			img, err := o.deps.Upscaler.Upscale(sctx, c.URL)
			if err != nil {
				return "", err
			}
			ref, err := o.persistImage(sctx, img, path)
			return ref.url, err
		}()
		if err == nil {
			return url, "remote"
		}
		r.log.Warn("Remote upscale failed, upscaling locally", "stage", "upscale", "error", err)
	}

	sctx, cancel := o.stageContext(ctx)
	defer cancel()

	data, err := o.deps.Fetcher.Fetch(sctx, c.URL)
	if err == nil {
		data, err = imaging.Upscale(data, localUpscaleFactor)
	}
	var url string
	if err == nil {
		url, err = o.deps.Assets.Upload(sctx, path, data, "image/png")
	}
	if err != nil {
		r.log.Warn("Local upscale failed, keeping original", "stage", "upscale", "error", err)
		return "", ""
	}
	return url, "local"
}

func withMeta(c models.Candidate, url, key string, value interface{}) models.Candidate {
	meta := make(map[string]interface{}, len(c.Meta)+1)
	for k, v := range c.Meta {
		meta[k] = v
	}
	meta[key] = value
	return models.Candidate{URL: url, Mode: c.Mode, Meta: meta}
}
