// Package pipeline runs a fusion job through its ordered stages and keeps the
// job record current after every transition.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fabric-fusion-backend/internal/assets"
	"fabric-fusion-backend/internal/imaging"
	"fabric-fusion-backend/internal/inference"
	"fabric-fusion-backend/internal/jobstore"
	"fabric-fusion-backend/internal/logger"
	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/perception"
	"fabric-fusion-backend/internal/realtime"
)

var (
	ErrCancelled   = errors.New("cancelled")
	ErrJobTimeout  = errors.New("job timeout exceeded")
	ErrNoCandidate = errors.New("pipeline produced no candidates")
)

type FaceDetector interface {
	Detect(ctx context.Context, imageURL string) (*perception.FaceResult, error)
}

type RegionSegmenter interface {
	Segment(ctx context.Context, imageURL string) (perception.Masks, error)
}

type EdgeDetector interface {
	Map(ctx context.Context, imageURL string) ([]byte, error)
}

type FabricAnalyzer interface {
	Extract(ctx context.Context, fabricURL string) (*models.FabricFeatures, error)
}

type RemoteUpscaler interface {
	Upscale(ctx context.Context, imageURL string) (inference.GeneratedImage, error)
}

// Deps are the collaborators of an Orchestrator. Upscaler and Events are
// optional.
type Deps struct {
	Store     jobstore.Store
	Assets    assets.Store
	Fetcher   inference.Fetcher
	Face      FaceDetector
	Segmenter RegionSegmenter
	Edges     EdgeDetector
	Fabric    FabricAnalyzer
	Generator perception.Runner
	Upscaler  RemoteUpscaler
	Events    realtime.Publisher
	Log       *logger.Logger
}

type Options struct {
	GenerationModelID  string
	GenerationAttempts int
	StageTimeout       time.Duration
	JobTimeout         time.Duration
	MaxCandidates      int
	// Now is used for asset timestamps and the job clock. Defaults to time.Now.
	Now func() time.Time
}

const (
	defaultStageTimeout  = 90 * time.Second
	defaultJobTimeout    = 15 * time.Minute
	defaultMaxCandidates = 4
)

type Orchestrator struct {
	deps   Deps
	opts   Options
	log    *logger.Logger
	stages []stage
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Events == nil {
		deps.Events = realtime.NopPublisher{}
	}
	if opts.GenerationAttempts <= 0 {
		opts.GenerationAttempts = perception.DefaultAttempts
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaultStageTimeout
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaultMaxCandidates
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	o := &Orchestrator{deps: deps, opts: opts, log: deps.Log.With("service", "FusionPipeline")}
	o.stages = o.stageTable()
	return o
}

// Process runs the job to a terminal state and returns its candidates. A job
// that is already terminal is left alone.
func (o *Orchestrator) Process(ctx context.Context, jobID uuid.UUID) ([]models.Candidate, error) {
	job, err := o.deps.Store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		o.log.Info("Job already finished", "job_id", jobID, "status", job.Status)
		return job.Candidates, nil
	}

	r := newJobRun(job, o.opts.Now(), o.log.With("job_id", jobID))
	r.maxCands = o.opts.MaxCandidates
	r.log.Info("Starting fusion job", "category", job.Category)

	candidates, err := o.runStages(ctx, r)
	if err == nil {
		r.log.Info("Fusion job completed", "candidates", len(candidates), "elapsed", o.opts.Now().Sub(r.started))
		return candidates, nil
	}

	if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
		r.log.Warn("Fusion job cancelled", "stage", r.stage, "error", err)
		o.markFailed(ctx, r, ErrCancelled.Error())
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return nil, err
	}

	return o.lastResort(ctx, r, err)
}

func (o *Orchestrator) runStages(ctx context.Context, r *jobRun) ([]models.Candidate, error) {
	r.stage = "start"
	if err := o.write(ctx, r, models.FusionJobUpdate{
		Status:       models.StatusPtr(models.JobStatusProcessing),
		StatusDetail: models.StringPtr("started"),
		Progress:     models.IntPtr(3),
	}); err != nil {
		return nil, err
	}

	for _, st := range o.stages {
		if err := o.checkpoint(ctx, r); err != nil {
			return nil, err
		}
		r.stage = st.name
		if err := o.write(ctx, r, progressUpdate(st.start, st.detail, nil)); err != nil {
			return nil, err
		}

		res, err := st.run(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", st.name, err)
		}
		update := progressUpdate(st.done, res.detail, res.meta)
		if res.err != "" {
			update.Error = &res.err
		}
		if err := o.write(ctx, r, update); err != nil {
			return nil, err
		}
	}

	if err := o.checkpoint(ctx, r); err != nil {
		return nil, err
	}
	r.stage = "finalize"
	return o.finalize(ctx, r)
}

// checkpoint runs at every stage boundary.
func (o *Orchestrator) checkpoint(ctx context.Context, r *jobRun) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if elapsed := o.opts.Now().Sub(r.started); elapsed > o.opts.JobTimeout {
		return fmt.Errorf("%w after %s", ErrJobTimeout, elapsed.Round(time.Second))
	}
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, r *jobRun) ([]models.Candidate, error) {
	if len(r.candidates) == 0 {
		return nil, ErrNoCandidate
	}
	resultURL := r.candidates[0].URL
	if err := o.write(ctx, r, models.FusionJobUpdate{
		Status:       models.StatusPtr(models.JobStatusCompleted),
		StatusDetail: models.StringPtr(string(models.JobStatusCompleted)),
		Progress:     models.IntPtr(100),
		Candidates:   r.candidates,
		ResultURL:    &resultURL,
	}); err != nil {
		return nil, err
	}
	o.publish(ctx, r, realtime.CompletedEvent(r.job.ID, resultURL, len(r.candidates)))
	return r.candidates, nil
}

// lastResort synthesizes a single candidate from the original inputs after
// the pipeline failed. If that fails too the job is marked failed with the
// original cause.
func (o *Orchestrator) lastResort(ctx context.Context, r *jobRun, cause error) ([]models.Candidate, error) {
	r.log.Error("Pipeline failed, running last-resort fallback", "stage", r.stage, "error", cause)

	ref, err := o.fallbackImage(ctx, r, fallbackRequest{
		baseURL:   r.modelURL,
		fabricURL: r.job.PrimaryFabricURL(),
		features:  firstFeatures(r.topFeatures, r.bottomFeatures),
		region:    imaging.RegionTop,
		strength:  0.5,
		path:      assets.FallbackPath(r.job.ID, "final", o.opts.Now().UnixMilli()),
	})
	if err != nil {
		r.log.Error("Last-resort fallback failed", "error", err)
		o.markFailed(ctx, r, cause.Error())
		return nil, cause
	}

	candidate := models.Candidate{
		URL:  ref.url,
		Mode: models.ModeHybrid,
		Meta: map[string]interface{}{"fallback": true},
	}
	causeMsg := cause.Error()
	if err := o.write(ctx, r, models.FusionJobUpdate{
		Status:       models.StatusPtr(models.JobStatusCompleted),
		StatusDetail: models.StringPtr(string(models.JobStatusCompleted)),
		Progress:     models.IntPtr(100),
		Metadata:     Metadata{"error": causeMsg},
		Candidates:   []models.Candidate{candidate},
		ResultURL:    &ref.url,
		Error:        &causeMsg,
	}); err != nil {
		r.log.Error("Failed to record last-resort result", "error", err)
		o.markFailed(ctx, r, causeMsg)
		return nil, cause
	}

	o.publish(ctx, r, realtime.CompletedEvent(r.job.ID, ref.url, 1))
	return []models.Candidate{candidate}, nil
}

// markFailed leaves progress where it was. It writes on a context detached
// from cancellation so a cancelled job never stays in processing.
func (o *Orchestrator) markFailed(ctx context.Context, r *jobRun, msg string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	err := o.deps.Store.Update(wctx, r.job.ID, models.FusionJobUpdate{
		Status:       models.StatusPtr(models.JobStatusFailed),
		StatusDetail: models.StringPtr(string(models.JobStatusFailed)),
		Error:        &msg,
	})
	if err != nil {
		r.log.Error("Failed to mark job failed", "error", err)
		return
	}
	o.publish(wctx, r, realtime.FailedEvent(r.job.ID, msg))
}

func (o *Orchestrator) write(ctx context.Context, r *jobRun, update models.FusionJobUpdate) error {
	if err := o.deps.Store.Update(ctx, r.job.ID, update); err != nil {
		return fmt.Errorf("persist job state: %w", err)
	}
	if update.Progress != nil && *update.Progress > r.progress {
		r.progress = *update.Progress
	}
	if update.StatusDetail != nil {
		r.detail = *update.StatusDetail
	}
	if update.Status == nil || *update.Status == models.JobStatusProcessing {
		o.publish(ctx, r, realtime.ProgressEvent(r.job.ID, models.JobStatusProcessing, r.progress, r.detail))
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, r *jobRun, event realtime.JobEvent) {
	if err := o.deps.Events.Publish(ctx, event); err != nil {
		r.log.Debug("Failed to publish job event", "event", event.Event, "error", err)
	}
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.opts.StageTimeout)
}

func progressUpdate(progress int, detail string, meta Metadata) models.FusionJobUpdate {
	return models.FusionJobUpdate{
		StatusDetail: &detail,
		Progress:     &progress,
		Metadata:     meta,
	}
}
