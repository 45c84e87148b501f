package pipeline

import (
	"context"
	"time"

	"fabric-fusion-backend/internal/logger"
	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/prompts"
)

// Metadata is the patch a stage adds to the job record. Keys are merged into
// the stored metadata one at a time.
type Metadata map[string]interface{}

// stageResult is what a stage reports. err is set when the stage fell back
// and becomes the job's error message.
type stageResult struct {
	detail string
	meta   Metadata
	err    string
}

type stage struct {
	name   string
	start  int
	detail string
	done   int
	run    func(ctx context.Context, r *jobRun) (stageResult, error)
}

// stageTable lists the stages in execution order with the progress written
// when each starts and finishes.
func (o *Orchestrator) stageTable() []stage {
	return []stage{
		{name: "face", start: 5, detail: "face_detection", done: 10, run: o.protectFace},
		{name: "segmentation", start: 12, detail: "segmentation", done: 18, run: o.segmentGarment},
		{name: "edge", start: 22, detail: "edge_map", done: 25, run: o.mapEdges},
		{name: "fabric", start: 28, detail: "fabric_features", done: 34, run: o.extractFabric},
		{name: "prompts", start: 36, detail: "building_prompts", done: 40, run: o.buildPrompts},
		{name: "top", start: 45, detail: "generating_top", done: 60, run: o.generateTop},
		{name: "bottom", start: 64, detail: "generating_bottom", done: 82, run: o.generateBottom},
		{name: "hybrid", start: 86, detail: "final_pass", done: 94, run: o.hybridPass},
		{name: "upscale", start: 95, detail: "upscaling", done: 98, run: o.upscaleCandidates},
	}
}

// Region mask keys, as recorded under metadata "masks".
const (
	maskTop        = "top"
	maskBottom     = "bottom"
	maskSilhouette = "silhouette"
)

// jobRun is the working state of one job. It is owned by a single goroutine.
type jobRun struct {
	job     *models.FusionJob
	started time.Time
	log     *logger.Logger

	stage    string
	detail   string
	progress int

	modelURL    string
	faceMaskURL string
	masks       map[string][]byte
	maskURLs    map[string]string
	edgeURL     string

	topFeatures    *models.FabricFeatures
	bottomFeatures *models.FabricFeatures
	prompts        prompts.Prompts

	// baseURL is the running base image; baseData caches its bytes when known.
	baseURL  string
	baseData []byte

	candidates []models.Candidate
	maxCands   int
}

func newJobRun(job *models.FusionJob, now time.Time, log *logger.Logger) *jobRun {
	modelURL := job.BaseImageURL()
	return &jobRun{
		job:      job,
		started:  now,
		log:      log,
		progress: job.Progress,
		modelURL: modelURL,
		masks:    make(map[string][]byte),
		maskURLs: make(map[string]string),
		baseURL:  modelURL,
		prompts:  prompts.Build(job.Category, nil, nil),
	}
}

func (r *jobRun) setBase(url string, data []byte) {
	r.baseURL = url
	r.baseData = data
}

// addCandidate appends c unless the cap is reached.
func (r *jobRun) addCandidate(c models.Candidate) bool {
	if r.maxCands > 0 && len(r.candidates) >= r.maxCands {
		return false
	}
	r.candidates = append(r.candidates, c)
	return true
}

func candidateMeta(c models.Candidate) map[string]interface{} {
	return map[string]interface{}{
		"url":  c.URL,
		"mode": c.Mode,
		"meta": c.Meta,
	}
}

func firstFeatures(fs ...*models.FabricFeatures) *models.FabricFeatures {
	for _, f := range fs {
		if f != nil {
			return f
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func strengthOr(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
