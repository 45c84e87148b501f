package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type Category string

const (
	CategoryLehenga Category = "lehenga"
	CategoryBlouse  Category = "blouse"
	CategoryGown    Category = "gown"
	CategorySaree   Category = "saree"
	CategorySalwar  Category = "salwar"
	CategoryDress   Category = "dress"
	CategoryTop     Category = "top"
	CategorySkirt   Category = "skirt"
	CategoryOther   Category = "other"
)

var validCategories = map[Category]bool{
	CategoryLehenga: true,
	CategoryBlouse:  true,
	CategoryGown:    true,
	CategorySaree:   true,
	CategorySalwar:  true,
	CategoryDress:   true,
	CategoryTop:     true,
	CategorySkirt:   true,
	CategoryOther:   true,
}

// ParseCategory normalizes a user supplied category. Empty input maps to
// CategoryOther.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryOther, true
	}
	return c, validCategories[c]
}

// Candidate modes.
const (
	ModeSilhouetteFirst = "silhouette-first"
	ModeTextureFirst    = "texture-first"
	ModeHybrid          = "hybrid"
)

type Candidate struct {
	URL  string                 `json:"url"`
	Mode string                 `json:"mode"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// IsFallback reports whether the candidate came from local synthesis.
func (c Candidate) IsFallback() bool {
	v, _ := c.Meta["fallback"].(bool)
	return v
}

type FusionJob struct {
	ID                uuid.UUID
	UserID            string
	Category          Category
	ModelImageURL     string
	ReferenceModelURL string
	FabricTopURL      string
	FabricBottomURL   string
	Strength          float64
	UserConsent       bool
	Status            JobStatus
	StatusDetail      string
	Progress          int
	Metadata          map[string]interface{}
	Candidates        []Candidate
	ResultURL         string
	Error             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BaseImageURL is the photograph the pipeline edits.
func (j *FusionJob) BaseImageURL() string {
	if j.ModelImageURL != "" {
		return j.ModelImageURL
	}
	return j.ReferenceModelURL
}

// PrimaryFabricURL prefers the top fabric.
func (j *FusionJob) PrimaryFabricURL() string {
	if j.FabricTopURL != "" {
		return j.FabricTopURL
	}
	return j.FabricBottomURL
}

// FusionJobUpdate is a partial update. Nil fields are left untouched and
// Metadata keys are merged into the stored map one key at a time.
type FusionJobUpdate struct {
	Status       *JobStatus
	StatusDetail *string
	Progress     *int
	Metadata     map[string]interface{}
	Candidates   []Candidate
	ResultURL    *string
	Error        *string
}

// Apply merges the update into job. It returns false and leaves job untouched
// if job is already terminal. Progress never moves backwards.
func (u FusionJobUpdate) Apply(job *FusionJob, now time.Time) bool {
	if job.Status.Terminal() {
		return false
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.StatusDetail != nil {
		job.StatusDetail = *u.StatusDetail
	}
	if u.Progress != nil && *u.Progress > job.Progress {
		job.Progress = *u.Progress
	}
	if len(u.Metadata) > 0 {
		if job.Metadata == nil {
			job.Metadata = make(map[string]interface{}, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			job.Metadata[k] = v
		}
	}
	if u.Candidates != nil {
		job.Candidates = append([]Candidate(nil), u.Candidates...)
	}
	if u.ResultURL != nil {
		job.ResultURL = *u.ResultURL
	}
	if u.Error != nil {
		job.Error = *u.Error
	}
	job.UpdatedAt = now
	return true
}

func StatusPtr(s JobStatus) *JobStatus { return &s }
func IntPtr(n int) *int                { return &n }
func StringPtr(s string) *string       { return &s }

// FabricFeatures summarizes a fabric photograph.
type FabricFeatures struct {
	Colors        []string `json:"colors"`
	DominantColor string   `json:"dominantColor"`
	Texture       string   `json:"texture"`
}
