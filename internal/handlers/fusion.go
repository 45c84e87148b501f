package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fabric-fusion-backend/internal/jobstore"
	"fabric-fusion-backend/internal/logger"
	"fabric-fusion-backend/internal/middleware"
	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/services"
)

type FusionHandler struct {
	service *services.FusionService
	log     *logger.Logger
}

func NewFusionHandler(service *services.FusionService, log *logger.Logger) *FusionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &FusionHandler{
		service: service,
		log:     log.With("handler", "fusion"),
	}
}

// Register mounts the fusion routes on an authenticated group.
func (h *FusionHandler) Register(group *gin.RouterGroup) {
	group.POST("/fusion/jobs", h.Submit)
	group.GET("/fusion/jobs", h.List)
	group.POST("/fusion/upload", h.Upload)
	group.GET("/fusion/jobs/:job_id/status", h.Status)
	group.GET("/fusion/jobs/:job_id/result", h.Result)
}

// Submit godoc
// @Summary     Create a fusion job
// @Description Queues a garment fusion job for a model photograph and one or two fabric images.
// @Description Returns immediately; poll the status or result endpoint.
// @Tags        fusion
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.CreateFusionJobRequest true "Fusion job inputs"
// @Success     202 {object} models.CreateFusionJobResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /fusion/jobs [post]
func (h *FusionHandler) Submit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateFusionJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request body",
			Message: err.Error(),
		})
		return
	}

	h.submit(c, userID, req)
}

// Upload godoc
// @Summary     Upload images and create a fusion job
// @Description Stores the uploaded model and fabric images, then queues a fusion job for them.
// @Description Each file must be png, jpg, jpeg or webp and at most 10 MB.
// @Tags        fusion
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       modelImage formData file true "Model photograph"
// @Param       topFabric formData file false "Fabric for the top region"
// @Param       bottomFabric formData file false "Fabric for the bottom region"
// @Param       category formData string true "Garment category"
// @Param       userConsent formData bool false "Allow face protection"
// @Success     202 {object} models.CreateFusionJobResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /fusion/upload [post]
func (h *FusionHandler) Upload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	// Three files of up to 10MB each
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to parse multipart form",
			Message: err.Error(),
		})
		return
	}

	category := c.PostForm("category")
	if category == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid upload", Message: "category is required"})
		return
	}
	if _, ok := models.ParseCategory(category); !ok {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid upload", Message: "unknown category " + category})
		return
	}

	batch := h.service.UploadBatch()
	urls := make(map[string]string, 3)
	for _, slot := range []string{"modelImage", "topFabric", "bottomFabric"} {
		header, err := c.FormFile(slot)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid file " + slot, Message: err.Error()})
			return
		}

		data, err := readFormFile(header)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read " + slot, Message: err.Error()})
			return
		}

		publicURL, err := h.service.UploadInput(c.Request.Context(), batch, slot, header.Filename, data)
		if err != nil {
			if errors.Is(err, services.ErrInvalidUpload) {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid upload", Message: err.Error()})
				return
			}
			h.log.Error("Input upload failed", "slot", slot, "error", err)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to store upload", Message: err.Error()})
			return
		}
		urls[slot] = publicURL
	}

	consent, _ := strconv.ParseBool(c.PostForm("userConsent"))
	req := models.CreateFusionJobRequest{
		Category:        category,
		ModelImageURL:   urls["modelImage"],
		FabricTopURL:    urls["topFabric"],
		FabricBottomURL: urls["bottomFabric"],
		UserConsent:     consent,
	}
	if s := c.PostForm("strength"); s != "" {
		strength, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid strength", Message: err.Error()})
			return
		}
		req.Strength = &strength
	}

	h.submit(c, userID, req)
}

func (h *FusionHandler) submit(c *gin.Context, userID string, req models.CreateFusionJobRequest) {
	job, err := h.service.Submit(c.Request.Context(), userID, req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidJob) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid fusion job", Message: err.Error()})
			return
		}
		h.log.Error("Fusion job submission failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create job", Message: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, models.CreateFusionJobResponse{
		JobID:  job.ID.String(),
		Status: job.Status,
	})
}

// Status godoc
// @Summary     Get fusion job status
// @Description Returns the current status and progress (0-100) of a fusion job.
// @Tags        fusion
// @Produce     json
// @Security    Bearer
// @Param       job_id path string true "Job ID (UUID)"
// @Success     200 {object} models.JobStatusResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /fusion/jobs/{job_id}/status [get]
func (h *FusionHandler) Status(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, models.JobStatusResponse{
		JobID:        job.ID.String(),
		Status:       job.Status,
		Progress:     job.Progress,
		StatusDetail: job.StatusDetail,
		Error:        job.Error,
		UpdatedAt:    job.UpdatedAt,
	})
}

// Result godoc
// @Summary     Get fusion job result
// @Description Returns the result image and all candidates once the job has finished.
// @Description Responds 202 with the current progress while the job is still running.
// @Tags        fusion
// @Produce     json
// @Security    Bearer
// @Param       job_id path string true "Job ID (UUID)"
// @Success     200 {object} models.JobResultResponse
// @Success     202 {object} models.JobPendingResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /fusion/jobs/{job_id}/result [get]
func (h *FusionHandler) Result(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	if !job.Status.Terminal() {
		c.JSON(http.StatusAccepted, models.JobPendingResponse{
			Message:  "job is still processing",
			Status:   job.Status,
			Progress: job.Progress,
		})
		return
	}

	candidates := job.Candidates
	if candidates == nil {
		candidates = []models.Candidate{}
	}
	c.JSON(http.StatusOK, models.JobResultResponse{
		JobID:      job.ID.String(),
		Status:     job.Status,
		ResultURL:  job.ResultURL,
		Candidates: candidates,
		Metadata:   job.Metadata,
		Error:      job.Error,
	})
}

// List godoc
// @Summary     List fusion jobs
// @Description Returns the caller's most recent fusion jobs, newest first.
// @Tags        fusion
// @Produce     json
// @Security    Bearer
// @Param       limit query int false "Maximum number of jobs (default 20, max 100)"
// @Success     200 {object} models.JobListResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /fusion/jobs [get]
func (h *FusionHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := h.service.List(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to list jobs", Message: err.Error()})
		return
	}

	resp := models.JobListResponse{Jobs: make([]models.JobSummary, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, models.JobSummary{
			JobID:     job.ID.String(),
			Category:  job.Category,
			Status:    job.Status,
			Progress:  job.Progress,
			ResultURL: job.ResultURL,
			CreatedAt: job.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FusionHandler) loadJob(c *gin.Context) (*models.FusionJob, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, false
	}

	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid job id"})
		return nil, false
	}

	job, err := h.service.Get(c.Request.Context(), userID, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "job not found",
				Message: err.Error(),
			})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load job", Message: err.Error()})
		return nil, false
	}
	return job, true
}

func currentUser(c *gin.Context) (string, bool) {
	userIDStr, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return "", false
	}
	userID, _ := userIDStr.(string)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return "", false
	}
	return userID, true
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	// one byte past the limit so the service can reject oversized files
	return io.ReadAll(io.LimitReader(file, services.MaxUploadBytes+1))
}
