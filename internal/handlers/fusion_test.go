package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabric-fusion-backend/internal/handlers"
	"fabric-fusion-backend/internal/jobstore"
	"fabric-fusion-backend/internal/middleware"
	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/queue"
	"fabric-fusion-backend/internal/services"
)

type uploadedAssets struct {
	mu    sync.Mutex
	paths []string
}

func (a *uploadedAssets) Upload(_ context.Context, path string, _ []byte, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, path)
	return "https://assets.test/" + path, nil
}

type fusionAPI struct {
	router *gin.Engine
	store  *jobstore.MemoryStore
	queue  *queue.LocalQueue
	assets *uploadedAssets
}

func newFusionAPI(t *testing.T) *fusionAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := &fusionAPI{
		store:  jobstore.NewMemoryStore(),
		queue:  queue.NewLocalQueue(16, nil),
		assets: &uploadedAssets{},
	}
	t.Cleanup(func() { api.queue.Close() })

	svc := services.NewFusionService(api.store, api.queue, api.assets, nil)
	h := handlers.NewFusionHandler(svc, nil)

	api.router = gin.New()
	group := api.router.Group("/api/v1")
	group.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(middleware.UserIDKey, user)
		}
		c.Next()
	})
	h.Register(group)
	return api
}

func (a *fusionAPI) do(t *testing.T, method, path, user string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *fusionAPI) submit(t *testing.T, user string) string {
	t.Helper()
	body := `{"category":"lehenga","modelImageUrl":"https://cdn.test/model.png","fabricTopUrl":"https://cdn.test/top.png","fabricBottomUrl":"https://cdn.test/bottom.png"}`
	w := a.do(t, http.MethodPost, "/api/v1/fusion/jobs", user, []byte(body), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp models.CreateFusionJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.JobStatusPending, resp.Status)
	return resp.JobID
}

func TestSubmit_Accepted(t *testing.T) {
	api := newFusionAPI(t)
	jobID := api.submit(t, "user-123")

	_, err := uuid.Parse(jobID)
	require.NoError(t, err)

	var got queue.Message
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = api.queue.Consume(ctx, func(_ context.Context, m queue.Message) error {
			got = m
			cancel()
			return nil
		})
	}()
	<-ctx.Done()
	assert.Equal(t, jobID, got.JobID)
}

func TestSubmit_BadRequests(t *testing.T) {
	api := newFusionAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/fusion/jobs", "user-123", []byte(`{not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/fusion/jobs", "user-123", []byte(`{"category":"lehenga","modelImageUrl":"https://cdn.test/model.png"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "fabric")
}

func TestSubmit_RequiresUser(t *testing.T) {
	api := newFusionAPI(t)
	w := api.do(t, http.MethodPost, "/api/v1/fusion/jobs", "", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatus(t *testing.T) {
	api := newFusionAPI(t)
	jobID := api.submit(t, "user-123")

	w := api.do(t, http.MethodGet, "/api/v1/fusion/jobs/"+jobID+"/status", "user-123", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.JobStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, jobID, resp.JobID)
	assert.Equal(t, models.JobStatusPending, resp.Status)
	assert.Equal(t, 0, resp.Progress)
}

func TestStatus_NotFound(t *testing.T) {
	api := newFusionAPI(t)
	jobID := api.submit(t, "user-123")

	w := api.do(t, http.MethodGet, "/api/v1/fusion/jobs/"+jobID+"/status", "someone-else", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/fusion/jobs/"+uuid.NewString()+"/status", "user-123", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/fusion/jobs/not-a-uuid/status", "user-123", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResult_PendingThenCompleted(t *testing.T) {
	api := newFusionAPI(t)
	jobID := api.submit(t, "user-123")

	w := api.do(t, http.MethodGet, "/api/v1/fusion/jobs/"+jobID+"/result", "user-123", nil, "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	candidates := []models.Candidate{
		{URL: "https://assets.test/a.png", Mode: models.ModeSilhouetteFirst},
		{URL: "https://assets.test/b.png", Mode: models.ModeHybrid},
	}
	require.NoError(t, api.store.Update(context.Background(), uuid.MustParse(jobID), models.FusionJobUpdate{
		Status:     models.StatusPtr(models.JobStatusCompleted),
		Progress:   models.IntPtr(100),
		Candidates: candidates,
		ResultURL:  models.StringPtr(candidates[0].URL),
		Metadata:   map[string]interface{}{"faceProtected": false},
	}))

	w = api.do(t, http.MethodGet, "/api/v1/fusion/jobs/"+jobID+"/result", "user-123", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.JobResultResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.JobStatusCompleted, resp.Status)
	assert.Equal(t, resp.Candidates[0].URL, resp.ResultURL)
	assert.Len(t, resp.Candidates, 2)
	assert.Equal(t, false, resp.Metadata["faceProtected"])
}

func TestResult_Failed(t *testing.T) {
	api := newFusionAPI(t)
	jobID := api.submit(t, "user-123")

	require.NoError(t, api.store.Update(context.Background(), uuid.MustParse(jobID), models.FusionJobUpdate{
		Status: models.StatusPtr(models.JobStatusFailed),
		Error:  models.StringPtr("fallback upload failed"),
	}))

	w := api.do(t, http.MethodGet, "/api/v1/fusion/jobs/"+jobID+"/result", "user-123", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)
	assert.Contains(t, w.Body.String(), "fallback upload failed")
	assert.Contains(t, w.Body.String(), `"candidates":[]`)
}

func TestList(t *testing.T) {
	api := newFusionAPI(t)
	api.submit(t, "user-123")
	api.submit(t, "user-123")
	api.submit(t, "someone-else")

	w := api.do(t, http.MethodGet, "/api/v1/fusion/jobs?limit=10", "user-123", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.JobListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 2)
}

func multipartBody(t *testing.T, files map[string]string, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, filename := range files {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUpload_CreatesJobFromFiles(t *testing.T) {
	api := newFusionAPI(t)
	body, contentType := multipartBody(t,
		map[string]string{"modelImage": "model.jpg", "topFabric": "silk.png"},
		map[string]string{"category": "saree", "userConsent": "true"},
	)

	w := api.do(t, http.MethodPost, "/api/v1/fusion/upload", "user-123", body, contentType)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp models.CreateFusionJobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	job, err := api.store.Get(context.Background(), uuid.MustParse(resp.JobID))
	require.NoError(t, err)
	assert.Equal(t, models.CategorySaree, job.Category)
	assert.True(t, job.UserConsent)
	assert.True(t, strings.HasSuffix(job.ModelImageURL, "/modelImage.jpg"))
	assert.True(t, strings.HasSuffix(job.FabricTopURL, "/topFabric.png"))
	assert.Empty(t, job.FabricBottomURL)
	assert.Len(t, api.assets.paths, 2)
}

func TestUpload_RejectsUnsupportedFile(t *testing.T) {
	api := newFusionAPI(t)
	body, contentType := multipartBody(t,
		map[string]string{"modelImage": "model.gif"},
		map[string]string{"category": "gown"},
	)

	w := api.do(t, http.MethodPost, "/api/v1/fusion/upload", "user-123", body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, api.assets.paths)
}

func TestUpload_RejectsUnknownCategory(t *testing.T) {
	api := newFusionAPI(t)
	body, contentType := multipartBody(t,
		map[string]string{"modelImage": "model.png", "topFabric": "silk.png"},
		map[string]string{"category": "spacesuit"},
	)

	w := api.do(t, http.MethodPost, "/api/v1/fusion/upload", "user-123", body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, api.assets.paths)
}

func TestUpload_RequiresCategory(t *testing.T) {
	api := newFusionAPI(t)
	body, contentType := multipartBody(t,
		map[string]string{"modelImage": "model.png", "topFabric": "silk.png"},
		map[string]string{"userConsent": "true"},
	)

	w := api.do(t, http.MethodPost, "/api/v1/fusion/upload", "user-123", body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "category is required")
	assert.Empty(t, api.assets.paths)

	jobs, err := api.store.List(context.Background(), "user-123", 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
