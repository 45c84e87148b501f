package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fabric-fusion-backend/internal/models"
)

// HealthHandler godoc
// @Summary     Health check
// @Description Liveness probe for the fusion API. Does not check the job store or model API.
// @Tags        health
// @Produce     json
// @Success     200 {object} models.HealthResponse
// @Router      /health [get]
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}
