package handler

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports "degraded" when the image cache directory is missing.
func Health(cfg *config.Config, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		images, err := os.ReadDir(cfg.Images.Dir)
		if err != nil {
			status = "degraded"
		}
		outputs, _ := listJSON(cfg.Output.Dir, "")

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			Version:      Version,
			ImagesCached: len(images),
			Outputs:      len(outputs),
		})
	}
}
