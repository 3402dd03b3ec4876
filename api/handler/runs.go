package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/provas/models"
)

// ListRuns returns a handler for GET /api/v1/runs.
func ListRuns(logsDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		files, err := listJSON(logsDir, "run-")
		if err != nil {
			respondError(c, http.StatusInternalServerError, models.ErrCodeInternal, err.Error())
			return
		}
		c.JSON(http.StatusOK, models.OutputListResponse{
			Success: true,
			Files:   files,
			Total:   len(files),
		})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
func GetRun(logsDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "invalid execution id")
			return
		}
		path, ok := resolve(c, logsDir, "run-"+id.String()+".json")
		if !ok {
			return
		}
		c.File(path)
	}
}
