package handler

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/provas/cache"
	"github.com/use-agent/provas/models"
)

// ListOutputs returns a handler for GET /api/v1/outputs.
// Files are listed newest first.
func ListOutputs(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		files, err := listJSON(dir, "")
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

// GetOutput returns a handler for GET /api/v1/outputs/:name.
func GetOutput(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, ok := resolve(c, dir, c.Param("name"))
		if !ok {
			return
		}
		c.File(path)
	}
}

// GetQuestion returns a handler for GET /api/v1/outputs/:name/questions/:id.
// Decoded files are kept in qc until they change on disk.
func GetQuestion(dir string, qc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, ok := resolve(c, dir, c.Param("name"))
		if !ok {
			return
		}
		qs, err := loadQuestions(path, qc)
		if err != nil {
			respondError(c, http.StatusUnprocessableEntity, models.ErrCodeInvalidInput, "not a question array: "+err.Error())
			return
		}

		id := c.Param("id")
		for i := range qs {
			if qs[i].ID == id {
				c.JSON(http.StatusOK, qs[i])
				return
			}
		}
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "question "+id+" not found")
	}
}

func loadQuestions(path string, qc *cache.Cache) ([]models.TransformedQuestion, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := cache.Key(path, info.ModTime(), info.Size())
	if qs, ok := qc.Get(key); ok {
		return qs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var qs []models.TransformedQuestion
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, err
	}
	qc.Set(key, qs)
	return qs, nil
}

// resolve maps a request name onto a JSON file directly inside dir and
// writes the error response itself when that is impossible.
func resolve(c *gin.Context, dir, name string) (string, bool) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "invalid file name")
		return "", false
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, name+" not found")
		return "", false
	}
	return path, true
}

func listJSON(dir, prefix string) ([]models.OutputFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.OutputFile{}, nil
	}
	if err != nil {
		return nil, err
	}

	files := make([]models.OutputFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, models.OutputFile{
			Name:       name,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})
	return files, nil
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
