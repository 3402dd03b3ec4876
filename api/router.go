package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/provas/api/handler"
	"github.com/use-agent/provas/api/middleware"
	"github.com/use-agent/provas/cache"
	"github.com/use-agent/provas/config"
)

// NewRouter creates the preview server: the image cache under the
// local-serving prefix, plus a read-only API over produced artifacts.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if keys configured) → RateLimit
//
// Images and health stay outside auth so rewritten statements render as-is.
func NewRouter(cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Preview.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.Static(cfg.Images.ServePrefix, cfg.Images.Dir)

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(cfg, startTime))

	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.Preview.APIKeys))
	protected.Use(middleware.RateLimit(cfg.Preview))

	// Output artifacts
	protected.GET("/outputs", handler.ListOutputs(cfg.Output.Dir))
	protected.GET("/outputs/:name", handler.GetOutput(cfg.Output.Dir))
	questions := cache.New(cfg.Preview.CacheEntries, cfg.Preview.CacheTTL)
	protected.GET("/outputs/:name/questions/:id", handler.GetQuestion(cfg.Output.Dir, questions))

	// Run reports
	protected.GET("/runs", handler.ListRuns(cfg.Output.LogsDir))
	protected.GET("/runs/:id", handler.GetRun(cfg.Output.LogsDir))

	return r
}
