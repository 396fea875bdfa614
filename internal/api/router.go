// Package api exposes the ingest pipeline over HTTP.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"template-ingest/internal/common/auth"
	"template-ingest/internal/common/logger"
	"template-ingest/internal/template/pipeline"
	"template-ingest/internal/template/store"
)

const ProcessPath = "/functions/process-template-zip"

// Processor runs one ingest. *pipeline.Pipeline implements it.
type Processor interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// RunReader looks up run status. *store.RunTracker implements it.
type RunReader interface {
	Get(ctx context.Context, runID string) (*store.RunStatus, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	Verifier       auth.Verifier
	Processor      Processor
	Runs           RunReader
	Checks         map[string]ReadinessCheck
	AllowedOrigins []string
	ServiceName    string
	Version        string
	Logger         logger.Logger
}

func NewRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(opts.AllowedOrigins))

	health := &healthHandler{
		service: opts.ServiceName,
		version: opts.Version,
		started: time.Now(),
		checks:  opts.Checks,
	}
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &Handler{processor: opts.Processor, runs: opts.Runs, logger: log}
	functions := router.Group(ProcessPath, Authenticate(opts.Verifier))
	functions.POST("", h.ProcessTemplateZip)
	if opts.Runs != nil {
		functions.GET("/runs/:runId", h.GetRun)
	}

	return router
}
