// Package http builds the gin route tree and the HTTP server for the
// ChemScreen API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ChemScreen/internal/interfaces/http/handlers"
	"github.com/turtacn/ChemScreen/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies required
// to construct the complete route tree. Nil handlers leave their route group
// unregistered, which keeps partial deployments possible (an indexing-only
// instance can skip toxicity, for example).
type RouterConfig struct {
	MoleculeHandler  *handlers.MoleculeHandler
	ScreeningHandler *handlers.ScreeningHandler
	ToxicityHandler  *handlers.ToxicityHandler
	SearchHandler    *handlers.SearchHandler
	ImportHandler    *handlers.ImportHandler
	HealthHandler    *handlers.HealthHandler

	CORS      *middleware.CORSConfig
	RateLimit *middleware.RateLimitConfig

	// Shutdown, when non-nil, stops the rate limiter's bucket cleanup
	// goroutine once closed. Leave nil in tests that never run long enough
	// to accumulate buckets.
	Shutdown <-chan struct{}

	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	// MetricsHandler serves GET /metrics; usually collector.Handler().
	MetricsHandler http.Handler
}

// NewRouter constructs the complete route tree. Health probes and /metrics
// stay outside the /api/v1 group so they skip rate limiting and keep stable
// paths for probe configuration.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())

	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.RateLimit != nil {
		limiter := middleware.NewTokenBucketLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
		if cfg.Shutdown != nil {
			limiter.StartCleanup(cfg.RateLimit.CleanupInterval, cfg.Shutdown)
		}
		r.Use(middleware.RateLimit(limiter, *cfg.RateLimit))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	v1 := r.Group("/api/v1")

	if h := cfg.MoleculeHandler; h != nil {
		mols := v1.Group("/molecules")
		mols.POST("", h.Register)
		mols.GET("", h.List)
		mols.POST("/properties", h.Properties)
		mols.POST("/similar", h.FindSimilar)
		mols.GET("/:inchikey", h.Get)
		mols.DELETE("/:inchikey", h.Delete)
		mols.GET("/:inchikey/neighbors", h.Neighbors)
	}

	if h := cfg.ScreeningHandler; h != nil {
		scr := v1.Group("/screening")
		scr.POST("/screen", h.Screen)
		scr.POST("/screen/upload", h.ScreenUpload)
		scr.POST("/runs", h.SubmitRun)
		scr.GET("/runs", h.ListRuns)
		scr.GET("/runs/:id", h.GetRun)
		scr.GET("/runs/:id/report", h.Report)
	}

	if h := cfg.ToxicityHandler; h != nil {
		tox := v1.Group("/toxicity")
		tox.POST("/train", h.Train)
		tox.POST("/predict", h.Predict)
		tox.POST("/crossvalidate", h.CrossValidate)
		tox.GET("/models", h.Models)
	}

	if h := cfg.SearchHandler; h != nil {
		v1.GET("/search/molecules", h.ByName)
		v1.GET("/search/autocomplete", h.Autocomplete)
	}

	if h := cfg.ImportHandler; h != nil {
		v1.POST("/import/chembl/:id", h.FromChEMBL)
		v1.POST("/import/pubchem", h.FromPubChem)
	}

	return r
}
