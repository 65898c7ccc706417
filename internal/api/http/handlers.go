package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/download"
	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/resolver"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
)

const (
	serviceName    = "LX Music Web API"
	serviceVersion = "1.0.0"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	sources   *registry.Store
	engine    *resolver.Engine
	downloads *download.Manager
	db        *sql.DB
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

// NewHandlers creates a new handler set. metrics may be nil.
func NewHandlers(
	sources *registry.Store,
	engine *resolver.Engine,
	downloads *download.Manager,
	db *sql.DB,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sources:   sources,
		engine:    engine,
		downloads: downloads,
		db:        db,
		metrics:   metrics,
		logger:    logger,
	}
}

// Root describes the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    serviceName,
		"version": serviceVersion,
		"status":  "running",
	})
}

// Health reports liveness and database reachability
func (h *Handlers) Health(c *gin.Context) {
	database := "connected"
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if h.db == nil || h.db.PingContext(ctx) != nil {
		database = "disconnected"
	}

	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"database":  database,
	}
	if h.metrics != nil {
		body["uptime"] = time.Since(h.metrics.StartTime()).Seconds()
	}
	c.JSON(http.StatusOK, body)
}

// NotFound answers unknown routes
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
}

// Recovery turns panics into a JSON 500
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Handler panic", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":  "Internal Server Error",
			"status": http.StatusInternalServerError,
		})
	})
}

// internalError logs err and answers with the error envelope
func (h *Handlers) internalError(c *gin.Context, err error) {
	h.logger.Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":  err.Error(),
		"status": http.StatusInternalServerError,
	})
}
