package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
)

// ListSources lists every source in fallback order
func (h *Handlers) ListSources(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sources)
}

// GetSource returns one source
func (h *Handlers) GetSource(c *gin.Context) {
	src, err := h.sources.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sourceError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

// CreateSource validates and stores a script
func (h *Handlers) CreateSource(c *gin.Context) {
	var in registry.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Script) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and script are required"})
		return
	}

	src, err := h.sources.Create(c.Request.Context(), in)
	if err != nil {
		h.sourceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, src)
}

// UpdateSource applies a partial update
func (h *Handlers) UpdateSource(c *gin.Context) {
	var in registry.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	src, err := h.sources.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.sourceError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

// DeleteSource removes a source
func (h *Handlers) DeleteSource(c *gin.Context) {
	if err := h.sources.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.sourceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Source deleted successfully"})
}

// ToggleSource flips a source's enabled flag
func (h *Handlers) ToggleSource(c *gin.Context) {
	src, err := h.sources.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sourceError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

// TestSource runs a search and the ranking list against one source
func (h *Handlers) TestSource(c *gin.Context) {
	ctx := c.Request.Context()
	src, err := h.sources.Get(ctx, c.Param("id"))
	if err != nil {
		h.sourceError(c, err)
		return
	}

	report, err := h.engine.Test(ctx, *src)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type validateRequest struct {
	Script string `json:"script"`
}

// ValidateSource evaluates a script without storing it
func (h *Handlers) ValidateSource(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Script) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script is required"})
		return
	}

	v, err := h.engine.Validate(c.Request.Context(), req.Script)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid":   false,
			"error":   "Invalid script",
			"details": sandbox.Message(err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":        true,
		"info":         v.Info,
		"capabilities": v.Capabilities,
		"hasHandler":   v.HasHandler,
		"console":      v.Console,
	})
}

func (h *Handlers) sourceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
	case errors.Is(err, sandbox.ErrScriptInit), errors.Is(err, sandbox.ErrScriptTimeout):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid script", "details": sandbox.Message(err)})
	case errors.Is(err, registry.ErrInvalidSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.internalError(c, err)
	}
}
