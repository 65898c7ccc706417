package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/download"
)

// AddDownload queues one track
func (h *Handlers) AddDownload(c *gin.Context) {
	var in download.AddInput
	if err := c.ShouldBindJSON(&in); err != nil || in.Name == "" || in.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and url are required"})
		return
	}

	res, err := h.downloads.Add(c.Request.Context(), in)
	if err != nil {
		h.downloadError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type addBatchRequest struct {
	Items []download.AddInput `json:"items"`
}

// AddDownloads queues several tracks
func (h *Handlers) AddDownloads(c *gin.Context) {
	var req addBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Items == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items array is required"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"results": h.downloads.AddBatch(c.Request.Context(), req.Items)})
}

// ListDownloads pages jobs, optionally filtered by status
func (h *Handlers) ListDownloads(c *gin.Context) {
	status := download.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	res, err := h.downloads.List(c.Request.Context(), status, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetDownload returns one job
func (h *Handlers) GetDownload(c *gin.Context) {
	job, err := h.downloads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.downloadError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeleteDownload removes a job and its file
func (h *Handlers) DeleteDownload(c *gin.Context) {
	if err := h.downloads.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.downloadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Download deleted successfully"})
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// DeleteDownloads removes several jobs
func (h *Handlers) DeleteDownloads(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IDs == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids array is required"})
		return
	}
	n := h.downloads.DeleteBatch(c.Request.Context(), req.IDs)
	c.JSON(http.StatusOK, gin.H{"message": "Downloads deleted successfully", "count": n})
}

// RetryDownload requeues a job
func (h *Handlers) RetryDownload(c *gin.Context) {
	if err := h.downloads.Retry(c.Request.Context(), c.Param("id")); err != nil {
		h.downloadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Download queued for retry"})
}

// ClearCompleted removes completed jobs
func (h *Handlers) ClearCompleted(c *gin.Context) {
	n, err := h.downloads.ClearCompleted(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Completed downloads cleared", "count": n})
}

// DownloadStats counts jobs per status
func (h *Handlers) DownloadStats(c *gin.Context) {
	sum, err := h.downloads.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handlers) downloadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, download.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
	case errors.Is(err, download.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and url are required"})
	default:
		h.internalError(c, err)
	}
}
