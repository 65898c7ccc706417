package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/resolver"
)

type searchRequest struct {
	Keyword  string `json:"keyword"`
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
	Platform string `json:"platform"`
}

type trackRequest struct {
	MusicInfo map[string]any `json:"musicInfo"`
	Quality   string         `json:"quality"`
	SourceID  string         `json:"sourceId"`
}

// track returns musicInfo with its platform filled from sourceId when missing
func (r trackRequest) track() map[string]any {
	out := make(map[string]any, len(r.MusicInfo)+1)
	for k, v := range r.MusicInfo {
		out[k] = v
	}
	if s, _ := out["source"].(string); s == "" && r.SourceID != "" {
		out["source"] = r.SourceID
	}
	return out
}

// RankingList returns the built-in boards of every platform
func (h *Handlers) RankingList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.engine.RankingList()})
}

// RankingDetail loads one page of a board
func (h *Handlers) RankingDetail(c *gin.Context) {
	q := resolver.RankingQuery{
		Platform: c.Param("platform"),
		BoardID:  c.Param("boardId"),
		Page:     queryInt(c, "page"),
		Limit:    queryInt(c, "limit"),
	}
	res, err := h.engine.RankingDetail(c.Request.Context(), q)
	if err != nil {
		h.resolutionError(c, err, gin.H{"sourceId": q.Platform, "list": []any{}, "total": 0})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Search runs a keyword search under the configured policy
func (h *Handlers) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}

	res, err := h.engine.Search(c.Request.Context(), resolver.SearchQuery(req))
	if err != nil {
		h.resolutionError(c, err, gin.H{"keyword": req.Keyword, "results": []any{}})
		return
	}
	c.JSON(http.StatusOK, res)
}

// ResolveURL finds a playable URL for a track
func (h *Handlers) ResolveURL(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MusicInfo == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "musicInfo is required"})
		return
	}

	res, err := h.engine.ResolveURL(c.Request.Context(), req.track(), req.Quality)
	if err != nil {
		h.resolutionError(c, err, gin.H{"url": nil})
		return
	}
	if res.Message == resolver.NoSourcesMessage {
		c.JSON(http.StatusNotFound, gin.H{"error": "No enabled sources"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sourceId": "custom",
		"url":      res.URL,
		"quality":  res.Quality,
		"source":   res.Source,
	})
}

type batchRequest struct {
	Items   []trackRequest `json:"items"`
	Quality string         `json:"quality"`
}

type batchResult struct {
	URL     *string `json:"url"`
	Quality string  `json:"quality,omitempty"`
	Source  string  `json:"source,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// ResolveBatch resolves playable URLs for several tracks concurrently
func (h *Handlers) ResolveBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items array is required"})
		return
	}

	ctx := c.Request.Context()
	results := make([]batchResult, len(req.Items))
	g := new(errgroup.Group)
	g.SetLimit(h.engine.Config().SearchConcurrency)
	for i, item := range req.Items {
		if item.Quality == "" {
			item.Quality = req.Quality
		}
		g.Go(func() error {
			res, err := h.engine.ResolveURL(ctx, item.track(), item.Quality)
			switch {
			case err != nil:
				results[i].Error = err.Error()
			case res.URL == "":
				results[i].Error = res.Message
			default:
				url := res.URL
				results[i] = batchResult{URL: &url, Quality: res.Quality, Source: res.Source}
			}
			return nil
		})
	}
	_ = g.Wait()
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ResolveLyric finds lyrics for a track
func (h *Handlers) ResolveLyric(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MusicInfo == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "musicInfo is required"})
		return
	}

	res, err := h.engine.ResolveLyric(c.Request.Context(), req.track())
	if err != nil {
		h.resolutionError(c, err, gin.H{"lyric": "", "tlyric": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sourceId": "custom", "lyric": res.Lyric, "tlyric": res.TLyric})
}

// ResolveCover finds a cover image for a track
func (h *Handlers) ResolveCover(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MusicInfo == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "musicInfo is required"})
		return
	}

	res, err := h.engine.ResolveCover(c.Request.Context(), req.track())
	if err != nil {
		h.resolutionError(c, err, gin.H{"pic": nil})
		return
	}
	var pic any
	if res.Pic != "" {
		pic = res.Pic
	}
	c.JSON(http.StatusOK, gin.H{"sourceId": "custom", "pic": pic})
}

// resolutionError keeps failed resolutions on HTTP 200 with an error field
// so clients render an empty result. Only infrastructure faults become 500s.
func (h *Handlers) resolutionError(c *gin.Context, err error, empty gin.H) {
	if !errors.Is(err, resolver.ErrResolutionFailed) {
		h.internalError(c, err)
		return
	}
	empty["error"] = err.Error()
	c.JSON(http.StatusOK, empty)
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
